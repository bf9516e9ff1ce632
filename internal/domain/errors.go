// Package domain holds the core entities and ports of the CV intake and
// matching pipeline. It has no dependencies on adapters; everything here is
// plain data plus small invariant helpers.
package domain

import "errors"

// Error taxonomy (sentinels). Adapters wrap these with op-context via
// fmt.Errorf("op=<pkg>.<op>: %w", ...) and the HTTP layer maps them to
// status codes.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrStatusRegression  = errors.New("status regression")
	ErrInternal          = errors.New("internal error")
)
