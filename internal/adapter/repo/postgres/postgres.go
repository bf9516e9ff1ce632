// Package postgres implements the relational reader/writer adapters.
//
// Read paths share a traced connection pool. The candidate writer opens a
// fresh connection per write so a failed write can never leak transaction
// state into a pooled connection.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WriteConn is the connection surface the writer needs from a fresh
// connection.
type WriteConn interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// WriteConnector opens a fresh connection for exactly one write.
type WriteConnector interface {
	Connect(ctx context.Context) (WriteConn, error)
}

// DSNConnector is the production WriteConnector.
type DSNConnector struct{ DSN string }

// Connect implements WriteConnector via pgx.Connect.
func (d DSNConnector) Connect(ctx context.Context) (WriteConn, error) {
	return pgx.Connect(ctx, d.DSN)
}
