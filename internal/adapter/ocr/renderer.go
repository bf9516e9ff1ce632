package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// PageRenderer rasterizes document pages for the OCR providers.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string, maxPages int) ([][]byte, error)
}

// PopplerRenderer renders PDF pages to PNG via pdftoppm.
type PopplerRenderer struct {
	// DPI for rendering; 200 is enough for CV typography without blowing up
	// provider payload sizes.
	DPI int
}

// NewPopplerRenderer constructs a PopplerRenderer at 200 DPI.
func NewPopplerRenderer() *PopplerRenderer { return &PopplerRenderer{DPI: 200} }

// RenderPages implements PageRenderer.
func (r *PopplerRenderer) RenderPages(ctx context.Context, path string, maxPages int) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "ocr-render-*")
	if err != nil {
		return nil, fmt.Errorf("op=ocr.render: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	args := []string{"-png", "-r", strconv.Itoa(r.DPI)}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, filepath.Join(dir, "page"))
	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("op=ocr.render: pdftoppm: %w: %s", err, out)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("op=ocr.render: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".png" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	pages := make([][]byte, 0, len(names))
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, fmt.Errorf("op=ocr.render: %w", err)
		}
		pages = append(pages, b)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("op=ocr.render: no pages rendered from %s", filepath.Base(path))
	}
	return pages, nil
}

// BytesRenderer wraps a single pre-rendered image (JPEG/PNG uploads) as a
// one-page document.
type BytesRenderer struct{}

// RenderPages implements PageRenderer by reading the file as one page.
func (BytesRenderer) RenderPages(_ context.Context, path string, _ int) ([][]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=ocr.render: %w", err)
	}
	return [][]byte{b}, nil
}
