package extract

import (
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hrdataworks/talentdb/pkg/textx"
)

// tableGapPts is the horizontal gap between words that marks a column
// boundary when reconstructing tabular rows.
const tableGapPts = 40.0

// extractPDFPages pulls the text layer of up to maxPages pages (0 = all).
// Per page: plain text first, then rows that look tabular re-rendered with
// pipe-joined cells.
func extractPDFPages(path string, maxPages int) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	total := r.NumPage()
	limit := total
	if maxPages > 0 && maxPages < total {
		limit = maxPages
	}

	var b strings.Builder
	for i := 1; i <= limit; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		if text, err := p.GetPlainText(nil); err == nil {
			b.WriteString(textx.SanitizeText(text))
			b.WriteString("\n")
		}
		if rows, err := p.GetTextByRow(); err == nil {
			for _, row := range rows {
				if cells := tableCells(row.Content); len(cells) > 1 {
					b.WriteString(strings.Join(cells, " | "))
					b.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(b.String()), total, nil
}

// tableCells groups a row's words into cells split on large X gaps. Rows
// without a clear gap are not tables and yield a single cell.
func tableCells(words []pdf.Text) []string {
	if len(words) == 0 {
		return nil
	}
	var cells []string
	var cur strings.Builder
	prevEnd := words[0].X
	for i, w := range words {
		if i > 0 && w.X-prevEnd > tableGapPts {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		} else if i > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(w.S)
		prevEnd = w.X + w.W
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}
