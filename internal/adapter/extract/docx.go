package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"

	"github.com/hrdataworks/talentdb/pkg/textx"
)

// extractDOCX reads a DOCX archive locally: body paragraphs and tables in
// document order, then header and footer parts. Reports whether the
// archive embeds images.
func extractDOCX(path string) (string, bool, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = zr.Close() }()

	var body string
	var headers, footers []string
	hasImages := false
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			body, err = parseOOXMLPart(f)
			if err != nil {
				return "", false, err
			}
		case strings.HasPrefix(f.Name, "word/header"):
			if s, err := parseOOXMLPart(f); err == nil && s != "" {
				headers = append(headers, s)
			}
		case strings.HasPrefix(f.Name, "word/footer"):
			if s, err := parseOOXMLPart(f); err == nil && s != "" {
				footers = append(footers, s)
			}
		case strings.HasPrefix(f.Name, "word/media/"):
			hasImages = true
		}
	}

	parts := make([]string, 0, 3)
	if body != "" {
		parts = append(parts, body)
	}
	parts = append(parts, headers...)
	parts = append(parts, footers...)
	return textx.SanitizeText(strings.Join(parts, "\n")), hasImages, nil
}

// parseOOXMLPart walks one WordprocessingML part token by token, emitting
// paragraphs as lines and table rows as pipe-joined cells. Paragraphs
// inside table cells belong to the cell, not the body.
func parseOOXMLPart(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	dec := xml.NewDecoder(rc)
	var out strings.Builder
	var para strings.Builder
	var cell strings.Builder
	var row []string
	tableDepth := 0

	flushPara := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
		para.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth > 0 {
					row = row[:0]
				}
			case "tc":
				if tableDepth > 0 {
					cell.Reset()
				}
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					continue
				}
				if tableDepth > 0 {
					cell.WriteString(s)
				} else {
					para.WriteString(s)
				}
			case "br", "cr":
				if tableDepth == 0 {
					para.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "tr":
				if tableDepth > 0 && len(row) > 0 {
					out.WriteString(strings.Join(row, " | "))
					out.WriteString("\n")
				}
			case "tc":
				if tableDepth > 0 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "p":
				if tableDepth == 0 {
					flushPara()
				} else {
					// Paragraph break inside a cell.
					cell.WriteString(" ")
				}
			}
		}
	}
	flushPara()
	return strings.TrimSpace(out.String()), nil
}
