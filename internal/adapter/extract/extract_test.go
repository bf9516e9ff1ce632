package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdataworks/talentdb/internal/domain"
)

const docXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
 <w:body>
  <w:p><w:r><w:t>Μαρία Παπαδοπούλου</w:t></w:r></w:p>
  <w:p><w:r><w:t>Software Engineer</w:t></w:r></w:p>
  <w:tbl>
   <w:tr>
    <w:tc><w:p><w:r><w:t>Skill</w:t></w:r></w:p></w:tc>
    <w:tc><w:p><w:r><w:t>Level</w:t></w:r></w:p></w:tc>
   </w:tr>
   <w:tr>
    <w:tc><w:p><w:r><w:t>SAP</w:t></w:r></w:p></w:tc>
    <w:tc><w:p><w:r><w:t>expert</w:t></w:r></w:p></w:tc>
   </w:tr>
  </w:tbl>
 </w:body>
</w:document>`

const headerXML = `<?xml version="1.0"?>
<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
 <w:p><w:r><w:t>Confidential CV</w:t></w:r></w:p>
</w:hdr>`

func writeDOCX(t *testing.T, withMedia bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cv.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(docXML))
	require.NoError(t, err)
	w, err = zw.Create("word/header1.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(headerXML))
	require.NoError(t, err)
	if withMedia {
		w, err = zw.Create("word/media/image1.png")
		require.NoError(t, err)
		_, err = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractDOCX(t *testing.T) {
	path := writeDOCX(t, true)

	r := NewRouter()
	docType, err := r.Classify(path, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DocDOCX, docType)

	res, err := r.Extract(path, docType)
	require.NoError(t, err)
	assert.Equal(t, "direct_docx", res.Method)
	assert.Equal(t, 1.0, res.Confidence)
	assert.True(t, res.HasImages)
	assert.Contains(t, res.Text, "Μαρία Παπαδοπούλου")
	assert.Contains(t, res.Text, "Skill | Level")
	assert.Contains(t, res.Text, "SAP | expert")
	assert.Contains(t, res.Text, "Confidential CV")
}

func TestExtractDOCXNoImages(t *testing.T) {
	path := writeDOCX(t, false)
	r := NewRouter()
	res, err := r.Extract(path, domain.DocDOCX)
	require.NoError(t, err)
	assert.False(t, res.HasImages)
}

func TestClassifyByExtension(t *testing.T) {
	r := NewRouter()
	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		want domain.DocumentType
	}{
		{"photo.jpg", domain.DocImage},
		{"photo.jpeg", domain.DocImage},
		{"scan.png", domain.DocImage},
	} {
		p := filepath.Join(dir, tc.name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		got, err := r.Classify(p, "")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestClassifyUnsupported(t *testing.T) {
	r := NewRouter()
	p := filepath.Join(t.TempDir(), "cv.xyz")
	require.NoError(t, os.WriteFile(p, []byte("plain text, nothing special"), 0o600))
	_, err := r.Classify(p, "application/x-unknown")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMedia)
}

func TestClassifyBrokenPDFFallsBackToScanned(t *testing.T) {
	// A .pdf without a readable text layer routes to OCR rather than failing.
	r := NewRouter()
	p := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 garbage"), 0o600))
	got, err := r.Classify(p, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, domain.DocPDFScanned, got)
}

func TestDirectExtractRejectsOCRTypes(t *testing.T) {
	r := NewRouter()
	_, err := r.Extract("whatever.png", domain.DocImage)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
