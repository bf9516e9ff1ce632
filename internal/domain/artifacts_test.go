package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactKeyLayout(t *testing.T) {
	assert.Equal(t, "uploads/cv-1/bio.pdf", UploadKey("cv-1", "bio.pdf"))
	assert.Equal(t, "extracted/cv-1.txt", TextKey("cv-1"))
	assert.Equal(t, "metadata/cv-1.json", MetadataKey("cv-1"))
	assert.Equal(t, "parsed/cv-1.json", ParsedKey("cv-1"))
	assert.Equal(t, "unmatched/cv-1.json", UnmatchedKey("cv-1"))
}

func TestCorrelationIDFromKey(t *testing.T) {
	for _, key := range []string{
		UploadKey("cv-1", "bio.pdf"),
		TextKey("cv-1"),
		MetadataKey("cv-1"),
		ParsedKey("cv-1"),
		UnmatchedKey("cv-1"),
	} {
		assert.Equal(t, "cv-1", CorrelationIDFromKey(key), key)
	}
	assert.Empty(t, CorrelationIDFromKey("uploads/dangling.pdf"))
	assert.Empty(t, CorrelationIDFromKey("somewhere/else.bin"))
}
