package domain

import "strings"

// Artifact key layout in the object store. Each pipeline stage writes
// exactly one artifact per correlation id, so the whole trail of one CV
// can be listed and purged by prefix.
func UploadKey(correlationID, filename string) string {
	return "uploads/" + correlationID + "/" + filename
}

// TextKey is the extracted-text artifact.
func TextKey(correlationID string) string { return "extracted/" + correlationID + ".txt" }

// MetadataKey is the extraction-diagnostics artifact.
func MetadataKey(correlationID string) string { return "metadata/" + correlationID + ".json" }

// ParsedKey is the structured-profile artifact.
func ParsedKey(correlationID string) string { return "parsed/" + correlationID + ".json" }

// UnmatchedKey is the unmatched-items artifact.
func UnmatchedKey(correlationID string) string { return "unmatched/" + correlationID + ".json" }

// CorrelationIDFromKey recovers the correlation id embedded in an artifact
// key, or "" when the key does not follow the layout.
func CorrelationIDFromKey(key string) string {
	rest, ok := strings.CutPrefix(key, "uploads/")
	if ok {
		id, _, found := strings.Cut(rest, "/")
		if !found {
			return ""
		}
		return id
	}
	for _, prefix := range []string{"extracted/", "metadata/", "parsed/", "unmatched/"} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			return strings.TrimSuffix(strings.TrimSuffix(rest, ".txt"), ".json")
		}
	}
	return ""
}
