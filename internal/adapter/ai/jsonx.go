package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hrdataworks/talentdb/internal/domain"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON pulls a JSON object out of an LLM completion. Models wrap
// payloads in prose or markdown fences despite instructions, so extraction
// runs in three steps: direct parse, fenced-block scan, then the widest
// first-{ to last-} window. Each candidate gets a light repair pass before
// parsing.
func ExtractJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("op=ai.extractjson: %w: empty completion", domain.ErrSchemaInvalid)
	}

	candidates := []string{trimmed}
	if fenced := extractFenced(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}

	var lastErr error
	for _, cand := range candidates {
		if err := json.Unmarshal([]byte(repairJSON(cand)), v); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("op=ai.extractjson: %w: %v", domain.ErrSchemaInvalid, lastErr)
}

// extractFenced returns the body of the first ```json (or bare ```) fenced
// block, or "" when no complete fence exists.
func extractFenced(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// Skip the language tag line.
		lang := strings.TrimSpace(rest[:nl])
		if lang == "" || strings.EqualFold(lang, "json") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// repairJSON fixes the two defects completions actually produce: trailing
// commas before closers and raw control characters inside string literals.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString("\\n")
				continue
			case r == '\t':
				b.WriteString("\\t")
				continue
			case r == '\r':
				continue
			case r < 0x20:
				continue
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	out := b.String()
	// Trailing commas: ", }" and ", ]" in any whitespace variant.
	out = trailingComma.ReplaceAllString(out, "$1")
	return out
}
