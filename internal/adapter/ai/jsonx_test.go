package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string   `json:"name"`
	Score float64  `json:"score"`
	Tags  []string `json:"tags"`
}

func TestExtractJSONDirect(t *testing.T) {
	var p payload
	require.NoError(t, ExtractJSON(`{"name":"Maria","score":0.9,"tags":["go"]}`, &p))
	assert.Equal(t, "Maria", p.Name)
}

func TestExtractJSONFenced(t *testing.T) {
	text := "Here is the result:\n```json\n{\"name\": \"Nikos\", \"score\": 1}\n```\nHope this helps."
	var p payload
	require.NoError(t, ExtractJSON(text, &p))
	assert.Equal(t, "Nikos", p.Name)
}

func TestExtractJSONBraceWindow(t *testing.T) {
	text := `The parsed profile follows. {"name": "Eleni", "score": 0.5} End of answer.`
	var p payload
	require.NoError(t, ExtractJSON(text, &p))
	assert.Equal(t, "Eleni", p.Name)
}

func TestExtractJSONRepairsTrailingComma(t *testing.T) {
	var p payload
	require.NoError(t, ExtractJSON("{\"name\": \"Kostas\", \"tags\": [\"sap\",],}", &p))
	assert.Equal(t, []string{"sap"}, p.Tags)
}

func TestExtractJSONRepairsRawNewlineInString(t *testing.T) {
	var p payload
	require.NoError(t, ExtractJSON("{\"name\": \"line one\nline two\"}", &p))
	assert.Equal(t, "line one\nline two", p.Name)
}

func TestExtractJSONEmpty(t *testing.T) {
	var p payload
	assert.Error(t, ExtractJSON("   ", &p))
	assert.Error(t, ExtractJSON("no json here at all", &p))
}
