package analysis

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ChunkKind tells which branch of the classifier a payload took.
type ChunkKind int

const (
	// ChunkText is any payload that is not a JSON object.
	ChunkText ChunkKind = iota
	// ChunkObject is a payload that decoded as a JSON object.
	ChunkObject
)

// Chunk is one classified stream payload.
type Chunk struct {
	Kind ChunkKind

	// Text holds the untrimmed payload for ChunkText.
	Text string

	// Object fields. Error is non-nil whenever the object carries an
	// "error" key, even if its value is empty or null.
	Error     *string
	Reasoning string
	Content   string
}

// Classify decides between the structured and the plain-text branch. Trimming
// only affects the decision; text chunks keep raw as received. Non-object JSON values and malformed JSON take the text branch.
func Classify(raw string) Chunk {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Chunk{Kind: ChunkText, Text: raw}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		return Chunk{Kind: ChunkText, Text: raw}
	}

	c := Chunk{Kind: ChunkObject}
	if v, ok := fields["error"]; ok {
		msg := fieldText(v)
		c.Error = &msg
	}
	if v, ok := fields["reasoning"]; ok && !isNull(v) {
		c.Reasoning = fieldText(v)
	} else if v, ok := fields["reasoning_content"]; ok {
		c.Reasoning = fieldText(v)
	}
	if v, ok := fields["content"]; ok {
		c.Content = fieldText(v)
	}
	return c
}

// fieldText renders a JSON value as text: strings unquoted, null as empty,
// anything else as its compact JSON encoding.
func fieldText(v json.RawMessage) string {
	if isNull(v) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(bytes.TrimSpace(v)) == "null"
}
