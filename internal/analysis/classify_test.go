package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		kind      ChunkKind
		text      string
		reasoning string
		content   string
		errMsg    *string
	}{
		{name: "plain text keeps whitespace", raw: "  hello \n", kind: ChunkText, text: "  hello \n"},
		{name: "padded malformed object", raw: " {\"content\": \"x\" ", kind: ChunkText, text: " {\"content\": \"x\" "},
		{name: "malformed object", raw: `{"content": "x"`, kind: ChunkText, text: `{"content": "x"`},
		{name: "json array", raw: `["a"]`, kind: ChunkText, text: `["a"]`},
		{name: "json string", raw: `"quoted"`, kind: ChunkText, text: `"quoted"`},
		{name: "padded object", raw: " {\"content\":\"X\"}\n", kind: ChunkObject, content: "X"},
		{name: "reasoning only", raw: `{"reasoning":"A"}`, kind: ChunkObject, reasoning: "A"},
		{name: "both fields", raw: `{"reasoning":"B","content":"X"}`, kind: ChunkObject, reasoning: "B", content: "X"},
		{name: "legacy alias", raw: `{"reasoning_content":"R"}`, kind: ChunkObject, reasoning: "R"},
		{name: "reasoning wins over alias", raw: `{"reasoning":"new","reasoning_content":"old"}`, kind: ChunkObject, reasoning: "new"},
		{name: "null fields add nothing", raw: `{"reasoning":null,"content":null}`, kind: ChunkObject},
		{name: "null reasoning falls back to alias", raw: `{"reasoning":null,"reasoning_content":"R"}`, kind: ChunkObject, reasoning: "R"},
		{name: "numeric content", raw: `{"content":42}`, kind: ChunkObject, content: "42"},
		{name: "error field", raw: `{"error":"boom"}`, kind: ChunkObject, errMsg: strPtr("boom")},
		{name: "empty error field", raw: `{"error":""}`, kind: ChunkObject, errMsg: strPtr("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.raw)
			require.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.text, c.Text)
			assert.Equal(t, tt.reasoning, c.Reasoning)
			assert.Equal(t, tt.content, c.Content)
			if tt.errMsg == nil {
				assert.Nil(t, c.Error)
			} else {
				require.NotNil(t, c.Error)
				assert.Equal(t, *tt.errMsg, *c.Error)
			}
		})
	}
}

func TestBuildResult(t *testing.T) {
	t.Run("plain content", func(t *testing.T) {
		res := BuildResult("  X  ")
		assert.Equal(t, "X", res.Prediction)
		assert.True(t, res.Success)
		assert.Nil(t, res.Message)
	})

	t.Run("object with prediction", func(t *testing.T) {
		res := BuildResult(`{"prediction":"UP","success":false,"message":"low confidence"}`)
		assert.Equal(t, "UP", res.Prediction)
		assert.False(t, res.Success)
		require.NotNil(t, res.Message)
		assert.Equal(t, "low confidence", *res.Message)
	})

	t.Run("object falls back to content field", func(t *testing.T) {
		res := BuildResult(`{"content":"from content"}`)
		assert.Equal(t, "from content", res.Prediction)
		assert.True(t, res.Success)
	})

	t.Run("object without either field keeps raw text", func(t *testing.T) {
		raw := `{"summary":"s"}`
		res := BuildResult(raw)
		assert.Equal(t, raw, res.Prediction)
		assert.True(t, res.Success)
	})

	t.Run("malformed object", func(t *testing.T) {
		res := BuildResult(`{"prediction":`)
		assert.Equal(t, `{"prediction":`, res.Prediction)
		assert.True(t, res.Success)
	})
}
