package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON bool
		wantStr  string
	}{
		{"object", `{"a":1}`, true, `{"a":1}`},
		{"array with whitespace", "  [1, 2]\n", true, "[1, 2]"},
		{"number", `42`, true, `42`},
		{"quoted string", `"hi"`, true, `"hi"`},
		{"plain text", `hello`, false, `hello`},
		{"broken object", `{"a":`, false, `{"a":`},
		{"empty", ``, false, ``},
		{"whitespace only", `   `, false, `   `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseString(tt.input)
			assert.Equal(t, tt.wantJSON, p.IsJSON())
			assert.Equal(t, tt.wantStr, p.String())
		})
	}
}

func TestValueUsesNumbers(t *testing.T) {
	p := ParseString(`{"count": 12345678901234567890, "name": "x"}`)
	v, ok := p.Value().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("12345678901234567890"), v["count"])
	assert.Equal(t, "x", v["name"])

	assert.Equal(t, "not json", Text("not json").Value())
}

func TestMarshalJSON(t *testing.T) {
	wrapper := map[string]Payload{
		"json": ParseString(`{"a":[1,2]}`),
		"text": Text(`<b>raw</b>`),
	}
	b, err := Marshal(wrapper)
	require.NoError(t, err)
	assert.JSONEq(t, `{"json":{"a":[1,2]},"text":"<b>raw</b>"}`, string(b))
	assert.Contains(t, string(b), "<b>raw</b>", "HTML must not be escaped")
}

func TestUnmarshalJSON(t *testing.T) {
	var got struct {
		A Payload `json:"a"`
		B Payload `json:"b"`
		C Payload `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": {"x": 1}, "b": "text", "c": null}`), &got))
	assert.True(t, got.A.IsJSON())
	assert.JSONEq(t, `{"x":1}`, got.A.String())
	assert.False(t, got.B.IsJSON())
	assert.Equal(t, "text", got.B.String())
	assert.True(t, got.C.IsZero())
}

func TestGet(t *testing.T) {
	p := ParseString(`{"protocol": "ABC-1", "items": [{"id": 7}]}`)
	assert.Equal(t, "ABC-1", p.Get("protocol").String())
	assert.Equal(t, int64(7), p.Get("items.0.id").Int())
	assert.False(t, Text("protocol").Get("protocol").Exists())
}

func TestFromValue(t *testing.T) {
	p, err := FromValue(map[string]any{"url": "https://x?a=1&b=2"})
	require.NoError(t, err)
	assert.True(t, p.IsJSON())
	assert.Equal(t, `{"url":"https://x?a=1&b=2"}`, p.String())
}
