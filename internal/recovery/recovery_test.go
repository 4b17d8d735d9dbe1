package recovery

import (
	"encoding/json"
	"testing"

	"github.com/buger/jsonparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryParseChain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		kind jsonparser.ValueType
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, jsonparser.Object},
		{"plain array", ` [1,2] `, `[1,2]`, jsonparser.Array},
		{"fenced json", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`, jsonparser.Array},
		{"fenced no language", "```\n{\"a\":1}```", `{"a":1}`, jsonparser.Object},
		{"prose around object", "Sure! Here you go: {\"a\":[1]} Hope that helps.", `{"a":[1]}`, jsonparser.Object},
		{"prose around array", "Result: [1, 2, 3] done", `[1, 2, 3]`, jsonparser.Array},
		{"braces invalid falls to brackets", "note {oops} then [\"x\"] end", `["x"]`, jsonparser.Array},
		{"scalar", `42`, `42`, jsonparser.Number},
		{"single record list in prose", "Here:\n```json\n[{\"a\":1}]\n```\nThanks.", `[{"a":1}]`, jsonparser.Array},
		{"one line fence with tag", "```json [{\"a\":1}]```", `[{"a":1}]`, jsonparser.Array},
		{"one line fence with tag and object", "```JSON {\"a\":1}```", `{"a":1}`, jsonparser.Object},
		{"empty list in prose", "Nothing found: [] sorry", `[]`, jsonparser.Array},
		{"bracket note before object", "See [1]: {\"a\":1} ok", `{"a":1}`, jsonparser.Object},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := TryParse(tt.in)
			require.NotNil(t, v)
			assert.Equal(t, tt.want, v.String())
			assert.Equal(t, tt.kind, v.Kind())
		})
	}
}

func TestTryParseFailures(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"no json here",
		"} backwards {",
		"```",
		"```json\n```",
		"{\"unterminated\": ",
		"\x00\xff\xfe garbage \x01",
		string([]byte{0xff, '{', 0xfe, '}'}),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.Nil(t, TryParse(in), "input %q", in)
		})
	}
}

func TestNilValue(t *testing.T) {
	var v *Value
	assert.Equal(t, jsonparser.NotExist, v.Kind())
	assert.Nil(t, v.Raw())
	assert.Equal(t, "", v.String())
}

func TestLooksStructured(t *testing.T) {
	assert.True(t, LooksStructured(`here: [1]`))
	assert.True(t, LooksStructured(`{"a":1}`))
	assert.False(t, LooksStructured("plain words"))
}

func FuzzTryParse(f *testing.F) {
	for _, seed := range []string{
		"",
		`{"a":1}`,
		"```json\n[{\"a\":1}]\n```",
		"```json [1]```",
		"prose [ { ] }",
		"} backwards {",
		"\x00\xff",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, in string) {
		var v *Value
		require.NotPanics(t, func() { v = TryParse(in) })
		if v != nil {
			assert.True(t, json.Valid(v.Raw()), "invalid JSON returned for %q", in)
		}
	})
}
