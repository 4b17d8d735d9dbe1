// Package recovery pulls structured JSON out of model output that may be
// wrapped in markdown fences or surrounded by prose.
package recovery

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/buger/jsonparser"
)

const fence = "```"

// Value is a syntactically valid JSON document
type Value struct {
	raw  []byte
	kind jsonparser.ValueType
}

// Kind reports the top-level JSON type of the value
func (v *Value) Kind() jsonparser.ValueType {
	if v == nil {
		return jsonparser.NotExist
	}
	return v.kind
}

// Raw returns the JSON text of the value
func (v *Value) Raw() []byte {
	if v == nil {
		return nil
	}
	return v.raw
}

func (v *Value) String() string {
	return string(v.Raw())
}

// TryParse runs the fallback chain over text and returns the first candidate
// that is valid JSON, or nil. It never panics. When slicing by delimiters the
// outermost container is tried first, so a one-element list is not unwrapped
// to its record.
func TryParse(text string) *Value {
	if v := parse(text); v != nil {
		return v
	}

	candidate := stripFences(strings.TrimSpace(text))
	if v := parse(candidate); v != nil {
		return v
	}

	order := [][2]byte{{'{', '}'}, {'[', ']'}}
	if arrayFirst(candidate) {
		order[0], order[1] = order[1], order[0]
	}
	for _, d := range order {
		if v := parse(slice(candidate, d[0], d[1])); v != nil {
			return v
		}
	}
	return nil
}

// arrayFirst reports whether the bracket slice encloses the brace slice
func arrayFirst(s string) bool {
	a := strings.IndexByte(s, '[')
	o := strings.IndexByte(s, '{')
	if a < 0 {
		return false
	}
	if o < 0 {
		return true
	}
	return a < o && strings.LastIndexByte(s, ']') > strings.LastIndexByte(s, '}')
}

// LooksStructured reports whether s plausibly embeds JSON worth recovering
func LooksStructured(s string) bool {
	return strings.ContainsAny(s, "{[")
}

// stripFences drops a leading fence with its language tag and a trailing
// fence. The tag may sit on its own line or share one with the payload.
func stripFences(s string) string {
	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		if s != "" && unicode.IsLetter(rune(s[0])) {
			s = strings.TrimLeftFunc(s, isTagRune)
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), fence)
	return strings.TrimSpace(s)
}

func isTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+' || r == '_'
}

func slice(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func parse(s string) *Value {
	raw := bytes.TrimSpace([]byte(s))
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return &Value{raw: raw, kind: kindOf(raw[0])}
}

// kindOf maps the first byte of a valid JSON document to its type
func kindOf(b byte) jsonparser.ValueType {
	switch b {
	case '{':
		return jsonparser.Object
	case '[':
		return jsonparser.Array
	case '"':
		return jsonparser.String
	case 't', 'f':
		return jsonparser.Boolean
	case 'n':
		return jsonparser.Null
	default:
		return jsonparser.Number
	}
}
