package toon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// COMPRESS TESTS
// =============================================================================

func TestCompress_UniformObjectArray(t *testing.T) {
	input := `{"users":[{"id":1,"name":"ada"},{"id":2,"name":"bob"}]}`

	out, ok := Compress(input)

	require.True(t, ok)
	assert.Equal(t, "users[2]{id,name}:\n  1,ada\n  2,bob", out)
}

func TestCompress_NonJSONPassesThrough(t *testing.T) {
	input := "plain prose, not a payload"

	out, ok := Compress(input)

	assert.False(t, ok)
	assert.Equal(t, input, out)
}

func TestCompress_ScalarJSONPassesThrough(t *testing.T) {
	for _, input := range []string{`42`, `"hello"`, `true`, `null`} {
		out, ok := Compress(input)
		assert.False(t, ok, "input %q", input)
		assert.Equal(t, input, out)
	}
}

func TestCompress_DoubleCompressionIsNoOp(t *testing.T) {
	input := `{"users":[{"id":1,"name":"ada"},{"id":2,"name":"bob"}]}`

	once, ok := Compress(input)
	require.True(t, ok)

	// TOON text is not valid JSON, so a second pass changes nothing.
	twice, ok := Compress(once)
	assert.False(t, ok)
	assert.Equal(t, once, twice)
}

func TestCompress_UnwrapsCodeFence(t *testing.T) {
	input := "```json\n{\"status\":\"ok\"}\n```"

	out, ok := Compress(input)

	require.True(t, ok)
	assert.Equal(t, "status: ok", out)
}

func TestCompress_UnwrapsToolResultTag(t *testing.T) {
	input := "<tool_result>\n{\"status\":\"ok\"}\n</tool_result>"

	out, ok := Compress(input)

	require.True(t, ok)
	assert.Equal(t, "status: ok", out)
}

// =============================================================================
// ENCODE TESTS
// =============================================================================

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEncode_NestedObjectUsesIndentation(t *testing.T) {
	v := decode(t, `{"user":{"age":30,"name":"ada"}}`)

	assert.Equal(t, "user:\n  age: 30\n  name: ada", Encode(v))
}

func TestEncode_KeysAreSorted(t *testing.T) {
	v := decode(t, `{"b":1,"a":2,"c":3}`)

	assert.Equal(t, "a: 2\nb: 1\nc: 3", Encode(v))
}

func TestEncode_PrimitiveArrayInline(t *testing.T) {
	v := decode(t, `{"tags":["a","b","c"]}`)

	assert.Equal(t, "tags[3]: a,b,c", Encode(v))
}

func TestEncode_MixedArrayUsesDashLines(t *testing.T) {
	v := decode(t, `{"items":[1,{"id":2}]}`)

	assert.Equal(t, "items[2]:\n  - 1\n  -\n    id: 2", Encode(v))
}

func TestEncode_NonUniformObjectsNotTabular(t *testing.T) {
	// Second element is missing "name", so the header-row form is illegal.
	v := decode(t, `{"users":[{"id":1,"name":"ada"},{"id":2}]}`)

	out := Encode(v)
	assert.NotContains(t, out, "{id,name}")
}

func TestEncode_NestedValuesBlockTabularForm(t *testing.T) {
	v := decode(t, `{"users":[{"id":1,"meta":{"x":1}},{"id":2,"meta":{"x":2}}]}`)

	out := Encode(v)
	assert.NotContains(t, out, "{id,meta}")
}

func TestEncode_ScalarQuoting(t *testing.T) {
	v := decode(t, `{"a":"hello, world","b":"plain","c":"","d":" padded "}`)

	assert.Equal(t, "a: \"hello, world\"\nb: plain\nc: \"\"\nd: \" padded \"", Encode(v))
}

func TestEncode_AmbiguousStringsAreQuoted(t *testing.T) {
	// A string that reads back as a number, bool or null must stay
	// distinguishable from the real primitive.
	v := decode(t, `{"a":"1","b":"true","c":"null","d":"-3.5","e":"1e5"}`)

	assert.Equal(t, "a: \"1\"\nb: \"true\"\nc: \"null\"\nd: \"-3.5\"\ne: \"1e5\"", Encode(v))
	assert.NotEqual(t, Encode(decode(t, `{"a":1}`)), Encode(decode(t, `{"a":"1"}`)))
	assert.NotEqual(t, Encode(decode(t, `{"b":true}`)), Encode(decode(t, `{"b":"true"}`)))
}

func TestEncode_NullAndBool(t *testing.T) {
	v := decode(t, `{"a":null,"b":true,"c":false}`)

	assert.Equal(t, "a: null\nb: true\nc: false", Encode(v))
}

// =============================================================================
// UNWRAP TESTS
// =============================================================================

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare content", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"tool result tag", "<tool_result>{\"a\":1}</tool_result>", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unwrap(tt.input))
		})
	}
}
