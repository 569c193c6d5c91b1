// Package toon implements TOON, a compact token-efficient text encoding
// for structured tool-result payloads.
//
// DESIGN: JSON repeats every key on every array element; TOON lifts the
// keys of uniform object arrays into a single header row and emits one
// comma-separated row per element, which tokenizes far cheaper. Nested
// objects use indentation instead of braces.
//
//	{"users":[{"id":1,"name":"ada"},{"id":2,"name":"bob"}]}
//
// becomes
//
//	users[2]{id,name}:
//	  1,ada
//	  2,bob
//
// Compression only ever applies to content that parses as JSON; anything
// else passes through unchanged. TOON text itself is not valid JSON, so
// compressing twice is a structural no-op.
package toon

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const indent = "  "

// Compress encodes structured content as TOON. Client-added wrapping
// (code fences, tool-result tags) is stripped before the parse gate.
// Returns (original, false) when the payload is not valid JSON: this
// stage never fails the pipeline.
func Compress(content string) (string, bool) {
	payload := Unwrap(content)

	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return content, false
	}

	// Scalars gain nothing from re-encoding.
	switch v.(type) {
	case map[string]any, []any:
	default:
		return content, false
	}

	return Encode(v), true
}

var (
	fenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*)\\n```$")
	wrapTagRe = regexp.MustCompile(`(?s)^<tool_result>\s*(.*?)\s*</tool_result>$`)
)

// Unwrap strips client-added framing from raw tool content so the JSON
// parse check operates on the true payload. Handles markdown code fences
// and <tool_result> tags; unframed content passes through.
func Unwrap(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := wrapTagRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// Encode renders a decoded JSON value as TOON text. Object keys are
// emitted in sorted order so identical payloads encode identically.
func Encode(v any) string {
	var b strings.Builder
	encodeValue(&b, "", "", v)
	return strings.TrimRight(b.String(), "\n")
}

// encodeValue writes one named value at the given indentation prefix.
// A top-level value has an empty key.
func encodeValue(b *strings.Builder, prefix, key string, v any) {
	label := key
	switch val := v.(type) {
	case map[string]any:
		if label != "" {
			fmt.Fprintf(b, "%s%s:\n", prefix, label)
			prefix += indent
		}
		for _, k := range sortedKeys(val) {
			encodeValue(b, prefix, k, val[k])
		}
	case []any:
		encodeArray(b, prefix, label, val)
	default:
		fmt.Fprintf(b, "%s%s: %s\n", prefix, label, scalar(v))
	}
}

// encodeArray picks the densest representation the elements allow:
// tabular for uniform flat objects, inline for primitives, one dash line
// per element otherwise.
func encodeArray(b *strings.Builder, prefix, key string, arr []any) {
	if fields, ok := uniformFields(arr); ok {
		fmt.Fprintf(b, "%s%s[%d]{%s}:\n", prefix, key, len(arr), strings.Join(fields, ","))
		for _, item := range arr {
			obj := item.(map[string]any)
			row := make([]string, len(fields))
			for i, f := range fields {
				row[i] = scalar(obj[f])
			}
			fmt.Fprintf(b, "%s%s%s\n", prefix, indent, strings.Join(row, ","))
		}
		return
	}

	if allPrimitive(arr) {
		row := make([]string, len(arr))
		for i, item := range arr {
			row[i] = scalar(item)
		}
		fmt.Fprintf(b, "%s%s[%d]: %s\n", prefix, key, len(arr), strings.Join(row, ","))
		return
	}

	fmt.Fprintf(b, "%s%s[%d]:\n", prefix, key, len(arr))
	for _, item := range arr {
		switch item.(type) {
		case map[string]any, []any:
			fmt.Fprintf(b, "%s%s-\n", prefix, indent)
			encodeValue(b, prefix+indent+indent, "", item)
		default:
			fmt.Fprintf(b, "%s%s- %s\n", prefix, indent, scalar(item))
		}
	}
}

// uniformFields reports the shared field set when every element is a
// flat object with identical keys and scalar values only.
func uniformFields(arr []any) ([]string, bool) {
	if len(arr) == 0 {
		return nil, false
	}

	first, ok := arr[0].(map[string]any)
	if !ok {
		return nil, false
	}
	fields := sortedKeys(first)
	if len(fields) == 0 {
		return nil, false
	}

	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok || len(obj) != len(fields) {
			return nil, false
		}
		for _, f := range fields {
			v, present := obj[f]
			if !present || !isPrimitive(v) {
				return nil, false
			}
		}
	}
	return fields, true
}

func allPrimitive(arr []any) bool {
	for _, item := range arr {
		if !isPrimitive(item) {
			return false
		}
	}
	return true
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

// scalar renders a primitive value. Strings are quoted when they would
// collide with TOON syntax (commas, colons, newlines, framing
// whitespace) or read back as a different primitive ("1", "true",
// "null"); unquoted output must keep the string/number/bool/null
// distinction recoverable.
func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case json.Number:
		return val.String()
	case string:
		if needsQuoting(val) {
			return strconv.Quote(val)
		}
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func needsQuoting(s string) bool {
	if s == "" || s != strings.TrimSpace(s) {
		return true
	}
	if s == "true" || s == "false" || s == "null" {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return strings.ContainsAny(s, ",:\n\"{}[]")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
