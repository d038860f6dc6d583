package rules

import (
	"encoding/json"
	"regexp"
	"strings"
)

// NotSpecified is substituted for placeholders whose path does not
// resolve to a value.
const NotSpecified = "Not specified"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Substitute replaces every {{path}} placeholder in the template with
// the string form of the path resolved against the context.
func Substitute(template string, ctx map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		v, found := Resolve(path, ctx)
		if !found || v == nil {
			return NotSpecified
		}
		return renderValue(v)
	})
}

// SubstituteDeep walks a structured value, applying Substitute to every
// string leaf. Maps and lists are rebuilt; non-string leaves pass
// through verbatim. The input is never mutated.
func SubstituteDeep(v interface{}, ctx map[string]interface{}) interface{} {
	switch x := v.(type) {
	case string:
		return Substitute(x, ctx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, elem := range x {
			out[k] = SubstituteDeep(elem, ctx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, elem := range x {
			out[i] = SubstituteDeep(elem, ctx)
		}
		return out
	default:
		return v
	}
}

// renderValue renders a resolved value for interpolation. Numbers use
// plain decimal form; structured values render as JSON.
func renderValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64, bool, int:
		return stringify(x)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return NotSpecified
		}
		return string(raw)
	}
}
