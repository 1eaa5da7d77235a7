package adapter

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Interpolate substitutes {{KEY}} placeholders in v with matching secret
// values, recursing through maps and slices. The policy is fail-open: a
// placeholder whose key has no secret is left verbatim and reported in
// the returned missing list so callers can log or reject the value.
func Interpolate(v any, secrets map[string]string) (any, []string) {
	var missing []string
	out := interpolate(v, secrets, &missing)
	return out, missing
}

func interpolate(v any, secrets map[string]string, missing *[]string) any {
	switch val := v.(type) {
	case string:
		return interpolateString(val, secrets, missing)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = interpolate(item, secrets, missing)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = interpolateString(item, secrets, missing)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolate(item, secrets, missing)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = interpolateString(item, secrets, missing)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, secrets map[string]string, missing *[]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := secrets[key]; ok {
			return value
		}
		*missing = append(*missing, key)
		return match
	})
}

// InterpolateStringMap is a convenience wrapper for header-style maps.
func InterpolateStringMap(m map[string]string, secrets map[string]string) (map[string]string, []string) {
	out, missing := Interpolate(m, secrets)
	resolved, _ := out.(map[string]string)
	return resolved, missing
}
