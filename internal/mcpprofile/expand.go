package mcpprofile

import "github.com/escalona/flint/internal/config"

// expandValue recursively applies config.ExpandLenient to every string
// found in v, which may be a string, a map, or a slice (the shapes JSON
// unmarshaling produces for an opaque server config).
func expandValue(v any) (any, []string) {
	switch t := v.(type) {
	case string:
		out, missing := config.ExpandLenient(t)
		return out, missing
	case map[string]any:
		out := make(map[string]any, len(t))
		var missing []string
		for k, sub := range t {
			rv, m := expandValue(sub)
			out[k] = rv
			missing = append(missing, m...)
		}
		return out, missing
	case []any:
		out := make([]any, len(t))
		var missing []string
		for i, sub := range t {
			rv, m := expandValue(sub)
			out[i] = rv
			missing = append(missing, m...)
		}
		return out, missing
	default:
		return v, nil
	}
}
