package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// normalizeKey folds case and drops separators so "Code_Reference",
// "code-reference" and "codeReference" compare equal.
func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func normalizeFields(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		nk := normalizeKey(k)
		if _, dup := out[nk]; !dup {
			out[nk] = v
		}
	}
	return out
}

// lookup returns the first present, non-null alias.
func lookup(f map[string]any, aliases ...string) any {
	for _, a := range aliases {
		if v, ok := f[a]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(f map[string]any, aliases ...string) string {
	for _, a := range aliases {
		if v, ok := f[a]; ok && v != nil {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				nm := normalizeFields(m)
				if s := stringField(nm, "name", "title", "feature", "description"); s != "" {
					out = append(out, s)
				}
				continue
			}
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}

var leadingNumber = regexp.MustCompile(`-?\d+(\.\d+)?`)

// parseScore accepts numbers and numeric strings ("85", "85/100", "72.5%"),
// clamped to [0,100].
func parseScore(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		m := leadingNumber.FindString(t)
		if m == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return int(math.Round(math.Min(math.Max(f, 0), 100))), true
}
