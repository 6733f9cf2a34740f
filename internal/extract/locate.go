package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|jsonc|JSON)[ \\t]*\\r?\\n(.*?)(?:```|$)")

// LocateJSON finds the first JSON object in raw that carries one of keys.
// Fenced json blocks are tried first, then top-level brace regions in the
// surrounding prose. A fenced object without any of keys is still returned
// when no region carries them. With no keys any object qualifies.
func LocateJSON(raw string, keys ...string) (map[string]any, bool) {
	var firstFenced map[string]any
	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		obj, ok := parseObject(m[1])
		if !ok {
			continue
		}
		if hasAnyKey(obj, keys) {
			return obj, true
		}
		if firstFenced == nil {
			firstFenced = obj
		}
	}

	if obj, ok := locateRegion(raw, keys); ok {
		return obj, true
	}
	if firstFenced != nil {
		return firstFenced, true
	}
	return nil, false
}

// locateRegion walks top-level brace regions. An unparsable region is
// retried from the next brace so a stray "{" in prose cannot hide the
// object that follows it.
func locateRegion(raw string, keys []string) (map[string]any, bool) {
	pos := 0
	for pos < len(raw) {
		i := strings.IndexByte(raw[pos:], '{')
		if i < 0 {
			return nil, false
		}
		start := pos + i
		end := matchBrace(raw, start)

		region := raw[start:]
		if end >= 0 {
			region = raw[start : end+1]
		}
		obj, ok := parseObject(region)
		switch {
		case ok && hasAnyKey(obj, keys):
			return obj, true
		case ok && end >= 0:
			pos = end + 1
		default:
			pos = start + 1
		}
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1
// when the region runs off the end of s.
func matchBrace(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseObject decodes s as an object, repairing it first if needed. A bare
// array is treated as a findings list.
func parseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if obj, ok := decode(s); ok {
		return obj, true
	}
	// Truncated output usually ends inside a member; drop trailing members
	// until the remainder closes cleanly.
	for attempt := 0; attempt < maxRepairCuts; attempt++ {
		if obj, ok := decode(repair(s)); ok {
			return obj, true
		}
		cut := strings.LastIndexByte(s, ',')
		if cut <= 0 {
			break
		}
		s = s[:cut]
	}
	return nil, false
}

const maxRepairCuts = 8

func decode(s string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		return map[string]any{"findings": t}, true
	}
	return nil, false
}

// repair makes loosely formatted JSON decodable: it drops comments and
// trailing commas and closes unterminated strings and containers.
func repair(s string) string {
	out := make([]byte, 0, len(s)+8)
	var stack []byte
	inStr, esc := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			out = append(out, c)
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}

		switch {
		case c == '"':
			inStr = true
			out = append(out, c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				i = len(s)
			} else {
				i += j - 1
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				i = len(s)
			} else {
				i += j + 3
			}
		case c == '{' || c == '[':
			stack = append(stack, c)
			out = append(out, c)
		case c == '}' || c == ']':
			out = trimTrailingComma(out)
			if n := len(stack); n > 0 && opens(stack[n-1], c) {
				stack = stack[:n-1]
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}

	if inStr {
		if esc {
			out = out[:len(out)-1]
		}
		out = append(out, '"')
	}
	out = trimTrailingComma(out)
	if len(out) > 0 && out[len(out)-1] == ':' {
		out = append(out, "null"...)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return string(out)
}

func opens(open, close byte) bool {
	return (open == '{' && close == '}') || (open == '[' && close == ']')
}

func trimTrailingComma(b []byte) []byte {
	n := len(b)
	for n > 0 && isSpace(b[n-1]) {
		n--
	}
	if n > 0 && b[n-1] == ',' {
		return b[:n-1]
	}
	return b[:n]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func hasAnyKey(obj map[string]any, keys []string) bool {
	if len(keys) == 0 {
		return true
	}
	for k := range obj {
		nk := normalizeKey(k)
		for _, want := range keys {
			if nk == normalizeKey(want) {
				return true
			}
		}
	}
	return false
}
