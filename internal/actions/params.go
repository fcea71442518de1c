package actions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// schema builds a JSON-schema object for a Definition.
func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func paramNames(s map[string]any) []string {
	props, _ := s["properties"].(map[string]any)
	req := map[string]bool{}
	if r, ok := s["required"].([]string); ok {
		for _, n := range r {
			req[n] = true
		}
	}
	names := make([]string, 0, len(props))
	for n := range props {
		if !req[n] {
			n += "?"
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// str returns params[key] as a trimmed string. Numbers are formatted.
func str(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	}
	return ""
}

func requireStr(params map[string]any, key string) (string, error) {
	v := str(params, key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// num returns params[key] as an int. ok is false when the key is
// missing; err is set when it is present but not a number.
func num(params map[string]any, key string) (n int, ok bool, err error) {
	raw, present := params[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true, nil
	case int:
		return v, true, nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil, err
	case string:
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "%"))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be a number, got %q", key, v)
		}
		return i, true, nil
	}
	return 0, false, fmt.Errorf("%s must be a number", key)
}

// strList accepts a JSON array of strings or a comma-separated string.
func strList(params map[string]any, key string) []string {
	var out []string
	switch v := params[key].(type) {
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func obj(params map[string]any, key string) map[string]any {
	m, _ := params[key].(map[string]any)
	return m
}
