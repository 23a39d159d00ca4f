package template

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseArgs splits a placeholder argument list and coerces every token.
func ParseArgs(raw string) []any {
	tokens := splitArgs(raw)
	if len(tokens) == 0 {
		return nil
	}
	args := make([]any, len(tokens))
	for i, token := range tokens {
		args[i] = coerce(token)
	}
	return args
}

// splitArgs splits on commas that are outside quotes and brackets.
func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var (
		tokens  []string
		current strings.Builder
		quote   rune
		escaped bool
		depth   int
	)

	for _, r := range raw {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			tokens = append(tokens, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	tokens = append(tokens, strings.TrimSpace(current.String()))
	return tokens
}

func coerce(token string) any {
	switch token {
	case "true":
		return true
	case "false":
		return false
	case "null", "undefined":
		return nil
	}

	if len(token) >= 2 {
		first, last := token[0], token[len(token)-1]
		if (first == '"' || first == '\'') && last == first {
			return unquote(token[1 : len(token)-1])
		}
	}

	if n, err := strconv.Atoi(token); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}

	if strings.HasPrefix(token, "[") || strings.HasPrefix(token, "{") {
		var structured any
		if err := json.Unmarshal([]byte(token), &structured); err == nil {
			return structured
		}
		if err := yaml.Unmarshal([]byte(token), &structured); err == nil {
			return normalize(structured)
		}
	}

	return token
}

func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalize turns YAML's map[interface{}]interface{} into map[string]any so
// every structured value has the same shape as decoded JSON.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[toString(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
