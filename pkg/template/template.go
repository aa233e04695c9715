// Package template provides templating functionality for dynamic node configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Mode selects which substitution dialect Render applies.
type Mode string

const (
	// ModeSimple substitutes {var} placeholders from the data map.
	ModeSimple Mode = "simple"
	// ModeAdvanced substitutes {var|default:x} placeholders with inline defaults.
	ModeAdvanced Mode = "advanced"
	// ModeEngine runs the full text/template engine with conditionals and loops.
	ModeEngine Mode = "engine"
)

// RenderMode renders input using the requested dialect.
func RenderMode(mode Mode, input string, data map[string]any) (any, error) {
	switch mode {
	case ModeSimple, "":
		return RenderSimple(input, data), nil
	case ModeAdvanced:
		return RenderAdvanced(input, data), nil
	case ModeEngine:
		return Render(input, data)
	default:
		return nil, fmt.Errorf("unknown template mode %q", mode)
	}
}

// RenderSimple replaces every {var} placeholder with the corresponding data
// value. Unknown placeholders are left as-is.
func RenderSimple(input string, data map[string]any) string {
	return substitute(input, func(expr string) (string, bool) {
		value, ok := data[expr]
		if !ok {
			return "", false
		}

		return stringify(value), true
	})
}

// RenderAdvanced behaves like RenderSimple but supports inline defaults in
// the form {var|default:fallback}; the fallback is used when the variable is
// absent from the data map.
func RenderAdvanced(input string, data map[string]any) string {
	return substitute(input, func(expr string) (string, bool) {
		name, fallback, hasDefault := strings.Cut(expr, "|")
		name = strings.TrimSpace(name)

		if value, ok := data[name]; ok {
			return stringify(value), true
		}

		if hasDefault {
			fallback = strings.TrimSpace(fallback)
			if rest, ok := strings.CutPrefix(fallback, "default:"); ok {
				return rest, true
			}
		}

		return "", false
	})
}

// Render executes the full text/template engine over the input and coerces
// the rendered output into JSON, number or boolean where it parses as one.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"trim":  strings.TrimSpace,
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Try to parse as JSON if it looks like JSON
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	// Try to parse as number
	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	// Try to parse as boolean
	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// placeholderPattern matches innermost {expr} spans, so placeholders keep
// working inside JSON bodies that themselves use braces.
var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// substitute replaces every {expr} span via the resolve callback.
// Unresolvable spans are emitted unchanged.
func substitute(input string, resolve func(expr string) (string, bool)) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := match[1 : len(match)-1]

		if replacement, ok := resolve(expr); ok {
			return replacement
		}

		return match
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(encoded)
	}
}
