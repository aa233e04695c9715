// Package conditional provides the branching worker: it routes its single
// input to exactly one of two named outputs based on a comparator.
package conditional

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/tidwall/gjson"
)

const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
	InputPortMain   = "main"
)

// Supported comparator operators.
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpRegex      = "regex"
	OpGT         = "gt"
	OpGTE        = "gte"
	OpLT         = "lt"
	OpLTE        = "lte"
	OpJSONPath   = "jsonpath"
	OpIn         = "in"
	OpExpression = "expression"
)

// Worker evaluates one comparator against the value arriving on its main
// input port and forwards that value on either the true or the false output.
type Worker struct {
	id            string
	operator      string
	value         any
	path          string
	expression    string
	caseSensitive bool
	regex         *regexp.Regexp
}

// NewWorker creates a new conditional worker from its configuration map.
func NewWorker(id string, config map[string]any) (*Worker, error) {
	operator, ok := config["operator"].(string)
	if !ok {
		return nil, errors.New("missing required field 'operator'")
	}

	w := &Worker{
		id:            id,
		operator:      operator,
		value:         config["value"],
		caseSensitive: true,
	}

	if cs, ok := config["case_sensitive"].(bool); ok {
		w.caseSensitive = cs
	}

	if path, ok := config["path"].(string); ok {
		w.path = path
	}

	switch operator {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
		OpGT, OpGTE, OpLT, OpLTE, OpIn:
	case OpRegex:
		pattern, ok := config["value"].(string)
		if !ok {
			return nil, errors.New("regex operator requires a string 'value'")
		}

		if !w.caseSensitive && !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}

		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}

		w.regex = compiled
	case OpJSONPath:
		if w.path == "" {
			return nil, errors.New("jsonpath operator requires field 'path'")
		}
	case OpExpression:
		expression, ok := config["expression"].(string)
		if !ok {
			return nil, errors.New("expression operator requires field 'expression'")
		}

		w.expression = expression
	default:
		return nil, fmt.Errorf("unknown operator %q", operator)
	}

	return w, nil
}

// ID returns the node ID.
func (w *Worker) ID() string {
	return w.id
}

// Type returns the worker type.
func (w *Worker) Type() string {
	return "conditional"
}

// Execute evaluates the comparator and routes the input to the matching port.
func (w *Worker) Execute(ctx context.Context, inputs map[string]any, _ protocol.ExecutionInfo) (map[string]any, error) {
	input := inputs[InputPortMain]

	matched, err := w.evaluate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("condition evaluation failed: %w", err)
	}

	port := OutputPortFalse
	if matched {
		port = OutputPortTrue
	}

	return map[string]any{port: input}, nil
}

func (w *Worker) evaluate(ctx context.Context, input any) (bool, error) {
	switch w.operator {
	case OpEquals:
		return w.compareEqual(input), nil
	case OpNotEquals:
		return !w.compareEqual(input), nil
	case OpContains:
		return strings.Contains(w.fold(stringify(input)), w.fold(stringify(w.value))), nil
	case OpStartsWith:
		return strings.HasPrefix(w.fold(stringify(input)), w.fold(stringify(w.value))), nil
	case OpEndsWith:
		return strings.HasSuffix(w.fold(stringify(input)), w.fold(stringify(w.value))), nil
	case OpRegex:
		return w.regex.MatchString(stringify(input)), nil
	case OpGT, OpGTE, OpLT, OpLTE:
		return w.compareNumeric(input)
	case OpJSONPath:
		return w.compareJSONPath(input)
	case OpIn:
		return w.compareMembership(input)
	case OpExpression:
		return evaluateExpression(ctx, w.expression, input, w.value)
	default:
		return false, fmt.Errorf("unknown operator %q", w.operator)
	}
}

func (w *Worker) compareEqual(input any) bool {
	left, leftOK := toNumber(input)
	right, rightOK := toNumber(w.value)

	if leftOK && rightOK {
		return left == right
	}

	return w.fold(stringify(input)) == w.fold(stringify(w.value))
}

func (w *Worker) compareNumeric(input any) (bool, error) {
	left, ok := toNumber(input)
	if !ok {
		return false, fmt.Errorf("input %v is not numeric", input)
	}

	right, ok := toNumber(w.value)
	if !ok {
		return false, fmt.Errorf("comparison value %v is not numeric", w.value)
	}

	switch w.operator {
	case OpGT:
		return left > right, nil
	case OpGTE:
		return left >= right, nil
	case OpLT:
		return left < right, nil
	default:
		if w.operator == OpLTE {
			return left <= right, nil
		}

		return false, fmt.Errorf("unknown numeric operator %q", w.operator)
	}
}

// compareJSONPath extracts a value from the input document via a gjson path
// and compares it against the configured value.
func (w *Worker) compareJSONPath(input any) (bool, error) {
	doc, err := json.Marshal(input)
	if err != nil {
		return false, fmt.Errorf("input is not JSON-encodable: %w", err)
	}

	result := gjson.GetBytes(doc, w.path)
	if !result.Exists() {
		return false, nil
	}

	if w.value == nil {
		// No comparison value: truthiness of the extracted value.
		return result.Bool() || result.String() != "", nil
	}

	if left, ok := toNumber(result.Value()); ok {
		if right, ok := toNumber(w.value); ok {
			return left == right, nil
		}
	}

	return w.fold(result.String()) == w.fold(stringify(w.value)), nil
}

func (w *Worker) compareMembership(input any) (bool, error) {
	list, ok := w.value.([]any)
	if !ok {
		return false, errors.New("'in' operator requires an array 'value'")
	}

	for _, candidate := range list {
		if left, lok := toNumber(input); lok {
			if right, rok := toNumber(candidate); rok && left == right {
				return true, nil
			}

			continue
		}

		if w.fold(stringify(input)) == w.fold(stringify(candidate)) {
			return true, nil
		}
	}

	return false, nil
}

func (w *Worker) fold(s string) string {
	if w.caseSensitive {
		return s
	}

	return strings.ToLower(s)
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

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
