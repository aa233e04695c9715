package conditional

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// expressionTimeout bounds a single custom-expression evaluation.
const expressionTimeout = 2 * time.Second

// dangerousGlobals are removed from every runtime before user code runs.
// goja ships none of the Node.js host objects, but scripts written for other
// engines probe for them, so they are pinned to undefined explicitly.
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

// evaluateExpression runs a custom comparator expression in a sandboxed
// JavaScript runtime. The script sees two bindings, `input` and `value`, and
// its result is coerced to a boolean. A fresh runtime is built per call so
// no state leaks between evaluations.
func evaluateExpression(ctx context.Context, expression string, input, value any) (bool, error) {
	vm := goja.New()

	if err := applySandbox(vm); err != nil {
		return false, err
	}

	if err := vm.Set("input", input); err != nil {
		return false, fmt.Errorf("failed to bind input: %w", err)
	}

	if err := vm.Set("value", value); err != nil {
		return false, fmt.Errorf("failed to bind value: %w", err)
	}

	timeout := time.AfterFunc(expressionTimeout, func() {
		vm.Interrupt("expression timed out")
	})
	defer timeout.Stop()

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < expressionTimeout {
			timeout.Reset(remaining)
		}
	}

	result, err := vm.RunString(expression)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return false, errors.New("expression timed out")
		}

		return false, fmt.Errorf("expression error: %w", err)
	}

	return result.ToBoolean(), nil
}

// applySandbox removes host-environment globals and disables eval.
func applySandbox(vm *goja.Runtime) error {
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	restrictedEval := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed in condition expressions"))
	}

	return vm.Set("eval", restrictedEval)
}
