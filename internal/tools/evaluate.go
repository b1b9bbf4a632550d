package tools

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// EvaluateTool evaluates an expr-lang expression against a variables object.
// It is the usual consumer of {{step_N_result}} placeholders.
type EvaluateTool struct{}

func (e *EvaluateTool) Name() string { return "evaluate_expression" }

func (e *EvaluateTool) Description() string {
	return "Evaluate an expression (e.g. \"len(items) > 3\") against the given variables. Returns the value and its truthiness."
}

func (e *EvaluateTool) Parameters() map[string]string {
	return map[string]string{
		"expression": "string",
		"variables":  "object (optional)",
	}
}

func (e *EvaluateTool) Execute(_ context.Context, args map[string]any) (any, error) {
	expression, _ := args["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	env, _ := args["variables"].(map[string]any)
	if env == nil {
		env = map[string]any{}
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return map[string]any{
		"value":  out,
		"truthy": isTruthy(out),
	}, nil
}

func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
