package assessment

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// EvaluatePassRule decides whether a graded attempt passes. The rule is an
// expression over score, total, and percent; an invalid rule is an error,
// never a pass.
func EvaluatePassRule(rule string, score, total int) (bool, error) {
	percent := 0.0
	if total > 0 {
		percent = float64(score) / float64(total) * 100
	}

	env := map[string]any{
		"score":   score,
		"total":   total,
		"percent": percent,
	}

	program, err := expr.Compile(rule, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile pass rule: %w", err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate pass rule: %w", err)
	}

	passed, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("pass rule did not yield a boolean")
	}
	return passed, nil
}
