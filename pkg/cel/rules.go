package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Rule is a named boolean expression.
type Rule struct {
	Name       string
	Expression string
}

type compiledRule struct {
	name    string
	program cel.Program
}

// Rules is an ordered set of compiled expressions. The zero value and nil
// match nothing.
type Rules struct {
	rules []compiledRule
}

func NewRules(eval *Evaluator, rules []Rule) (*Rules, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}
		program, err := eval.CompileFilter(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		compiled = append(compiled, compiledRule{name: name, program: program})
	}
	return &Rules{rules: compiled}, nil
}

func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Match returns the name of the first rule that evaluates to true. A rule
// that fails to evaluate (for example a missing payload key) does not match;
// its error is returned alongside the rules that were evaluated after it.
func (r *Rules) Match(ctx context.Context, vars map[string]interface{}) (string, bool, error) {
	if r == nil {
		return "", false, nil
	}

	var firstErr error
	for _, rule := range r.rules {
		ok, err := evalBool(ctx, rule.program, vars)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %s: %w", rule.name, err)
			}
			continue
		}
		if ok {
			return rule.name, true, nil
		}
	}
	return "", false, firstErr
}
