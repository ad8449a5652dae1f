package fitness

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/alexbensimon/pakt/pkg/pakt"
)

// DefaultRule passes when the measured daily average reaches the target.
const DefaultRule = "result >= goal"

// GoalEvaluator decides success with CEL rules over result, goal, level and
// goal_type. Goal types without a rule of their own use DefaultRule.
type GoalEvaluator struct {
	env      *cel.Env
	rules    map[pakt.GoalType]string
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

// NewGoalEvaluator compiles every rule up front so a bad rule fails at boot.
func NewGoalEvaluator(rules map[pakt.GoalType]string) (*GoalEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("result", cel.IntType),
		cel.Variable("goal", cel.IntType),
		cel.Variable("level", cel.IntType),
		cel.Variable("goal_type", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	e := &GoalEvaluator{
		env:      env,
		rules:    make(map[pakt.GoalType]string, len(rules)),
		prgCache: make(map[string]cel.Program),
	}
	if _, err := e.program(DefaultRule); err != nil {
		return nil, err
	}
	for gt, rule := range rules {
		if _, err := e.program(rule); err != nil {
			return nil, fmt.Errorf("rule for %s: %w", gt, err)
		}
		e.rules[gt] = rule
	}
	return e, nil
}

// Evaluate reports whether result meets the goal for goalType at level.
func (e *GoalEvaluator) Evaluate(goalType pakt.GoalType, level pakt.Level, result int64) (bool, error) {
	goal, err := GoalFor(goalType, level)
	if err != nil {
		return false, err
	}
	rule, ok := e.rules[goalType]
	if !ok {
		rule = DefaultRule
	}
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"result":    result,
		"goal":      goal,
		"level":     int64(level),
		"goal_type": int64(goalType),
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	passed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q returned %T, want bool", rule, out.Value())
	}
	return passed, nil
}

func (e *GoalEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must return bool, got %s", expr, ast.OutputType())
	}
	p, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = p
	return p, nil
}
