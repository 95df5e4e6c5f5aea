package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// CompileError wraps a CEL compilation failure for a ruleId. Compilation is
// fail-hard: the Configuration Registry treats it as a fatal startup error
// (spec §4.2, §4.3).
type CompileError struct {
	RuleID string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rules: compile %s: %v", e.RuleID, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// compiledRow is one decision-table row compiled to a single CEL program
// (its conditions AND-combined into one boolean expression).
type compiledRow struct {
	program cel.Program
	output  bool
}

// compiledDecision is a registered, ready-to-evaluate rule.
type compiledDecision struct {
	ruleID     string
	rows       []compiledRow
	fieldNames []string
	empty      bool
}

// EvalJob is one (ruleId, context) unit submitted to EvaluateBatch.
type EvalJob struct {
	RuleID  string
	Context map[string]any
}

// RowErrorCounter is invoked every time a decision-table row raises a CEL
// runtime error (or produces a non-boolean result) and is degraded to
// "does not match". A function field, like evaluator.BudgetExceededCounter,
// so internal/obsv can wire in a Prometheus counter without this package
// importing the metrics package.
type RowErrorCounter func(ruleID string)

// Engine is the CEL-backed Rules Engine (spec §4.2): a registry keyed by
// ruleId -> compiled decision, plus compile/evaluate/evaluateBatch.
type Engine struct {
	mu          sync.RWMutex
	env         *cel.Env
	compiled    map[string]*compiledDecision
	maxWorkers  int
	logger      *slog.Logger
	onRowError  RowErrorCounter
}

// NewEngine builds an Engine. maxWorkers bounds EvaluateBatch concurrency;
// values <= 0 default to 10, matching the worker-pool pattern the rest of
// the retrieval pack uses for CEL-based evaluation.
func NewEngine(maxWorkers int, logger *slog.Logger) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: create CEL environment: %w", err)
	}
	return &Engine{
		env:        env,
		compiled:   make(map[string]*compiledDecision),
		maxWorkers: maxWorkers,
		logger:     logger,
		onRowError: func(string) {},
	}, nil
}

// SetRowErrorCounter installs the callback invoked on row evaluation
// errors. Passing nil restores the no-op default.
func (e *Engine) SetRowErrorCounter(counter RowErrorCounter) {
	if counter == nil {
		counter = func(string) {}
	}
	e.mu.Lock()
	e.onRowError = counter
	e.mu.Unlock()
}

// RulesCount reports how many rule ids are currently installed, used by the
// process readiness check (SPEC_FULL.md §C).
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Compile installs a decision table under ruleId, replacing any existing
// entry with the same id. Compilation errors are returned, never installed.
func (e *Engine) Compile(ruleID string, table *DecisionTable) error {
	decision := &compiledDecision{ruleID: ruleID, fieldNames: table.FieldNames(), empty: table.Empty()}
	for _, row := range table.Rules {
		expr, err := rowExpression(row)
		if err != nil {
			return &CompileError{RuleID: ruleID, Err: err}
		}
		ast, issues := e.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return &CompileError{RuleID: ruleID, Err: fmt.Errorf("expression %q: %w", expr, issues.Err())}
		}
		program, err := e.env.Program(ast)
		if err != nil {
			return &CompileError{RuleID: ruleID, Err: fmt.Errorf("expression %q: %w", expr, err)}
		}
		decision.rows = append(decision.rows, compiledRow{program: program, output: row.Output})
	}

	e.mu.Lock()
	e.compiled[ruleID] = decision
	e.mu.Unlock()
	return nil
}

// Evaluate walks the rule's rows in order under "first" hit policy: the
// first row whose AND-combined conditions hold against context wins, and
// its output is returned. A compiled-but-empty table evaluates to false
// (spec §4.2); a ruleId with no installed decision returns false with an
// error.
func (e *Engine) Evaluate(ruleID string, evalContext map[string]any) (bool, error) {
	e.mu.RLock()
	decision, ok := e.compiled[ruleID]
	e.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("rules: no decision installed for %q", ruleID)
	}
	if decision.empty {
		return false, nil
	}

	activation := map[string]any{"ctx": withNullDefaults(evalContext, decision.fieldNames)}
	for _, row := range decision.rows {
		out, _, err := row.program.Eval(activation)
		if err != nil {
			// An individual row's type mismatch (e.g. comparing a numeric
			// operator against a non-numeric field) does not match; try
			// the next row rather than failing the whole evaluation.
			e.logger.Debug("rules: row evaluation error, treating as non-match", "ruleId", ruleID, "error", err)
			e.onRowError(ruleID)
			continue
		}
		matched, ok := out.Value().(bool)
		if !ok {
			e.logger.Debug("rules: row produced non-boolean result", "ruleId", ruleID)
			e.onRowError(ruleID)
			continue
		}
		if matched {
			return row.output, nil
		}
	}
	return false, nil
}

// EvaluateBatch evaluates every job in parallel, bounded by maxWorkers.
// Order of the result slice matches the input order. Individual evaluation
// errors degrade to false and are logged: evaluation is fail-soft,
// compilation is fail-hard (spec §4.2).
func (e *Engine) EvaluateBatch(ctx context.Context, jobs []EvalJob) []bool {
	results := make([]bool, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	sem := make(chan struct{}, e.maxWorkers)
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(idx int, j EvalJob) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			ok, err := e.Evaluate(j.RuleID, j.Context)
			if err != nil {
				e.logger.Warn("rules: evaluation failed, degrading to false", "ruleId", j.RuleID, "error", err)
				ok = false
			}
			results[idx] = ok
		}(i, job)
	}
	wg.Wait()
	return results
}

// withNullDefaults returns a shallow copy of evalContext with every
// referenced field name present, defaulting to nil when absent, so CEL's
// map index never raises "no such key" and missing fields compare as null.
func withNullDefaults(evalContext map[string]any, fieldNames []string) map[string]any {
	out := make(map[string]any, len(evalContext)+len(fieldNames))
	for k, v := range evalContext {
		out[k] = v
	}
	for _, name := range fieldNames {
		if _, ok := out[name]; !ok {
			out[name] = nil
		}
	}
	return out
}

// rowExpression ANDs a rule row's conditions into a single CEL boolean
// expression over the "ctx" map variable.
func rowExpression(row Rule) (string, error) {
	if len(row.Conditions) == 0 {
		return "true", nil
	}
	parts := make([]string, 0, len(row.Conditions))
	for field, cond := range row.Conditions {
		literal, err := celLiteral(cond.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("ctx[%q] %s %s", field, cond.Operator, literal))
	}
	return strings.Join(parts, " && "), nil
}

func celLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case string:
		return strconv.Quote(v), nil
	default:
		return "", fmt.Errorf("unsupported condition value type %T", v)
	}
}
