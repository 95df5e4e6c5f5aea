// Package evaluator implements the Question Evaluator (spec §4.6): given a
// domain.LoanState, produces the applicable domain.QueueItems under a
// latency budget.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nickflorez-ai/arla-engine/internal/criteria"
	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
	"github.com/nickflorez-ai/arla-engine/internal/rules"
)

// DefaultBudget is the Evaluator's local deadline when none is configured
// (spec §4.6: "configurable latency budget (default 8 ms)").
const DefaultBudget = 8 * time.Millisecond

// BudgetExceededCounter is incremented every time the Evaluator stops early
// because its local deadline fired. Implemented as a function field rather
// than a direct Prometheus dependency so internal/obsv can wire metrics in
// without evaluator importing the metrics package.
type BudgetExceededCounter func()

// DurationObserver reports how long an Evaluate pass took. Implemented as a
// function field for the same reason as BudgetExceededCounter: it lets
// internal/obsv wire a Prometheus histogram in without evaluator importing
// the metrics package.
type DurationObserver func(time.Duration)

// Evaluator produces the applicable queue for a LoanState.
type Evaluator struct {
	registry       *registry.Registry
	engine         *rules.Engine
	budget         time.Duration
	onBudgetExceed BudgetExceededCounter
	onEvaluated    DurationObserver
	logger         *slog.Logger
}

// New builds an Evaluator. budget <= 0 falls back to DefaultBudget.
func New(reg *registry.Registry, engine *rules.Engine, budget time.Duration, onBudgetExceed BudgetExceededCounter, logger *slog.Logger) *Evaluator {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if onBudgetExceed == nil {
		onBudgetExceed = func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{registry: reg, engine: engine, budget: budget, onBudgetExceed: onBudgetExceed, onEvaluated: func(time.Duration) {}, logger: logger}
}

// SetDurationObserver installs the callback used to report Evaluate's
// wall-clock duration (spec §1, §5 p50<10ms SLO). nil resets to a no-op.
func (e *Evaluator) SetDurationObserver(observer DurationObserver) {
	if observer == nil {
		observer = func(time.Duration) {}
	}
	e.onEvaluated = observer
}

type pendingSlot struct {
	question *domain.Question
	slot     domain.EntityRef
}

// Evaluate runs the level-ordered algorithm from spec §4.6, stopping early
// (and returning the partial results gathered so far) if the latency
// budget is exceeded before a level starts.
func (e *Evaluator) Evaluate(ctx context.Context, state *domain.LoanState) []domain.QueueItem {
	start := time.Now()
	defer func() { e.onEvaluated(time.Since(start)) }()
	var items []domain.QueueItem

	for _, level := range domain.EntityLevels {
		if time.Since(start) > e.budget {
			e.onBudgetExceed()
			e.logger.Warn("evaluator: latency budget exceeded, returning partial results",
				"proposalPid", state.ProposalPid, "level", level, "budget", e.budget)
			break
		}

		questions := e.registry.QuestionsForLevel(level)
		if len(questions) == 0 {
			continue
		}

		jobs := make([]rules.EvalJob, 0)
		pending := make([]pendingSlot, 0)
		for _, q := range questions {
			if state.IsAnswered(q.ID) {
				continue
			}
			for _, slot := range state.Entities.ForLevel(level) {
				jobs = append(jobs, rules.EvalJob{RuleID: q.RuleID(), Context: mergeContext(state.Fields, slot.Fields)})
				pending = append(pending, pendingSlot{question: q, slot: slot})
			}
		}
		if len(jobs) == 0 {
			continue
		}

		results := e.engine.EvaluateBatch(ctx, jobs)
		for i, matched := range results {
			p := pending[i]
			if !matched && !p.question.AlwaysApplicable {
				continue
			}
			items = append(items, buildQueueItem(p.question, p.slot, state.Fields))
		}
	}

	return items
}

// mergeContext shallow-merges loan fields with an entity slot's fields,
// the entity winning on conflict (spec §4.6 step 4).
func mergeContext(loanFields, entityFields map[string]any) map[string]any {
	merged := make(map[string]any, len(loanFields)+len(entityFields))
	for k, v := range loanFields {
		merged[k] = v
	}
	for k, v := range entityFields {
		merged[k] = v
	}
	return merged
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// buildQueueItem instantiates a question against an entity slot,
// interpolating {{placeholder}} tokens in its instructions: the
// placeholder is normalized like a field name, entity fields are checked
// before loan fields, and an unresolved placeholder is left literal (spec
// §4.6 step 5).
func buildQueueItem(q *domain.Question, slot domain.EntityRef, loanFields map[string]any) domain.QueueItem {
	rendered := placeholderPattern.ReplaceAllStringFunc(q.Instructions, func(token string) string {
		match := placeholderPattern.FindStringSubmatch(token)
		if len(match) != 2 {
			return token
		}
		field := criteria.NormalizeField(match[1])
		if v, ok := slot.Fields[field]; ok {
			return fmt.Sprintf("%v", v)
		}
		if v, ok := loanFields[field]; ok {
			return fmt.Sprintf("%v", v)
		}
		if field == "display_name" && slot.DisplayName != "" {
			return slot.DisplayName
		}
		return token
	})

	var accessField string
	if len(q.FormFields) > 0 {
		accessField = q.FormFields[0].AccessField
	}

	return domain.QueueItem{
		QuestionID:        q.ID,
		EntityPid:         slot.Pid,
		EntityDisplayName: slot.DisplayName,
		Section:           q.Section,
		Ordinal:           q.Ordinal,
		Level:             q.Level,
		RenderedText:      rendered,
		InputKind:         q.InputKind,
		Options:           q.Options,
		AccessField:       accessField,
		Flexibility:       q.Flexibility,
		CanCombineWith:    q.CanCombineWith,
	}
}
