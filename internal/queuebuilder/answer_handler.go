package queuebuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
)

// ErrUnknownFormFieldKey indicates a multi-field answer's mapping named a
// key that does not match any of the question's form field labels (spec
// §4.7 step 2: "Unknown keys fail").
var ErrUnknownFormFieldKey = errors.New("queuebuilder: unknown form field key in answer mapping")

// ErrAnswerShapeMismatch indicates a multi-field question received a
// non-mapping answer, or a single-field question received a mapping.
var ErrAnswerShapeMismatch = errors.New("queuebuilder: answer does not match question's form field shape")

// stateCache is the subset of *statecache.Cache the Answer Handler needs.
type stateCache interface {
	Update(ctx context.Context, pid string, fieldDelta map[string]any, answeredQuestionID string) (*domain.LoanState, error)
	Get(ctx context.Context, pid string) (*domain.LoanState, error)
}

// questionEvaluator is the subset of *evaluator.Evaluator the Answer
// Handler needs.
type questionEvaluator interface {
	Evaluate(ctx context.Context, state *domain.LoanState) []domain.QueueItem
}

// writebackProducer is the subset of *writeback.Producer the Answer
// Handler needs. Publish failures are logged and swallowed (spec §4.7
// step 4); the interface still returns an error so the handler can count
// and log it.
type writebackProducer interface {
	Publish(ctx context.Context, record WriteRecord) error
}

// answerRecorder is the subset of *postgres.Client the Answer Handler
// needs to mark a question answered in the system of record, so a cold
// cache reload (spec §4.4 step 4) sees it without replaying Kafka.
type answerRecorder interface {
	RecordAnswer(ctx context.Context, dealPid, questionID string) error
}

// WriteRecord is the durable-write envelope published to the message
// queue for every accepted answer (spec §4.7 step 4).
type WriteRecord struct {
	RecordID    string         `json:"recordId"`
	ProposalPid string         `json:"proposalPid"`
	QuestionID  string         `json:"questionId"`
	Delta       map[string]any `json:"delta"`
	EntityPid   string         `json:"entityPid,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	RawInput    string         `json:"rawInput,omitempty"`
	Confidence  *float64       `json:"confidence,omitempty"`
}

// AnswerInput is the Answer Handler's input (spec §4.7 "Answer Handler").
type AnswerInput struct {
	ProposalPid string
	QuestionID  string
	EntityPid   string
	Answer      any
	RawInput    string
	Confidence  *float64
}

// AnswerHandler applies a submitted answer and re-runs the
// Evaluator -> Queue Builder pipeline against the updated state.
type AnswerHandler struct {
	registry         *registry.Registry
	cache            stateCache
	evaluator        questionEvaluator
	writeback        writebackProducer
	recorder         answerRecorder
	onPublishFailure func()
	logger           *slog.Logger
}

// NewAnswerHandler builds an AnswerHandler. onPublishFailure, if non-nil,
// is invoked every time the durable-write enqueue fails, for the
// queue_publish_failure counter (SPEC_FULL.md §B).
func NewAnswerHandler(reg *registry.Registry, cache stateCache, eval questionEvaluator, wb writebackProducer, recorder answerRecorder, onPublishFailure func(), logger *slog.Logger) *AnswerHandler {
	if onPublishFailure == nil {
		onPublishFailure = func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerHandler{registry: reg, cache: cache, evaluator: eval, writeback: wb, recorder: recorder, onPublishFailure: onPublishFailure, logger: logger}
}

// Submit runs the full Answer Handler algorithm from spec §4.7.
func (h *AnswerHandler) Submit(ctx context.Context, input AnswerInput) (domain.QuestionQueueResponse, error) {
	question, err := h.registry.Question(input.QuestionID)
	if err != nil {
		return domain.QuestionQueueResponse{}, err
	}

	delta, err := fieldDelta(question, input.Answer)
	if err != nil {
		return domain.QuestionQueueResponse{}, err
	}

	state, err := h.cache.Update(ctx, input.ProposalPid, delta, input.QuestionID)
	if err != nil {
		return domain.QuestionQueueResponse{}, fmt.Errorf("queuebuilder: update state cache: %w", err)
	}

	record := WriteRecord{
		RecordID:    uuid.NewString(),
		ProposalPid: input.ProposalPid,
		QuestionID:  input.QuestionID,
		Delta:       delta,
		EntityPid:   input.EntityPid,
		Timestamp:   time.Now().UTC(),
		RawInput:    input.RawInput,
		Confidence:  input.Confidence,
	}
	if err := h.writeback.Publish(ctx, record); err != nil {
		h.onPublishFailure()
		h.logger.Warn("queuebuilder: durable write enqueue failed, continuing", "proposalPid", input.ProposalPid, "questionId", input.QuestionID, "error", err)
	}

	if h.recorder != nil {
		if err := h.recorder.RecordAnswer(ctx, input.ProposalPid, input.QuestionID); err != nil {
			h.logger.Warn("queuebuilder: record answer in system of record failed, continuing", "proposalPid", input.ProposalPid, "questionId", input.QuestionID, "error", err)
		}
	}

	items := h.evaluator.Evaluate(ctx, state)
	return Build(h.registry, items, state), nil
}

// fieldDelta derives the field-level update from an answer value (spec
// §4.7 step 2). A question with exactly one form field binds the answer
// directly to that field's accessField. A question with multiple form
// fields expects a map keyed by form field label; any key that does not
// match a label is rejected.
func fieldDelta(question *domain.Question, answer any) (map[string]any, error) {
	if len(question.FormFields) == 0 {
		return map[string]any{}, nil
	}
	if len(question.FormFields) == 1 {
		if _, isMap := answer.(map[string]any); isMap {
			return nil, fmt.Errorf("%w: question %q takes a single value, not a mapping", ErrAnswerShapeMismatch, question.ID)
		}
		return map[string]any{question.FormFields[0].AccessField: answer}, nil
	}

	mapping, ok := answer.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: question %q requires a mapping keyed by form field label", ErrAnswerShapeMismatch, question.ID)
	}

	byLabel := make(map[string]string, len(question.FormFields))
	for _, ff := range question.FormFields {
		byLabel[ff.Label] = ff.AccessField
	}

	delta := make(map[string]any, len(mapping))
	for label, value := range mapping {
		accessField, ok := byLabel[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormFieldKey, label)
		}
		delta[accessField] = value
	}
	return delta, nil
}
