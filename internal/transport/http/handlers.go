package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
	"github.com/nickflorez-ai/arla-engine/internal/sor/postgres"
	"github.com/nickflorez-ai/arla-engine/pkg/version"
)

// getQuestionsHandler handles GET /api/v1/proposals/:proposalPid/questions
// (spec §6 "GetQuestions(proposalPid) -> QuestionQueueResponse"): loads the
// current state through the cache, runs the evaluator, and returns the
// built queue.
func (s *QuestionService) getQuestionsHandler(c *gin.Context) {
	pid := c.Param("proposalPid")
	if pid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proposalPid is required"})
		return
	}

	state, err := s.cache.Get(c.Request.Context(), pid)
	if err != nil {
		writeError(c, err)
		return
	}

	items := s.evaluator.Evaluate(c.Request.Context(), state)
	c.JSON(http.StatusOK, queuebuilder.Build(s.registry, items, state))
}

// submitAnswerRequest is the JSON body for POST
// /api/v1/proposals/:proposalPid/answers.
type submitAnswerRequest struct {
	QuestionID string   `json:"questionId" binding:"required"`
	EntityPid  string   `json:"entityPid"`
	Answer     any      `json:"answer"`
	RawInput   string   `json:"rawInput"`
	Confidence *float64 `json:"confidence"`
}

// submitAnswerHandler handles POST /api/v1/proposals/:proposalPid/answers
// (spec §6 "SubmitAnswer(...) -> QuestionQueueResponse"), delegating the
// full apply-then-reevaluate algorithm to the Answer Handler (spec §4.7).
func (s *QuestionService) submitAnswerHandler(c *gin.Context) {
	pid := c.Param("proposalPid")
	if pid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proposalPid is required"})
		return
	}

	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.answerHandler.Submit(c.Request.Context(), queuebuilder.AnswerInput{
		ProposalPid: pid,
		QuestionID:  req.QuestionID,
		EntityPid:   req.EntityPid,
		Answer:      req.Answer,
		RawInput:    req.RawInput,
		Confidence:  req.Confidence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getLoanStateHandler handles GET /api/v1/proposals/:proposalPid/state
// (spec §6 "GetLoanState(proposalPid) -> LoanState"), returning the cached
// working set as-is without re-running the evaluator.
func (s *QuestionService) getLoanStateHandler(c *gin.Context) {
	pid := c.Param("proposalPid")
	if pid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proposalPid is required"})
		return
	}

	state, err := s.cache.Get(c.Request.Context(), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// healthCheckHandler handles GET /healthz (spec §6 "HealthCheck()"): a
// process liveness probe. It answers 200 whenever the process is serving;
// the system-of-record connection's state is reported in the body but does
// not change the status code.
func (s *QuestionService) healthCheckHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := postgres.Health(ctx, s.db.DB())
	body := gin.H{"status": "healthy", "version": version.Full(), "database": health}
	if err != nil {
		body["databaseError"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// readinessCheckHandler handles GET /readyz (spec §6 "ReadinessCheck()").
// Readiness requires the Configuration Registry warmup to have completed
// AND at least one rule installed in the Rules Engine (SPEC_FULL.md §C
// Open Question resolution) — a registry that loaded zero questions is not
// a usable engine even though warmup technically finished without error.
func (s *QuestionService) readinessCheckHandler(c *gin.Context) {
	if !s.warmedUp.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "warmup not complete"})
		return
	}
	if s.engine.RulesCount() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "no rules installed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "rulesCount": s.engine.RulesCount(), "questionsCount": s.registry.QuestionCount()})
}
