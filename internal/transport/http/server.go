// Package http exposes the question-evaluation pipeline's RPC surface
// (spec §6) over HTTP/JSON using gin.
package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nickflorez-ai/arla-engine/internal/evaluator"
	"github.com/nickflorez-ai/arla-engine/internal/obsv"
	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
	"github.com/nickflorez-ai/arla-engine/internal/rules"
	"github.com/nickflorez-ai/arla-engine/internal/sor/postgres"
	"github.com/nickflorez-ai/arla-engine/internal/statecache"
)

// QuestionService wires the registry, rules engine, state cache, evaluator,
// and answer handler into the HTTP surface named in spec §6:
// GetQuestions, SubmitAnswer, GetLoanState, HealthCheck, ReadinessCheck.
type QuestionService struct {
	registry      *registry.Registry
	engine        *rules.Engine
	cache         *statecache.Cache
	evaluator     *evaluator.Evaluator
	answerHandler *queuebuilder.AnswerHandler
	db            *postgres.Client

	warmedUp atomic.Bool
}

// NewQuestionService builds the service. Call MarkWarmedUp once the
// registry has finished loading so ReadinessCheck can report ready.
func NewQuestionService(reg *registry.Registry, engine *rules.Engine, cache *statecache.Cache, eval *evaluator.Evaluator, answerHandler *queuebuilder.AnswerHandler, db *postgres.Client) *QuestionService {
	return &QuestionService{registry: reg, engine: engine, cache: cache, evaluator: eval, answerHandler: answerHandler, db: db}
}

// MarkWarmedUp flags the registry/engine as having completed startup
// warmup (SPEC_FULL.md §C: readiness requires warmup complete AND
// engine.RulesCount() > 0).
func (s *QuestionService) MarkWarmedUp() {
	s.warmedUp.Store(true)
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *QuestionService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsMiddleware())

	router.GET("/healthz", svc.healthCheckHandler)
	router.GET("/readyz", svc.readinessCheckHandler)
	router.GET("/metrics", gin.WrapH(obsv.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/proposals/:proposalPid/questions", svc.getQuestionsHandler)
	v1.POST("/proposals/:proposalPid/answers", svc.submitAnswerHandler)
	v1.GET("/proposals/:proposalPid/state", svc.getLoanStateHandler)

	return router
}

// metricsMiddleware records request count/latency per route (grounded on
// the rest of the pack's Prometheus HTTP middleware pattern).
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := http.StatusText(c.Writer.Status())
		obsv.ObserveHTTPRequest(c.Request.Method, route, status, time.Since(start))
	}
}
