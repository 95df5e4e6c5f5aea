package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/evaluator"
	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
	"github.com/nickflorez-ai/arla-engine/internal/rules"
	"github.com/nickflorez-ai/arla-engine/internal/sor/postgres"
	"github.com/nickflorez-ai/arla-engine/internal/statecache"
)

// prefilledLoader avoids reaching a real system-of-record: on the first
// cache miss against miniredis it supplies a fixed state with one borrower,
// so borrower-level questions have an entity slot to fan out over.
type prefilledLoader struct{}

func (prefilledLoader) Load(_ context.Context, pid string) (*domain.LoanState, error) {
	return &domain.LoanState{
		ProposalPid: pid,
		Fields:      map[string]any{},
		Entities:    domain.EntityLists{Borrowers: []domain.EntityRef{{Pid: "b-1", DisplayName: "Jane Doe"}}},
		Answered:    map[string]struct{}{},
	}, nil
}

type prefilledWriteback struct{}

func (prefilledWriteback) Publish(_ context.Context, _ queuebuilder.WriteRecord) error { return nil }

func writeFileHTTP(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func newTestService(t *testing.T) *QuestionService {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	writeFileHTTP(t, filepath.Join(root, "sections", "borrower.yaml"), "id: borrower\nname: Borrower\nsequence: 1\n")
	writeFileHTTP(t, filepath.Join(root, "questions", "citizenship.yaml"), `
id: citizenship
section: borrower
ordinal: 1
level: BORROWER
instructions: x
form_fields:
  - order: 1
    label: Citizenship
    access_field: citizenship_type
`)

	engine, err := rules.NewEngine(4, nil)
	require.NoError(t, err)
	reg, err := registry.Load(root, engine, nil)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	client := postgres.NewClientFromDB(db)

	cache := statecache.NewCache(rdb, prefilledLoader{}, nil)
	eval := evaluator.New(reg, engine, 0, nil, nil)
	answerHandler := queuebuilder.NewAnswerHandler(reg, cache, eval, prefilledWriteback{}, nil, nil, nil)

	return NewQuestionService(reg, engine, cache, eval, answerHandler, client)
}

func TestReadinessCheck_NotReadyBeforeWarmup(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 503, rec.Code)
}

func TestReadinessCheck_ReadyAfterWarmupWithRules(t *testing.T) {
	svc := newTestService(t)
	svc.MarkWarmedUp()
	router := NewRouter(svc)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ready", body["status"])
}

func TestGetQuestions_ReturnsQueue(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)

	req := httptest.NewRequest("GET", "/api/v1/proposals/prop-1/questions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body domain.QuestionQueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Queue, 1)
	require.Equal(t, "citizenship", body.Queue[0].QuestionID)
}

func TestSubmitAnswer_AppliesAndReturnsUpdatedQueue(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)

	payload, err := json.Marshal(map[string]any{"questionId": "citizenship", "answer": "US_CITIZEN"})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/proposals/prop-1/answers", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body domain.QuestionQueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Queue, "citizenship should no longer be pending once answered")
}

func TestSubmitAnswer_MissingQuestionIDIs400(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)

	req := httptest.NewRequest("POST", "/api/v1/proposals/prop-1/answers", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)
}
