package obsv

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBudgetExceeded_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(budgetExceededTotal)
	BudgetExceeded()
	assert.Equal(t, before+1, testutil.ToFloat64(budgetExceededTotal))
}

func TestRuleEvaluationFailure_LabelsByRuleID(t *testing.T) {
	RuleEvaluationFailure("question:citizenship_status")
	count := testutil.ToFloat64(ruleEvaluationFailureTotal.WithLabelValues("question:citizenship_status"))
	assert.GreaterOrEqual(t, count, float64(1))
}

func TestQueuePublishFailure_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(queuePublishFailureTotal)
	QueuePublishFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(queuePublishFailureTotal))
}

func TestObserveEvaluateDuration_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { ObserveEvaluateDuration(5 * time.Millisecond) })
}

func TestObserveHTTPRequest_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { ObserveHTTPRequest("GET", "/healthz", "200", time.Millisecond) })
}
