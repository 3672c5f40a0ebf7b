package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.InspectionsEvaluated.WithLabelValues("APPROVED").Inc()
	m.InspectionsEvaluated.WithLabelValues("APPROVED").Inc()
	m.OrphanedAnswers.Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InspectionsEvaluated.WithLabelValues("APPROVED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OrphanedAnswers))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `qualityline_inspections_evaluated_total{verdict="APPROVED"} 2`)
}

func TestObserveHelpers(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.ObservePlan("II", "ok")
	nilMetrics.ObserveEvaluation("APPROVED", 1, 2, 3, 4)
	nilMetrics.ObserveApproval("PENDING")
	nilMetrics.ObserveWebhook("ok")

	m := New()
	m.ObservePlan("II", "ok")
	m.ObserveEvaluation("CONDITIONAL_APPROVAL", 0, 2, 1, 1)
	m.ObserveApproval("APPROVED")
	m.ObserveWebhook("error")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlansResolved.WithLabelValues("II", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DefectsFound.WithLabelValues("MAJOR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrphanedAnswers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ApprovalTransitions.WithLabelValues("APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("error")))
}
