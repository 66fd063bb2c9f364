package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAgent(t *testing.T) {
	before := testutil.ToFloat64(agentExecutions.WithLabelValues("sample_agent", StatusSuccess))
	ObserveAgent("sample_agent", StatusSuccess, 250*time.Millisecond)
	after := testutil.ToFloat64(agentExecutions.WithLabelValues("sample_agent", StatusSuccess))

	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestSetRiskScore(t *testing.T) {
	SetRiskScore(0.46)
	if got := testutil.ToFloat64(riskOverall); got != 0.46 {
		t.Errorf("expected 0.46, got %v", got)
	}
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(supervisorRequests.WithLabelValues("planning"))
	ObserveRequest("planning", time.Second)
	if got := testutil.ToFloat64(supervisorRequests.WithLabelValues("planning")) - before; got != 1 {
		t.Errorf("expected counter to grow by 1, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	ObserveStructuredCall("task_plan", "ok")
	CountAlert("HIGH")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"omnisupply_structured_calls_total",
		"omnisupply_risk_alerts_total",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}
