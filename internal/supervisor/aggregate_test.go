package supervisor

import (
	"reflect"
	"testing"

	"github.com/vinayprograms/omnisupply/internal/agent"
)

func TestCollect(t *testing.T) {
	results := map[string]agent.Result{
		"risk_agent": {
			Success:         true,
			Insights:        []string{"Overall risk MEDIUM"},
			Recommendations: []string{"Review Maersk"},
			Metrics:         map[string]float64{"overall_risk_score": 0.46, "alerts": 2},
		},
		"finance_agent": {
			Success:  false,
			Error:    "P&L generation failed",
			Insights: []string{"Overall risk MEDIUM"},
		},
	}

	got := collect([]string{"finance_agent", "risk_agent", "missing"}, results)
	want := Aggregate{
		Insights: []Tagged{
			{Agent: "finance_agent", Text: "Overall risk MEDIUM"},
			{Agent: "risk_agent", Text: "Overall risk MEDIUM"},
		},
		Recommendations: []Tagged{{Agent: "risk_agent", Text: "Review Maersk"}},
		Metrics: []TaggedMetric{
			{Agent: "risk_agent", Name: "alerts", Value: 2},
			{Agent: "risk_agent", Name: "overall_risk_score", Value: 0.46},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collect() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12, "12"},
		{-3, "-3"},
		{0.316, "0.32"},
		{18750.5, "18750.50"},
	}
	for _, tt := range tests {
		if got := formatMetric(tt.in); got != tt.want {
			t.Errorf("formatMetric(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
