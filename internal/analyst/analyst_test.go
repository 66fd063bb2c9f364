package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/storage/storagetest"
	"github.com/vinayprograms/omnisupply/internal/structured/structuredtest"
)

const revenueSQL = "SELECT category, SUM(sale_price) AS revenue FROM orders GROUP BY category"

func revenueTable() *storagetest.Executor {
	return storagetest.New().On("SUM(sale_price)", storagetest.Table(
		[]string{"category", "revenue"},
		[]any{"Technology", 52000.0},
		[]any{"Furniture", 31000.0},
		[]any{"Office Supplies", 12000.0},
	))
}

func newAnalyst(t *testing.T, exec *storagetest.Executor, caller *structuredtest.Caller) *Agent {
	t.Helper()
	a, err := New(exec, caller, DefaultConfig())
	if err != nil {
		t.Fatalf("new analyst: %v", err)
	}
	return a
}

func TestAnalyst_Aggregation(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "aggregation", "confidence": 0.9, "entities": {"metrics": ["revenue"], "dimensions": ["category"]}}`).
		Respond("sql_query", `{"sql": "`+revenueSQL+`", "explanation": "Revenue by category"}`).
		Respond("data_analysis", `{"summary": "Technology leads revenue.", "key_insights": ["Technology is 55% of revenue"], "recommendations": ["Stock more laptops"]}`)
	exec := revenueTable()
	a := newAnalyst(t, exec, caller)

	res := a.Execute(context.Background(), "show revenue by category", agent.Prior{})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Metrics["rows_returned"] != 3 {
		t.Errorf("expected 3 rows, got %v", res.Metrics["rows_returned"])
	}
	if res.Metrics["query_attempts"] != 1 {
		t.Errorf("expected one attempt, got %v", res.Metrics["query_attempts"])
	}
	if !hasString(res.Insights, "Summary: Technology leads revenue.") {
		t.Errorf("missing summary in %v", res.Insights)
	}
	if !hasPrefix(res.Recommendations, "Visualize as bar_chart") {
		t.Errorf("expected bar chart recommendation, got %v", res.Recommendations)
	}
	if caller.CallsFor("data_analysis") != 1 {
		t.Errorf("expected one analysis call")
	}

	sqlCalls := 0
	for _, c := range caller.Calls() {
		if c.Schema == "sql_query" {
			sqlCalls++
			if !strings.Contains(c.Prompt, "Metrics: revenue") {
				t.Errorf("SQL prompt should carry the classification, got %q", c.Prompt)
			}
		}
	}
	if sqlCalls != 1 {
		t.Errorf("expected one SQL call, got %d", sqlCalls)
	}
}

func TestAnalyst_ClassificationDefaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown category", `{"query_type": "forecast", "confidence": 0.95}`},
		{"low confidence", `{"query_type": "trend", "confidence": 0.3}`},
		{"empty category", `{"query_type": "", "confidence": 0.9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := structuredtest.New().
				Respond("query_classification", tt.raw).
				Respond("sql_query", `{"sql": "`+revenueSQL+`"}`).
				Respond("data_analysis", `{"summary": "ok", "key_insights": []}`)
			a := newAnalyst(t, revenueTable(), caller)

			res := a.Execute(context.Background(), "revenue", agent.Prior{})
			if !res.Success {
				t.Fatalf("classification issues must not fail the run: %q", res.Error)
			}
			if !hasPrefix(res.Recommendations, "Visualize as table") {
				t.Errorf("expected detail chart, got %v", res.Recommendations)
			}
		})
	}
}

func TestAnalyst_ClassificationFailureDefaults(t *testing.T) {
	caller := structuredtest.New().
		Fail("query_classification", errors.New("overloaded")).
		Respond("sql_query", `{"sql": "`+revenueSQL+`"}`).
		Respond("data_analysis", `{"summary": "ok", "key_insights": []}`)
	a := newAnalyst(t, revenueTable(), caller)

	res := a.Execute(context.Background(), "revenue", agent.Prior{})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if !hasPrefix(res.Recommendations, "Visualize as table") {
		t.Errorf("expected detail chart, got %v", res.Recommendations)
	}
}

func TestAnalyst_RetryAfterFailedQuery(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "aggregation", "confidence": 0.9}`).
		Respond("sql_query", `{"sql": "SELECT revenu FROM orders"}`).
		Respond("sql_query", `{"sql": "`+revenueSQL+`"}`).
		Respond("data_analysis", `{"summary": "ok", "key_insights": ["fine"]}`)
	exec := revenueTable().Fail("revenu FROM", errors.New("no such column: revenu"))
	a := newAnalyst(t, exec, caller)

	res := a.Execute(context.Background(), "revenue by category", agent.Prior{})
	if !res.Success {
		t.Fatalf("expected recovery on retry, got %q", res.Error)
	}
	if res.Metrics["query_attempts"] != 2 {
		t.Errorf("expected two attempts, got %v", res.Metrics["query_attempts"])
	}

	var prompts []string
	for _, c := range caller.Calls() {
		if c.Schema == "sql_query" {
			prompts = append(prompts, c.Prompt)
		}
	}
	if len(prompts) != 2 {
		t.Fatalf("expected two SQL generations, got %d", len(prompts))
	}
	if strings.Contains(prompts[0], "Previous attempt failed") {
		t.Error("first prompt must not mention a previous failure")
	}
	if !strings.Contains(prompts[1], "no such column: revenu") {
		t.Errorf("retry prompt should carry the error, got %q", prompts[1])
	}
}

func TestAnalyst_RetriesExhausted(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "detail", "confidence": 0.9}`).
		Respond("sql_query", `{"sql": "DELETE FROM orders"}`)
	a := newAnalyst(t, storagetest.New(), caller)

	res := a.Execute(context.Background(), "clean up orders", agent.Prior{})
	if res.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if !strings.Contains(res.Error, "query execution failed") {
		t.Errorf("unexpected error %q", res.Error)
	}
	if n := caller.CallsFor("sql_query"); n != DefaultConfig().MaxRetries {
		t.Errorf("expected %d SQL generations, got %d", DefaultConfig().MaxRetries, n)
	}
	if caller.CallsFor("data_analysis") != 0 {
		t.Error("analysis must not run after a failed query")
	}
}

func TestAnalyst_SQLGenerationFailure(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "detail", "confidence": 0.9}`).
		Fail("sql_query", errors.New("timeout"))
	exec := storagetest.New()
	a := newAnalyst(t, exec, caller)

	res := a.Execute(context.Background(), "list orders", agent.Prior{})
	if res.Success || !strings.Contains(res.Error, "SQL generation failed") {
		t.Errorf("expected SQL generation failure, got %+v", res)
	}
	if len(exec.Queries()) != 0 {
		t.Errorf("nothing should reach the database, got %v", exec.Queries())
	}
}

func TestAnalyst_AnomalyRoute(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "anomaly", "confidence": 0.8}`).
		Respond("sql_query", `{"sql": "SELECT carrier, late FROM delays"}`).
		Respond("data_analysis", `{"summary": "One carrier stands out.", "key_insights": []}`)

	rows := [][]any{}
	for _, c := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"} {
		rows = append(rows, []any{c, int64(10)})
	}
	rows = append(rows, []any{"Maersk", int64(100)})
	exec := storagetest.New().On("FROM delays", storagetest.Table([]string{"carrier", "late"}, rows...))
	a := newAnalyst(t, exec, caller)

	res := a.Execute(context.Background(), "any unusual carriers?", agent.Prior{})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Metrics["anomalies_detected"] != 1 {
		t.Errorf("expected one anomaly, got %v", res.Metrics["anomalies_detected"])
	}
	if !hasPrefix(res.Insights, "Anomaly: Maersk: late = 100.00") {
		t.Errorf("expected Maersk anomaly insight, got %v", res.Insights)
	}
	if calls := caller.Calls(); !strings.Contains(calls[len(calls)-1].Prompt, "Statistical outliers") {
		t.Error("analysis prompt should list detected outliers")
	}
	if !hasPrefix(res.Recommendations, "Visualize as scatter_plot") {
		t.Errorf("expected scatter plot, got %v", res.Recommendations)
	}
}

func TestAnalyst_EmptyResult(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "aggregation", "confidence": 0.9}`).
		Respond("sql_query", `{"sql": "SELECT * FROM orders WHERE 1 = 0"}`)
	a := newAnalyst(t, storagetest.New(), caller)

	res := a.Execute(context.Background(), "orders from the year 1900", agent.Prior{})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if !hasString(res.Insights, "Summary: No data returned from query.") {
		t.Errorf("expected no-data summary, got %v", res.Insights)
	}
	if caller.CallsFor("data_analysis") != 0 {
		t.Error("empty results must not be sent for analysis")
	}
	if res.Metrics["visualizations_recommended"] != 0 {
		t.Error("no charts for empty results")
	}
}

func TestAnalyst_AnalysisFallback(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "aggregation", "confidence": 0.9}`).
		Respond("sql_query", `{"sql": "`+revenueSQL+`"}`).
		Respond("data_analysis", `{"summary": 42}`)
	a := newAnalyst(t, revenueTable(), caller)

	res := a.Execute(context.Background(), "revenue", agent.Prior{})
	if !res.Success {
		t.Fatalf("analysis failure is recovered locally, got %q", res.Error)
	}
	if !hasString(res.Insights, "Summary: Analysis failed due to processing error.") {
		t.Errorf("expected fallback summary, got %v", res.Insights)
	}
}

func TestAnalyst_PriorFindingsInPrompt(t *testing.T) {
	caller := structuredtest.New().
		Respond("query_classification", `{"query_type": "aggregation", "confidence": 0.9}`).
		Respond("sql_query", `{"sql": "`+revenueSQL+`"}`).
		Respond("data_analysis", `{"summary": "ok", "key_insights": []}`)
	a := newAnalyst(t, revenueTable(), caller)

	prior := agent.Prior{}.With(agent.Result{AgentName: "risk_agent", Success: true, Insights: []string{"Maersk is late"}})
	a.Execute(context.Background(), "revenue for late carriers", prior)

	for _, c := range caller.Calls() {
		if c.Schema == "sql_query" && !strings.Contains(c.Prompt, "[risk_agent] Maersk is late") {
			t.Errorf("expected prior findings in prompt, got %q", c.Prompt)
		}
	}
}

func TestAnalyst_Confidence(t *testing.T) {
	a := newAnalyst(t, storagetest.New(), structuredtest.New())
	got := a.Confidence("show revenue trend")
	want := 2*agent.HighKeywordWeight + agent.MediumKeywordWeight
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(nil, structuredtest.New(), DefaultConfig()); err == nil {
		t.Error("expected error without executor")
	}
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasPrefix(list []string, p string) bool {
	for _, v := range list {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}
