package supervisor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/structured"
	"github.com/vinayprograms/omnisupply/internal/structured/structuredtest"
)

type stubAgent struct {
	name      string
	conf      float64
	delay     time.Duration
	ignoreCtx bool
	fail      string
	panics    bool

	mu     sync.Mutex
	priors []agent.Prior
}

func (s *stubAgent) Name() string                { return s.name }
func (s *stubAgent) Capabilities() []string      { return []string{s.name + " work"} }
func (s *stubAgent) Confidence(q string) float64 { return s.conf }

func (s *stubAgent) Execute(ctx context.Context, q string, prior agent.Prior) agent.Result {
	s.mu.Lock()
	s.priors = append(s.priors, prior)
	s.mu.Unlock()

	if s.panics {
		panic("stub exploded")
	}
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return agent.Failed(s.name, "context done")
			}
		}
	}
	if s.fail != "" {
		return agent.Failed(s.name, s.fail)
	}
	return agent.Result{
		AgentName:       s.name,
		Success:         true,
		Insights:        []string{s.name + " insight"},
		Recommendations: []string{s.name + " action"},
		Metrics:         map[string]float64{"score": 1, "ratio": 0.25},
	}
}

func (s *stubAgent) seen() []agent.Prior {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Prior(nil), s.priors...)
}

const (
	planJSON    = `{"steps": ["Check supply risk", "Summarize"], "agents_needed": ["risk_agent"], "expected_output": "risk report"}`
	summaryJSON = `{"summary": "Supply chain is stable.", "key_insights": ["Delivery is on track"], "recommendations": ["Keep monitoring"], "kpis": [{"name": "Overall risk", "value": "0.46"}]}`
)

func selectionJSON(order string, names ...string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = `"` + n + `"`
	}
	return `{"agents": [` + strings.Join(quoted, ", ") + `], "reasoning": "test", "execution_order": "` + order + `"}`
}

func newTestSupervisor(t *testing.T, caller structured.Caller, cfg Config, agents ...agent.Agent) *Supervisor {
	t.Helper()
	reg := agent.NewRegistry()
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	s, err := New(reg, caller, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	s.NewID = func() string { return "req-1" }
	return s
}

func happyCaller(selection string) *structuredtest.Caller {
	return structuredtest.New().
		Respond("task_plan", planJSON).
		Respond("agent_selection", selection).
		Respond("executive_summary", summaryJSON)
}

func failureKind(t *testing.T, err error) Kind {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	return f.Kind
}

func TestExecute_ParallelTimeoutDoesNotStallOthers(t *testing.T) {
	fast1 := &stubAgent{name: "risk_agent", conf: 0.5}
	fast2 := &stubAgent{name: "finance_agent", conf: 0.5}
	slow := &stubAgent{name: "data_analyst", conf: 0.5, delay: 2 * time.Second, ignoreCtx: true}

	cfg := DefaultConfig()
	cfg.AgentTimeout = 100 * time.Millisecond
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "risk_agent", "data_analyst", "finance_agent")), cfg, fast1, fast2, slow)

	start := time.Now()
	rep, err := s.Execute(context.Background(), "Give me a full supply chain review")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("expected the supervisor to stop waiting at the deadline, took %s", elapsed)
	}

	res := rep.Results["data_analyst"]
	if res.Success || !res.TimedOut {
		t.Errorf("expected data_analyst timed out, got %+v", res)
	}
	if !strings.Contains(res.Error, "timed out after 100ms") {
		t.Errorf("unexpected error text %q", res.Error)
	}
	if got := rep.Succeeded(); !reflect.DeepEqual(got, []string{"risk_agent", "finance_agent"}) {
		t.Errorf("succeeded = %v", got)
	}
	if got := rep.TimedOut(); !reflect.DeepEqual(got, []string{"data_analyst"}) {
		t.Errorf("timed out = %v", got)
	}
	if rep.Summary == nil {
		t.Fatalf("expected a synthesized summary, got error %q", rep.SummaryError)
	}
	if !strings.Contains(rep.FinalReport, "- **Timed out:** data_analyst") {
		t.Errorf("agent status missing from report:\n%s", rep.FinalReport)
	}
}

func TestExecute_DropsUnregisteredAgents(t *testing.T) {
	risk := &stubAgent{name: "risk_agent", conf: 0.8}
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "risk_agent", "forecast_agent")), DefaultConfig(), risk)

	rep, err := s.Execute(context.Background(), "What is our supplier risk?")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !reflect.DeepEqual(rep.Dropped, []string{"forecast_agent"}) {
		t.Errorf("dropped = %v", rep.Dropped)
	}
	if _, ok := rep.Results["forecast_agent"]; ok {
		t.Error("unregistered agent must not appear in results")
	}
	if len(rep.Results) != 1 || !rep.Results["risk_agent"].Success {
		t.Errorf("unexpected results %+v", rep.Results)
	}
	if !reflect.DeepEqual(rep.Selection.Agents, []string{"risk_agent"}) {
		t.Errorf("selection = %v", rep.Selection.Agents)
	}
}

func TestExecute_FailuresStayVisible(t *testing.T) {
	ok := &stubAgent{name: "risk_agent"}
	broken := &stubAgent{name: "finance_agent", fail: "P&L generation failed: no ledger"}
	crashing := &stubAgent{name: "data_analyst", panics: true}
	caller := happyCaller(selectionJSON("parallel", "risk_agent", "finance_agent", "data_analyst"))
	s := newTestSupervisor(t, caller, DefaultConfig(), ok, broken, crashing)

	rep, err := s.Execute(context.Background(), "Review finances and risk")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rep.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(rep.Results))
	}
	if r := rep.Results["finance_agent"]; r.Success || r.Error != "P&L generation failed: no ledger" {
		t.Errorf("finance_agent result %+v", r)
	}
	if r := rep.Results["data_analyst"]; r.Success || !strings.Contains(r.Error, "panic: stub exploded") || r.AgentName != "data_analyst" {
		t.Errorf("data_analyst result %+v", r)
	}
	if !rep.Results["risk_agent"].Success {
		t.Error("healthy agent must be unaffected")
	}
	if got := rep.Failed(); !reflect.DeepEqual(got, []string{"finance_agent", "data_analyst"}) {
		t.Errorf("failed = %v", got)
	}

	calls := caller.Calls()
	last := calls[len(calls)-1]
	if last.Schema != "executive_summary" || !strings.Contains(last.Prompt, "Error: P&L generation failed") {
		t.Errorf("synthesis prompt should mention the failure, got %q", last.Prompt)
	}
}

func TestExecute_SequentialPassesPrior(t *testing.T) {
	a := &stubAgent{name: "data_analyst"}
	b := &stubAgent{name: "finance_agent", fail: "boom"}
	c := &stubAgent{name: "risk_agent"}
	s := newTestSupervisor(t, happyCaller(selectionJSON("sequential", "data_analyst", "finance_agent", "risk_agent")), DefaultConfig(), a, b, c)

	rep, err := s.Execute(context.Background(), "Analyze, then assess risk")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rep.Selection.ExecutionOrder != OrderSequential {
		t.Fatalf("order = %s", rep.Selection.ExecutionOrder)
	}
	if v := a.seen()[0].Version(); v != 0 {
		t.Errorf("first agent should see no prior, got %d", v)
	}
	if v := b.seen()[0].Version(); v != 1 {
		t.Errorf("second agent should see 1 prior result, got %d", v)
	}
	prior := c.seen()[0]
	if prior.Version() != 2 {
		t.Fatalf("third agent should see 2 prior results, got %d", prior.Version())
	}
	failed, ok := prior.Lookup("finance_agent")
	if !ok || failed.Success || failed.Error != "boom" {
		t.Errorf("failed result should be passed along, got %+v ok=%v", failed, ok)
	}
	if !reflect.DeepEqual(rep.Agents, []string{"data_analyst", "finance_agent", "risk_agent"}) {
		t.Errorf("agents = %v", rep.Agents)
	}
}

func TestExecute_SequentialStopsOnCancel(t *testing.T) {
	a := &stubAgent{name: "data_analyst", delay: time.Second}
	b := &stubAgent{name: "risk_agent"}
	s := newTestSupervisor(t, happyCaller(selectionJSON("sequential", "data_analyst", "risk_agent")), DefaultConfig(), a, b)

	ctx, cancel := context.WithCancel(context.Background())
	s.OnAgentStart = func(name string) {
		if name == "data_analyst" {
			cancel()
		}
	}
	rep, err := s.Execute(ctx, "Analyze, then assess risk")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(b.seen()) != 0 {
		t.Error("later agents must not start after cancellation")
	}
	if r := rep.Results["risk_agent"]; r.Success || !strings.HasPrefix(r.Error, "canceled") {
		t.Errorf("risk_agent result %+v", r)
	}
	if !strings.Contains(rep.FinalReport, "## Error") {
		t.Errorf("expected error report, got:\n%s", rep.FinalReport)
	}
}

func TestExecute_PlanningFailure(t *testing.T) {
	risk := &stubAgent{name: "risk_agent", conf: 0.9}
	caller := structuredtest.New().Fail("task_plan", errors.New("model unavailable"))
	s := newTestSupervisor(t, caller, DefaultConfig(), risk)

	rep, err := s.Execute(context.Background(), "What is our risk?")
	if kind := failureKind(t, err); kind != KindPlanning {
		t.Fatalf("kind = %s", kind)
	}
	var ce *structured.CallError
	if !errors.As(err, &ce) || ce.Kind != structured.KindTransport {
		t.Errorf("expected wrapped transport CallError, got %v", err)
	}
	if len(risk.seen()) != 0 {
		t.Error("no agent may run when planning fails")
	}
	if caller.CallsFor("agent_selection") != 0 {
		t.Error("selection must not be attempted")
	}
	if rep == nil || !strings.Contains(rep.FinalReport, "## Error") || !strings.Contains(rep.FinalReport, "planning failed") {
		t.Errorf("expected error report, got %+v", rep)
	}
}

func TestExecute_EmptyQuery(t *testing.T) {
	caller := happyCaller(selectionJSON("parallel", "risk_agent"))
	s := newTestSupervisor(t, caller, DefaultConfig(), &stubAgent{name: "risk_agent"})

	rep, err := s.Execute(context.Background(), "   ")
	if kind := failureKind(t, err); kind != KindInvalidQuery {
		t.Fatalf("kind = %s", kind)
	}
	if len(caller.Calls()) != 0 {
		t.Error("no model call expected for an empty query")
	}
	if rep.Error == "" {
		t.Error("report should carry the error")
	}
}

func TestExecute_SelectionFallsBackToBestMatch(t *testing.T) {
	tests := []struct {
		name   string
		caller *structuredtest.Caller
	}{
		{"hallucinated names", happyCaller(selectionJSON("parallel", "forecast_agent"))},
		{"selection call fails", structuredtest.New().
			Respond("task_plan", planJSON).
			Fail("agent_selection", errors.New("rate limited")).
			Respond("executive_summary", summaryJSON)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk := &stubAgent{name: "risk_agent", conf: 0.6}
			other := &stubAgent{name: "finance_agent", conf: 0.1}
			s := newTestSupervisor(t, tt.caller, DefaultConfig(), other, risk)

			rep, err := s.Execute(context.Background(), "Which suppliers are risky?")
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !reflect.DeepEqual(rep.Selection.Agents, []string{"risk_agent"}) {
				t.Errorf("selection = %v", rep.Selection.Agents)
			}
			if !strings.Contains(rep.Selection.Reasoning, "risk_agent") {
				t.Errorf("reasoning should name the fallback, got %q", rep.Selection.Reasoning)
			}
			if len(other.seen()) != 0 {
				t.Error("low-confidence agent must not run")
			}
		})
	}
}

func TestExecute_SelectionFailureBelowFloor(t *testing.T) {
	a := &stubAgent{name: "risk_agent", conf: 0.1}
	b := &stubAgent{name: "finance_agent", conf: 0.2}
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "weather_agent")), DefaultConfig(), a, b)

	rep, err := s.Execute(context.Background(), "What's the weather in Lisbon?")
	if kind := failureKind(t, err); kind != KindSelection {
		t.Fatalf("kind = %s", kind)
	}
	var f *Failure
	errors.As(err, &f)
	if len(f.Capabilities) != 2 {
		t.Errorf("expected capabilities of both agents, got %v", f.Capabilities)
	}
	if !strings.Contains(rep.FinalReport, "## Available Agents") || !strings.Contains(rep.FinalReport, "- **risk_agent:** risk_agent work") {
		t.Errorf("error report should list capabilities:\n%s", rep.FinalReport)
	}
	if len(rep.Results) != 0 {
		t.Error("no agent may run")
	}
}

func TestExecute_SynthesisFallback(t *testing.T) {
	caller := structuredtest.New().
		Respond("task_plan", planJSON).
		Respond("agent_selection", selectionJSON("parallel", "risk_agent", "finance_agent")).
		Fail("executive_summary", errors.New("context window exceeded"))
	s := newTestSupervisor(t, caller, DefaultConfig(), &stubAgent{name: "risk_agent"}, &stubAgent{name: "finance_agent"})

	rep, err := s.Execute(context.Background(), "Full review")
	if err != nil {
		t.Fatalf("synthesis failure must not fail the request: %v", err)
	}
	if rep.Summary != nil || !strings.Contains(rep.SummaryError, "context window exceeded") {
		t.Errorf("summary=%v error=%q", rep.Summary, rep.SummaryError)
	}
	for _, want := range []string{
		"Executive summary unavailable",
		"1. **[risk_agent]** risk_agent insight",
		"2. **[finance_agent]** finance_agent insight",
		"**[finance_agent]** finance_agent action",
		"## Detailed Results by Agent",
	} {
		if !strings.Contains(rep.FinalReport, want) {
			t.Errorf("report missing %q:\n%s", want, rep.FinalReport)
		}
	}
}

func TestExecute_NoSuccessSkipsSynthesis(t *testing.T) {
	caller := happyCaller(selectionJSON("parallel", "risk_agent"))
	s := newTestSupervisor(t, caller, DefaultConfig(), &stubAgent{name: "risk_agent", fail: "no data"})

	rep, err := s.Execute(context.Background(), "Risk please")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if caller.CallsFor("executive_summary") != 0 {
		t.Error("synthesis should be skipped when nothing succeeded")
	}
	if rep.SummaryError == "" || rep.Summary != nil {
		t.Errorf("summary=%v error=%q", rep.Summary, rep.SummaryError)
	}
}

func TestExecute_SummaryReport(t *testing.T) {
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "risk_agent")), DefaultConfig(), &stubAgent{name: "risk_agent"})

	rep, err := s.Execute(context.Background(), "What is our risk?")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{
		"# OmniSupply Intelligence Report",
		"**Query:** What is our risk?",
		"**Generated:** 2026-06-01 12:00:00 UTC",
		"## Executive Summary\n\nSupply chain is stable.",
		"1. Delivery is on track",
		"1. Keep monitoring",
		"- **Overall risk:** 0.46",
		"- **Succeeded:** risk_agent",
		"### risk_agent",
		"- ratio: 0.25",
		"- score: 1",
	} {
		if !strings.Contains(rep.FinalReport, want) {
			t.Errorf("report missing %q:\n%s", want, rep.FinalReport)
		}
	}
	if rep.ID != "req-1" {
		t.Errorf("id = %q", rep.ID)
	}
}

func TestExecute_MaxAgentsAndDedupe(t *testing.T) {
	a := &stubAgent{name: "a"}
	b := &stubAgent{name: "b"}
	c := &stubAgent{name: "c"}
	cfg := DefaultConfig()
	cfg.MaxAgents = 2
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "a", "a", "b", "c")), cfg, a, b, c)

	rep, err := s.Execute(context.Background(), "everything")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !reflect.DeepEqual(rep.Agents, []string{"a", "b"}) {
		t.Errorf("agents = %v", rep.Agents)
	}
	if n := len(a.seen()); n != 1 {
		t.Errorf("duplicate selection ran %d times", n)
	}
	if len(c.seen()) != 0 {
		t.Error("agent beyond the limit must not run")
	}
}

func TestExecute_UnknownOrderUsesDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultOrder = OrderSequential
	s := newTestSupervisor(t, happyCaller(selectionJSON("whenever", "risk_agent")), cfg, &stubAgent{name: "risk_agent"})

	rep, err := s.Execute(context.Background(), "risk")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rep.Selection.ExecutionOrder != OrderSequential {
		t.Errorf("order = %s", rep.Selection.ExecutionOrder)
	}
}

func TestExecute_Idempotent(t *testing.T) {
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "risk_agent", "finance_agent")), DefaultConfig(),
		&stubAgent{name: "risk_agent"}, &stubAgent{name: "finance_agent"})

	first, err := s.Execute(context.Background(), "Full review")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := s.Execute(context.Background(), "Full review")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first.Results, second.Results) {
		t.Error("results differ between identical runs")
	}
	if !reflect.DeepEqual(first.Aggregate, second.Aggregate) {
		t.Error("aggregate differs between identical runs")
	}
	if !reflect.DeepEqual(first.Selection, second.Selection) || !reflect.DeepEqual(first.Summary, second.Summary) {
		t.Error("selection or summary differs between identical runs")
	}
}

func TestExecute_Callbacks(t *testing.T) {
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "risk_agent", "finance_agent")), DefaultConfig(),
		&stubAgent{name: "risk_agent"}, &stubAgent{name: "finance_agent"})

	var phases []Phase
	started := map[string]int{}
	completed := map[string]bool{}
	s.OnPhase = func(p Phase, detail string) { phases = append(phases, p) }
	s.OnAgentStart = func(name string) { started[name]++ }
	s.OnAgentComplete = func(name string, res agent.Result, d time.Duration) { completed[name] = res.Success }

	if _, err := s.Execute(context.Background(), "Full review"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []Phase{PhaseParse, PhasePlan, PhaseSelect, PhaseExecute, PhaseAggregate, PhaseSynthesize}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases = %v", phases)
	}
	if started["risk_agent"] != 1 || started["finance_agent"] != 1 {
		t.Errorf("started = %v", started)
	}
	if !completed["risk_agent"] || !completed["finance_agent"] {
		t.Errorf("completed = %v", completed)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(nil, structuredtest.New(), DefaultConfig()); err == nil {
		t.Error("expected error without registry")
	}
	if _, err := New(agent.NewRegistry(), nil, DefaultConfig()); err == nil {
		t.Error("expected error without caller")
	}
	s, err := New(agent.NewRegistry(), structuredtest.New(), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, def := s.Config(), DefaultConfig()
	if cfg.AgentTimeout != def.AgentTimeout || cfg.MaxAgents != def.MaxAgents || cfg.DefaultOrder != def.DefaultOrder {
		t.Errorf("zero config should take defaults, got %+v", cfg)
	}
}

type partialState struct {
	agent.State
	Insights []string
}

// graphAgent adapts an agent.Workflow to the Agent interface.
type graphAgent struct {
	wf *agent.Workflow[*partialState]
}

func (g *graphAgent) Name() string                { return g.wf.Name }
func (g *graphAgent) Capabilities() []string      { return []string{"staged work"} }
func (g *graphAgent) Confidence(q string) float64 { return 0.6 }
func (g *graphAgent) Execute(ctx context.Context, q string, prior agent.Prior) agent.Result {
	return g.wf.Execute(ctx, q, prior)
}

func TestExecute_TimeoutKeepsWorkflowPartialResult(t *testing.T) {
	g := agent.NewGraph[*partialState]("collect").
		AddNode("collect", func(ctx context.Context, s *partialState) error {
			s.Insights = append(s.Insights, "collected before the deadline")
			return nil
		}).
		AddNode("stall", func(ctx context.Context, s *partialState) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		AddEdge("collect", "stall").AddEdge("stall", agent.End)
	wf, err := agent.NewWorkflow("report_agent", g,
		func(string, agent.Prior) *partialState { return &partialState{} },
		func(s *partialState) agent.Result {
			return agent.Result{Insights: append([]string(nil), s.Insights...)}
		})
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	wf.Timeout = 100 * time.Millisecond

	cfg := DefaultConfig()
	cfg.AgentTimeout = 100 * time.Millisecond
	s := newTestSupervisor(t, happyCaller(selectionJSON("parallel", "report_agent")), cfg, &graphAgent{wf: wf})

	rep, err := s.Execute(context.Background(), "Prepare the weekly report")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res := rep.Results["report_agent"]
	if res.Success || !res.TimedOut {
		t.Errorf("expected a timed-out result, got %+v", res)
	}
	if len(res.Insights) != 1 || res.Insights[0] != "collected before the deadline" {
		t.Errorf("partial insights lost: %+v", res)
	}
}
