package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/metrics"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Name is the registry name of the risk agent.
const Name = "risk_agent"

const (
	nodeGather  agent.NodeName = "gather"
	nodeAssess  agent.NodeName = "assess"
	nodeAlerts  agent.NodeName = "alerts"
	nodeNarrate agent.NodeName = "narrate"
)

var keywords = agent.KeywordScorer{
	High:   []string{"risk", "alert", "critical", "issue", "problem", "delay", "late"},
	Medium: []string{"delivery", "inventory", "stockout", "shortage", "quality", "defect", "margin"},
}

// Config configures the risk agent.
type Config struct {
	Weights       Weights
	Levels        Levels
	Rules         []Rule
	WindowDays    int
	GatherTimeout time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns the default weights, levels and rules.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		Levels:        DefaultLevels(),
		WindowDays:    30,
		GatherTimeout: 30 * time.Second,
		Timeout:       120 * time.Second,
	}
}

type state struct {
	agent.State

	Since        time.Time
	Scores       map[Dimension]Score
	Observations Observations
	Assessment   Assessment
	Assessed     bool
	Alerts       []Alert
	Narrative    Narrative
	Narrated     bool
}

// Agent assesses supply-chain risk across five dimensions.
type Agent struct {
	wf        *agent.Workflow[*state]
	engine    *Engine
	generator *Generator
	exec      storage.Executor
	caller    structured.Caller
	cfg       Config
	logger    *logging.Logger

	// Now supplies the clock for the data window and alert timestamps.
	Now func() time.Time
	// OnAlerts receives the alerts of each finished run that produced any.
	OnAlerts func([]Alert)
}

// New builds the risk agent. caller may be nil, in which case narratives are
// derived from alerts.
func New(exec storage.Executor, caller structured.Caller, cfg Config) (*Agent, error) {
	engine, err := NewEngine(cfg.Weights, cfg.Levels)
	if err != nil {
		return nil, err
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}

	a := &Agent{
		engine:    engine,
		generator: NewGenerator(cfg.Rules),
		exec:      exec,
		caller:    caller,
		cfg:       cfg,
		logger:    logging.New().WithComponent(Name),
		Now:       time.Now,
	}

	g := agent.NewGraph[*state](nodeGather).
		AddNode(nodeGather, a.gather).
		AddNode(nodeAssess, a.assess).
		AddNode(nodeAlerts, a.alerts).
		AddNode(nodeNarrate, a.narrate).
		AddEdge(nodeGather, nodeAssess).
		AddEdge(nodeAssess, nodeAlerts).
		AddEdge(nodeAlerts, nodeNarrate).
		AddEdge(nodeNarrate, agent.End)

	a.wf, err = agent.NewWorkflow(Name, g, a.newState, a.format)
	if err != nil {
		return nil, err
	}
	a.wf.Timeout = cfg.Timeout
	a.wf.AfterRun = a.afterRun
	return a, nil
}

// Engine returns the scoring engine.
func (a *Agent) Engine() *Engine { return a.engine }

func (a *Agent) Name() string { return Name }

func (a *Agent) Capabilities() []string {
	return []string{
		"Delivery risk assessment (late shipments, carrier issues)",
		"Inventory risk assessment (stockouts, overstock)",
		"Quality risk assessment (returns, defects)",
		"Financial risk assessment (margins, discounts)",
		"Multi-dimensional risk scoring",
		"Alert generation and prioritization",
	}
}

func (a *Agent) Confidence(query string) float64 {
	return keywords.Score(query)
}

func (a *Agent) Execute(ctx context.Context, query string, prior agent.Prior) agent.Result {
	return a.wf.Execute(ctx, query, prior)
}

func (a *Agent) newState(query string, prior agent.Prior) *state {
	return &state{Since: a.Now().AddDate(0, 0, -a.cfg.WindowDays)}
}

func (a *Agent) gather(ctx context.Context, s *state) error {
	s.Scores, s.Observations = Gather(ctx, a.exec, s.Since, a.cfg.GatherTimeout)
	for _, d := range []Dimension{Delivery, Inventory, Quality, Financial} {
		if sc := s.Scores[d]; sc.Unavailable() {
			a.logger.Warn("gather_failed", map[string]interface{}{
				"dimension": string(d),
				"timed_out": sc.TimedOut,
				"error":     sc.Error,
			})
		}
	}
	return ctx.Err()
}

func (a *Agent) assess(ctx context.Context, s *state) error {
	scores := make([]Score, 0, len(Dimensions))
	for _, d := range []Dimension{Delivery, Inventory, Quality, Financial} {
		scores = append(scores, s.Scores[d])
	}
	scores = append(scores, a.disruption(s))

	s.Assessment = a.engine.Assess(scores)
	s.Assessed = true
	s.Record(nodeAssess, "assistant", fmt.Sprintf("overall %.2f %s", s.Assessment.OverallScore, s.Assessment.OverallLevel))
	return nil
}

func (a *Agent) disruption(s *state) Score {
	obs := s.Observations
	if obs.Delivery == nil || obs.Inventory == nil {
		return placeholder(Disruption, "requires delivery and inventory data", false)
	}
	return DisruptionScore(*obs.Delivery, s.Scores[Delivery].Confidence,
		*obs.Inventory, s.Scores[Inventory].Confidence)
}

func (a *Agent) alerts(ctx context.Context, s *state) error {
	s.Alerts = a.generator.Generate(s.Assessment, s.Observations, a.Now())
	return nil
}

func (a *Agent) narrate(ctx context.Context, s *state) error {
	s.Narrated = true
	if a.caller == nil {
		s.Narrative = fallbackNarrative(s.Assessment, s.Alerts)
		return nil
	}

	prompt := narrativePrompt(s.Assessment, a.engine.Weights(), s.Alerts)
	n, err := structured.Decode[Narrative](ctx, a.caller, prompt, narrativeSchema)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("narrative_fallback", map[string]interface{}{"error": err.Error()})
		s.Narrative = fallbackNarrative(s.Assessment, s.Alerts)
		return nil
	}
	s.Narrative = n
	s.Record(nodeNarrate, "assistant", fmt.Sprintf("%d top risks", len(n.TopRisks)))
	return nil
}

func (a *Agent) format(s *state) agent.Result {
	res := agent.Result{Metrics: map[string]float64{}}
	if !s.Assessed {
		return res
	}

	as := s.Assessment
	res.Insights = append(res.Insights,
		fmt.Sprintf("Overall risk: %s (score %.2f)", as.OverallLevel, as.OverallScore))
	for _, sc := range as.Scores {
		res.Metrics[string(sc.Dimension)+"_risk"] = sc.Score
		if sc.Unavailable() {
			res.Insights = append(res.Insights,
				fmt.Sprintf("%s risk unavailable: %s", sc.Dimension, sc.Error))
			continue
		}
		line := fmt.Sprintf("%s risk: %s (%.2f, confidence %.2f)", sc.Dimension, sc.Level, sc.Score, sc.Confidence)
		if len(sc.ContributingFactors) > 0 {
			line += ": " + sc.ContributingFactors[0]
		}
		res.Insights = append(res.Insights, line)
	}

	critical := 0
	for _, al := range s.Alerts {
		if al.Severity == SeverityCritical {
			critical++
		}
		res.Insights = append(res.Insights, fmt.Sprintf("[%s] %s: %s", al.Severity, al.Title, strings.Join(al.AffectedEntities, ", ")))
	}
	if s.Narrated {
		for _, r := range s.Narrative.TopRisks {
			res.Insights = append(res.Insights, "Top risk: "+r)
		}
		res.Recommendations = append(res.Recommendations, s.Narrative.RecommendedActions...)
		for _, m := range s.Narrative.MonitoringItems {
			res.Recommendations = append(res.Recommendations, "Monitor: "+m)
		}
	}

	res.Metrics["overall_risk_score"] = as.OverallScore
	res.Metrics["overall_level"] = float64(as.OverallLevel.Ordinal())
	res.Metrics["alerts"] = float64(len(s.Alerts))
	res.Metrics["critical_alerts"] = float64(critical)
	return res
}

func (a *Agent) afterRun(s *state, res agent.Result) {
	if !s.Assessed {
		return
	}
	metrics.SetRiskScore(s.Assessment.OverallScore)
	for _, al := range s.Alerts {
		metrics.CountAlert(string(al.Severity))
	}
	if len(s.Alerts) > 0 && a.OnAlerts != nil {
		a.OnAlerts(append([]Alert(nil), s.Alerts...))
	}
}
