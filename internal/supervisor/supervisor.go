// Package supervisor turns a free-text request into a report by planning,
// picking agents, running them and synthesizing their findings.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/metrics"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Phase is one step of a supervisor run.
type Phase string

const (
	PhaseParse      Phase = "parse"
	PhasePlan       Phase = "plan"
	PhaseSelect     Phase = "select"
	PhaseExecute    Phase = "execute"
	PhaseAggregate  Phase = "aggregate"
	PhaseSynthesize Phase = "synthesize"
)

// Config controls selection and execution.
type Config struct {
	AgentTimeout  time.Duration
	MaxAgents     int
	MinConfidence float64
	DefaultOrder  Order
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		AgentTimeout:  120 * time.Second,
		MaxAgents:     5,
		MinConfidence: 0.3,
		DefaultOrder:  OrderParallel,
	}
}

// Supervisor coordinates the registered agents for one request at a time or
// many concurrently; it holds no per-request state.
type Supervisor struct {
	registry *agent.Registry
	caller   structured.Caller
	cfg      Config
	graph    *agent.Graph[*run]
	logger   *logging.Logger

	// Now and NewID stamp reports. Tests replace them.
	Now   func() time.Time
	NewID func() string

	// Progress callbacks. Calls are serialized, so implementations need no
	// locking of their own.
	OnPhase         func(phase Phase, detail string)
	OnAgentStart    func(name string)
	OnAgentComplete func(name string, res agent.Result, d time.Duration)

	notifyMu sync.Mutex
}

// run is the state of one Execute call.
type run struct {
	report *Report
	order  Order
}

// New creates a supervisor over registry.
func New(registry *agent.Registry, caller structured.Caller, cfg Config) (*Supervisor, error) {
	if registry == nil {
		return nil, errors.New("supervisor: registry is required")
	}
	if caller == nil {
		return nil, errors.New("supervisor: structured caller is required")
	}
	def := DefaultConfig()
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = def.AgentTimeout
	}
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = def.MaxAgents
	}
	if !cfg.DefaultOrder.Valid() {
		cfg.DefaultOrder = def.DefaultOrder
	}

	s := &Supervisor{
		registry: registry,
		caller:   caller,
		cfg:      cfg,
		logger:   logging.New().WithComponent("supervisor"),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
	s.graph = agent.NewGraph[*run](agent.NodeName(PhaseParse)).
		AddNode(agent.NodeName(PhaseParse), s.parse).
		AddNode(agent.NodeName(PhasePlan), s.plan).
		AddNode(agent.NodeName(PhaseSelect), s.selectAgents).
		AddNode(agent.NodeName(PhaseExecute), s.execute).
		AddNode(agent.NodeName(PhaseAggregate), s.aggregate).
		AddNode(agent.NodeName(PhaseSynthesize), s.synthesize).
		AddEdge(agent.NodeName(PhaseParse), agent.NodeName(PhasePlan)).
		AddEdge(agent.NodeName(PhasePlan), agent.NodeName(PhaseSelect)).
		AddEdge(agent.NodeName(PhaseSelect), agent.NodeName(PhaseExecute)).
		AddEdge(agent.NodeName(PhaseExecute), agent.NodeName(PhaseAggregate)).
		AddEdge(agent.NodeName(PhaseAggregate), agent.NodeName(PhaseSynthesize)).
		AddEdge(agent.NodeName(PhaseSynthesize), agent.End)
	if err := s.graph.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config { return s.cfg }

// Execute answers query. The returned report is never nil: on a hard failure
// it carries a markdown error report and the error is a *Failure, or the
// context error when ctx ends between phases.
func (s *Supervisor) Execute(ctx context.Context, query string) (*Report, error) {
	start := time.Now()
	r := &run{report: &Report{
		ID:          s.NewID(),
		Query:       strings.TrimSpace(query),
		GeneratedAt: s.Now().UTC(),
		Results:     make(map[string]agent.Result),
		Durations:   make(map[string]time.Duration),
	}}

	ctx, span := startRunSpan(ctx, r.report)
	s.logger.Info("request_start", map[string]interface{}{
		"request_id": r.report.ID,
		"query":      r.report.Query,
	})

	_, err := s.graph.Run(ctx, r)
	outcome := "ok"
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			err = f
			outcome = string(f.Kind)
		} else {
			outcome = "canceled"
		}
		r.report.Error = err.Error()
		r.report.FinalReport = renderError(r.report, s.registry.Capabilities())
		s.logger.Error("request_failed", map[string]interface{}{
			"request_id": r.report.ID,
			"error":      err.Error(),
		})
	} else {
		s.logger.Info("request_complete", map[string]interface{}{
			"request_id":  r.report.ID,
			"succeeded":   len(r.report.Succeeded()),
			"failed":      len(r.report.Failed()),
			"timed_out":   len(r.report.TimedOut()),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
	endRunSpan(span, r.report, err)
	metrics.ObserveRequest(outcome, time.Since(start))
	return r.report, err
}

func (s *Supervisor) parse(ctx context.Context, r *run) error {
	if r.report.Query == "" {
		return &Failure{Kind: KindInvalidQuery, Err: errors.New("query is empty")}
	}
	if s.registry.Len() == 0 {
		return &Failure{Kind: KindSelection, Err: errors.New("no agents registered")}
	}
	s.phase(ctx, PhaseParse, r.report.Query)
	return nil
}

func (s *Supervisor) plan(ctx context.Context, r *run) error {
	plan, err := structured.Decode[TaskPlan](ctx, s.caller, planPrompt(r.report.Query, s.registry.Describe()), planSchema)
	if err != nil {
		return &Failure{Kind: KindPlanning, Err: err}
	}
	r.report.Plan = &plan
	s.phase(ctx, PhasePlan, fmt.Sprintf("%d steps", len(plan.Steps)))
	return nil
}

func (s *Supervisor) selectAgents(ctx context.Context, r *run) error {
	sel, callErr := structured.Decode[AgentSelection](ctx, s.caller,
		selectionPrompt(r.report.Query, *r.report.Plan, s.registry.Describe()), selectionSchema)
	if callErr != nil {
		s.logger.Warn("selection_call_failed", map[string]interface{}{
			"request_id": r.report.ID,
			"error":      callErr.Error(),
		})
		sel = AgentSelection{}
	}

	names, dropped := s.filter(r.report.ID, sel.Agents)
	r.report.Dropped = dropped

	if len(names) == 0 {
		best, score, ok := s.registry.FindBest(r.report.Query)
		if !ok || score < s.cfg.MinConfidence {
			err := fmt.Errorf("no registered agent can handle the request (best confidence %.2f, need %.2f)", score, s.cfg.MinConfidence)
			if callErr != nil {
				err = fmt.Errorf("%w; selection call: %w", err, callErr)
			}
			return &Failure{Kind: KindSelection, Err: err, Capabilities: s.registry.Capabilities()}
		}
		s.logger.Info("selection_fallback", map[string]interface{}{
			"request_id": r.report.ID,
			"agent":      best,
			"confidence": score,
		})
		names = []string{best}
		sel.Reasoning = fmt.Sprintf("Fell back to best-matching agent %s (confidence %.2f).", best, score)
	}

	order := Order(strings.ToLower(strings.TrimSpace(string(sel.ExecutionOrder))))
	if !order.Valid() {
		order = s.cfg.DefaultOrder
	}
	r.order = order
	r.report.Selection = &AgentSelection{Agents: names, Reasoning: sel.Reasoning, ExecutionOrder: order}
	s.phase(ctx, PhaseSelect, fmt.Sprintf("%s (%s)", strings.Join(names, ", "), order))
	return nil
}

// filter drops unknown and repeated names and enforces MaxAgents.
func (s *Supervisor) filter(requestID string, names []string) (valid, dropped []string) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if _, ok := s.registry.Get(n); !ok {
			s.logger.Warn("agent_dropped", map[string]interface{}{
				"request_id": requestID,
				"agent":      n,
				"reason":     "not registered",
			})
			dropped = append(dropped, n)
			continue
		}
		if len(valid) == s.cfg.MaxAgents {
			s.logger.Warn("agent_limit_reached", map[string]interface{}{
				"request_id": requestID,
				"agent":      n,
				"max_agents": s.cfg.MaxAgents,
			})
			continue
		}
		valid = append(valid, n)
	}
	return valid, dropped
}

func (s *Supervisor) execute(ctx context.Context, r *run) error {
	names := r.report.Selection.Agents
	var outs []outcome
	if r.order == OrderSequential {
		outs = s.runSequential(ctx, r.report.Query, names)
	} else {
		outs = s.runParallel(ctx, r.report.Query, names)
	}
	for i, name := range names {
		r.report.Results[name] = outs[i].res
		r.report.Durations[name] = outs[i].dur
	}
	r.report.Agents = names
	s.phase(ctx, PhaseExecute, fmt.Sprintf("%d succeeded, %d failed, %d timed out",
		len(r.report.Succeeded()), len(r.report.Failed()), len(r.report.TimedOut())))
	return nil
}

func (s *Supervisor) aggregate(ctx context.Context, r *run) error {
	r.report.Aggregate = collect(r.report.Agents, r.report.Results)
	s.phase(ctx, PhaseAggregate, fmt.Sprintf("%d insights, %d recommendations",
		len(r.report.Aggregate.Insights), len(r.report.Aggregate.Recommendations)))
	return nil
}

func (s *Supervisor) synthesize(ctx context.Context, r *run) error {
	if len(r.report.Succeeded()) == 0 {
		r.report.SummaryError = "no agent completed successfully"
	} else {
		sum, err := structured.Decode[ExecutiveSummary](ctx, s.caller,
			summaryPrompt(r.report.Query, r.report.Agents, r.report.Results), summarySchema)
		if err != nil {
			s.logger.Warn("synthesis_failed", map[string]interface{}{
				"request_id": r.report.ID,
				"error":      err.Error(),
			})
			r.report.SummaryError = err.Error()
		} else {
			r.report.Summary = &sum
		}
	}
	r.report.FinalReport = renderMarkdown(r.report)

	detail := "executive summary"
	if r.report.Summary == nil {
		detail = "raw findings: " + r.report.SummaryError
	}
	s.phase(ctx, PhaseSynthesize, detail)
	return nil
}

func (s *Supervisor) phase(ctx context.Context, p Phase, detail string) {
	markPhase(ctx, p)
	s.logger.Debug("phase_complete", map[string]interface{}{
		"phase":  string(p),
		"detail": detail,
	})
	if s.OnPhase == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.OnPhase(p, detail)
}

func (s *Supervisor) notifyStart(name string) {
	if s.OnAgentStart == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.OnAgentStart(name)
}

func (s *Supervisor) notifyComplete(name string, res agent.Result, d time.Duration) {
	if s.OnAgentComplete == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.OnAgentComplete(name, res.Clone(), d)
}
