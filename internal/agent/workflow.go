package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/metrics"
)

// DefaultGrace is how long Execute waits for a timed-out graph to unwind
// before giving up on its partial state.
const DefaultGrace = 200 * time.Millisecond

// Workflow runs a Graph under the Agent.Execute contract.
type Workflow[S StateHolder] struct {
	Name  string
	Graph *Graph[S]

	// NewState creates a fresh state for one invocation.
	NewState func(query string, prior Prior) S
	// Format turns a finished (possibly partial) state into a result. The
	// workflow fills in AgentName, Success, Error and TimedOut afterwards.
	Format func(state S) Result
	// AfterRun, when set, observes the final state of every run whose graph
	// finished. It runs outside the graph.
	AfterRun func(state S, res Result)

	Timeout time.Duration
	Grace   time.Duration

	logger *logging.Logger
}

// NewWorkflow validates graph and returns a workflow for it.
func NewWorkflow[S StateHolder](name string, graph *Graph[S], newState func(string, Prior) S, format func(S) Result) (*Workflow[S], error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	if newState == nil || format == nil {
		return nil, fmt.Errorf("agent %s: state constructor and formatter are required", name)
	}
	return &Workflow[S]{
		Name:     name,
		Graph:    graph,
		NewState: newState,
		Format:   format,
		Grace:    DefaultGrace,
		logger:   logging.New().WithComponent(name),
	}, nil
}

type runOutcome struct {
	path []NodeName
	err  error
}

// Execute runs the graph once. It never panics.
func (w *Workflow[S]) Execute(ctx context.Context, query string, prior Prior) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Failed(w.Name, fmt.Sprintf("panic: %v", r))
		}
		w.observe(res, time.Since(start))
	}()

	if strings.TrimSpace(query) == "" {
		return Failed(w.Name, "empty query")
	}

	ctx, span := startAgentSpan(ctx, w.Name, query)
	defer func() { endAgentSpan(span, res) }()

	logger := w.log()
	logger.Info("execute_start", map[string]interface{}{
		"query":       query,
		"prior_count": prior.Version(),
	})

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if w.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	state := w.NewState(query, prior)
	base := state.BaseState()
	base.Query = query
	base.Prior = prior

	done := make(chan runOutcome, 1)
	go func() {
		var out runOutcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("panic: %v", r)
			}
			done <- out
		}()
		out.path, out.err = w.Graph.Run(runCtx, state)
	}()

	var out runOutcome
	finished := false
	select {
	case out = <-done:
		finished = true
	case <-runCtx.Done():
		grace := w.Grace
		if grace <= 0 {
			grace = DefaultGrace
		}
		select {
		case out = <-done:
			finished = true
		case <-time.After(grace):
		}
	}

	if !finished {
		// The graph is still running; its state cannot be read safely.
		res = Failed(w.Name, "")
	} else {
		res = w.Format(state)
		res.AgentName = w.Name
		res.Success = true
		res.Error = ""
		if out.err != nil && base.Err == nil {
			base.Err = out.err
		}
		if base.Err != nil {
			res.Success = false
			res.Error = base.Err.Error()
		}
	}

	if !finished || (out.err != nil && runCtx.Err() != nil) {
		res.Success = false
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			res.Error = "timed out"
			if w.Timeout > 0 {
				res.Error = fmt.Sprintf("timed out after %s", w.Timeout)
			}
		} else {
			res.Error = "canceled: " + context.Cause(runCtx).Error()
		}
	}

	if finished && w.AfterRun != nil {
		w.AfterRun(state, res.Clone())
	}

	logger.Info("execute_complete", map[string]interface{}{
		"success":     res.Success,
		"timed_out":   res.TimedOut,
		"duration_ms": time.Since(start).Milliseconds(),
		"path":        pathString(out.path),
	})
	return res
}

func (w *Workflow[S]) log() *logging.Logger {
	if w.logger == nil {
		return logging.New().WithComponent(w.Name)
	}
	return w.logger
}

func (w *Workflow[S]) observe(res Result, d time.Duration) {
	status := metrics.StatusSuccess
	switch {
	case res.TimedOut:
		status = metrics.StatusTimeout
	case !res.Success:
		status = metrics.StatusFailure
	}
	metrics.ObserveAgent(w.Name, status, d)
}

func pathString(path []NodeName) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = string(p)
	}
	return strings.Join(parts, " -> ")
}
