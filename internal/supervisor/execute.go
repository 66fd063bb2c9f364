package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/omnisupply/internal/agent"
)

type outcome struct {
	res agent.Result
	dur time.Duration
}

// runParallel starts every agent at once and joins the results by index.
func (s *Supervisor) runParallel(ctx context.Context, query string, names []string) []outcome {
	out := make([]outcome, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			out[idx] = s.invoke(ctx, name, query, agent.Prior{})
		}(i, name)
	}
	wg.Wait()
	return out
}

// runSequential runs agents in order, handing each every earlier result.
func (s *Supervisor) runSequential(ctx context.Context, query string, names []string) []outcome {
	out := make([]outcome, len(names))
	var prior agent.Prior
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			out[i] = outcome{res: agent.Failed(name, "canceled: "+err.Error())}
			continue
		}
		out[i] = s.invoke(ctx, name, query, prior)
		prior = prior.With(out[i].res)
	}
	return out
}

// invoke runs one agent under AgentTimeout. At the deadline the agent gets
// agent.DefaultGrace to return what it has; after that the supervisor stops
// waiting and an agent that ignores its context keeps running in the
// background with its late result discarded.
func (s *Supervisor) invoke(ctx context.Context, name, query string, prior agent.Prior) outcome {
	a, ok := s.registry.Get(name)
	if !ok {
		return outcome{res: agent.Failed(name, "agent not registered")}
	}

	s.notifyStart(name)
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, s.cfg.AgentTimeout)
	defer cancel()
	actx, span := startDispatchSpan(actx, name, prior.Version())

	done := make(chan agent.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- agent.Failed(name, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- a.Execute(actx, query, prior)
	}()

	var res agent.Result
	select {
	case res = <-done:
	case <-actx.Done():
		grace := time.NewTimer(agent.DefaultGrace)
		select {
		case res = <-done:
		case <-grace.C:
			res = s.abandoned(ctx, name)
		}
		grace.Stop()
	}
	res = res.Clone()
	res.AgentName = name

	d := time.Since(start)
	endDispatchSpan(span, res)
	s.logger.Info("agent_complete", map[string]interface{}{
		"agent":       name,
		"success":     res.Success,
		"timed_out":   res.TimedOut,
		"duration_ms": d.Milliseconds(),
	})
	s.notifyComplete(name, res, d)
	return outcome{res: res, dur: d}
}

func (s *Supervisor) abandoned(parent context.Context, name string) agent.Result {
	if err := parent.Err(); err != nil {
		return agent.Failed(name, "canceled: "+err.Error())
	}
	s.logger.Warn("agent_timeout", map[string]interface{}{
		"agent":   name,
		"timeout": s.cfg.AgentTimeout.String(),
	})
	res := agent.Failed(name, fmt.Sprintf("timed out after %s", s.cfg.AgentTimeout))
	res.TimedOut = true
	return res
}
