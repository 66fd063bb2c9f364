// Package agent defines the contract every analysis agent implements and the
// graph-driven workflow that executes it.
package agent

import (
	"context"
	"maps"
	"slices"
)

// Agent is a specialized analysis worker.
type Agent interface {
	Name() string
	Capabilities() []string
	// Confidence scores how well the agent can answer query, in [0,1].
	Confidence(query string) float64
	// Execute never panics and never returns an error; failures are reported in
	// the Result.
	Execute(ctx context.Context, query string, prior Prior) Result
}

// Result is the outcome of one agent invocation. Treat it as immutable.
type Result struct {
	AgentName       string             `json:"agent_name" yaml:"agent_name"`
	Success         bool               `json:"success" yaml:"success"`
	Insights        []string           `json:"insights" yaml:"insights"`
	Recommendations []string           `json:"recommendations" yaml:"recommendations"`
	Metrics         map[string]float64 `json:"metrics" yaml:"metrics"`
	Error           string             `json:"error,omitempty" yaml:"error,omitempty"`
	TimedOut        bool               `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(name, msg string) Result {
	return Result{AgentName: name, Success: false, Error: msg}
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	r.Insights = slices.Clone(r.Insights)
	r.Recommendations = slices.Clone(r.Recommendations)
	r.Metrics = maps.Clone(r.Metrics)
	return r
}

// Prior carries the results of earlier agents in a sequential chain.
// The zero value is an empty chain. With never modifies the receiver.
type Prior struct {
	results []Result
}

// With returns a new Prior that also contains r.
func (p Prior) With(r Result) Prior {
	out := make([]Result, len(p.results), len(p.results)+1)
	copy(out, p.results)
	return Prior{results: append(out, r.Clone())}
}

// Results returns the accumulated results in chain order.
func (p Prior) Results() []Result {
	out := make([]Result, len(p.results))
	for i, r := range p.results {
		out[i] = r.Clone()
	}
	return out
}

// Lookup returns the most recent result produced by name.
func (p Prior) Lookup(name string) (Result, bool) {
	for i := len(p.results) - 1; i >= 0; i-- {
		if p.results[i].AgentName == name {
			return p.results[i].Clone(), true
		}
	}
	return Result{}, false
}

// Version is the number of results accumulated so far.
func (p Prior) Version() int {
	return len(p.results)
}

// Message is one entry of an agent's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Node    string `json:"node,omitempty"`
}

// State is the shared part of every agent's mutable run state. Agent-specific
// states embed it.
type State struct {
	Query    string
	Prior    Prior
	Messages []Message
	Err      error
}

// BaseState gives the workflow access to the embedded State.
func (s *State) BaseState() *State { return s }

// Record appends a message attributed to node.
func (s *State) Record(node NodeName, role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Node: string(node)})
}

// StateHolder is implemented by pointers to structs embedding State.
type StateHolder interface {
	BaseState() *State
}
