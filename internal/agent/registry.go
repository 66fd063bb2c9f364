package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrDuplicateAgent is returned when an agent name is registered twice.
var ErrDuplicateAgent = errors.New("agent already registered")

// Registry maps agent names to agents. It is filled at startup and read
// concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds a.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return errors.New("nil agent")
	}
	name := a.Name()
	if strings.TrimSpace(name) == "" {
		return errors.New("agent name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
	}
	r.agents[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// FindBest returns the agent with the highest confidence for query. Ties go to
// the agent registered first. ok is false only when the registry is empty.
func (r *Registry) FindBest(query string) (name string, score float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	score = -1
	for _, n := range r.order {
		if c := r.agents[n].Confidence(query); c > score {
			name, score = n, c
		}
	}
	if name == "" {
		return "", 0, false
	}
	return name, score, true
}

// Capabilities returns a copy of every agent's capability list.
func (r *Registry) Capabilities() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.order))
	for _, n := range r.order {
		out[n] = slices.Clone(r.agents[n].Capabilities())
	}
	return out
}

// Describe renders the registry for planning prompts, one agent per line.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, n := range r.order {
		fmt.Fprintf(&sb, "- %s: %s\n", n, strings.Join(r.agents[n].Capabilities(), ", "))
	}
	return sb.String()
}
