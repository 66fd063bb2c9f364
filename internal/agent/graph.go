package agent

import (
	"context"
	"errors"
	"fmt"
)

// NodeName identifies a node in a Graph.
type NodeName string

// End is the terminal pseudo-node.
const End NodeName = "__end__"

// MaxSteps bounds the number of nodes a single Run may execute.
const MaxSteps = 64

var (
	ErrStepLimit    = errors.New("graph step limit exceeded")
	ErrInvalidGraph = errors.New("invalid graph")
)

// NodeError reports the node that failed a Run.
type NodeError struct {
	Node NodeName
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Handler is a node's work. It mutates state and returns an error to stop the run.
type Handler[S any] func(ctx context.Context, state S) error

// Router picks the next node after a conditional node.
type Router[S any] func(state S) NodeName

type transition[S any] struct {
	to       NodeName
	router   Router[S]
	fallback NodeName
	branches map[NodeName]bool
}

func (t transition[S]) next(state S) NodeName {
	if t.router == nil {
		return t.to
	}
	if choice := t.router(state); t.branches[choice] {
		return choice
	}
	return t.fallback
}

func (t transition[S]) targets() []NodeName {
	if t.router == nil {
		return []NodeName{t.to}
	}
	out := []NodeName{t.fallback}
	for b := range t.branches {
		out = append(out, b)
	}
	return out
}

// Graph is an explicit state machine over a state of type S.
type Graph[S any] struct {
	entry NodeName
	nodes map[NodeName]Handler[S]
	order []NodeName
	edges map[NodeName]transition[S]
	errs  []error
}

// NewGraph creates a graph starting at entry.
func NewGraph[S any](entry NodeName) *Graph[S] {
	return &Graph[S]{
		entry: entry,
		nodes: make(map[NodeName]Handler[S]),
		edges: make(map[NodeName]transition[S]),
	}
}

// AddNode registers a node.
func (g *Graph[S]) AddNode(name NodeName, h Handler[S]) *Graph[S] {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("reserved node name %q", name))
	case h == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s has no handler", name))
	case g.nodes[name] != nil:
		g.errs = append(g.errs, fmt.Errorf("duplicate node %s", name))
	default:
		g.nodes[name] = h
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge adds an unconditional transition.
func (g *Graph[S]) AddEdge(from, to NodeName) *Graph[S] {
	return g.setTransition(from, transition[S]{to: to})
}

// AddRoute adds a conditional transition. The router's choice must be one of
// branches; anything else, including "", goes to fallback.
func (g *Graph[S]) AddRoute(from NodeName, router Router[S], fallback NodeName, branches ...NodeName) *Graph[S] {
	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("route from %s has no router", from))
		return g
	}
	set := make(map[NodeName]bool, len(branches))
	for _, b := range branches {
		set[b] = true
	}
	return g.setTransition(from, transition[S]{router: router, fallback: fallback, branches: set})
}

func (g *Graph[S]) setTransition(from NodeName, t transition[S]) *Graph[S] {
	if _, dup := g.edges[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %s has more than one outgoing transition", from))
		return g
	}
	g.edges[from] = t
	return g
}

// Nodes lists the registered nodes in registration order.
func (g *Graph[S]) Nodes() []NodeName {
	return append([]NodeName(nil), g.order...)
}

// Validate checks that the entry exists, every node has exactly one outgoing
// transition and every target is a node or End.
func (g *Graph[S]) Validate() error {
	errs := append([]error(nil), g.errs...)
	if g.nodes[g.entry] == nil {
		errs = append(errs, fmt.Errorf("entry node %s not registered", g.entry))
	}
	for _, name := range g.order {
		t, ok := g.edges[name]
		if !ok {
			errs = append(errs, fmt.Errorf("node %s has no outgoing transition", name))
			continue
		}
		for _, to := range t.targets() {
			if to != End && g.nodes[to] == nil {
				errs = append(errs, fmt.Errorf("node %s targets unknown node %q", name, to))
			}
		}
	}
	for from := range g.edges {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("transition from unknown node %s", from))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}
	return nil
}

// Run executes nodes from the entry until End. It stops at the first node error,
// on context cancellation, or after MaxSteps nodes. The visited path is returned
// in every case.
func (g *Graph[S]) Run(ctx context.Context, state S) ([]NodeName, error) {
	var path []NodeName
	current := g.entry
	for current != End {
		if len(path) >= MaxSteps {
			return path, ErrStepLimit
		}
		if err := ctx.Err(); err != nil {
			return path, err
		}
		h := g.nodes[current]
		if h == nil {
			return path, &NodeError{Node: current, Err: errors.New("node not registered")}
		}
		path = append(path, current)

		if err := g.invoke(ctx, current, h, state); err != nil {
			return path, &NodeError{Node: current, Err: err}
		}
		current = g.edges[current].next(state)
	}
	return path, nil
}

func (g *Graph[S]) invoke(ctx context.Context, name NodeName, h Handler[S], state S) (err error) {
	ctx, span := startNodeSpan(ctx, name)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		endNodeSpan(span, err)
	}()
	return h(ctx, state)
}
