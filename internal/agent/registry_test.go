package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubAgent struct {
	name string
	caps []string
	conf func(query string) float64
}

func (s *stubAgent) Name() string { return s.name }
func (s *stubAgent) Capabilities() []string { return s.caps }
func (s *stubAgent) Confidence(q string) float64 { return s.conf(q) }
func (s *stubAgent) Execute(ctx context.Context, q string, p Prior) Result {
	return Result{AgentName: s.name, Success: true}
}

func fixed(name string, c float64, caps ...string) *stubAgent {
	return &stubAgent{name: name, caps: caps, conf: func(string) float64 { return c }}
}

func TestRegistry_FindBest(t *testing.T) {
	r := NewRegistry()
	r.Register(fixed("data_analyst", 0.9, "SQL queries"))
	r.Register(fixed("risk_agent", 0.2, "risk scoring"))

	name, score, ok := r.FindBest("Show revenue by category")
	if !ok || name != "data_analyst" || score != 0.9 {
		t.Errorf("expected data_analyst 0.9, got %s %v %v", name, score, ok)
	}
}

func TestRegistry_TieGoesToFirstRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register(fixed("first", 0.5))
	r.Register(fixed("second", 0.5))
	r.Register(fixed("third", 0.1))

	name, _, _ := r.FindBest("anything")
	if name != "first" {
		t.Errorf("expected first, got %s", name)
	}
}

func TestRegistry_AllZero(t *testing.T) {
	r := NewRegistry()
	r.Register(fixed("only", 0))

	name, score, ok := r.FindBest("unrelated")
	if !ok || name != "only" || score != 0 {
		t.Errorf("expected only/0/true, got %s %v %v", name, score, ok)
	}
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry()
	if _, _, ok := r.FindBest("q"); ok {
		t.Error("expected ok=false for empty registry")
	}
	if r.Describe() != "" {
		t.Error("expected empty description")
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fixed("risk_agent", 0)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(fixed("risk_agent", 0)); !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("expected ErrDuplicateAgent, got %v", err)
	}
	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil agent")
	}
	if err := r.Register(fixed("  ", 0)); err == nil {
		t.Error("expected error for blank name")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 agent, got %d", r.Len())
	}
}

func TestRegistry_CapabilitiesAndDescribe(t *testing.T) {
	r := NewRegistry()
	r.Register(fixed("data_analyst", 0, "SQL queries", "trend analysis"))
	r.Register(fixed("risk_agent", 0, "risk scoring"))

	caps := r.Capabilities()
	caps["data_analyst"][0] = "mutated"
	if again := r.Capabilities(); again["data_analyst"][0] != "SQL queries" {
		t.Error("Capabilities must return copies")
	}

	want := "- data_analyst: SQL queries, trend analysis\n- risk_agent: risk scoring\n"
	if got := r.Describe(); got != want {
		t.Errorf("unexpected description:\n%s", got)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "data_analyst" {
		t.Errorf("unexpected names %v", names)
	}
	if _, ok := r.Get("risk_agent"); !ok {
		t.Error("expected risk_agent to be registered")
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry()
	r.Register(fixed("a", 0.3, "x"))
	r.Register(fixed("b", 0.6, "y"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.FindBest("q")
			r.Capabilities()
			r.Describe()
		}()
	}
	wg.Wait()
}

func TestKeywordScorer(t *testing.T) {
	k := KeywordScorer{
		High:   []string{"risk", "delay"},
		Medium: []string{"inventory"},
	}

	tests := []struct {
		query string
		want  float64
	}{
		{"show revenue", 0},
		{"What is the RISK level?", 0.15},
		{"risk of delay in inventory", 0.38},
	}
	for _, tt := range tests {
		if got := k.Score(tt.query); got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("Score(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}

	many := KeywordScorer{High: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}
	if got := many.Score("abcdefgh"); got != 1.0 {
		t.Errorf("expected cap at 1.0, got %v", got)
	}
}
