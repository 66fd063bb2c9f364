package risk

import (
	"fmt"
	"testing"
	"time"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

func find(alerts []Alert, category, entity string) (Alert, bool) {
	for _, a := range alerts {
		if a.Category == category && len(a.AffectedEntities) == 1 && a.AffectedEntities[0] == entity {
			return a, true
		}
	}
	return Alert{}, false
}

func TestGenerator_LevelLadder(t *testing.T) {
	e := defaultEngine(t)
	g := &Generator{NewID: sequentialIDs()}
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	a := e.Assess(scoresOf(0.85, 0.65, 0.4, 0.1, 0))
	alerts := g.Generate(a, Observations{}, now)

	tests := []struct {
		dim  string
		want Severity
	}{
		{"delivery", SeverityCritical},
		{"inventory", SeverityHigh},
		{"quality", SeverityWarning},
	}
	for _, tt := range tests {
		al, ok := find(alerts, tt.dim, tt.dim)
		if !ok {
			t.Errorf("expected alert for %s", tt.dim)
			continue
		}
		if al.Severity != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.dim, tt.want, al.Severity)
		}
		if !al.Timestamp.Equal(now) || al.ID == "" {
			t.Errorf("%s: expected id and timestamp, got %+v", tt.dim, al)
		}
	}
	if _, ok := find(alerts, "financial", "financial"); ok {
		t.Error("LOW dimensions must not alert")
	}
	if alerts[0].Severity != SeverityCritical {
		t.Errorf("expected most severe first, got %s", alerts[0].Severity)
	}
}

func TestGenerator_OverallAlert(t *testing.T) {
	e := defaultEngine(t)
	g := &Generator{NewID: sequentialIDs()}

	high := e.Assess(scoresOf(0.9, 0.9, 0.9, 0.9, 0.9))
	if _, ok := find(g.Generate(high, Observations{}, time.Now()), "overall", "overall"); !ok {
		t.Error("expected overall alert at CRITICAL")
	}

	medium := e.Assess(scoresOf(0.8, 0.5, 0.3, 0.1, 0.2))
	if _, ok := find(g.Generate(medium, Observations{}, time.Now()), "overall", "overall"); ok {
		t.Error("MEDIUM overall must not raise an overall alert")
	}
}

func TestGenerator_EscalatesPerEntity(t *testing.T) {
	e := defaultEngine(t)
	obs := Observations{Delivery: &DeliveryObservation{Carriers: []CarrierStat{
		{Carrier: "Maersk", Shipments: 10, Late: 5},
		{Carrier: "DHL", Shipments: 10, Late: 3},
		{Carrier: "UPS", Shipments: 10, Late: 0},
	}}}
	a := e.Assess(scoresOf(0.2, 0, 0, 0, 0))

	rules := []Rule{
		{Dimension: Delivery, Metric: MetricCarrierLateRate, PerEntity: true, Min: 0.40, Severity: SeverityHigh,
			Category: "delivery", Title: "late", Actions: []string{"shift volume"}},
		{Dimension: Delivery, Metric: MetricCarrierLateRate, PerEntity: true, Min: 0.25, Severity: SeverityWarning,
			Category: "delivery", Title: "slipping", Actions: []string{"review SLA"}},
	}
	g := &Generator{Rules: rules, NewID: sequentialIDs()}
	alerts := g.Generate(a, obs, time.Now())

	maersk, ok := find(alerts, "delivery", "Maersk")
	if !ok {
		t.Fatal("expected Maersk alert")
	}
	if maersk.Severity != SeverityHigh || maersk.Title != "late" {
		t.Errorf("later lower-severity rule must not downgrade, got %+v", maersk)
	}
	if len(maersk.RecommendedActions) != 2 {
		t.Errorf("expected merged actions, got %v", maersk.RecommendedActions)
	}

	dhl, ok := find(alerts, "delivery", "DHL")
	if !ok || dhl.Severity != SeverityWarning {
		t.Errorf("expected DHL warning, got %+v", dhl)
	}
	if _, ok := find(alerts, "delivery", "UPS"); ok {
		t.Error("UPS is on time and must not alert")
	}

	// Same rules in escalating order reach the same severity.
	g.Rules = []Rule{rules[1], rules[0]}
	again, _ := find(g.Generate(a, obs, time.Now()), "delivery", "Maersk")
	if again.Severity != SeverityHigh || again.Title != "late" {
		t.Errorf("expected escalation to HIGH, got %+v", again)
	}
}

func TestGenerator_SkipsUnavailableDimensions(t *testing.T) {
	e := defaultEngine(t)
	scores := scoresOf(0.9, 0, 0, 0, 0)
	scores[0].Error = "db down"
	a := e.Assess(scores)

	g := NewGenerator(nil)
	if alerts := g.Generate(a, Observations{}, time.Now()); len(alerts) != 0 {
		t.Errorf("expected no alerts from unavailable data, got %+v", alerts)
	}
}

func TestGenerator_StockRules(t *testing.T) {
	e := defaultEngine(t)
	obs := Observations{Inventory: &InventoryObservation{
		Items: 10, BelowReorder: 2, Stockouts: 1,
		Critical: []StockItem{
			{SKU: "SKU-1", Stock: 0, ReorderLevel: 10},
			{SKU: "SKU-2", Stock: 4, ReorderLevel: 10},
		},
	}}
	a := e.Assess(scoresOf(0, 0.2, 0, 0, 0))

	alerts := NewGenerator(nil).Generate(a, obs, time.Now())
	if al, ok := find(alerts, "inventory", "SKU-1"); !ok || al.Severity != SeverityHigh {
		t.Errorf("expected stockout HIGH for SKU-1, got %+v", al)
	}
	if al, ok := find(alerts, "inventory", "SKU-2"); !ok || al.Severity != SeverityWarning {
		t.Errorf("expected WARNING for SKU-2, got %+v", al)
	}
}

func TestGenerator_AggregateRuleUsesDimension(t *testing.T) {
	e := defaultEngine(t)
	obs := Observations{Delivery: &DeliveryObservation{Carriers: []CarrierStat{
		{Carrier: "Maersk", Shipments: 10, Late: 5},
	}}}
	a := e.Assess(scoresOf(0.1, 0, 0, 0, 0))

	g := &Generator{NewID: sequentialIDs(), Rules: []Rule{
		{Dimension: Delivery, Metric: MetricCarrierLateRate, Min: 0.3, Severity: SeverityWarning,
			Category: "delivery", Title: "worst carrier late"},
	}}
	alerts := g.Generate(a, obs, time.Now())

	al, ok := find(alerts, "delivery", "delivery")
	if !ok || al.Title != "worst carrier late" {
		t.Errorf("a single value from an aggregate rule should be keyed by dimension, got %+v", alerts)
	}
	if _, ok := find(alerts, "delivery", "Maersk"); ok {
		t.Error("aggregate rule must not raise a per-carrier alert")
	}
}
