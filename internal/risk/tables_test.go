package risk

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDeliveryScore(t *testing.T) {
	o := DeliveryObservation{Carriers: []CarrierStat{
		{Carrier: "Maersk", Shipments: 20, Late: 10, AvgDelayDays: 4},
		{Carrier: "DHL", Shipments: 20, Late: 2, AvgDelayDays: 1},
	}}

	s := DeliveryScore(o)
	// late rate 12/40 = 0.3, avg delay 2.5 days -> route 0.25
	want := 0.7*0.3 + 0.3*0.25
	if !approx(s.Score, want) {
		t.Errorf("expected %v, got %v", want, s.Score)
	}
	if s.Confidence != 1 {
		t.Errorf("expected full confidence with 40 shipments, got %v", s.Confidence)
	}
	worst, _ := o.WorstCarrier()
	if worst.Carrier != "Maersk" {
		t.Errorf("expected Maersk worst, got %s", worst.Carrier)
	}
}

func TestInventoryScore(t *testing.T) {
	s := InventoryScore(InventoryObservation{Items: 10, BelowReorder: 4, Stockouts: 2})
	if want := 0.7*0.4 + 0.3*0.2; !approx(s.Score, want) {
		t.Errorf("expected %v, got %v", want, s.Score)
	}
	if !approx(s.Confidence, 0.5) {
		t.Errorf("expected confidence 0.5 for 10 items, got %v", s.Confidence)
	}

	empty := InventoryScore(InventoryObservation{})
	if empty.Score != 0 || empty.Confidence != 0 {
		t.Errorf("expected zero score and confidence with no items, got %+v", empty)
	}
}

func TestQualityScore_Saturates(t *testing.T) {
	s := QualityScore(QualityObservation{Categories: []CategoryReturns{
		{Category: "Technology", Orders: 10, Returned: 3},
		{Category: "Furniture", Orders: 10, Returned: 0},
	}})
	if !approx(s.Score, 0.5) {
		t.Errorf("expected 0.15/0.30 = 0.5, got %v", s.Score)
	}

	sat := QualityScore(QualityObservation{Categories: []CategoryReturns{{Category: "x", Orders: 10, Returned: 4}}})
	if sat.Score != 1 {
		t.Errorf("expected saturation at 1, got %v", sat.Score)
	}
}

func TestFinancialScore(t *testing.T) {
	s := FinancialScore(FinancialObservation{Categories: []CategoryMargins{
		{Category: "Furniture", Orders: 50, NegativeMargin: 10, HighDiscount: 5},
		{Category: "Technology", Orders: 50, NegativeMargin: 5},
	}})
	if !approx(s.Score, 0.2) {
		t.Errorf("expected 20/100, got %v", s.Score)
	}
}

func TestDisruptionScore(t *testing.T) {
	d := DeliveryObservation{Carriers: []CarrierStat{{Carrier: "Maersk", Shipments: 10, Late: 6}}}
	inv := InventoryObservation{Items: 20, Stockouts: 4}

	s := DisruptionScore(d, 0.5, inv, 1)
	if want := 0.5*0.6 + 0.5*0.2; !approx(s.Score, want) {
		t.Errorf("expected %v, got %v", want, s.Score)
	}
	if s.Confidence != 0.5 {
		t.Errorf("expected min confidence 0.5, got %v", s.Confidence)
	}
	if s.Dimension != Disruption {
		t.Errorf("unexpected dimension %s", s.Dimension)
	}
}
