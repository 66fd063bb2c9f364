package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities from INFO (0) to CRITICAL (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// SeverityFor maps a risk level to an alert severity. LOW yields INFO.
func SeverityFor(l Level) Severity {
	switch l {
	case Medium:
		return SeverityWarning
	case High:
		return SeverityHigh
	case Critical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Alert is a notification produced from scores or raw metrics. Alerts are
// never modified after Generate returns them.
type Alert struct {
	ID                 string    `json:"id" yaml:"id"`
	Severity           Severity  `json:"severity" yaml:"severity"`
	Category           string    `json:"category" yaml:"category"`
	Title              string    `json:"title" yaml:"title"`
	Description        string    `json:"description" yaml:"description"`
	AffectedEntities   []string  `json:"affected_entities" yaml:"affected_entities"`
	RiskScore          float64   `json:"risk_score" yaml:"risk_score"`
	RecommendedActions []string  `json:"recommended_actions" yaml:"recommended_actions"`
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
}

// Raw metrics a Rule can test. MetricScore tests the dimension score itself.
const (
	MetricScore            = "score"
	MetricCarrierLateRate  = "carrier_late_rate"
	MetricStockout         = "stockout"
	MetricBelowReorder     = "below_reorder"
	MetricCategoryReturns  = "category_return_rate"
	MetricCategoryAtRisk   = "category_at_risk_rate"
	MetricAvgDelayDays     = "avg_delay_days"
	MetricOverstockedItems = "overstocked_items"
)

// Rule raises an alert when Metric is at least Min. Per-entity rules are tested
// against every entity (carrier, SKU, category) of the dimension.
type Rule struct {
	Dimension Dimension
	Metric    string
	PerEntity bool
	Min       float64
	Severity  Severity
	Category  string
	Title     string
	Actions   []string
}

// DefaultRules is the built-in rule table.
var DefaultRules = []Rule{
	{Dimension: Delivery, Metric: MetricCarrierLateRate, PerEntity: true, Min: 0.25, Severity: SeverityWarning,
		Category: "delivery", Title: "Carrier on-time performance degraded",
		Actions: []string{"Review carrier SLA compliance"}},
	{Dimension: Delivery, Metric: MetricCarrierLateRate, PerEntity: true, Min: 0.40, Severity: SeverityHigh,
		Category: "delivery", Title: "Carrier chronically late",
		Actions: []string{"Shift volume to alternate carriers", "Escalate with carrier account manager"}},
	{Dimension: Delivery, Metric: MetricAvgDelayDays, Min: 5, Severity: SeverityHigh,
		Category: "delivery", Title: "Average delivery delay above five days",
		Actions: []string{"Notify customers of revised delivery dates"}},
	{Dimension: Inventory, Metric: MetricBelowReorder, PerEntity: true, Min: 1, Severity: SeverityWarning,
		Category: "inventory", Title: "SKU at or below reorder level",
		Actions: []string{"Raise purchase order"}},
	{Dimension: Inventory, Metric: MetricStockout, PerEntity: true, Min: 1, Severity: SeverityHigh,
		Category: "inventory", Title: "SKU out of stock",
		Actions: []string{"Expedite replenishment", "Check alternate suppliers"}},
	{Dimension: Quality, Metric: MetricCategoryReturns, PerEntity: true, Min: 0.15, Severity: SeverityWarning,
		Category: "quality", Title: "Elevated return rate",
		Actions: []string{"Inspect recent batches for defects"}},
	{Dimension: Financial, Metric: MetricCategoryAtRisk, PerEntity: true, Min: 0.40, Severity: SeverityWarning,
		Category: "financial", Title: "Margin erosion in category",
		Actions: []string{"Review discount policy"}},
}

type metricValue struct {
	entity string
	value  float64
}

// Generator builds alerts from an assessment and its observations.
type Generator struct {
	Rules []Rule
	// NewID returns alert IDs. Defaults to random UUIDs.
	NewID func() string
}

// NewGenerator creates a generator with rules, or DefaultRules when rules is nil.
func NewGenerator(rules []Rule) *Generator {
	if rules == nil {
		rules = DefaultRules
	}
	return &Generator{Rules: rules, NewID: uuid.NewString}
}

// Generate applies the level ladder and the rule table. Each affected entity
// within a category gets at most one alert carrying the highest severity observed for it; a later
// match can raise an alert's severity but never lower it. Alerts are ordered by
// severity, highest first, then by first appearance.
func (g *Generator) Generate(a Assessment, obs Observations, now time.Time) []Alert {
	var order []string
	drafts := make(map[string]*Alert)

	raise := func(entity string, sev Severity, category, title, desc string, score float64, actions []string) {
		if sev == SeverityInfo {
			return
		}
		key := category + "/" + entity
		if cur, ok := drafts[key]; ok {
			if sev.Rank() > cur.Severity.Rank() {
				cur.Severity, cur.Title, cur.Description = sev, title, desc
				cur.RiskScore = max(cur.RiskScore, score)
			}
			cur.RecommendedActions = appendUnique(cur.RecommendedActions, actions...)
			return
		}
		drafts[key] = &Alert{
			Severity:           sev,
			Category:           category,
			Title:              title,
			Description:        desc,
			AffectedEntities:   []string{entity},
			RiskScore:          score,
			RecommendedActions: appendUnique(nil, actions...),
			Timestamp:          now,
		}
		order = append(order, key)
	}

	for _, s := range a.Scores {
		if s.Unavailable() {
			continue
		}
		raise(string(s.Dimension), SeverityFor(s.Level), string(s.Dimension),
			fmt.Sprintf("%s risk %s", s.Dimension, s.Level),
			fmt.Sprintf("%s risk score %.2f", s.Dimension, s.Score),
			s.Score, nil)
	}

	for _, r := range g.Rules {
		dimScore := a.Score(r.Dimension)
		if dimScore.Unavailable() {
			continue
		}
		for _, mv := range metricValues(r, dimScore, obs) {
			if mv.value < r.Min {
				continue
			}
			raise(mv.entity, r.Severity, r.Category, r.Title,
				fmt.Sprintf("%s: %s = %.2f (threshold %.2f)", mv.entity, r.Metric, mv.value, r.Min),
				dimScore.Score, r.Actions)
		}
	}

	if a.OverallLevel.Ordinal() >= High.Ordinal() {
		raise("overall", SeverityFor(a.OverallLevel), "overall",
			fmt.Sprintf("Overall supply-chain risk %s", a.OverallLevel),
			fmt.Sprintf("weighted overall risk score %.2f", a.OverallScore),
			a.OverallScore, []string{"Convene supply-chain risk review"})
	}

	newID := g.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	alerts := make([]Alert, 0, len(order))
	for _, key := range order {
		al := *drafts[key]
		al.ID = newID()
		alerts = append(alerts, al)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
	})
	return alerts
}

func metricValues(r Rule, s Score, obs Observations) []metricValue {
	if r.Metric == MetricScore {
		return []metricValue{{string(r.Dimension), s.Score}}
	}

	var out []metricValue
	switch r.Metric {
	case MetricCarrierLateRate:
		if obs.Delivery != nil {
			for _, c := range obs.Delivery.Carriers {
				out = append(out, metricValue{c.Carrier, c.LateRate()})
			}
		}
	case MetricAvgDelayDays:
		if obs.Delivery != nil {
			out = append(out, metricValue{string(Delivery), obs.Delivery.AvgDelayDays()})
		}
	case MetricStockout:
		if obs.Inventory != nil {
			for _, it := range obs.Inventory.Critical {
				v := 0.0
				if it.Stock == 0 {
					v = 1
				}
				out = append(out, metricValue{it.SKU, v})
			}
		}
	case MetricBelowReorder:
		if obs.Inventory != nil {
			for _, it := range obs.Inventory.Critical {
				out = append(out, metricValue{it.SKU, 1})
			}
		}
	case MetricOverstockedItems:
		if obs.Inventory != nil {
			out = append(out, metricValue{string(Inventory), float64(obs.Inventory.Overstock)})
		}
	case MetricCategoryReturns:
		if obs.Quality != nil {
			for _, c := range obs.Quality.Categories {
				out = append(out, metricValue{c.Category, c.ReturnRate()})
			}
		}
	case MetricCategoryAtRisk:
		if obs.Financial != nil {
			for _, c := range obs.Financial.Categories {
				out = append(out, metricValue{c.Category, c.AtRiskRate()})
			}
		}
	}

	if !r.PerEntity && len(out) > 0 {
		best := out[0]
		for _, mv := range out[1:] {
			if mv.value > best.value {
				best = mv
			}
		}
		return []metricValue{{string(r.Dimension), best.value}}
	}
	return out
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, d := range dst {
			if d == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}
