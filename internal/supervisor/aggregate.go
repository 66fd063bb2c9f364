package supervisor

import (
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/vinayprograms/omnisupply/internal/agent"
)

// Tagged is a finding attributed to the agent that produced it.
type Tagged struct {
	Agent string `json:"agent" yaml:"agent"`
	Text  string `json:"text" yaml:"text"`
}

// TaggedMetric is a metric attributed to the agent that produced it.
type TaggedMetric struct {
	Agent string  `json:"agent" yaml:"agent"`
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// Aggregate is every agent's output merged in selection order.
type Aggregate struct {
	Insights        []Tagged       `json:"insights" yaml:"insights"`
	Recommendations []Tagged       `json:"recommendations" yaml:"recommendations"`
	Metrics         []TaggedMetric `json:"metrics" yaml:"metrics"`
}

// collect merges results without deduplication. Failed agents contribute
// whatever partial output they produced.
func collect(order []string, results map[string]agent.Result) Aggregate {
	var agg Aggregate
	for _, name := range order {
		r, ok := results[name]
		if !ok {
			continue
		}
		for _, in := range r.Insights {
			agg.Insights = append(agg.Insights, Tagged{Agent: name, Text: in})
		}
		for _, rec := range r.Recommendations {
			agg.Recommendations = append(agg.Recommendations, Tagged{Agent: name, Text: rec})
		}
		for _, k := range sortedKeys(r.Metrics) {
			agg.Metrics = append(agg.Metrics, TaggedMetric{Agent: name, Name: k, Value: r.Metrics[k]})
		}
	}
	return agg
}

func sortedKeys(m map[string]float64) []string {
	return slices.Sorted(maps.Keys(m))
}

func formatMetric(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
