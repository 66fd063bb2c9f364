package risk

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Narrative is the model's reading of an assessment.
type Narrative struct {
	TopRisks           []string `json:"top_risks"`
	RecommendedActions []string `json:"recommended_actions"`
	MonitoringItems    []string `json:"monitoring_items"`
}

var narrativeSchema = structured.MustSchema("risk_narrative",
	"a short risk narrative with top risks, recommended actions and items to monitor", `{
	"type": "object",
	"required": ["top_risks", "recommended_actions"],
	"properties": {
		"top_risks": {"type": "array", "items": {"type": "string"}, "maxItems": 5},
		"recommended_actions": {"type": "array", "items": {"type": "string"}, "maxItems": 8},
		"monitoring_items": {"type": "array", "items": {"type": "string"}}
	}
}`)

func narrativePrompt(a Assessment, w Weights, alerts []Alert) string {
	var sb strings.Builder
	sb.WriteString("Assess these supply-chain risk metrics for an operations audience.\n\n")
	for _, s := range a.Scores {
		fmt.Fprintf(&sb, "%s (weight %.0f%%): score %.2f, level %s, confidence %.2f\n",
			s.Dimension, w.Of(s.Dimension)*100, s.Score, s.Level, s.Confidence)
		for _, f := range s.ContributingFactors {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
		if s.Unavailable() {
			fmt.Fprintf(&sb, "  - data unavailable: %s\n", s.Error)
		}
	}
	fmt.Fprintf(&sb, "\nOverall: %.2f (%s)\n", a.OverallScore, a.OverallLevel)
	if len(alerts) > 0 {
		sb.WriteString("\nAlerts raised:\n")
		for _, al := range alerts {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", al.Severity, al.Title, strings.Join(al.AffectedEntities, ", "))
		}
	}
	sb.WriteString("\nList the top 3-5 risks to address, concrete recommended actions, and items to monitor.")
	return sb.String()
}

// fallbackNarrative derives a narrative from the alerts alone.
func fallbackNarrative(a Assessment, alerts []Alert) Narrative {
	var n Narrative
	for _, al := range alerts {
		if len(n.TopRisks) < 5 {
			n.TopRisks = append(n.TopRisks,
				fmt.Sprintf("[%s] %s (%s)", al.Severity, al.Title, strings.Join(al.AffectedEntities, ", ")))
		}
		n.RecommendedActions = appendUnique(n.RecommendedActions, al.RecommendedActions...)
	}
	for _, s := range a.Scores {
		if s.Unavailable() {
			n.MonitoringItems = append(n.MonitoringItems, fmt.Sprintf("restore %s data feed (%s)", s.Dimension, s.Error))
		} else if s.Level == Medium {
			n.MonitoringItems = append(n.MonitoringItems, fmt.Sprintf("%s risk trending at %.2f", s.Dimension, s.Score))
		}
	}
	if len(n.RecommendedActions) == 0 {
		n.RecommendedActions = []string{"Continue routine monitoring"}
	}
	return n
}
