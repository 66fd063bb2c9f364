package finance

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Narrative is the model's commentary on the numbers.
type Narrative struct {
	Highlights      []string `json:"highlights"`
	Concerns        []string `json:"concerns"`
	Recommendations []string `json:"recommendations"`
}

var narrativeSchema = structured.MustSchema("finance_narrative",
	"highlights, concerns and cost recommendations for a P&L", `{
	"type": "object",
	"required": ["highlights", "recommendations"],
	"properties": {
		"highlights": {"type": "array", "items": {"type": "string"}},
		"concerns": {"type": "array", "items": {"type": "string"}},
		"recommendations": {"type": "array", "items": {"type": "string"}}
	}
}`)

func narrativePrompt(query string, p PL, e Expenses, k KPIs, windowDays int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review this financial position for the request: %s\n\n", query)
	fmt.Fprintf(&sb, "P&L (last %d days):\n", windowDays)
	fmt.Fprintf(&sb, "- Revenue: $%.2f\n- COGS: $%.2f\n- Gross profit: $%.2f (%.1f%%)\n", p.Revenue, p.COGS, p.GrossProfit, k.GrossMarginPct)
	fmt.Fprintf(&sb, "- Operating expenses: $%.2f\n- Net profit: $%.2f (%.1f%%)\n", p.Expenses, p.NetProfit(), k.NetMarginPct)
	if len(e.Categories) > 0 {
		sb.WriteString("\nExpenses by category:\n")
		for _, c := range e.Categories {
			fmt.Fprintf(&sb, "- %s: $%.2f (%.1f%%, %d transactions)\n", c.Category, c.Amount, e.Share(c)*100, c.Transactions)
		}
	}
	fmt.Fprintf(&sb, "\nKPIs: average order value $%.2f, return rate %.1f%%, revenue growth %.1f%%, projected %d-day cashflow $%.2f\n",
		k.AverageOrderValue, k.ReturnRatePct, k.RevenueGrowthPct, ForecastDays, k.ProjectedCashflow)
	sb.WriteString("\nGive 2-4 highlights, any concerns (unusual spending, margin pressure), and cost optimization recommendations.")
	return sb.String()
}

// fallbackNarrative applies fixed rules to the numbers.
func fallbackNarrative(p PL, e Expenses, k KPIs) Narrative {
	var n Narrative
	n.Highlights = append(n.Highlights,
		fmt.Sprintf("Revenue $%.2f at %.1f%% gross margin", p.Revenue, k.GrossMarginPct))
	if k.RevenueGrowthPct != 0 {
		n.Highlights = append(n.Highlights, fmt.Sprintf("Revenue %+.1f%% versus the prior period", k.RevenueGrowthPct))
	}

	if p.NetProfit() < 0 {
		n.Concerns = append(n.Concerns, fmt.Sprintf("Net loss of $%.2f", -p.NetProfit()))
		n.Recommendations = append(n.Recommendations, "Review operating cost structure")
	}
	for _, c := range e.Concentrated() {
		n.Concerns = append(n.Concerns, fmt.Sprintf("%s is %.0f%% of operating expenses", c.Category, e.Share(c)*100))
		n.Recommendations = append(n.Recommendations, fmt.Sprintf("Renegotiate or rebid %s spending", c.Category))
	}
	if k.ReturnRatePct > 10 {
		n.Concerns = append(n.Concerns, fmt.Sprintf("Return rate %.1f%%", k.ReturnRatePct))
		n.Recommendations = append(n.Recommendations, "Investigate return drivers by category")
	}
	if k.RevenueGrowthPct < 0 {
		n.Recommendations = append(n.Recommendations, "Examine the revenue decline by segment and region")
	}
	if len(n.Recommendations) == 0 {
		n.Recommendations = []string{"Maintain current cost controls"}
	}
	return n
}
