package report

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Kind is the type of business report.
type Kind string

const (
	Weekly      Kind = "weekly"
	Monthly     Kind = "monthly"
	Executive   Kind = "executive"
	MeetingPrep Kind = "meeting_prep"
)

// Title returns the display form of k.
func (k Kind) Title() string {
	switch k {
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case MeetingPrep:
		return "Meeting Prep"
	default:
		return "Executive"
	}
}

// classify maps a request to a report kind. Executive is the default.
func classify(query string) Kind {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "weekly"):
		return Weekly
	case strings.Contains(q, "monthly"):
		return Monthly
	case strings.Contains(q, "executive"), strings.Contains(q, "cxo"), strings.Contains(q, "ceo"):
		return Executive
	case strings.Contains(q, "meeting"):
		return MeetingPrep
	default:
		return Executive
	}
}

// Source is one input to a report: an earlier agent's result or a direct
// database summary.
type Source struct {
	Name     string
	Summary  string
	Metrics  map[string]float64
	Insights []string
}

// Priority of an action item.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// ActionItem is a recommended action with an owner.
type ActionItem struct {
	Action    string `json:"action"`
	Priority  string `json:"priority"`
	Owner     string `json:"owner"`
	Timeline  string `json:"timeline"`
	Rationale string `json:"rationale"`
}

// Document is a generated business report. Kind, Date and Sources are set by
// the agent, not the model.
type Document struct {
	Title              string       `json:"title"`
	ExecutiveSummary   string       `json:"executive_summary"`
	KeyHighlights      []string     `json:"key_highlights"`
	RecommendedActions []ActionItem `json:"recommended_actions"`

	Kind    Kind     `json:"-"`
	Date    string   `json:"-"`
	Sources []string `json:"-"`
}

var documentSchema = structured.MustSchema("business_report",
	"an executive business report with highlights and owned actions", `{
	"type": "object",
	"required": ["title", "executive_summary", "key_highlights", "recommended_actions"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"executive_summary": {"type": "string"},
		"key_highlights": {"type": "array", "items": {"type": "string"}, "maxItems": 7},
		"recommended_actions": {
			"type": "array",
			"maxItems": 5,
			"items": {
				"type": "object",
				"required": ["action", "priority", "owner", "timeline"],
				"properties": {
					"action": {"type": "string"},
					"priority": {"enum": ["HIGH", "MEDIUM", "LOW"]},
					"owner": {"type": "string"},
					"timeline": {"type": "string"},
					"rationale": {"type": "string"}
				}
			}
		}
	}
}`)

func documentPrompt(query string, kind Kind, sources []Source) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a %s business report based on this data.\n\n", kind)
	fmt.Fprintf(&sb, "User request: %s\n\nData sources:\n", query)
	if len(sources) == 0 {
		sb.WriteString("(none available)\n")
	}
	for _, s := range sources {
		fmt.Fprintf(&sb, "\n**%s**:\n%s\n", s.Name, s.Summary)
		if len(s.Metrics) > 0 {
			fmt.Fprintf(&sb, "Key metrics: %s\n", formatMetrics(s.Metrics))
		}
		if len(s.Insights) > 0 {
			fmt.Fprintf(&sb, "Insights: %s\n", strings.Join(s.Insights, "; "))
		}
	}
	sb.WriteString(`
Create a report with:
1. An executive summary of 2-3 paragraphs for CxO readers
2. 5-7 key highlights
3. The top 3-5 recommended actions, each with a priority (HIGH, MEDIUM or LOW), an owning team or role, a timeline and a rationale

Keep it actionable and focused on business outcomes.`)
	return sb.String()
}

// ownerOf maps a source to the role that usually acts on it.
func ownerOf(source string) string {
	switch source {
	case "risk_agent", "inventory_status":
		return "Supply Chain Manager"
	case "finance_agent":
		return "CFO"
	case "data_analyst":
		return "Data Analyst"
	default:
		return "VP Operations"
	}
}

// fallbackDocument assembles a report from the sources without the model.
func fallbackDocument(kind Kind, sources []Source, recs []sourcedRec) Document {
	d := Document{Title: kind.Title() + " Business Report"}

	var summary []string
	for _, s := range sources {
		if s.Summary != "" {
			summary = append(summary, s.Summary)
		}
	}
	if len(summary) == 0 {
		d.ExecutiveSummary = "No operational data was available for this period."
	} else {
		d.ExecutiveSummary = strings.Join(summary, " ")
	}

	for _, s := range sources {
		for _, in := range s.Insights {
			if len(d.KeyHighlights) == 7 {
				break
			}
			d.KeyHighlights = append(d.KeyHighlights, in)
		}
	}

	for i, r := range recs {
		if i == 5 {
			break
		}
		item := ActionItem{
			Action:    r.text,
			Priority:  PriorityMedium,
			Owner:     ownerOf(r.source),
			Timeline:  "2 weeks",
			Rationale: "Raised by " + r.source,
		}
		if i == 0 {
			item.Priority, item.Timeline = PriorityHigh, "This week"
		}
		d.RecommendedActions = append(d.RecommendedActions, item)
	}
	if len(d.RecommendedActions) == 0 {
		d.RecommendedActions = []ActionItem{{
			Action:    "Review the figures in this report with functional leads",
			Priority:  PriorityLow,
			Owner:     "VP Operations",
			Timeline:  "Next review",
			Rationale: "No source raised a specific action",
		}}
	}
	return d
}

// Markdown renders d as a standalone document.
func Markdown(d Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", d.Title)
	fmt.Fprintf(&sb, "**Report Type**: %s\n", d.Kind.Title())
	fmt.Fprintf(&sb, "**Date**: %s\n", d.Date)
	fmt.Fprintf(&sb, "**Data Sources**: %s\n\n---\n\n", strings.Join(d.Sources, ", "))
	fmt.Fprintf(&sb, "## Executive Summary\n\n%s\n\n---\n\n## Key Highlights\n\n", d.ExecutiveSummary)
	for _, h := range d.KeyHighlights {
		fmt.Fprintf(&sb, "- %s\n", h)
	}
	sb.WriteString("\n---\n\n## Recommended Actions\n\n")
	for i, a := range d.RecommendedActions {
		fmt.Fprintf(&sb, "### %d. %s\n\n", i+1, a.Action)
		fmt.Fprintf(&sb, "- **Priority**: %s\n- **Owner**: %s\n- **Timeline**: %s\n", a.Priority, a.Owner, a.Timeline)
		if a.Rationale != "" {
			fmt.Fprintf(&sb, "- **Rationale**: %s\n", a.Rationale)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("---\n\n*Report generated by OmniSupply Meeting Agent*\n")
	return sb.String()
}
