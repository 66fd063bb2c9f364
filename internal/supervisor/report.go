package supervisor

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vinayprograms/omnisupply/internal/agent"
)

// Report is everything one request produced.
type Report struct {
	ID          string    `json:"id" yaml:"id"`
	Query       string    `json:"query" yaml:"query"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	Plan      *TaskPlan       `json:"plan,omitempty" yaml:"plan,omitempty"`
	Selection *AgentSelection `json:"selection,omitempty" yaml:"selection,omitempty"`
	// Dropped lists selected names that are not registered.
	Dropped []string `json:"dropped,omitempty" yaml:"dropped,omitempty"`

	// Agents is the execution order; Results and Durations are keyed by name.
	Agents    []string                 `json:"agents" yaml:"agents"`
	Results   map[string]agent.Result  `json:"raw_results" yaml:"raw_results"`
	Durations map[string]time.Duration `json:"durations" yaml:"durations"`

	Aggregate    Aggregate         `json:"aggregate" yaml:"aggregate"`
	Summary      *ExecutiveSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	SummaryError string            `json:"summary_error,omitempty" yaml:"summary_error,omitempty"`

	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
	FinalReport string `json:"final_report" yaml:"final_report"`
}

// Succeeded lists agents whose result is successful, in execution order.
func (r *Report) Succeeded() []string {
	return r.filterAgents(func(res agent.Result) bool { return res.Success })
}

// Failed lists agents that failed without timing out.
func (r *Report) Failed() []string {
	return r.filterAgents(func(res agent.Result) bool { return !res.Success && !res.TimedOut })
}

// TimedOut lists agents that hit their deadline.
func (r *Report) TimedOut() []string {
	return r.filterAgents(func(res agent.Result) bool { return !res.Success && res.TimedOut })
}

func (r *Report) filterAgents(keep func(agent.Result) bool) []string {
	var out []string
	for _, name := range r.Agents {
		if res, ok := r.Results[name]; ok && keep(res) {
			out = append(out, name)
		}
	}
	return out
}

const reportTitle = "# OmniSupply Intelligence Report"

func writeHeader(sb *strings.Builder, r *Report) {
	sb.WriteString(reportTitle + "\n\n")
	fmt.Fprintf(sb, "**Query:** %s\n\n", r.Query)
	fmt.Fprintf(sb, "**Generated:** %s UTC\n\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
}

func renderMarkdown(r *Report) string {
	var sb strings.Builder
	writeHeader(&sb, r)
	fmt.Fprintf(&sb, "**Agents Used:** %s\n\n", strings.Join(r.Agents, ", "))
	if len(r.Dropped) > 0 {
		fmt.Fprintf(&sb, "**Ignored (not registered):** %s\n\n", strings.Join(r.Dropped, ", "))
	}
	sb.WriteString("---\n\n")

	sb.WriteString("## Executive Summary\n\n")
	if r.Summary != nil {
		sb.WriteString(strings.TrimSpace(r.Summary.Summary) + "\n\n")
	} else {
		fmt.Fprintf(&sb, "_Executive summary unavailable (%s). Raw agent findings follow._\n\n", r.SummaryError)
		fmt.Fprintf(&sb, "%d agents produced %d insights and %d recommendations.\n\n",
			len(r.Agents), len(r.Aggregate.Insights), len(r.Aggregate.Recommendations))
	}

	sb.WriteString("## Key Insights\n\n")
	if r.Summary != nil {
		writeNumbered(&sb, r.Summary.KeyInsights)
	} else {
		writeNumbered(&sb, tagged(r.Aggregate.Insights))
	}

	sb.WriteString("## Recommended Actions\n\n")
	if r.Summary != nil {
		writeNumbered(&sb, r.Summary.Recommendations)
	} else {
		writeNumbered(&sb, tagged(r.Aggregate.Recommendations))
	}

	if r.Summary != nil && len(r.Summary.KPIs) > 0 {
		sb.WriteString("## Key Performance Indicators\n\n")
		for _, k := range r.Summary.KPIs {
			fmt.Fprintf(&sb, "- **%s:** %s\n", k.Name, k.Value)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Agent Status\n\n")
	writeStatus(&sb, "Succeeded", r.Succeeded())
	writeStatus(&sb, "Failed", r.Failed())
	writeStatus(&sb, "Timed out", r.TimedOut())
	sb.WriteString("\n---\n\n")

	sb.WriteString("## Detailed Results by Agent\n\n")
	for _, name := range r.Agents {
		writeAgent(&sb, name, r.Results[name], r.Durations[name])
	}
	return sb.String()
}

func renderError(r *Report, capabilities map[string][]string) string {
	var sb strings.Builder
	writeHeader(&sb, r)
	sb.WriteString("## Error\n\n")
	fmt.Fprintf(&sb, "The request could not be completed: %s\n\n", r.Error)
	if len(capabilities) > 0 {
		sb.WriteString("## Available Agents\n\n")
		names := make([]string, 0, len(capabilities))
		for n := range capabilities {
			names = append(names, n)
		}
		slices.Sort(names)
		for _, n := range names {
			fmt.Fprintf(&sb, "- **%s:** %s\n", n, strings.Join(capabilities[n], ", "))
		}
		sb.WriteString("\nTry rephrasing the request around one of these capabilities.\n")
	}
	return sb.String()
}

func writeAgent(sb *strings.Builder, name string, res agent.Result, d time.Duration) {
	fmt.Fprintf(sb, "### %s\n\n", name)
	status := "success"
	switch {
	case res.TimedOut:
		status = "timed out"
	case !res.Success:
		status = "failed"
	}
	fmt.Fprintf(sb, "**Status:** %s (%s)\n\n", status, d.Round(time.Millisecond))
	if res.Error != "" {
		fmt.Fprintf(sb, "**Error:** %s\n\n", res.Error)
	}
	if len(res.Insights) > 0 {
		sb.WriteString("**Insights:**\n\n")
		writeBullets(sb, res.Insights)
	}
	if len(res.Recommendations) > 0 {
		sb.WriteString("**Recommendations:**\n\n")
		writeBullets(sb, res.Recommendations)
	}
	if len(res.Metrics) > 0 {
		sb.WriteString("**Metrics:**\n\n")
		for _, k := range sortedKeys(res.Metrics) {
			fmt.Fprintf(sb, "- %s: %s\n", k, formatMetric(res.Metrics[k]))
		}
		sb.WriteString("\n")
	}
}

func writeStatus(sb *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(sb, "- **%s:** %s\n", label, strings.Join(names, ", "))
}

func writeNumbered(sb *strings.Builder, items []string) {
	if len(items) == 0 {
		sb.WriteString("_None._\n\n")
		return
	}
	for i, it := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, it)
	}
	sb.WriteString("\n")
}

func writeBullets(sb *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
	sb.WriteString("\n")
}

func tagged(items []Tagged) []string {
	out := make([]string, len(items))
	for i, t := range items {
		out[i] = fmt.Sprintf("**[%s]** %s", t.Agent, t.Text)
	}
	return out
}
