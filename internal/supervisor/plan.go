package supervisor

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Order is how selected agents run.
type Order string

const (
	OrderParallel   Order = "parallel"
	OrderSequential Order = "sequential"
)

// Valid reports whether o is a known order.
func (o Order) Valid() bool {
	return o == OrderParallel || o == OrderSequential
}

// TaskPlan is the planner's breakdown of a request.
type TaskPlan struct {
	Steps          []string `json:"steps" yaml:"steps"`
	AgentsNeeded   []string `json:"agents_needed" yaml:"agents_needed"`
	ExpectedOutput string   `json:"expected_output" yaml:"expected_output"`
}

// AgentSelection is the router's choice of agents.
type AgentSelection struct {
	Agents         []string `json:"agents" yaml:"agents"`
	Reasoning      string   `json:"reasoning" yaml:"reasoning"`
	ExecutionOrder Order    `json:"execution_order" yaml:"execution_order"`
}

// KPI is one headline figure of an executive summary.
type KPI struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// ExecutiveSummary is the synthesized reading of every agent's result.
type ExecutiveSummary struct {
	Summary         string   `json:"summary" yaml:"summary"`
	KeyInsights     []string `json:"key_insights" yaml:"key_insights"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`
	KPIs            []KPI    `json:"kpis" yaml:"kpis"`
}

var (
	planSchema = structured.MustSchema("task_plan",
		"a step-by-step plan for answering a supply-chain request", `{
	"type": "object",
	"required": ["steps"],
	"properties": {
		"steps": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"agents_needed": {"type": "array", "items": {"type": "string"}},
		"expected_output": {"type": "string"}
	}
}`)

	selectionSchema = structured.MustSchema("agent_selection",
		"the agents to invoke and how to run them", `{
	"type": "object",
	"required": ["agents"],
	"properties": {
		"agents": {"type": "array", "items": {"type": "string"}},
		"reasoning": {"type": "string"},
		"execution_order": {"type": "string"}
	}
}`)

	summarySchema = structured.MustSchema("executive_summary",
		"an executive summary of agent findings", `{
	"type": "object",
	"required": ["summary", "key_insights", "recommendations"],
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"key_insights": {"type": "array", "items": {"type": "string"}},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"kpis": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "value"],
				"properties": {"name": {"type": "string"}, "value": {"type": "string"}}
			}
		}
	}
}`)
)

func planPrompt(query, agents string) string {
	return fmt.Sprintf(`You are a task planning AI for a supply chain intelligence platform.

Available agents:
%s
User query: %s

Create a step-by-step plan to fulfill this query. Determine:
1. What steps are needed
2. Which agents should be involved
3. What the final output should contain

Be specific and actionable.`, agents, query)
}

func selectionPrompt(query string, plan TaskPlan, agents string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an agent router for a supply chain intelligence platform.\n\nAvailable agents and their capabilities:\n%s\n", agents)
	fmt.Fprintf(&sb, "User query: %s\n\nTask plan:\n", query)
	for i, s := range plan.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	sb.WriteString(`
Select which agents to invoke. Return:
- agents: list of agent names exactly as listed above
- reasoning: why these agents
- execution_order: "parallel" (independent) or "sequential" (later agents build on earlier results)

Choose the minimal set of agents needed.`)
	return sb.String()
}

func summaryPrompt(query string, order []string, results map[string]agent.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an executive report writer for the OmniSupply platform.\n\nUser query: %s\n\nAgent results:\n", query)
	for _, name := range order {
		r := results[name]
		fmt.Fprintf(&sb, "\n%s:\n", name)
		if !r.Success {
			fmt.Fprintf(&sb, "  Error: %s\n", r.Error)
		}
		if len(r.Insights) > 0 {
			fmt.Fprintf(&sb, "  Insights: %d\n", len(r.Insights))
			for _, in := range r.Insights[:min(len(r.Insights), 5)] {
				fmt.Fprintf(&sb, "    - %s\n", in)
			}
		}
		if len(r.Recommendations) > 0 {
			fmt.Fprintf(&sb, "  Recommendations: %d\n", len(r.Recommendations))
			for _, rec := range r.Recommendations[:min(len(r.Recommendations), 3)] {
				fmt.Fprintf(&sb, "    - %s\n", rec)
			}
		}
		for _, k := range sortedKeys(r.Metrics) {
			fmt.Fprintf(&sb, "  %s = %s\n", k, formatMetric(r.Metrics[k]))
		}
	}
	sb.WriteString(`
Create an executive summary with:
1. summary: 2-3 paragraphs covering key findings
2. key_insights: 3-5 most important insights
3. recommendations: top 3 priority actions
4. kpis: key metrics from the analysis as name/value pairs

Make it executive-friendly: clear, concise, actionable.`)
	return sb.String()
}
