// Package report builds weekly, monthly and executive business reports from
// the results of other agents, falling back to direct database summaries.
package report

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Name is the registry name of the meeting report agent.
const Name = "meeting_agent"

const (
	nodeReportType agent.NodeName = "determine_report_type"
	nodeAggregate  agent.NodeName = "aggregate_data"
	nodeGenerate   agent.NodeName = "generate_report"
	nodeMarkdown   agent.NodeName = "format_markdown"
)

var keywords = agent.KeywordScorer{
	High:   []string{"report", "summary", "meeting", "executive", "weekly", "monthly", "dashboard"},
	Medium: []string{"overview", "status", "update", "briefing", "presentation"},
}

const businessQuery = `SELECT COUNT(*) AS total_orders,
	COALESCE(SUM(sale_price), 0) AS total_revenue,
	COALESCE(SUM(profit), 0) AS total_profit,
	COALESCE(AVG(sale_price), 0) AS avg_order_value
FROM orders
WHERE order_date >= '%s'`

const inventoryStatusQuery = `SELECT COUNT(*) AS total_items,
	SUM(CASE WHEN stock_quantity <= reorder_level THEN 1 ELSE 0 END) AS critical_items
FROM inventory`

// Config configures the meeting report agent.
type Config struct {
	// WindowDays is the lookback for executive and meeting reports. Weekly
	// and monthly reports use 7 and 30 days.
	WindowDays int
	Timeout    time.Duration
}

// DefaultConfig uses a 30 day window.
func DefaultConfig() Config {
	return Config{WindowDays: 30, Timeout: 120 * time.Second}
}

type sourcedRec struct {
	source string
	text   string
}

type state struct {
	agent.State

	Kind     Kind
	Sources  []Source
	Recs     []sourcedRec
	Doc      Document
	Markdown string
}

// Agent is the meeting report agent.
type Agent struct {
	wf     *agent.Workflow[*state]
	exec   storage.Executor
	caller structured.Caller
	cfg    Config
	logger *logging.Logger

	// OnReport, when set, receives every rendered report after a run.
	OnReport func(doc Document, markdown string)

	// Now supplies the clock for the report date and window.
	Now func() time.Time
}

// New builds the meeting report agent. caller may be nil, in which case the
// report is assembled from its sources without a model.
func New(exec storage.Executor, caller structured.Caller, cfg Config) (*Agent, error) {
	if exec == nil {
		return nil, errors.New("report: executor is required")
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	a := &Agent{
		exec:   exec,
		caller: caller,
		cfg:    cfg,
		logger: logging.New().WithComponent(Name),
		Now:    time.Now,
	}

	g := agent.NewGraph[*state](nodeReportType).
		AddNode(nodeReportType, a.determineType).
		AddNode(nodeAggregate, a.aggregate).
		AddNode(nodeGenerate, a.generate).
		AddNode(nodeMarkdown, a.formatMarkdown).
		AddEdge(nodeReportType, nodeAggregate).
		AddEdge(nodeAggregate, nodeGenerate).
		AddEdge(nodeGenerate, nodeMarkdown).
		AddEdge(nodeMarkdown, agent.End)

	var err error
	a.wf, err = agent.NewWorkflow(Name, g, a.newState, a.format)
	if err != nil {
		return nil, err
	}
	a.wf.Timeout = cfg.Timeout
	a.wf.AfterRun = func(s *state, res agent.Result) {
		if a.OnReport != nil && res.Success && s.Markdown != "" {
			a.OnReport(s.Doc, s.Markdown)
		}
	}
	return a, nil
}

func (a *Agent) Name() string { return Name }

func (a *Agent) Capabilities() []string {
	return []string{
		"Weekly/monthly business reports",
		"Executive summaries for CxO",
		"Meeting preparation documents",
		"Cross-functional data aggregation",
		"Action item recommendations",
		"KPI dashboard creation",
	}
}

func (a *Agent) Confidence(query string) float64 {
	return keywords.Score(query)
}

func (a *Agent) Execute(ctx context.Context, query string, prior agent.Prior) agent.Result {
	return a.wf.Execute(ctx, query, prior)
}

func (a *Agent) newState(string, agent.Prior) *state {
	return &state{}
}

func (a *Agent) determineType(ctx context.Context, s *state) error {
	s.Kind = classify(s.Query)
	s.Record(nodeReportType, "system", "report type: "+string(s.Kind))
	return nil
}

// aggregate takes its sources from earlier agents in the chain. Without any,
// it summarizes orders and inventory straight from the database.
func (a *Agent) aggregate(ctx context.Context, s *state) error {
	for _, r := range s.Prior.Results() {
		if r.AgentName == Name || (len(r.Insights) == 0 && len(r.Metrics) == 0) {
			continue
		}
		src := Source{Name: r.AgentName, Metrics: r.Metrics, Summary: "No data"}
		if len(r.Insights) > 0 {
			src.Summary = r.Insights[0]
			src.Insights = r.Insights[:min(3, len(r.Insights))]
		}
		s.Sources = append(s.Sources, src)
		for _, rec := range r.Recommendations {
			s.Recs = append(s.Recs, sourcedRec{source: r.AgentName, text: rec})
		}
	}
	if len(s.Sources) > 0 {
		return nil
	}

	a.logger.Info("aggregate_from_database", map[string]interface{}{"kind": string(s.Kind)})
	since := a.Now().UTC().AddDate(0, 0, -a.windowDays(s.Kind))
	if src, err := a.businessSource(ctx, since, a.windowDays(s.Kind)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("business_metrics_failed", map[string]interface{}{"error": err.Error()})
	} else {
		s.Sources = append(s.Sources, src)
	}
	if src, err := a.inventorySource(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("inventory_status_failed", map[string]interface{}{"error": err.Error()})
	} else {
		s.Sources = append(s.Sources, src)
		if n := src.Metrics["critical_items"]; n > 0 {
			s.Recs = append(s.Recs, sourcedRec{source: src.Name, text: fmt.Sprintf("Replenish %.0f items below reorder level", n)})
		}
	}
	return nil
}

func (a *Agent) windowDays(k Kind) int {
	switch k {
	case Weekly:
		return 7
	case Monthly:
		return 30
	default:
		return a.cfg.WindowDays
	}
}

func (a *Agent) businessSource(ctx context.Context, since time.Time, days int) (Source, error) {
	t, err := a.exec.Query(ctx, fmt.Sprintf(businessQuery, since.Format(storage.TimeLayout)))
	if err != nil {
		return Source{}, err
	}
	if t.Len() == 0 {
		return Source{}, errors.New("no order summary returned")
	}
	m := map[string]float64{
		"total_orders":    t.Float(0, "total_orders"),
		"total_revenue":   t.Float(0, "total_revenue"),
		"total_profit":    t.Float(0, "total_profit"),
		"avg_order_value": t.Float(0, "avg_order_value"),
	}
	return Source{
		Name:    "business_metrics",
		Summary: fmt.Sprintf("Last %d days: %.0f orders, $%.2f revenue", days, m["total_orders"], m["total_revenue"]),
		Metrics: m,
		Insights: []string{
			fmt.Sprintf("Total orders: %.0f", m["total_orders"]),
			fmt.Sprintf("Revenue: $%.2f", m["total_revenue"]),
			fmt.Sprintf("Profit: $%.2f", m["total_profit"]),
		},
	}, nil
}

func (a *Agent) inventorySource(ctx context.Context) (Source, error) {
	t, err := a.exec.Query(ctx, inventoryStatusQuery)
	if err != nil {
		return Source{}, err
	}
	if t.Len() == 0 {
		return Source{}, errors.New("no inventory summary returned")
	}
	m := map[string]float64{
		"total_items":    t.Float(0, "total_items"),
		"critical_items": t.Float(0, "critical_items"),
	}
	return Source{
		Name:     "inventory_status",
		Summary:  fmt.Sprintf("%.0f items need reordering", m["critical_items"]),
		Metrics:  m,
		Insights: []string{fmt.Sprintf("%.0f of %.0f items below reorder level", m["critical_items"], m["total_items"])},
	}, nil
}

func (a *Agent) generate(ctx context.Context, s *state) error {
	var doc Document
	if a.caller == nil {
		doc = fallbackDocument(s.Kind, s.Sources, s.Recs)
	} else {
		var err error
		doc, err = structured.Decode[Document](ctx, a.caller, documentPrompt(s.Query, s.Kind, s.Sources), documentSchema)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("report_fallback", map[string]interface{}{"error": err.Error()})
			doc = fallbackDocument(s.Kind, s.Sources, s.Recs)
		}
	}
	doc.Kind = s.Kind
	doc.Date = a.Now().UTC().Format("2006-01-02")
	doc.Sources = nil
	for _, src := range s.Sources {
		doc.Sources = append(doc.Sources, src.Name)
	}
	s.Doc = doc
	return nil
}

func (a *Agent) formatMarkdown(ctx context.Context, s *state) error {
	s.Markdown = Markdown(s.Doc)
	return nil
}

func (a *Agent) format(s *state) agent.Result {
	res := agent.Result{Metrics: map[string]float64{}}
	d := s.Doc
	if d.Title == "" {
		return res
	}
	res.Insights = append(res.Insights, d.Title, d.ExecutiveSummary)
	res.Insights = append(res.Insights, d.KeyHighlights...)
	for _, act := range d.RecommendedActions {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("[%s] %s (Owner: %s, Timeline: %s)", act.Priority, act.Action, act.Owner, act.Timeline))
	}
	res.Metrics["data_sources_count"] = float64(len(d.Sources))
	res.Metrics["actions_count"] = float64(len(d.RecommendedActions))
	res.Metrics["highlights_count"] = float64(len(d.KeyHighlights))
	return res
}

func formatMetrics(m map[string]float64) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, k+"="+strconv.FormatFloat(m[k], 'f', -1, 64))
	}
	return strings.Join(parts, ", ")
}
