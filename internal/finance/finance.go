// Package finance produces P&L statements, expense breakdowns and financial
// KPIs from orders and ledger transactions.
package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Name is the registry name of the finance agent.
const Name = "finance_agent"

const (
	nodePL       agent.NodeName = "pl_report"
	nodeExpenses agent.NodeName = "expenses"
	nodeKPIs     agent.NodeName = "kpis"
	nodeNarrate  agent.NodeName = "narrate"
)

var keywords = agent.KeywordScorer{
	High:   []string{"finance", "financial", "revenue", "profit", "expense", "cashflow", "forecast"},
	Medium: []string{"kpi", "margin", "cost", "budget", "p&l", "income", "spending"},
}

// Config configures the finance agent.
type Config struct {
	WindowDays int
	Timeout    time.Duration
}

// DefaultConfig uses a 30 day window.
func DefaultConfig() Config {
	return Config{WindowDays: 30, Timeout: 120 * time.Second}
}

type state struct {
	agent.State

	Since, PriorSince string

	PL          PL
	HavePL      bool
	Expenses    Expenses
	ExpensesErr error
	KPIs        KPIs
	HaveKPIs    bool
	Narrative   Narrative
	Narrated    bool
}

// Agent is the finance agent.
type Agent struct {
	wf     *agent.Workflow[*state]
	exec   storage.Executor
	caller structured.Caller
	cfg    Config
	logger *logging.Logger

	// Now supplies the clock for the reporting window.
	Now func() time.Time
}

// New builds the finance agent. caller may be nil, in which case the
// commentary is rule-based.
func New(exec storage.Executor, caller structured.Caller, cfg Config) (*Agent, error) {
	if exec == nil {
		return nil, errors.New("finance: executor is required")
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

	g := agent.NewGraph[*state](nodePL).
		AddNode(nodePL, a.plReport).
		AddNode(nodeExpenses, a.expenses).
		AddNode(nodeKPIs, a.kpis).
		AddNode(nodeNarrate, a.narrate).
		AddEdge(nodePL, nodeExpenses).
		AddEdge(nodeExpenses, nodeKPIs).
		AddEdge(nodeKPIs, nodeNarrate).
		AddEdge(nodeNarrate, agent.End)

	var err error
	a.wf, err = agent.NewWorkflow(Name, g, a.newState, a.format)
	if err != nil {
		return nil, err
	}
	a.wf.Timeout = cfg.Timeout
	return a, nil
}

func (a *Agent) Name() string { return Name }

func (a *Agent) Capabilities() []string {
	return []string{
		"P&L report generation",
		"Expense analysis and categorization",
		"Cashflow forecasting",
		"KPI calculation and trending",
		"Cost optimization recommendations",
		"Revenue analysis",
	}
}

func (a *Agent) Confidence(query string) float64 {
	return keywords.Score(query)
}

func (a *Agent) Execute(ctx context.Context, query string, prior agent.Prior) agent.Result {
	return a.wf.Execute(ctx, query, prior)
}

func (a *Agent) newState(string, agent.Prior) *state {
	now := a.Now().UTC()
	return &state{
		Since:      now.AddDate(0, 0, -a.cfg.WindowDays).Format(storage.TimeLayout),
		PriorSince: now.AddDate(0, 0, -2*a.cfg.WindowDays).Format(storage.TimeLayout),
	}
}

func (a *Agent) plReport(ctx context.Context, s *state) error {
	pl, err := loadPL(ctx, a.exec, s.Since)
	if err != nil {
		return fmt.Errorf("P&L generation failed: %w", err)
	}
	s.PL, s.HavePL = pl, true
	return nil
}

func (a *Agent) expenses(ctx context.Context, s *state) error {
	e, err := loadExpenses(ctx, a.exec, s.Since)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("expense_analysis_failed", map[string]interface{}{"error": err.Error()})
		s.ExpensesErr = err
		return nil
	}
	s.Expenses = e
	s.PL.Expenses = e.Total()
	return nil
}

func (a *Agent) kpis(ctx context.Context, s *state) error {
	cur, prev, err := loadGrowth(ctx, a.exec, s.Since, s.PriorSince)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("revenue_growth_failed", map[string]interface{}{"error": err.Error()})
		cur, prev = s.PL.Revenue, 0
	}
	s.KPIs, s.HaveKPIs = DeriveKPIs(s.PL, a.cfg.WindowDays, cur, prev), true
	return nil
}

func (a *Agent) narrate(ctx context.Context, s *state) error {
	s.Narrated = true
	if a.caller == nil {
		s.Narrative = fallbackNarrative(s.PL, s.Expenses, s.KPIs)
		return nil
	}
	n, err := structured.Decode[Narrative](ctx, a.caller,
		narrativePrompt(s.Query, s.PL, s.Expenses, s.KPIs, a.cfg.WindowDays), narrativeSchema)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("narrative_fallback", map[string]interface{}{"error": err.Error()})
		n = fallbackNarrative(s.PL, s.Expenses, s.KPIs)
	}
	s.Narrative = n
	return nil
}

func (a *Agent) format(s *state) agent.Result {
	res := agent.Result{Metrics: map[string]float64{}}
	if !s.HavePL {
		return res
	}

	p := s.PL
	res.Insights = append(res.Insights,
		fmt.Sprintf("P&L (last %d days): revenue $%.2f, COGS $%.2f, gross profit $%.2f", a.cfg.WindowDays, p.Revenue, p.COGS, p.GrossProfit))
	if s.ExpensesErr != nil {
		res.Insights = append(res.Insights, "Expense breakdown unavailable: "+s.ExpensesErr.Error())
	} else {
		res.Insights = append(res.Insights,
			fmt.Sprintf("Operating expenses $%.2f, net profit $%.2f", p.Expenses, p.NetProfit()))
		for i, c := range s.Expenses.Categories {
			if i == 3 {
				break
			}
			res.Insights = append(res.Insights,
				fmt.Sprintf("Expense: %s $%.2f (%.1f%%)", c.Category, c.Amount, s.Expenses.Share(c)*100))
		}
	}

	res.Metrics["orders"] = float64(p.Orders)
	res.Metrics["revenue"] = p.Revenue
	res.Metrics["cogs"] = p.COGS
	res.Metrics["gross_profit"] = p.GrossProfit
	res.Metrics["operating_expenses"] = p.Expenses
	res.Metrics["net_profit"] = p.NetProfit()

	if s.HaveKPIs {
		k := s.KPIs
		res.Insights = append(res.Insights,
			fmt.Sprintf("Gross margin %.1f%%, net margin %.1f%%, average order value $%.2f", k.GrossMarginPct, k.NetMarginPct, k.AverageOrderValue))
		res.Insights = append(res.Insights,
			fmt.Sprintf("Revenue growth %.1f%%, return rate %.1f%%, projected %d-day cashflow $%.2f", k.RevenueGrowthPct, k.ReturnRatePct, ForecastDays, k.ProjectedCashflow))
		res.Metrics["gross_margin_pct"] = k.GrossMarginPct
		res.Metrics["net_margin_pct"] = k.NetMarginPct
		res.Metrics["average_order_value"] = k.AverageOrderValue
		res.Metrics["return_rate_pct"] = k.ReturnRatePct
		res.Metrics["revenue_growth_pct"] = k.RevenueGrowthPct
		res.Metrics["projected_cashflow_90d"] = k.ProjectedCashflow
	}

	if s.Narrated {
		res.Insights = append(res.Insights, s.Narrative.Highlights...)
		for _, c := range s.Narrative.Concerns {
			res.Insights = append(res.Insights, "Concern: "+c)
		}
		res.Recommendations = append(res.Recommendations, s.Narrative.Recommendations...)
	}
	return res
}
