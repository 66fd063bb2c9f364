package finance

import (
	"context"
	"fmt"

	"github.com/vinayprograms/omnisupply/internal/storage"
)

const plQuery = `SELECT COUNT(*) AS orders,
	COALESCE(SUM(sale_price), 0) AS revenue,
	COALESCE(SUM(sale_price - profit), 0) AS cogs,
	COALESCE(SUM(profit), 0) AS gross_profit,
	SUM(CASE WHEN is_returned <> 0 THEN 1 ELSE 0 END) AS returned
FROM orders
WHERE order_date >= '%s'`

const expenseQuery = `SELECT category,
	SUM(amount) AS total_amount,
	COUNT(*) AS transactions,
	MAX(amount) AS max_amount
FROM financial_transactions
WHERE UPPER(transaction_type) = 'EXPENSE' AND transaction_date >= '%s'
GROUP BY category
ORDER BY total_amount DESC, category`

const growthQuery = `SELECT CASE WHEN order_date >= '%s' THEN 'current' ELSE 'prior' END AS period,
	SUM(sale_price) AS revenue
FROM orders
WHERE order_date >= '%s'
GROUP BY period`

// ConcentrationShare is the expense share above which one category is flagged.
const ConcentrationShare = 0.40

// ForecastDays is the horizon of the cashflow projection.
const ForecastDays = 90

// PL is a profit and loss statement over a window. Expenses are filled in
// once the expense breakdown is known.
type PL struct {
	Orders      int
	Returned    int
	Revenue     float64
	COGS        float64
	GrossProfit float64
	Expenses    float64
}

// NetProfit is gross profit less operating expenses.
func (p PL) NetProfit() float64 { return p.GrossProfit - p.Expenses }

// GrossMarginPct is gross profit over revenue, in percent.
func (p PL) GrossMarginPct() float64 { return pct(p.GrossProfit, p.Revenue) }

// NetMarginPct is net profit over revenue, in percent.
func (p PL) NetMarginPct() float64 { return pct(p.NetProfit(), p.Revenue) }

// ExpenseCategory is one line of the expense breakdown.
type ExpenseCategory struct {
	Category     string
	Amount       float64
	Transactions int
	Largest      float64
}

// Expenses is the operating expense breakdown, largest first.
type Expenses struct {
	Categories []ExpenseCategory
}

// Total sums every category.
func (e Expenses) Total() float64 {
	sum := 0.0
	for _, c := range e.Categories {
		sum += c.Amount
	}
	return sum
}

// Share returns a category's fraction of the total.
func (e Expenses) Share(c ExpenseCategory) float64 {
	if t := e.Total(); t > 0 {
		return c.Amount / t
	}
	return 0
}

// Concentrated returns categories whose share exceeds ConcentrationShare.
func (e Expenses) Concentrated() []ExpenseCategory {
	var out []ExpenseCategory
	for _, c := range e.Categories {
		if e.Share(c) > ConcentrationShare {
			out = append(out, c)
		}
	}
	return out
}

// KPIs are derived from the P&L and the revenue trend.
type KPIs struct {
	GrossMarginPct    float64
	NetMarginPct      float64
	AverageOrderValue float64
	ReturnRatePct     float64
	RevenueGrowthPct  float64
	// ProjectedCashflow is the ForecastDays net cashflow at the current growth
	// rate and cost ratio.
	ProjectedCashflow float64
}

// DeriveKPIs computes KPIs from a P&L over windowDays and the revenue of the
// current and prior windows.
func DeriveKPIs(p PL, windowDays int, current, prior float64) KPIs {
	k := KPIs{
		GrossMarginPct: p.GrossMarginPct(),
		NetMarginPct:   p.NetMarginPct(),
		ReturnRatePct:  pct(float64(p.Returned), float64(p.Orders)),
	}
	if p.Orders > 0 {
		k.AverageOrderValue = p.Revenue / float64(p.Orders)
	}

	growth := 0.0
	if prior > 0 {
		growth = (current - prior) / prior
	}
	k.RevenueGrowthPct = growth * 100

	if windowDays > 0 && p.Revenue > 0 {
		projected := p.Revenue * (1 + growth) * float64(ForecastDays) / float64(windowDays)
		costRatio := (p.COGS + p.Expenses) / p.Revenue
		k.ProjectedCashflow = projected * (1 - costRatio)
	}
	return k
}

func loadPL(ctx context.Context, exec storage.Executor, since string) (PL, error) {
	t, err := exec.Query(ctx, fmt.Sprintf(plQuery, since))
	if err != nil {
		return PL{}, err
	}
	if t.Len() == 0 {
		return PL{}, nil
	}
	return PL{
		Orders:      int(t.Float(0, "orders")),
		Returned:    int(t.Float(0, "returned")),
		Revenue:     t.Float(0, "revenue"),
		COGS:        t.Float(0, "cogs"),
		GrossProfit: t.Float(0, "gross_profit"),
	}, nil
}

func loadExpenses(ctx context.Context, exec storage.Executor, since string) (Expenses, error) {
	t, err := exec.Query(ctx, fmt.Sprintf(expenseQuery, since))
	if err != nil {
		return Expenses{}, err
	}
	var e Expenses
	for i := 0; i < t.Len(); i++ {
		e.Categories = append(e.Categories, ExpenseCategory{
			Category:     t.String(i, "category"),
			Amount:       t.Float(i, "total_amount"),
			Transactions: int(t.Float(i, "transactions")),
			Largest:      t.Float(i, "max_amount"),
		})
	}
	return e, nil
}

// loadGrowth returns revenue since current and between prior and current.
func loadGrowth(ctx context.Context, exec storage.Executor, current, prior string) (float64, float64, error) {
	t, err := exec.Query(ctx, fmt.Sprintf(growthQuery, current, prior))
	if err != nil {
		return 0, 0, err
	}
	var cur, prev float64
	for i := 0; i < t.Len(); i++ {
		switch t.String(i, "period") {
		case "current":
			cur = t.Float(i, "revenue")
		case "prior":
			prev = t.Float(i, "revenue")
		}
	}
	return cur, prev, nil
}

func pct(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d * 100
}
