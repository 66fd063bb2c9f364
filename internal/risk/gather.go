package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/omnisupply/internal/storage"
)

const deliveryQuery = `SELECT carrier,
	COUNT(*) AS shipments,
	SUM(CASE WHEN actual_delivery > expected_delivery THEN 1 ELSE 0 END) AS late,
	AVG(CASE WHEN actual_delivery > expected_delivery
		THEN julianday(actual_delivery) - julianday(expected_delivery) ELSE 0 END) AS avg_delay_days
FROM shipments
WHERE shipment_date >= '%s' AND actual_delivery IS NOT NULL
GROUP BY carrier
ORDER BY late DESC, carrier`

const inventoryQuery = `SELECT COUNT(*) AS items,
	SUM(CASE WHEN stock_quantity <= reorder_level THEN 1 ELSE 0 END) AS below_reorder,
	SUM(CASE WHEN stock_quantity = 0 THEN 1 ELSE 0 END) AS stockouts,
	SUM(CASE WHEN stock_quantity > reorder_level * 3 THEN 1 ELSE 0 END) AS overstock
FROM inventory`

const criticalStockQuery = `SELECT sku, product_name, stock_quantity, reorder_level
FROM inventory
WHERE stock_quantity <= reorder_level
ORDER BY stock_quantity ASC, sku`

const qualityQuery = `SELECT category,
	COUNT(*) AS orders,
	SUM(CASE WHEN is_returned <> 0 THEN 1 ELSE 0 END) AS returned
FROM orders
WHERE order_date >= '%s'
GROUP BY category
ORDER BY returned DESC, category`

const financialQuery = `SELECT category,
	COUNT(*) AS orders,
	SUM(CASE WHEN profit < 0 THEN 1 ELSE 0 END) AS negative_margin,
	SUM(CASE WHEN discount_percent > %g THEN 1 ELSE 0 END) AS high_discount,
	AVG(profit / NULLIF(sale_price, 0)) AS avg_margin
FROM orders
WHERE order_date >= '%s'
GROUP BY category
ORDER BY avg_margin ASC, category`

// Observations holds whatever the gatherers managed to collect.
type Observations struct {
	Delivery  *DeliveryObservation
	Inventory *InventoryObservation
	Quality   *QualityObservation
	Financial *FinancialObservation
}

func gatherDelivery(ctx context.Context, exec storage.Executor, since string) (DeliveryObservation, error) {
	t, err := exec.Query(ctx, fmt.Sprintf(deliveryQuery, since))
	if err != nil {
		return DeliveryObservation{}, err
	}
	var o DeliveryObservation
	for i := 0; i < t.Len(); i++ {
		o.Carriers = append(o.Carriers, CarrierStat{
			Carrier:      t.String(i, "carrier"),
			Shipments:    int(t.Float(i, "shipments")),
			Late:         int(t.Float(i, "late")),
			AvgDelayDays: t.Float(i, "avg_delay_days"),
		})
	}
	return o, nil
}

func gatherInventory(ctx context.Context, exec storage.Executor) (InventoryObservation, error) {
	t, err := exec.Query(ctx, inventoryQuery)
	if err != nil {
		return InventoryObservation{}, err
	}
	var o InventoryObservation
	if t.Len() > 0 {
		o.Items = int(t.Float(0, "items"))
		o.BelowReorder = int(t.Float(0, "below_reorder"))
		o.Stockouts = int(t.Float(0, "stockouts"))
		o.Overstock = int(t.Float(0, "overstock"))
	}
	if o.BelowReorder == 0 {
		return o, nil
	}

	crit, err := exec.Query(ctx, criticalStockQuery)
	if err != nil {
		return InventoryObservation{}, err
	}
	for i := 0; i < crit.Len(); i++ {
		o.Critical = append(o.Critical, StockItem{
			SKU:          crit.String(i, "sku"),
			Product:      crit.String(i, "product_name"),
			Stock:        int(crit.Float(i, "stock_quantity")),
			ReorderLevel: int(crit.Float(i, "reorder_level")),
		})
	}
	return o, nil
}

func gatherQuality(ctx context.Context, exec storage.Executor, since string) (QualityObservation, error) {
	t, err := exec.Query(ctx, fmt.Sprintf(qualityQuery, since))
	if err != nil {
		return QualityObservation{}, err
	}
	var o QualityObservation
	for i := 0; i < t.Len(); i++ {
		o.Categories = append(o.Categories, CategoryReturns{
			Category: t.String(i, "category"),
			Orders:   int(t.Float(i, "orders")),
			Returned: int(t.Float(i, "returned")),
		})
	}
	return o, nil
}

func gatherFinancial(ctx context.Context, exec storage.Executor, since string) (FinancialObservation, error) {
	t, err := exec.Query(ctx, fmt.Sprintf(financialQuery, HighDiscountPercent, since))
	if err != nil {
		return FinancialObservation{}, err
	}
	var o FinancialObservation
	for i := 0; i < t.Len(); i++ {
		o.Categories = append(o.Categories, CategoryMargins{
			Category:       t.String(i, "category"),
			Orders:         int(t.Float(i, "orders")),
			NegativeMargin: int(t.Float(i, "negative_margin")),
			HighDiscount:   int(t.Float(i, "high_discount")),
			AvgMargin:      t.Float(i, "avg_margin"),
		})
	}
	return o, nil
}

// gathered is the outcome of one dimension's gatherer.
type gathered struct {
	score Score
	obs   any
}

type gatherer struct {
	dim Dimension
	run func(ctx context.Context) (any, Score, error)
}

// Gather runs the four data gatherers concurrently, each bounded by timeout.
// A failing or slow gatherer yields a LOW, zero-confidence placeholder score.
// Results are keyed by dimension regardless of completion order.
func Gather(ctx context.Context, exec storage.Executor, since time.Time, timeout time.Duration) (map[Dimension]Score, Observations) {
	sinceText := since.UTC().Format(storage.TimeLayout)
	jobs := []gatherer{
		{Delivery, func(ctx context.Context) (any, Score, error) {
			o, err := gatherDelivery(ctx, exec, sinceText)
			return &o, DeliveryScore(o), err
		}},
		{Inventory, func(ctx context.Context) (any, Score, error) {
			o, err := gatherInventory(ctx, exec)
			return &o, InventoryScore(o), err
		}},
		{Quality, func(ctx context.Context) (any, Score, error) {
			o, err := gatherQuality(ctx, exec, sinceText)
			return &o, QualityScore(o), err
		}},
		{Financial, func(ctx context.Context) (any, Score, error) {
			o, err := gatherFinancial(ctx, exec, sinceText)
			return &o, FinancialScore(o), err
		}},
	}

	results := make([]gathered, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job gatherer) {
			defer wg.Done()
			results[i] = runGatherer(ctx, job, timeout)
		}(i, job)
	}
	wg.Wait()

	scores := make(map[Dimension]Score, len(jobs))
	var obs Observations
	for i, job := range jobs {
		r := results[i]
		scores[job.dim] = r.score
		if r.obs == nil {
			continue
		}
		switch o := r.obs.(type) {
		case *DeliveryObservation:
			obs.Delivery = o
		case *InventoryObservation:
			obs.Inventory = o
		case *QualityObservation:
			obs.Quality = o
		case *FinancialObservation:
			obs.Financial = o
		}
	}
	return scores, obs
}

func runGatherer(ctx context.Context, job gatherer, timeout time.Duration) gathered {
	var (
		gctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		gctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		gctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		obs   any
		score Score
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("panic: %v", r)}
			}
			done <- out
		}()
		out.obs, out.score, out.err = job.run(gctx)
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == nil && errors.Is(gctx.Err(), context.DeadlineExceeded) {
				return gathered{score: placeholder(job.dim, fmt.Sprintf("timed out after %s", timeout), true)}
			}
			return gathered{score: placeholder(job.dim, out.err.Error(), false)}
		}
		return gathered{score: out.score, obs: out.obs}
	case <-gctx.Done():
		if ctx.Err() == nil {
			return gathered{score: placeholder(job.dim, fmt.Sprintf("timed out after %s", timeout), true)}
		}
		return gathered{score: placeholder(job.dim, ctx.Err().Error(), false)}
	}
}

func placeholder(d Dimension, msg string, timedOut bool) Score {
	return Score{
		Dimension:  d,
		Level:      Low,
		Confidence: 0,
		TimedOut:   timedOut,
		Error:      msg,
	}
}
