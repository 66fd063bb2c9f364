package storage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	sampleCategories = []string{"Technology", "Furniture", "Office Supplies"}
	sampleRegions    = []string{"West", "East", "Central", "South"}
	sampleSegments   = []string{"Consumer", "Corporate", "Home Office"}
	sampleCarriers   = []string{"Maersk", "DHL", "FedEx", "UPS"}
	sampleWarehouses = []string{"Reno", "Memphis", "Newark"}
	sampleExpenses   = []string{"Freight", "Warehousing", "Salaries", "Marketing", "Utilities"}
)

// LoadSample fills the supply-chain tables with a deterministic demo data set
// spanning the 60 days before now. Existing rows are left in place.
func (s *Store) LoadSample(ctx context.Context, now time.Time) error {
	rng := rand.New(rand.NewPCG(42, 7))
	day := func(back int) string {
		return now.AddDate(0, 0, -back).UTC().Format(TimeLayout)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < 240; i++ {
		cat := sampleCategories[i%len(sampleCategories)]
		list := 20 + rng.Float64()*480
		cost := list * (0.55 + rng.Float64()*0.3)
		discountPct := float64(rng.IntN(8) * 5)
		qty := 1 + rng.IntN(6)
		sale := list * (1 - discountPct/100) * float64(qty)
		profit := sale - cost*float64(qty)
		returned := 0
		if rng.Float64() < 0.09 {
			returned = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO orders (order_id, order_date, ship_mode, segment, region, category, product_id,
			 cost_price, list_price, quantity, discount_percent, discount, sale_price, profit, is_returned)
			 VALUES (?, ?, 'Standard Class', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("ORD-%05d", i+1), day(rng.IntN(60)),
			sampleSegments[i%len(sampleSegments)], sampleRegions[rng.IntN(len(sampleRegions))], cat,
			fmt.Sprintf("P-%03d", i%40+1), cost, list, qty, discountPct, list*discountPct/100*float64(qty),
			sale, profit, returned,
		); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}

	for i := 0; i < 150; i++ {
		carrier := sampleCarriers[i%len(sampleCarriers)]
		shipped := rng.IntN(40) + 20
		transit := 3 + rng.IntN(10)
		// The first carrier runs late far more often.
		lateChance := 0.15
		if carrier == sampleCarriers[0] {
			lateChance = 0.45
		}
		delay := 0
		reason := ""
		if rng.Float64() < lateChance {
			delay = 1 + rng.IntN(6)
			reason = "port congestion"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO shipments (shipment_id, product_id, origin_port, destination_port, carrier,
			 shipment_date, expected_delivery, actual_delivery, quantity, weight_kg, freight_cost, status, delay_reason)
			 VALUES (?, ?, 'Shanghai', 'Long Beach', ?, ?, ?, ?, ?, ?, ?, 'DELIVERED', ?)`,
			fmt.Sprintf("SHP-%05d", i+1), fmt.Sprintf("P-%03d", i%40+1), carrier,
			day(shipped), day(shipped-transit), day(shipped-transit-delay),
			50+rng.IntN(500), 100+rng.Float64()*900, 500+rng.Float64()*2500, reason,
		); err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}
	}

	for i := 0; i < 40; i++ {
		reorder := 20 + rng.IntN(40)
		stock := reorder/2 + rng.IntN(reorder*3)
		if i%13 == 0 {
			stock = 0
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO inventory (sku, product_id, product_name, category, warehouse_location,
			 stock_quantity, reorder_level, reorder_quantity, unit_cost, last_restock_date, lead_time_days, supplier_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("SKU-%04d", i+1), fmt.Sprintf("P-%03d", i+1), fmt.Sprintf("Product %d", i+1),
			sampleCategories[i%len(sampleCategories)], sampleWarehouses[i%len(sampleWarehouses)],
			stock, reorder, reorder*2, 5+rng.Float64()*200, day(rng.IntN(30)), 7+rng.IntN(21),
			fmt.Sprintf("SUP-%02d", i%8+1),
		); err != nil {
			return fmt.Errorf("insert inventory: %w", err)
		}
	}

	for i := 0; i < 90; i++ {
		txType, cat, amount := "EXPENSE", sampleExpenses[i%len(sampleExpenses)], 500+rng.Float64()*4500
		if i%3 == 0 {
			txType, cat, amount = "REVENUE", sampleCategories[i%len(sampleCategories)], 2000+rng.Float64()*8000
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO financial_transactions (transaction_id, transaction_date, transaction_type,
			 category, amount, cost_center, business_unit)
			 VALUES (?, ?, ?, ?, ?, 'OPS', 'Supply Chain')`,
			fmt.Sprintf("TXN-%05d", i+1), day(rng.IntN(60)), txType, cat, amount,
		); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	return tx.Commit()
}
