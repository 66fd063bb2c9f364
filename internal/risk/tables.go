package risk

import (
	"fmt"
	"math"
)

// Scoring constants for the dimension tables.
const (
	// Delivery: 0.7 late-shipment rate + 0.3 route risk, where route risk
	// saturates at an average delay of RouteDelaySaturationDays.
	DeliveryLateWeight       = 0.7
	DeliveryRouteWeight      = 0.3
	RouteDelaySaturationDays = 10.0

	// Inventory: 0.7 share of SKUs at or below reorder level + 0.3 stockout share.
	InventoryBelowReorderWeight = 0.7
	InventoryStockoutWeight     = 0.3

	// Quality: return rate relative to ReturnRateSaturation.
	ReturnRateSaturation = 0.30

	// Financial: orders with negative profit or discount above this percentage,
	// over all orders.
	HighDiscountPercent = 30.0

	// Disruption: half worst-carrier late rate, half stockout share.
	DisruptionCarrierWeight = 0.5
	DisruptionStockWeight   = 0.5

	// Confidence reaches 1 once a dimension has this many observations.
	FullConfidenceSamples = 20
)

// CarrierStat is the on-time performance of one carrier.
type CarrierStat struct {
	Carrier      string
	Shipments    int
	Late         int
	AvgDelayDays float64
}

// LateRate is Late over Shipments.
func (c CarrierStat) LateRate() float64 {
	return ratio(c.Late, c.Shipments)
}

// DeliveryObservation is the raw delivery data for the window.
type DeliveryObservation struct {
	Carriers []CarrierStat
}

// Totals sums shipments and late shipments over all carriers.
func (o DeliveryObservation) Totals() (shipments, late int) {
	for _, c := range o.Carriers {
		shipments += c.Shipments
		late += c.Late
	}
	return shipments, late
}

// AvgDelayDays is the shipment-weighted average delay.
func (o DeliveryObservation) AvgDelayDays() float64 {
	total, _ := o.Totals()
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range o.Carriers {
		sum += c.AvgDelayDays * float64(c.Shipments)
	}
	return sum / float64(total)
}

// WorstCarrier returns the carrier with the highest late rate. Ties keep the
// earlier carrier.
func (o DeliveryObservation) WorstCarrier() (CarrierStat, bool) {
	var worst CarrierStat
	found := false
	for _, c := range o.Carriers {
		if c.Shipments == 0 {
			continue
		}
		if !found || c.LateRate() > worst.LateRate() {
			worst, found = c, true
		}
	}
	return worst, found
}

// StockItem is an inventory line at or below its reorder level.
type StockItem struct {
	SKU          string
	Product      string
	Stock        int
	ReorderLevel int
}

// InventoryObservation is the raw inventory data.
type InventoryObservation struct {
	Items        int
	BelowReorder int
	Stockouts    int
	Overstock    int
	Critical     []StockItem
}

// StockoutRate is Stockouts over Items.
func (o InventoryObservation) StockoutRate() float64 {
	return ratio(o.Stockouts, o.Items)
}

// CategoryReturns is the return count of one product category.
type CategoryReturns struct {
	Category string
	Orders   int
	Returned int
}

// ReturnRate is Returned over Orders.
func (c CategoryReturns) ReturnRate() float64 {
	return ratio(c.Returned, c.Orders)
}

// QualityObservation is the raw returns data for the window.
type QualityObservation struct {
	Categories []CategoryReturns
}

// Totals sums orders and returns over all categories.
func (o QualityObservation) Totals() (orders, returned int) {
	for _, c := range o.Categories {
		orders += c.Orders
		returned += c.Returned
	}
	return orders, returned
}

// CategoryMargins is the margin profile of one product category.
type CategoryMargins struct {
	Category       string
	Orders         int
	NegativeMargin int
	HighDiscount   int
	AvgMargin      float64
}

// AtRiskRate is negative-margin plus high-discount orders over all orders.
func (c CategoryMargins) AtRiskRate() float64 {
	return ratio(c.NegativeMargin+c.HighDiscount, c.Orders)
}

// FinancialObservation is the raw margin data for the window.
type FinancialObservation struct {
	Categories []CategoryMargins
}

// Totals sums orders, negative-margin and high-discount orders.
func (o FinancialObservation) Totals() (orders, negative, highDiscount int) {
	for _, c := range o.Categories {
		orders += c.Orders
		negative += c.NegativeMargin
		highDiscount += c.HighDiscount
	}
	return orders, negative, highDiscount
}

// DeliveryScore maps delivery data to a score.
func DeliveryScore(o DeliveryObservation) Score {
	total, late := o.Totals()
	lateRate := ratio(late, total)
	avgDelay := o.AvgDelayDays()
	routeRisk := clamp(avgDelay / RouteDelaySaturationDays)

	s := Score{
		Dimension:  Delivery,
		Score:      clamp(DeliveryLateWeight*lateRate + DeliveryRouteWeight*routeRisk),
		Confidence: sampleConfidence(total),
		ContributingFactors: []string{
			fmt.Sprintf("%d of %d shipments late (%.1f%%)", late, total, lateRate*100),
			fmt.Sprintf("average delay %.1f days", avgDelay),
		},
	}
	if worst, ok := o.WorstCarrier(); ok && worst.Late > 0 {
		s.ContributingFactors = append(s.ContributingFactors,
			fmt.Sprintf("worst carrier %s at %.1f%% late", worst.Carrier, worst.LateRate()*100))
	}
	return s
}

// InventoryScore maps inventory data to a score.
func InventoryScore(o InventoryObservation) Score {
	below := ratio(o.BelowReorder, o.Items)
	stockout := o.StockoutRate()
	return Score{
		Dimension:  Inventory,
		Score:      clamp(InventoryBelowReorderWeight*below + InventoryStockoutWeight*stockout),
		Confidence: sampleConfidence(o.Items),
		ContributingFactors: []string{
			fmt.Sprintf("%d of %d SKUs at or below reorder level", o.BelowReorder, o.Items),
			fmt.Sprintf("%d SKUs out of stock", o.Stockouts),
			fmt.Sprintf("%d SKUs overstocked", o.Overstock),
		},
	}
}

// QualityScore maps returns data to a score.
func QualityScore(o QualityObservation) Score {
	orders, returned := o.Totals()
	rate := ratio(returned, orders)
	s := Score{
		Dimension:  Quality,
		Score:      clamp(rate / ReturnRateSaturation),
		Confidence: sampleConfidence(orders),
		ContributingFactors: []string{
			fmt.Sprintf("%d of %d orders returned (%.1f%%)", returned, orders, rate*100),
		},
	}
	worst := ""
	worstRate := 0.0
	for _, c := range o.Categories {
		if r := c.ReturnRate(); r > worstRate {
			worst, worstRate = c.Category, r
		}
	}
	if worst != "" {
		s.ContributingFactors = append(s.ContributingFactors,
			fmt.Sprintf("highest return rate in %s (%.1f%%)", worst, worstRate*100))
	}
	return s
}

// FinancialScore maps margin data to a score.
func FinancialScore(o FinancialObservation) Score {
	orders, negative, highDiscount := o.Totals()
	return Score{
		Dimension:  Financial,
		Score:      clamp(ratio(negative+highDiscount, orders)),
		Confidence: sampleConfidence(orders),
		ContributingFactors: []string{
			fmt.Sprintf("%d orders with negative margin", negative),
			fmt.Sprintf("%d orders discounted above %.0f%%", highDiscount, HighDiscountPercent),
		},
	}
}

// DisruptionScore derives disruption risk from delivery and inventory data.
// Its confidence is the lower of the two input confidences.
func DisruptionScore(d DeliveryObservation, dConf float64, inv InventoryObservation, iConf float64) Score {
	worstRate := 0.0
	factors := []string{}
	if worst, ok := d.WorstCarrier(); ok {
		worstRate = worst.LateRate()
		factors = append(factors, fmt.Sprintf("carrier concentration: %s late %.1f%%", worst.Carrier, worstRate*100))
	}
	factors = append(factors, fmt.Sprintf("stockout rate %.1f%%", inv.StockoutRate()*100))
	return Score{
		Dimension:           Disruption,
		Score:               clamp(DisruptionCarrierWeight*worstRate + DisruptionStockWeight*inv.StockoutRate()),
		Confidence:          math.Min(dConf, iConf),
		ContributingFactors: factors,
	}
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func sampleConfidence(n int) float64 {
	return clamp(float64(n) / FullConfidenceSamples)
}
