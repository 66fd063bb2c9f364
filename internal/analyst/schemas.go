package analyst

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/agent"
	"github.com/vinayprograms/omnisupply/internal/storage"
	"github.com/vinayprograms/omnisupply/internal/structured"
)

// Category is the kind of analysis a query asks for.
type Category string

const (
	CategoryAggregation Category = "aggregation"
	CategoryTrend       Category = "trend"
	CategoryAnomaly     Category = "anomaly"
	CategoryComparison  Category = "comparison"
	CategoryDetail      Category = "detail"
)

// Categories is the closed set of classification outcomes.
var Categories = []Category{CategoryAggregation, CategoryTrend, CategoryAnomaly, CategoryComparison, CategoryDetail}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Entities are the query parts the classifier extracted.
type Entities struct {
	Metrics    []string `json:"metrics"`
	Dimensions []string `json:"dimensions"`
	Filters    []string `json:"filters"`
	TimePeriod string   `json:"time_period"`
}

// Classification is the classifier's reading of a query.
type Classification struct {
	Category   Category `json:"query_type"`
	Entities   Entities `json:"entities"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// SQLQuery is a generated statement.
type SQLQuery struct {
	SQL             string   `json:"sql"`
	Explanation     string   `json:"explanation"`
	ExpectedColumns []string `json:"expected_columns"`
}

// Analysis is the reading of a result set.
type Analysis struct {
	Summary         string   `json:"summary"`
	KeyInsights     []string `json:"key_insights"`
	Anomalies       []string `json:"anomalies"`
	Recommendations []string `json:"recommendations"`
}

var (
	classificationSchema = structured.MustSchema("query_classification",
		"classification of a data analysis request", `{
	"type": "object",
	"required": ["query_type", "confidence"],
	"properties": {
		"query_type": {"type": "string", "description": "one of aggregation, trend, comparison, anomaly, detail"},
		"entities": {
			"type": "object",
			"properties": {
				"metrics": {"type": "array", "items": {"type": "string"}},
				"dimensions": {"type": "array", "items": {"type": "string"}},
				"filters": {"type": "array", "items": {"type": "string"}},
				"time_period": {"type": "string"}
			}
		},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"}
	}
}`)

	sqlSchema = structured.MustSchema("sql_query",
		"a single read-only SQLite SELECT statement", `{
	"type": "object",
	"required": ["sql"],
	"properties": {
		"sql": {"type": "string", "minLength": 1},
		"explanation": {"type": "string"},
		"expected_columns": {"type": "array", "items": {"type": "string"}}
	}
}`)

	analysisSchema = structured.MustSchema("data_analysis",
		"findings from a query result", `{
	"type": "object",
	"required": ["summary", "key_insights"],
	"properties": {
		"summary": {"type": "string"},
		"key_insights": {"type": "array", "items": {"type": "string"}},
		"anomalies": {"type": "array", "items": {"type": "string"}},
		"recommendations": {"type": "array", "items": {"type": "string"}}
	}
}`)
)

const tableGuide = `Available tables (SQLite):
- orders (order_id, order_date, segment, region, state, category, sub_category, product_id, cost_price, list_price, quantity, discount_percent, sale_price, profit, is_returned)
- shipments (shipment_id, product_id, carrier, origin_port, destination_port, shipment_date, expected_delivery, actual_delivery, freight_cost, status, delay_reason)
- inventory (sku, product_id, product_name, category, warehouse_location, stock_quantity, reorder_level, unit_cost, lead_time_days, supplier_id)
- financial_transactions (transaction_id, transaction_date, transaction_type ('REVENUE' or 'EXPENSE'), category, amount, cost_center)
sale_price is the order line total and profit its margin in currency. Dates are stored as text 'YYYY-MM-DD HH:MM:SS'.`

func classifyPrompt(query string) string {
	return fmt.Sprintf(`Classify this data analysis query and extract entities.

User Query: %s

%s

Determine:
1. Query type (aggregation, trend, comparison, anomaly, detail)
2. Metrics to calculate
3. Dimensions to group by
4. Any filters mentioned
5. Time period if mentioned`, query, tableGuide)
}

func sqlPrompt(query string, c Classification, rowLimit int, prior agent.Prior, lastErr error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a SQL query for this analysis request.\n\nUser Query: %s\n\n", query)
	fmt.Fprintf(&sb, "Classification:\n- Type: %s\n- Metrics: %s\n- Dimensions: %s\n- Filters: %s\n- Time Period: %s\n\n",
		c.Category, orNone(c.Entities.Metrics), orNone(c.Entities.Dimensions), orNone(c.Entities.Filters),
		orDefault(c.Entities.TimePeriod, "Not specified"))
	sb.WriteString(tableGuide)
	fmt.Fprintf(&sb, "\n\nGenerate one valid SQLite SELECT statement. Use julianday() or date() for date arithmetic. Limit results to %d rows.", rowLimit)

	if results := prior.Results(); len(results) > 0 {
		sb.WriteString("\n\nFindings from earlier agents:\n")
		for _, r := range results {
			for _, in := range r.Insights {
				fmt.Fprintf(&sb, "- [%s] %s\n", r.AgentName, in)
			}
		}
	}
	if lastErr != nil {
		fmt.Fprintf(&sb, "\n\nPrevious attempt failed with error: %v\nPlease fix the SQL query.", lastErr)
	}
	return sb.String()
}

func analysisPrompt(query string, t *storage.Table, anomalies []Anomaly) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze these query results and provide insights.\n\nUser Query: %s\n\n", query)
	shown := min(t.Len(), 10)
	fmt.Fprintf(&sb, "Query Results (%d total rows, showing first %d):\n", t.Len(), shown)
	sb.WriteString(strings.Join(t.Columns, " | "))
	sb.WriteString("\n")
	for i := 0; i < shown; i++ {
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = t.String(i, c)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if len(anomalies) > 0 {
		sb.WriteString("\nStatistical outliers (|z| >= 2.5):\n")
		for _, a := range anomalies {
			fmt.Fprintf(&sb, "- %s\n", a)
		}
	}
	sb.WriteString(`
Provide:
1. Summary of findings (2-3 sentences)
2. 3-5 key insights
3. Any anomalies detected (outliers, unusual patterns)
4. Recommended actions based on findings`)
	return sb.String()
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var (
	noDataAnalysis = Analysis{
		Summary:         "No data returned from query.",
		KeyInsights:     []string{"Query returned no results"},
		Recommendations: []string{"Verify data availability and query filters"},
	}
	failedAnalysis = Analysis{
		Summary:     "Analysis failed due to processing error.",
		KeyInsights: []string{"Unable to complete analysis"},
	}
)
