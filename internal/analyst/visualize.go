package analyst

// Visualization is a recommended chart for a result set.
type Visualization struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	SuitableFor string `json:"suitable_for"`
}

var chartRules = map[Category]Visualization{
	CategoryAggregation: {"bar_chart", "Bar chart showing aggregated metrics by dimension", "Comparing values across categories"},
	CategoryTrend:       {"line_chart", "Line chart showing metric trends over time", "Tracking changes over time periods"},
	CategoryComparison:  {"grouped_bar_chart", "Grouped bar chart for multi-dimensional comparison", "Comparing multiple metrics across categories"},
	CategoryAnomaly:     {"scatter_plot", "Scatter plot to visualize outliers and distributions", "Identifying anomalies and patterns"},
	CategoryDetail:      {"table", "Detailed table view of results", "Examining detailed records"},
}

// Recommend returns the charts for a category. Empty results get none.
func Recommend(c Category, rows int) []Visualization {
	if rows == 0 {
		return nil
	}
	v, ok := chartRules[c]
	if !ok {
		v = chartRules[CategoryDetail]
	}
	return []Visualization{v}
}
