package analyst

import (
	"fmt"
	"math"
	"sort"

	"github.com/vinayprograms/omnisupply/internal/storage"
)

// ZThreshold is the absolute z-score at or above which a value is an outlier.
const ZThreshold = 2.5

// minSamples is the smallest column that can produce a meaningful z-score.
const minSamples = 3

// Anomaly is one outlying cell.
type Anomaly struct {
	Column string
	Row    int
	Label  string
	Value  float64
	Z      float64
}

func (a Anomaly) String() string {
	who := fmt.Sprintf("row %d", a.Row+1)
	if a.Label != "" {
		who = a.Label
	}
	return fmt.Sprintf("%s: %s = %.2f (z = %+.2f)", who, a.Column, a.Value, a.Z)
}

// DetectAnomalies flags values whose z-score over their column is at least
// ZThreshold in magnitude. Only numeric columns are considered and NULLs are
// skipped. Results are ordered by |z| descending, then by column and row.
func DetectAnomalies(t *storage.Table) []Anomaly {
	if t.Len() < minSamples {
		return nil
	}
	labelCol := labelColumn(t)

	var out []Anomaly
	for _, col := range t.NumericColumns() {
		idx := t.Index(col)
		var rows []int
		var vals []float64
		for r, row := range t.Rows {
			if row[idx] == nil {
				continue
			}
			rows = append(rows, r)
			vals = append(vals, t.Float(r, col))
		}
		if len(vals) < minSamples {
			continue
		}

		mean, std := meanStd(vals)
		if std == 0 {
			continue
		}
		for i, v := range vals {
			z := (v - mean) / std
			if math.Abs(z) < ZThreshold {
				continue
			}
			a := Anomaly{Column: col, Row: rows[i], Value: v, Z: z}
			if labelCol != "" {
				a.Label = t.String(rows[i], labelCol)
			}
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Z) > math.Abs(out[j].Z)
	})
	return out
}

// meanStd returns the mean and population standard deviation.
func meanStd(vals []float64) (float64, float64) {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	ss := 0.0
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(vals)))
}

// labelColumn picks the first non-numeric column to name rows by.
func labelColumn(t *storage.Table) string {
	numeric := make(map[string]bool)
	for _, c := range t.NumericColumns() {
		numeric[c] = true
	}
	for _, c := range t.Columns {
		if !numeric[c] {
			return c
		}
	}
	return ""
}
