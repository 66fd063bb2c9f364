package agent

import "strings"

// Keyword weights used by KeywordScorer.
const (
	HighKeywordWeight   = 0.15
	MediumKeywordWeight = 0.08
)

// KeywordScorer estimates confidence from keyword hits in a query.
type KeywordScorer struct {
	High   []string
	Medium []string
}

// Score adds HighKeywordWeight per high keyword and MediumKeywordWeight per
// medium keyword found in query, capped at 1.
func (k KeywordScorer) Score(query string) float64 {
	q := strings.ToLower(query)
	score := 0.0
	for _, kw := range k.High {
		if strings.Contains(q, kw) {
			score += HighKeywordWeight
		}
	}
	for _, kw := range k.Medium {
		if strings.Contains(q, kw) {
			score += MediumKeywordWeight
		}
	}
	return min(score, 1.0)
}
