// Package risk scores supply-chain risk across five weighted dimensions and
// turns the scores into alerts.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// Dimension is one axis of risk.
type Dimension string

const (
	Delivery   Dimension = "delivery"
	Inventory  Dimension = "inventory"
	Quality    Dimension = "quality"
	Financial  Dimension = "financial"
	Disruption Dimension = "disruption"
)

// Dimensions lists every dimension in canonical order.
var Dimensions = []Dimension{Delivery, Inventory, Quality, Financial, Disruption}

// Level is a risk bucket.
type Level string

const (
	Low      Level = "LOW"
	Medium   Level = "MEDIUM"
	High     Level = "HIGH"
	Critical Level = "CRITICAL"
)

// Ordinal returns 0 for LOW through 3 for CRITICAL.
func (l Level) Ordinal() int {
	switch l {
	case Medium:
		return 1
	case High:
		return 2
	case Critical:
		return 3
	default:
		return 0
	}
}

// ErrInvalidWeights is returned by NewEngine for unusable weights or levels.
var ErrInvalidWeights = errors.New("invalid risk weights")

const weightTolerance = 1e-9

// Weights are the per-dimension contributions to the overall score.
type Weights struct {
	Delivery   float64
	Inventory  float64
	Quality    float64
	Financial  float64
	Disruption float64
}

// DefaultWeights returns delivery 0.30, inventory 0.25, quality 0.20,
// financial 0.15, disruption 0.10.
func DefaultWeights() Weights {
	return Weights{Delivery: 0.30, Inventory: 0.25, Quality: 0.20, Financial: 0.15, Disruption: 0.10}
}

// Of returns the weight of d.
func (w Weights) Of(d Dimension) float64 {
	switch d {
	case Delivery:
		return w.Delivery
	case Inventory:
		return w.Inventory
	case Quality:
		return w.Quality
	case Financial:
		return w.Financial
	case Disruption:
		return w.Disruption
	}
	return 0
}

// Validate requires non-negative weights summing to 1.0.
func (w Weights) Validate() error {
	sum := 0.0
	for _, d := range Dimensions {
		v := w.Of(d)
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s weight %v is negative", ErrInvalidWeights, d, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Levels are the lower bounds of MEDIUM and HIGH and the exclusive lower bound
// of CRITICAL.
type Levels struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultLevels returns LOW < 0.3 <= MEDIUM < 0.6 <= HIGH <= 0.8 < CRITICAL.
func DefaultLevels() Levels {
	return Levels{Medium: 0.3, High: 0.6, Critical: 0.8}
}

// Validate requires 0 < Medium < High < Critical < 1.
func (l Levels) Validate() error {
	if !(0 < l.Medium && l.Medium < l.High && l.High < l.Critical && l.Critical < 1) {
		return fmt.Errorf("%w: levels must satisfy 0 < medium < high < critical < 1", ErrInvalidWeights)
	}
	return nil
}

// Score is one dimension's assessment.
type Score struct {
	Dimension           Dimension `json:"dimension" yaml:"dimension"`
	Score               float64   `json:"score" yaml:"score"`
	Level               Level     `json:"level" yaml:"level"`
	ContributingFactors []string  `json:"contributing_factors,omitempty" yaml:"contributing_factors,omitempty"`
	Confidence          float64   `json:"confidence" yaml:"confidence"`
	TimedOut            bool      `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Error               string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Unavailable reports whether the score is a placeholder for missing data.
func (s Score) Unavailable() bool {
	return s.Error != "" || s.TimedOut
}

// Assessment combines the five dimension scores.
type Assessment struct {
	OverallScore float64 `json:"overall_score" yaml:"overall_score"`
	OverallLevel Level   `json:"overall_level" yaml:"overall_level"`
	Scores       []Score `json:"scores" yaml:"scores"`
}

// Score returns the score for d.
func (a Assessment) Score(d Dimension) Score {
	for _, s := range a.Scores {
		if s.Dimension == d {
			return s
		}
	}
	return Score{Dimension: d, Level: Low}
}

// Engine classifies and aggregates scores. It is immutable and safe for
// concurrent use.
type Engine struct {
	weights Weights
	levels  Levels
}

// NewEngine validates weights and levels.
func NewEngine(w Weights, l Levels) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w, levels: l}, nil
}

// Weights returns the engine's weights.
func (e *Engine) Weights() Weights { return e.weights }

// Levels returns the engine's level bounds.
func (e *Engine) Levels() Levels { return e.levels }

// Classify maps a score to its level.
func (e *Engine) Classify(score float64) Level {
	switch {
	case score > e.levels.Critical:
		return Critical
	case score >= e.levels.High:
		return High
	case score >= e.levels.Medium:
		return Medium
	default:
		return Low
	}
}

// Assess computes the weighted overall score. Scores are clamped to [0,1] and
// reclassified; dimensions absent from scores count as 0. When a dimension
// appears more than once the first occurrence is used.
func (e *Engine) Assess(scores []Score) Assessment {
	byDim := make(map[Dimension]Score, len(scores))
	for _, s := range scores {
		if _, seen := byDim[s.Dimension]; !seen {
			byDim[s.Dimension] = s
		}
	}

	out := Assessment{Scores: make([]Score, 0, len(Dimensions))}
	for _, d := range Dimensions {
		s, ok := byDim[d]
		if !ok {
			s = Score{Dimension: d, Error: "no data"}
		}
		s.Score = clamp(s.Score)
		s.Level = e.Classify(s.Score)
		s.Confidence = clamp(s.Confidence)
		out.OverallScore += e.weights.Of(d) * s.Score
		out.Scores = append(out.Scores, s)
	}
	out.OverallScore = clamp(out.OverallScore)
	out.OverallLevel = e.Classify(out.OverallScore)
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
