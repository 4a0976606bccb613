package services

import (
	"math"

	"conceptgraph/domain/core/entities"
)

// ScoreInput describes one discovered concept to a RelevanceScorer
type ScoreInput struct {
	Seed  *entities.ConceptNode
	Node  *entities.ConceptNode
	Via   *entities.ConceptEdge // nil for seeds
	Depth int
}

// RelevanceScorer rates a discovered concept against its seed. Scores are
// clamped to [0,1] by the traverser.
type RelevanceScorer interface {
	Score(in ScoreInput) float64
}

// RelevanceScorerFunc adapts a function to RelevanceScorer
type RelevanceScorerFunc func(in ScoreInput) float64

// Score calls f(in)
func (f RelevanceScorerFunc) Score(in ScoreInput) float64 { return f(in) }

// DepthDecayScorer scores seeds 1.0 and other concepts by the weight of the
// edge they were reached through, decayed geometrically with depth.
type DepthDecayScorer struct {
	Decay float64
}

// Score implements RelevanceScorer
func (s DepthDecayScorer) Score(in ScoreInput) float64 {
	if in.Depth == 0 || in.Via == nil {
		return 1.0
	}
	return in.Via.Weight * math.Pow(s.Decay, float64(in.Depth-1))
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
