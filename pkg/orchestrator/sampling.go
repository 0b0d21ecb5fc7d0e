package orchestrator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/blockberries/tracegram/pkg/grammar"
)

// DefaultZScore is used for confidence levels without a canonical score.
const DefaultZScore = 1.96

// zScores maps the supported confidence levels to their z-scores.
var zScores = []struct {
	confidence float64
	z          float64
}{
	{0.85, 1.44},
	{0.90, 1.65},
	{0.95, 1.96},
	{0.97, 2.17},
	{0.99, 2.58},
}

// ZScore returns the z-score of a confidence level. Levels other than 85,
// 90, 95, 97 and 99 percent use DefaultZScore.
func ZScore(confidence float64) float64 {
	for _, s := range zScores {
		if math.Abs(s.confidence-confidence) < 1e-9 {
			return s.z
		}
	}
	return DefaultZScore
}

// SampleSize returns the minimum sample size for estimating a proportion in
// a finite population with the given confidence and margin of error.
//
// For example SampleSize(650000, 0.95, 0.03) is 1066.
func SampleSize(population int, confidence, margin float64) (int, error) {
	if population <= 0 {
		return 0, fmt.Errorf("%w: population %d", ErrBadConfidence, population)
	}
	if margin <= 0 {
		return 0, fmt.Errorf("%w: margin %v", ErrBadConfidence, margin)
	}

	z := ZScore(confidence)
	n := 0.25 * math.Pow(z/margin, 2)
	pop := float64(population)
	size := math.Ceil(pop * n / (n + pop - 1))
	return int(size), nil
}

// SampleTargets draws code locations of g to chase with the target-guided
// strategy. The population is the set of code locations of g; targets are
// drawn without replacement.
func SampleTargets(g *grammar.Grammar, confidence, margin float64, rng *rand.Rand) ([]grammar.Symbol, error) {
	population := grammar.CodeLocations(g)
	if len(population) == 0 {
		return nil, nil
	}

	size, err := SampleSize(len(population), confidence, margin)
	if err != nil {
		return nil, err
	}
	if size > len(population) {
		size = len(population)
	}
	targets := make([]grammar.Symbol, 0, size)
	for _, i := range rng.Perm(len(population))[:size] {
		targets = append(targets, population[i])
	}
	return targets, nil
}
