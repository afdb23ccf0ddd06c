// Package similarity scores pairs of fingerprints against a match threshold.
package similarity

import (
	"errors"
	"math"

	"github.com/example/face-unlock/internal/signature"
)

// DefaultThreshold is the minimum similarity fraction for a match.
const DefaultThreshold = 0.7

// ErrThresholdOutOfRange is returned for thresholds outside [0, 1].
var ErrThresholdOutOfRange = errors.New("similarity: threshold must be within [0, 1]")

// Scorer compares fingerprints with Pearson correlation of their buckets.
type Scorer struct {
	threshold float64
}

// NewScorer returns a Scorer declaring matches above threshold*100.
func NewScorer(threshold float64) (*Scorer, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, ErrThresholdOutOfRange
	}
	return &Scorer{threshold: threshold}, nil
}

// Threshold returns the configured threshold fraction.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score returns whether a and b match and their similarity in [0, 100].
func (s *Scorer) Score(a, b signature.Fingerprint) (bool, float64) {
	similarity := math.Max(0, Correlation(a.Buckets[:], b.Buckets[:])) * 100
	return similarity > s.threshold*100, similarity
}

// Correlation returns the Pearson correlation coefficient of x and y. It
// returns 0 when the coefficient is undefined: mismatched or empty inputs, or
// a vector with zero variance. The result is clamped to [-1, 1].
func Correlation(x, y []int) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += float64(x[i])
		sumY += float64(y[i])
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := float64(x[i]) - meanX
		dy := float64(y[i]) - meanY
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}

	r := sxy / math.Sqrt(sxx*syy)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}
