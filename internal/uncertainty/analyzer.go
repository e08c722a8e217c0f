package uncertainty

import (
	"errors"
	"fmt"
	"math"
)

// Level buckets how ambiguous a probability vector is. The strings appear
// verbatim in explanation records and chat answers.
type Level string

const (
	LevelLow      Level = "low uncertainty"
	LevelModerate Level = "moderate uncertainty"
	LevelHigh     Level = "high uncertainty, review recommended"
)

// SumTolerance is the maximum allowed deviation of a vector's sum from 1.0.
const SumTolerance = 1e-3

// ErrInvalidVector is returned when a probability vector is empty, contains
// a negative or non-finite entry, or does not sum to 1 within SumTolerance.
var ErrInvalidVector = errors.New("invalid probability vector")

// Config holds the thresholds that map entropy and margin onto a Level.
// The mapping is monotonic: a wider margin never raises the level and a
// higher entropy never lowers it.
type Config struct {
	// LowMarginMin is the minimum margin for a low-uncertainty call.
	LowMarginMin float64
	// LowEntropyFrac is the fraction of ln(K) the entropy must stay under
	// for a low-uncertainty call.
	LowEntropyFrac float64
	// HighMarginMax forces high uncertainty when the margin falls below it.
	HighMarginMax float64
}

// DefaultConfig returns the standard thresholds: margin >= 0.50 with entropy
// under 0.36*ln(K) is low, margin < 0.15 is high, everything else moderate.
func DefaultConfig() Config {
	return Config{
		LowMarginMin:   0.50,
		LowEntropyFrac: 0.36,
		HighMarginMax:  0.15,
	}
}

// Measures is the uncertainty block of an explanation record.
type Measures struct {
	Entropy float64 `json:"entropy"`
	Margin  float64 `json:"margin"`
	Level   Level   `json:"level"`
}

// Validate checks that probs is a usable probability vector.
func Validate(probs []float64) error {
	if len(probs) == 0 {
		return fmt.Errorf("%w: no probabilities", ErrInvalidVector)
	}
	sum := 0.0
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: non-finite entry at index %d", ErrInvalidVector, i)
		}
		if p < 0 {
			return fmt.Errorf("%w: negative entry %f at index %d", ErrInvalidVector, p, i)
		}
		sum += p
	}
	if math.Abs(sum-1.0) > SumTolerance {
		return fmt.Errorf("%w: entries sum to %f", ErrInvalidVector, sum)
	}
	return nil
}

// Entropy returns the Shannon entropy of the vector in nats. Zero entries
// contribute nothing (0*ln(0) taken as 0).
func Entropy(probs []float64) float64 {
	h := 0.0
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// MaxEntropy returns ln(k), the entropy of a uniform vector over k classes.
func MaxEntropy(k int) float64 {
	if k < 2 {
		return 0
	}
	return math.Log(float64(k))
}

// Margin returns the gap between the two largest entries. A single-entry
// vector has margin equal to that entry.
func Margin(probs []float64) float64 {
	top1, top2 := 0.0, 0.0
	for _, p := range probs {
		switch {
		case p > top1:
			top1, top2 = p, top1
		case p > top2:
			top2 = p
		}
	}
	return top1 - top2
}

// Classify maps entropy and margin onto a Level for a k-class vector.
// High wins whenever the margin is under HighMarginMax. Low requires both a
// wide margin and concentrated mass. A k of 1 has zero attainable entropy,
// so the margin alone decides.
func (c Config) Classify(entropy, margin float64, k int) Level {
	if margin < c.HighMarginMax {
		return LevelHigh
	}
	max := MaxEntropy(k)
	if margin >= c.LowMarginMin && (max == 0 || entropy < c.LowEntropyFrac*max) {
		return LevelLow
	}
	return LevelModerate
}

// Analyze validates probs and computes all three uncertainty measures.
func Analyze(probs []float64, cfg Config) (Measures, error) {
	if err := Validate(probs); err != nil {
		return Measures{}, err
	}
	entropy := Entropy(probs)
	margin := Margin(probs)
	return Measures{
		Entropy: entropy,
		Margin:  margin,
		Level:   cfg.Classify(entropy, margin, len(probs)),
	}, nil
}
