package explain

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurolens/lucid/internal/quality"
	"github.com/neurolens/lucid/internal/uncertainty"
)

// ClassProb is one entry of raw classifier output: a class label and its
// probability, in the classifier's own order.
type ClassProb struct {
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
}

// RankedClass is a class with its standing in the ranked distribution.
// Rank 1 is the highest probability.
type RankedClass struct {
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
	Rank        int     `json:"rank"`
}

// Alternative is a runner-up class that cleared the noise floor.
type Alternative struct {
	ClassName     string  `json:"class_name"`
	Probability   float64 `json:"probability"`
	Rank          int     `json:"rank"`
	Consideration string  `json:"consideration"`
}

// Decision is the winning class with its derived confidence fields.
type Decision struct {
	ClassName       string  `json:"class_name"`
	Probability     float64 `json:"probability"`
	ConfidenceLevel string  `json:"confidence_level"`
	Reasoning       string  `json:"reasoning"`
}

// Attribution points at a saliency artifact when the classifier produced
// one. Available false means none exists for this analysis; builders copy
// it through verbatim and never synthesize a reference.
type Attribution struct {
	Available bool   `json:"available"`
	Ref       string `json:"ref,omitempty"`
}

// AttributionAvailable returns an attribution carrying an artifact reference.
func AttributionAvailable(ref string) Attribution {
	return Attribution{Available: true, Ref: ref}
}

// NoAttribution returns the explicit "no artifact" state.
func NoAttribution() Attribution {
	return Attribution{}
}

// Explanation is the complete, self-contained record of one classifier
// analysis. It is immutable once built: consumers read it, nothing updates
// it in place. A new analysis produces a whole new record.
type Explanation struct {
	ID                  uuid.UUID            `json:"id"`
	SessionID           uuid.UUID            `json:"session_id"`
	ModelID             string               `json:"model_id,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	Decision            Decision             `json:"decision"`
	RankedProbabilities []RankedClass        `json:"ranked_probabilities"`
	Alternatives        []Alternative        `json:"alternatives"`
	Uncertainty         uncertainty.Measures `json:"uncertainty"`
	Quality             quality.Report       `json:"quality"`
	Attribution         Attribution          `json:"attribution"`
	Pipeline            []string             `json:"pipeline"`
	Recommendations     []string             `json:"recommendations"`
}

// ConfidenceLevel buckets a winning probability: "very high" at 0.90 and
// above, "high" at 0.70, "moderate" at 0.50, "low" below that.
func ConfidenceLevel(p float64) string {
	switch {
	case p >= 0.90:
		return "very high"
	case p >= 0.70:
		return "high"
	case p >= 0.50:
		return "moderate"
	default:
		return "low"
	}
}
