package explain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/neurolens/lucid/internal/quality"
	"github.com/neurolens/lucid/internal/uncertainty"
)

// ErrInvalidProbabilities marks classifier output rejected by validation.
// It is the uncertainty package's sentinel re-exported, so errors.Is
// matches whichever package reported the problem.
var ErrInvalidProbabilities = uncertainty.ErrInvalidVector

// meaningfulMin separates meaningful alternatives from low-probability ones.
const meaningfulMin = 0.20

// Config tunes how a Builder derives explanation records.
type Config struct {
	// NoiseFloor is the minimum probability for a runner-up class to be
	// reported as an alternative.
	NoiseFloor float64
	// Uncertainty holds the level thresholds.
	Uncertainty uncertainty.Config
	// QualityRules override quality.DefaultRules when non-nil.
	QualityRules []quality.Rule
	// Recommend resolves the care pathway for the decided class. When nil
	// the record carries no recommendations.
	Recommend func(class string, probability float64) []string
	// NoFinding reports whether a class means nothing was detected. It only
	// affects how the reasoning text is phrased. When nil every class is
	// treated as a finding.
	NoFinding func(class string) bool
}

// DefaultConfig returns the standard builder settings.
func DefaultConfig() Config {
	return Config{
		NoiseFloor:  0.05,
		Uncertainty: uncertainty.DefaultConfig(),
	}
}

// Input is everything the builder needs for one analysis.
type Input struct {
	SessionID   uuid.UUID
	ModelID     string
	Classes     []ClassProb
	Attribution Attribution
	ImageStats  map[string]float64
	Pipeline    []string
}

// Builder turns raw classifier output into Explanation records.
type Builder struct {
	cfg      Config
	assessor *quality.Assessor
}

// NewBuilder creates a builder from cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		cfg:      cfg,
		assessor: quality.NewAssessor(cfg.QualityRules),
	}
}

// Build validates the classifier output and derives the full record. The
// only failure mode is validation: an empty vector, a negative or
// non-finite entry, a sum off by more than the tolerance, or a blank class
// name. All returned errors match ErrInvalidProbabilities.
func (b *Builder) Build(in Input) (*Explanation, error) {
	probs := make([]float64, len(in.Classes))
	for i, c := range in.Classes {
		if c.ClassName == "" {
			return nil, fmt.Errorf("validate classifier output: %w: blank class name at index %d", ErrInvalidProbabilities, i)
		}
		probs[i] = c.Probability
	}

	measures, err := uncertainty.Analyze(probs, b.cfg.Uncertainty)
	if err != nil {
		return nil, fmt.Errorf("validate classifier output: %w", err)
	}

	ranked := rank(in.Classes)
	top := ranked[0]

	decision := Decision{
		ClassName:       top.ClassName,
		Probability:     top.Probability,
		ConfidenceLevel: ConfidenceLevel(top.Probability),
		Reasoning:       b.reasoning(top.ClassName, top.Probability),
	}

	recommendations := []string{}
	if b.cfg.Recommend != nil {
		recommendations = b.cfg.Recommend(top.ClassName, top.Probability)
	}

	pipeline := make([]string, len(in.Pipeline))
	copy(pipeline, in.Pipeline)

	return &Explanation{
		ID:                  uuid.New(),
		SessionID:           in.SessionID,
		ModelID:             in.ModelID,
		CreatedAt:           time.Now().UTC(),
		Decision:            decision,
		RankedProbabilities: ranked,
		Alternatives:        b.alternatives(ranked),
		Uncertainty:         measures,
		Quality:             b.assessor.Assess(in.ImageStats),
		Attribution:         in.Attribution,
		Pipeline:            pipeline,
		Recommendations:     recommendations,
	}, nil
}

// rank sorts classes by descending probability and assigns ranks starting
// at 1. The sort is stable, so equal probabilities keep their input order.
func rank(classes []ClassProb) []RankedClass {
	ranked := make([]RankedClass, len(classes))
	for i, c := range classes {
		ranked[i] = RankedClass{ClassName: c.ClassName, Probability: c.Probability}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// alternatives picks ranks 2 and 3 above the noise floor. The result is
// empty, never nil, when no runner-up qualifies.
func (b *Builder) alternatives(ranked []RankedClass) []Alternative {
	alts := []Alternative{}
	for _, rc := range ranked {
		if rc.Rank < 2 || rc.Rank > 3 {
			continue
		}
		if rc.Probability <= b.cfg.NoiseFloor {
			continue
		}
		consideration := "low probability alternative"
		if rc.Probability > meaningfulMin {
			consideration = "meaningful alternative"
		}
		alts = append(alts, Alternative{
			ClassName:     rc.ClassName,
			Probability:   rc.Probability,
			Rank:          rc.Rank,
			Consideration: consideration,
		})
	}
	return alts
}

// reasoning produces the fixed decision narrative. It draws on the class
// and probability band only, never on attribution artifacts.
func (b *Builder) reasoning(class string, p float64) string {
	if b.cfg.NoFinding != nil && b.cfg.NoFinding(class) {
		if p >= 0.90 {
			return "Model detected no abnormal tissue patterns characteristic of tumors with very high confidence"
		}
		return "Model suggests no tumor present, but moderate confidence indicates some ambiguous features"
	}
	switch {
	case p >= 0.90:
		return fmt.Sprintf("Model detected distinct %s characteristics with very high confidence based on learned tissue patterns", class)
	case p >= 0.70:
		return fmt.Sprintf("Model identified %s features with high confidence based on spatial and textural patterns", class)
	default:
		return fmt.Sprintf("Model suggests %s but with lower confidence - image may have ambiguous features", class)
	}
}
