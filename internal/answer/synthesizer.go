package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neurolens/lucid/internal/explain"
	"github.com/neurolens/lucid/internal/intent"
	"github.com/neurolens/lucid/internal/knowledge"
	"github.com/neurolens/lucid/internal/uncertainty"
)

// FallbackText is the canonical reply when a question cannot be answered
// from the explanation record or the reference tables. The wording is fixed
// so consumers can rely on it.
const FallbackText = "This information is not available in the model output."

// referenceLabel marks text drawn from curated tables rather than the
// classifier's output for this scan.
const referenceLabel = "Reference knowledge, not model output."

// Answer is a grounded reply to one question. Every factual statement in
// Text traces to an explanation field or a labeled reference table; Sources
// lists where. Grounded is false only for the canonical fallback.
type Answer struct {
	Text          string   `json:"text"`
	Sources       []string `json:"sources"`
	Grounded      bool     `json:"grounded"`
	ConfidenceTag string   `json:"confidence_tag"`
}

// Fallback returns the canonical not-available answer.
func Fallback() Answer {
	return Answer{
		Text:          FallbackText,
		Sources:       []string{},
		Grounded:      false,
		ConfidenceTag: "n/a",
	}
}

// Synthesizer renders answers from an explanation record and the reference
// tables. Rendering is deterministic: the same intent and record always
// produce byte-identical output.
type Synthesizer struct {
	kb *knowledge.Base
}

// NewSynthesizer creates a synthesizer over the given reference tables.
func NewSynthesizer(kb *knowledge.Base) *Synthesizer {
	return &Synthesizer{kb: kb}
}

// Synthesize answers a routed question. A nil explanation means no analysis
// has run yet, which leaves nothing to ground an answer in: every intent,
// the glossary included, resolves to the fallback. Unmatched questions do
// the same; an answer invented for an unrecognized question would be
// ungroundable by construction.
func (s *Synthesizer) Synthesize(m intent.Match, exp *explain.Explanation) Answer {
	if exp == nil {
		return Fallback()
	}

	switch m.Intent {
	case intent.Diagnosis:
		return s.diagnosis(exp)
	case intent.Confidence:
		return s.confidence(exp)
	case intent.Reasoning:
		return s.reasoning(exp)
	case intent.Location:
		return s.location(exp)
	case intent.Alternatives:
		return s.alternatives(exp)
	case intent.Quality:
		return s.quality(exp)
	case intent.Recommendations:
		return s.recommendations(exp)
	case intent.Uncertainty:
		return s.uncertainty(exp)
	case intent.Glossary:
		return s.glossary(m, exp)
	default:
		return Fallback()
	}
}

// tagFor mirrors the model's own uncertainty in the answer's reliability
// tag: an answer about a clean-cut prediction deserves more trust than one
// about an ambiguous case.
func tagFor(level uncertainty.Level) string {
	switch level {
	case uncertainty.LevelLow:
		return "high"
	case uncertainty.LevelModerate:
		return "medium"
	case uncertainty.LevelHigh:
		return "low"
	default:
		return "medium"
	}
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func (s *Synthesizer) diagnosis(exp *explain.Explanation) Answer {
	var sb strings.Builder

	if s.kb.IsNoFinding(exp.Decision.ClassName) {
		fmt.Fprintf(&sb, "The model detected **no tumor** with %s confidence.\n\n", percent(exp.Decision.Probability))
	} else {
		fmt.Fprintf(&sb, "The model detected a **%s** tumor with %s confidence.\n\n", exp.Decision.ClassName, percent(exp.Decision.Probability))
	}
	fmt.Fprintf(&sb, "Clinical interpretation: %s", exp.Decision.Reasoning)

	return Answer{
		Text:          sb.String(),
		Sources:       []string{"decision.class_name", "decision.probability", "decision.reasoning"},
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

// confidence reads the confidence level and the uncertainty block, nothing
// else; its source list is pinned to exactly those fields.
func (s *Synthesizer) confidence(exp *explain.Explanation) Answer {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Confidence level: %s\n", exp.Decision.ConfidenceLevel)
	fmt.Fprintf(&sb, "Uncertainty assessment: %s\n\n", exp.Uncertainty.Level)
	sb.WriteString("Technical metrics:\n")
	fmt.Fprintf(&sb, "- Prediction entropy: %.4f (lower is more confident)\n", exp.Uncertainty.Entropy)
	fmt.Fprintf(&sb, "- Margin between top 2 classes: %.4f (higher is more decisive)", exp.Uncertainty.Margin)

	return Answer{
		Text: sb.String(),
		Sources: []string{
			"decision.confidence_level",
			"uncertainty.level", "uncertainty.entropy", "uncertainty.margin",
		},
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

// reasoning reads the decision narrative, plus the attribution artifact
// when one exists.
func (s *Synthesizer) reasoning(exp *explain.Explanation) Answer {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Model reasoning: %s\n\n", exp.Decision.Reasoning)

	sources := []string{"decision.reasoning", "attribution.available"}
	if exp.Attribution.Available {
		fmt.Fprintf(&sb, "Visual attribution: available, artifact %s highlights the regions most influential in the prediction.", exp.Attribution.Ref)
		sources = append(sources, "attribution.ref")
	} else {
		sb.WriteString("Visual attribution: not generated for this analysis.")
	}

	return Answer{
		Text:          sb.String(),
		Sources:       sources,
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

func (s *Synthesizer) location(exp *explain.Explanation) Answer {
	// Spatial answers exist only when the classifier produced a saliency
	// artifact. Guessing a region would be fabrication.
	if !exp.Attribution.Available {
		return Fallback()
	}

	var sb strings.Builder
	sb.WriteString("Regional analysis:\n\n")
	fmt.Fprintf(&sb, "The saliency artifact %s marks the regions that contributed most to the decision.\n", exp.Attribution.Ref)
	sb.WriteString("These areas carried the highest activation for the detected pattern.")

	return Answer{
		Text:          sb.String(),
		Sources:       []string{"attribution.available", "attribution.ref"},
		Grounded:      true,
		ConfidenceTag: "medium",
	}
}

func (s *Synthesizer) alternatives(exp *explain.Explanation) Answer {
	var sb strings.Builder
	sb.WriteString("Differential diagnosis considerations:\n\n")

	if len(exp.Alternatives) == 0 {
		// A present-but-empty list is a finding of its own, not missing data.
		sb.WriteString("No significant alternative classes - prediction is highly confident.\n")
	} else {
		for _, alt := range exp.Alternatives {
			fmt.Fprintf(&sb, "- **%s**: %s (%s)\n", alt.ClassName, percent(alt.Probability), alt.Consideration)
		}
	}

	sb.WriteString("\nAll class probabilities:\n")
	for _, rc := range exp.RankedProbabilities {
		fmt.Fprintf(&sb, "- %s: %s (rank %d)\n", rc.ClassName, percent(rc.Probability), rc.Rank)
	}

	return Answer{
		Text:          sb.String(),
		Sources:       []string{"alternatives", "ranked_probabilities"},
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

func (s *Synthesizer) quality(exp *explain.Explanation) Answer {
	var sb strings.Builder
	sb.WriteString("Image quality assessment:\n\n")

	if len(exp.Quality.Issues) == 0 {
		sb.WriteString("No significant quality issues detected.\n")
	} else {
		sb.WriteString("Quality issues:\n")
		for _, issue := range exp.Quality.Issues {
			fmt.Fprintf(&sb, "- %s\n", issue)
		}
	}

	if len(exp.Quality.Metrics) > 0 {
		keys := make([]string, 0, len(exp.Quality.Metrics))
		for k := range exp.Quality.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nImage statistics:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %.4f\n", k, exp.Quality.Metrics[k])
		}
	}

	return Answer{
		Text:          sb.String(),
		Sources:       []string{"quality.issues", "quality.metrics"},
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

func (s *Synthesizer) recommendations(exp *explain.Explanation) Answer {
	var sb strings.Builder
	sb.WriteString("Clinical recommendations:\n\n")

	if len(exp.Recommendations) == 0 {
		sb.WriteString("No recommendations were recorded for this analysis.\n")
	} else {
		for _, rec := range exp.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", rec)
		}
	}

	fmt.Fprintf(&sb, "\nBasis: prediction of '%s' with %s confidence.\n", exp.Decision.ClassName, percent(exp.Decision.Probability))
	fmt.Fprintf(&sb, "(%s)", referenceLabel)

	return Answer{
		Text: sb.String(),
		Sources: []string{
			"recommendations", "decision.class_name", "decision.probability", "reference:care_pathways",
		},
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

// uncertaintyNote maps each level to its fixed interpretation line.
func uncertaintyNote(level uncertainty.Level) string {
	switch level {
	case uncertainty.LevelLow:
		return "The probability mass is concentrated and the decision is well separated from the alternatives."
	case uncertainty.LevelModerate:
		return "The prediction is fairly decisive, though some probability mass sits on other classes."
	default:
		return "The case is ambiguous; expert review or additional imaging may be warranted."
	}
}

func (s *Synthesizer) uncertainty(exp *explain.Explanation) Answer {
	var sb strings.Builder

	sb.WriteString("Uncertainty analysis:\n\n")
	fmt.Fprintf(&sb, "Level: %s\n\n", exp.Uncertainty.Level)
	sb.WriteString("Metrics:\n")
	fmt.Fprintf(&sb, "- Entropy: %.4f (overall prediction uncertainty)\n", exp.Uncertainty.Entropy)
	fmt.Fprintf(&sb, "- Margin: %.4f (difference between top 2 predictions)\n\n", exp.Uncertainty.Margin)
	sb.WriteString(uncertaintyNote(exp.Uncertainty.Level))

	return Answer{
		Text:          sb.String(),
		Sources:       []string{"uncertainty.level", "uncertainty.entropy", "uncertainty.margin"},
		Grounded:      true,
		ConfidenceTag: tagFor(exp.Uncertainty.Level),
	}
}

// glossary looks the decided class up in the reference tables and renders
// its entry, plus the entries of any other classes the question named. A
// decided class missing from the tables means the answer would have to be
// invented, so it falls back instead.
func (s *Synthesizer) glossary(m intent.Match, exp *explain.Explanation) Answer {
	decided := strings.ToLower(exp.Decision.ClassName)
	info, ok := s.kb.Lookup(decided)
	if !ok {
		return Fallback()
	}

	var sb strings.Builder
	writeEntry := func(name string, entry knowledge.ClassInfo) {
		fmt.Fprintf(&sb, "**%s**: %s\n", name, entry.Description)
		fmt.Fprintf(&sb, "- Severity: %s\n", entry.Severity)
		fmt.Fprintf(&sb, "- Common treatment: %s\n", entry.CommonTreatment)
		fmt.Fprintf(&sb, "- Prognosis: %s\n", entry.Prognosis)
	}

	writeEntry(decided, info)
	sb.WriteString("This is the class detected in the current scan.\n")

	// Other classes the question named explicitly, in trigger order.
	seen := map[string]bool{decided: true}
	for _, trigger := range m.Triggers {
		name := strings.ToLower(trigger)
		if seen[name] {
			continue
		}
		entry, ok := s.kb.Lookup(name)
		if !ok {
			continue
		}
		sb.WriteString("\n")
		writeEntry(name, entry)
		seen[name] = true
	}

	fmt.Fprintf(&sb, "\n(%s)", referenceLabel)

	return Answer{
		Text:          sb.String(),
		Sources:       []string{"reference:glossary", "decision.class_name"},
		Grounded:      true,
		ConfidenceTag: "n/a",
	}
}
