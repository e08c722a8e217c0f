package intent

import "strings"

// Intent is a resolved question category.
type Intent string

const (
	Diagnosis       Intent = "diagnosis"
	Confidence      Intent = "confidence"
	Reasoning       Intent = "reasoning"
	Location        Intent = "location"
	Alternatives    Intent = "alternatives"
	Quality         Intent = "quality"
	Recommendations Intent = "recommendations"
	Uncertainty     Intent = "uncertainty"
	Glossary        Intent = "glossary"
	General         Intent = "general"
)

// Rule binds trigger phrases to an intent at a priority. Higher priority
// wins when several rules match one question.
type Rule struct {
	Intent   Intent
	Priority int
	Triggers []string
}

// Match is a routing result: the resolved intent plus the triggers of the
// winning rule that matched, kept for auditing. Triggers is empty for the
// general fallback.
type Match struct {
	Intent   Intent   `json:"intent"`
	Triggers []string `json:"triggers"`
}

// Registry resolves questions against an ordered rule set. Routing is a
// pure function of the question text: no call depends on any earlier call.
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry. Rule order is the registration order and
// is part of the routing contract: it breaks ties that survive priority
// and trigger length.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// DefaultRegistry returns the standard clinical question rules. The
// registration order follows the classic handler sequence; priorities put
// specific vocabularies above generic ones so that, for example, "how
// uncertain is this?" resolves to uncertainty rather than confidence, and
// "what is a glioma?" reaches the glossary instead of diagnosis. Reasoning
// outranks the glossary: a "why" question that names a class is still a
// reasoning question.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Rule{Intent: Diagnosis, Priority: 40, Triggers: []string{
			"diagnosis", "diagnose", "detected", "detect", "found", "find", "result", "prediction", "conclusion",
		}},
		Rule{Intent: Confidence, Priority: 50, Triggers: []string{
			"confident", "confidence", "sure", "certain", "reliable", "reliability", "trust", "accuracy", "how likely",
		}},
		Rule{Intent: Reasoning, Priority: 45, Triggers: []string{
			"why", "reason", "explain", "explanation", "based on", "evidence", "how did", "how was", "features",
		}},
		Rule{Intent: Location, Priority: 55, Triggers: []string{
			"where", "location", "located", "region", "area", "which part", "side of",
		}},
		Rule{Intent: Alternatives, Priority: 60, Triggers: []string{
			"alternative", "differential", "else", "instead", "other possibilit", "second opinion", "runner-up",
		}},
		Rule{Intent: Quality, Priority: 65, Triggers: []string{
			"quality", "artifact", "contrast", "blurry", "noisy", "too dark", "too bright",
		}},
		Rule{Intent: Recommendations, Priority: 70, Triggers: []string{
			"recommend", "recommendation", "next step", "should", "action", "advice", "follow-up", "follow up",
		}},
		Rule{Intent: Uncertainty, Priority: 80, Triggers: []string{
			"uncertain", "uncertainty", "ambiguous", "doubt", "unclear", "entropy", "margin",
		}},
		Rule{Intent: Glossary, Priority: 42, Triggers: []string{
			"glioma", "meningioma", "pituitary", "tumor type", "types of tumor", "kind of tumor",
		}},
	)
}

type candidate struct {
	rule    Rule
	matched []string
	longest int
	order   int
}

// betterMatch determines if candidate a beats candidate b.
func betterMatch(a, b candidate) bool {
	// 1. Higher priority wins
	if a.rule.Priority != b.rule.Priority {
		return a.rule.Priority > b.rule.Priority
	}

	// 2. Longest matched trigger breaks ties
	if a.longest != b.longest {
		return a.longest > b.longest
	}

	// 3. Earliest registered rule breaks further ties
	return a.order < b.order
}

// Route resolves a question to an intent. Matching is case-insensitive
// substring containment over every trigger of every rule. Questions that
// match nothing resolve to General with no triggers.
func (r *Registry) Route(question string) Match {
	q := strings.ToLower(question)

	var best *candidate
	for i, rule := range r.rules {
		var matched []string
		longest := 0
		for _, trigger := range rule.Triggers {
			t := strings.ToLower(trigger)
			if strings.Contains(q, t) {
				matched = append(matched, trigger)
				if len(t) > longest {
					longest = len(t)
				}
			}
		}
		if len(matched) == 0 {
			continue
		}
		cand := candidate{rule: rule, matched: matched, longest: longest, order: i}
		if best == nil || betterMatch(cand, *best) {
			best = &cand
		}
	}

	if best == nil {
		return Match{Intent: General, Triggers: []string{}}
	}
	return Match{Intent: best.rule.Intent, Triggers: best.matched}
}
