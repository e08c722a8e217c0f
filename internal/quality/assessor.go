package quality

// Report is the quality block of an explanation record. Issues is empty,
// never nil, when no rule fired.
type Report struct {
	Metrics map[string]float64 `json:"metrics"`
	Issues  []string           `json:"issues"`
}

// Acceptable reports whether the assessment found no issues.
func (r Report) Acceptable() bool {
	return len(r.Issues) == 0
}

// Rule ops.
const (
	OpBelow = "below"
	OpAbove = "above"
)

// Rule flags an image statistic that crossed a threshold. Op is OpBelow
// (fire when the statistic is under Threshold) or OpAbove (fire when it
// is over).
type Rule struct {
	Stat      string
	Op        string
	Threshold float64
	Issue     string
}

// DefaultRules screen scan statistics normalized to [0, 1].
func DefaultRules() []Rule {
	return []Rule{
		{Stat: "mean_intensity", Op: OpBelow, Threshold: 0.1, Issue: "Very dark image - may affect prediction accuracy"},
		{Stat: "mean_intensity", Op: OpAbove, Threshold: 0.9, Issue: "Very bright image - may affect prediction accuracy"},
		{Stat: "std_intensity", Op: OpBelow, Threshold: 0.05, Issue: "Low contrast image - features may be less visible"},
	}
}

// Assessor evaluates image statistics against an ordered rule set.
type Assessor struct {
	rules []Rule
}

// NewAssessor creates an assessor. A nil rule set uses DefaultRules.
func NewAssessor(rules []Rule) *Assessor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Assessor{rules: rules}
}

// Assess evaluates stats against the rule set, in rule order. Statistics a
// rule names but the input lacks are skipped: an absent measurement is not
// an issue. The input map is copied into the report untouched.
func (a *Assessor) Assess(stats map[string]float64) Report {
	metrics := make(map[string]float64, len(stats))
	for k, v := range stats {
		metrics[k] = v
	}

	issues := []string{}
	for _, rule := range a.rules {
		value, ok := stats[rule.Stat]
		if !ok {
			continue
		}
		fired := false
		switch rule.Op {
		case OpBelow:
			fired = value < rule.Threshold
		case OpAbove:
			fired = value > rule.Threshold
		}
		if fired {
			issues = append(issues, rule.Issue)
		}
	}

	return Report{Metrics: metrics, Issues: issues}
}
