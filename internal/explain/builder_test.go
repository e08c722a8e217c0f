package explain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/neurolens/lucid/internal/uncertainty"
)

func testBuilder() *Builder {
	cfg := DefaultConfig()
	cfg.NoFinding = func(class string) bool { return class == "notumor" }
	cfg.Recommend = func(class string, p float64) []string {
		return []string{"consult a specialist"}
	}
	return NewBuilder(cfg)
}

func gliomaScan() Input {
	return Input{
		SessionID: uuid.New(),
		ModelID:   "tumor-cnn-v3",
		Classes: []ClassProb{
			{ClassName: "glioma", Probability: 0.925},
			{ClassName: "meningioma", Probability: 0.052},
			{ClassName: "pituitary", Probability: 0.015},
			{ClassName: "notumor", Probability: 0.008},
		},
		Attribution: AttributionAvailable("gradcam/scan-042.png"),
		ImageStats:  map[string]float64{"mean_intensity": 0.42, "std_intensity": 0.19},
		Pipeline:    []string{"resize", "normalize", "predict"},
	}
}

func TestBuild_ConfidentGlioma(t *testing.T) {
	exp, err := testBuilder().Build(gliomaScan())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if exp.Decision.ClassName != "glioma" {
		t.Errorf("decision class = %q, want glioma", exp.Decision.ClassName)
	}
	if exp.Decision.ConfidenceLevel != "very high" {
		t.Errorf("confidence level = %q, want very high", exp.Decision.ConfidenceLevel)
	}
	if math.Abs(exp.Uncertainty.Margin-0.873) > 0.001 {
		t.Errorf("margin = %f, want 0.873", exp.Uncertainty.Margin)
	}

	// Only meningioma clears the 0.05 noise floor among ranks 2..3.
	if len(exp.Alternatives) != 1 {
		t.Fatalf("alternatives = %v, want exactly meningioma", exp.Alternatives)
	}
	alt := exp.Alternatives[0]
	if alt.ClassName != "meningioma" || alt.Rank != 2 {
		t.Errorf("alternative = %+v, want meningioma at rank 2", alt)
	}
	if alt.Consideration != "low probability alternative" {
		t.Errorf("consideration = %q, want low probability alternative", alt.Consideration)
	}

	wantOrder := []string{"glioma", "meningioma", "pituitary", "notumor"}
	for i, rc := range exp.RankedProbabilities {
		if rc.ClassName != wantOrder[i] || rc.Rank != i+1 {
			t.Errorf("ranked[%d] = %+v, want %s at rank %d", i, rc, wantOrder[i], i+1)
		}
	}

	if exp.Decision.Probability != exp.RankedProbabilities[0].Probability {
		t.Error("decision probability must equal the rank-1 probability")
	}
	if exp.ID == uuid.Nil {
		t.Error("record should carry an id")
	}
	if exp.CreatedAt.IsZero() {
		t.Error("record should carry a timestamp")
	}
}

func TestBuild_Validation(t *testing.T) {
	builder := testBuilder()

	tests := []struct {
		name    string
		classes []ClassProb
	}{
		{"no classes", nil},
		{"negative probability", []ClassProb{{"glioma", 1.2}, {"notumor", -0.2}}},
		{"sum too low", []ClassProb{{"glioma", 0.3}, {"notumor", 0.3}}},
		{"sum too high", []ClassProb{{"glioma", 0.8}, {"notumor", 0.8}}},
		{"blank class name", []ClassProb{{"glioma", 0.5}, {"", 0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.Build(Input{SessionID: uuid.New(), Classes: tt.classes})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidProbabilities) {
				t.Errorf("error should match ErrInvalidProbabilities, got %v", err)
			}
		})
	}
}

func TestBuild_TieKeepsInputOrder(t *testing.T) {
	in := Input{
		SessionID: uuid.New(),
		Classes: []ClassProb{
			{ClassName: "meningioma", Probability: 0.4},
			{ClassName: "glioma", Probability: 0.4},
			{ClassName: "pituitary", Probability: 0.2},
		},
	}

	exp, err := testBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if exp.RankedProbabilities[0].ClassName != "meningioma" {
		t.Errorf("rank 1 = %q, tie should keep input order", exp.RankedProbabilities[0].ClassName)
	}
	if exp.RankedProbabilities[1].ClassName != "glioma" {
		t.Errorf("rank 2 = %q, tie should keep input order", exp.RankedProbabilities[1].ClassName)
	}
	if exp.Decision.ClassName != "meningioma" {
		t.Errorf("decision = %q, want the first of the tied classes", exp.Decision.ClassName)
	}
}

func TestBuild_Alternatives(t *testing.T) {
	tests := []struct {
		name              string
		classes           []ClassProb
		wantClasses       []string
		wantConsideration []string
	}{
		{
			"meaningful and low probability",
			[]ClassProb{{"glioma", 0.55}, {"meningioma", 0.35}, {"pituitary", 0.07}, {"notumor", 0.03}},
			[]string{"meningioma", "pituitary"},
			[]string{"meaningful alternative", "low probability alternative"},
		},
		{
			"all runners below noise floor",
			[]ClassProb{{"glioma", 0.97}, {"meningioma", 0.015}, {"pituitary", 0.01}, {"notumor", 0.005}},
			nil,
			nil,
		},
		{
			"rank 4 never qualifies",
			[]ClassProb{{"glioma", 0.40}, {"meningioma", 0.30}, {"pituitary", 0.20}, {"notumor", 0.10}},
			[]string{"meningioma", "pituitary"},
			[]string{"meaningful alternative", "low probability alternative"},
		},
		{
			"single class has no alternatives",
			[]ClassProb{{"notumor", 1.0}},
			nil,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := testBuilder().Build(Input{SessionID: uuid.New(), Classes: tt.classes})
			if err != nil {
				t.Fatalf("Build returned error: %v", err)
			}
			if exp.Alternatives == nil {
				t.Fatal("alternatives must be empty, never nil")
			}
			if len(exp.Alternatives) != len(tt.wantClasses) {
				t.Fatalf("alternatives = %+v, want classes %v", exp.Alternatives, tt.wantClasses)
			}
			for i, alt := range exp.Alternatives {
				if alt.ClassName != tt.wantClasses[i] {
					t.Errorf("alternative[%d] = %q, want %q", i, alt.ClassName, tt.wantClasses[i])
				}
				if alt.Consideration != tt.wantConsideration[i] {
					t.Errorf("alternative[%d] consideration = %q, want %q", i, alt.Consideration, tt.wantConsideration[i])
				}
			}
		})
	}
}

func TestConfidenceLevel(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0.99, "very high"},
		{0.90, "very high"},
		{0.899, "high"},
		{0.70, "high"},
		{0.699, "moderate"},
		{0.50, "moderate"},
		{0.499, "low"},
		{0.0, "low"},
	}

	for _, tt := range tests {
		if got := ConfidenceLevel(tt.p); got != tt.want {
			t.Errorf("ConfidenceLevel(%f) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestBuild_Reasoning(t *testing.T) {
	builder := testBuilder()

	tests := []struct {
		name     string
		classes  []ClassProb
		contains string
	}{
		{
			"confident tumor",
			[]ClassProb{{"glioma", 0.95}, {"notumor", 0.05}},
			"detected distinct glioma characteristics",
		},
		{
			"high band tumor",
			[]ClassProb{{"glioma", 0.75}, {"notumor", 0.25}},
			"identified glioma features with high confidence",
		},
		{
			"low band tumor",
			[]ClassProb{{"glioma", 0.55}, {"notumor", 0.45}},
			"suggests glioma but with lower confidence",
		},
		{
			"confident no finding",
			[]ClassProb{{"notumor", 0.95}, {"glioma", 0.05}},
			"no abnormal tissue patterns",
		},
		{
			"uncertain no finding",
			[]ClassProb{{"notumor", 0.60}, {"glioma", 0.40}},
			"suggests no tumor present",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := builder.Build(Input{SessionID: uuid.New(), Classes: tt.classes})
			if err != nil {
				t.Fatalf("Build returned error: %v", err)
			}
			if !strings.Contains(exp.Decision.Reasoning, tt.contains) {
				t.Errorf("reasoning = %q, want substring %q", exp.Decision.Reasoning, tt.contains)
			}
		})
	}
}

func TestBuild_ReasoningNeverCitesAttribution(t *testing.T) {
	// The narrative is derived from class and probability band only. Even
	// with a saliency artifact attached it must not reference one.
	in := gliomaScan()
	exp, err := testBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	lower := strings.ToLower(exp.Decision.Reasoning)
	for _, banned := range []string{"attribution", "grad-cam", "gradcam", "heatmap", "saliency"} {
		if strings.Contains(lower, banned) {
			t.Errorf("reasoning mentions %q: %q", banned, exp.Decision.Reasoning)
		}
	}
}

func TestBuild_AttributionCopiedVerbatim(t *testing.T) {
	in := gliomaScan()
	in.Attribution = NoAttribution()

	exp, err := testBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if exp.Attribution.Available || exp.Attribution.Ref != "" {
		t.Errorf("attribution = %+v, want the explicit not-available state", exp.Attribution)
	}

	in.Attribution = AttributionAvailable("gradcam/x.png")
	exp, err = testBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !exp.Attribution.Available || exp.Attribution.Ref != "gradcam/x.png" {
		t.Errorf("attribution = %+v, want available with ref", exp.Attribution)
	}
}

func TestBuild_QualityAndRecommendations(t *testing.T) {
	in := gliomaScan()
	in.ImageStats = map[string]float64{"mean_intensity": 0.04, "std_intensity": 0.02}

	exp, err := testBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if len(exp.Quality.Issues) != 2 {
		t.Errorf("quality issues = %v, want dark and low contrast", exp.Quality.Issues)
	}
	if len(exp.Recommendations) == 0 {
		t.Error("recommendations should be resolved when a pathway lookup is wired")
	}
}

func TestBuild_NoRecommendLookup(t *testing.T) {
	exp, err := NewBuilder(DefaultConfig()).Build(gliomaScan())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if exp.Recommendations == nil || len(exp.Recommendations) != 0 {
		t.Errorf("recommendations = %v, want present but empty", exp.Recommendations)
	}
}

func TestBuild_InputIsolation(t *testing.T) {
	in := gliomaScan()
	exp, err := testBuilder().Build(in)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	in.Pipeline[0] = "mutated"
	in.Classes[0].Probability = 0.0

	if exp.Pipeline[0] != "resize" {
		t.Error("record pipeline should not alias the input slice")
	}
	if exp.RankedProbabilities[0].Probability != 0.925 {
		t.Error("record probabilities should not alias the input slice")
	}
}

func TestExplanation_JSONRoundTrip(t *testing.T) {
	exp, err := testBuilder().Build(gliomaScan())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	data, err := json.Marshal(exp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Collection fields serialize as arrays even when empty.
	if strings.Contains(string(data), `"alternatives":null`) {
		t.Error("alternatives must serialize as an array")
	}

	var back Explanation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.ID != exp.ID || back.SessionID != exp.SessionID {
		t.Error("ids should survive the round trip")
	}
	if !back.CreatedAt.Equal(exp.CreatedAt) {
		t.Errorf("created_at changed: %v vs %v", back.CreatedAt, exp.CreatedAt)
	}
	if back.Decision != exp.Decision {
		t.Errorf("decision changed: %+v vs %+v", back.Decision, exp.Decision)
	}
	if len(back.RankedProbabilities) != len(exp.RankedProbabilities) {
		t.Error("ranked probabilities changed length")
	}
	if back.Uncertainty.Level != exp.Uncertainty.Level {
		t.Error("uncertainty level changed")
	}
	if back.Attribution != exp.Attribution {
		t.Error("attribution changed")
	}
}

func TestBuild_ValidationErrorMentionsNoPartialRecord(t *testing.T) {
	exp, err := testBuilder().Build(Input{
		SessionID: uuid.New(),
		Classes:   []ClassProb{{"glioma", 0.2}, {"notumor", 0.2}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if exp != nil {
		t.Error("no partial record may escape a failed build")
	}
	if !errors.Is(err, uncertainty.ErrInvalidVector) {
		t.Errorf("sentinel should be shared with the uncertainty package, got %v", err)
	}
}
