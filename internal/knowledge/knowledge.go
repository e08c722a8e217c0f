package knowledge

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ReviewDisclaimer closes every recommendation list.
const ReviewDisclaimer = "This is an AI-assisted diagnostic tool. All findings should be reviewed by a qualified radiologist or clinician before making clinical decisions."

// Care pathway confidence bands.
const (
	bandHigh     = 0.90
	bandModerate = 0.70
)

// ClassInfo is the reference entry for one classifier class.
type ClassInfo struct {
	Description     string `yaml:"description" json:"description"`
	Severity        string `yaml:"severity" json:"severity"`
	CommonTreatment string `yaml:"common_treatment" json:"common_treatment"`
	Prognosis       string `yaml:"prognosis" json:"prognosis"`
}

// Base holds the static reference tables: the class glossary and the care
// pathway templates. Contents are curated reference knowledge, independent
// of any single model output.
type Base struct {
	glossary       map[string]ClassInfo
	noFindingClass string
}

// Default returns the built-in brain MRI reference tables.
func Default() *Base {
	return &Base{
		noFindingClass: "notumor",
		glossary: map[string]ClassInfo{
			"glioma": {
				Description:     "Most common malignant brain tumor, arises from glial cells",
				Severity:        "high",
				CommonTreatment: "Surgery, radiation, chemotherapy",
				Prognosis:       "Variable depending on grade",
			},
			"meningioma": {
				Description:     "Usually benign tumor arising from meninges",
				Severity:        "low to moderate",
				CommonTreatment: "Observation or surgery",
				Prognosis:       "Generally good for benign cases",
			},
			"pituitary": {
				Description:     "Tumor in pituitary gland, often benign but can affect hormones",
				Severity:        "moderate",
				CommonTreatment: "Medication or surgery",
				Prognosis:       "Good with appropriate treatment",
			},
			"notumor": {
				Description:     "No tumor detected in the scan",
				Severity:        "none",
				CommonTreatment: "None required",
				Prognosis:       "Excellent",
			},
		},
	}
}

type fileSchema struct {
	NoFindingClass string               `yaml:"no_finding_class"`
	Classes        map[string]ClassInfo `yaml:"classes"`
}

// Load merges a YAML knowledge file over the built-in defaults. Classes in
// the file replace whole entries; unknown classes are added, so deployments
// can extend the class set without a rebuild.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}

	var file fileSchema
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse knowledge file: %w", err)
	}

	base := Default()
	if file.NoFindingClass != "" {
		base.noFindingClass = strings.ToLower(file.NoFindingClass)
	}
	for class, info := range file.Classes {
		base.glossary[strings.ToLower(class)] = info
	}
	return base, nil
}

// Lookup returns the reference entry for a class, case-insensitively.
func (b *Base) Lookup(class string) (ClassInfo, bool) {
	info, ok := b.glossary[strings.ToLower(class)]
	return info, ok
}

// Classes returns all known class names in sorted order.
func (b *Base) Classes() []string {
	names := make([]string, 0, len(b.glossary))
	for name := range b.glossary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsNoFinding reports whether class is the "nothing detected" class.
func (b *Base) IsNoFinding(class string) bool {
	return strings.ToLower(class) == b.noFindingClass
}

// Recommend resolves the care pathway for a decision: the class- and
// confidence-band-specific template followed by the review disclaimer.
func (b *Base) Recommend(class string, probability float64) []string {
	var action string
	switch {
	case b.IsNoFinding(class):
		if probability >= bandHigh {
			action = "No tumor detected with high confidence. Routine follow-up recommended."
		} else {
			action = "No tumor indicated but with moderate confidence. Consider additional imaging if symptoms persist."
		}
	case probability >= bandHigh:
		action = fmt.Sprintf("%s tumor detected with high confidence. Recommend immediate specialist consultation and treatment planning.", capitalize(class))
	case probability >= bandModerate:
		action = fmt.Sprintf("%s tumor indicated. Recommend specialist review and potentially additional imaging for confirmation.", capitalize(class))
	default:
		action = fmt.Sprintf("Possible %s tumor but with lower confidence. Recommend expert radiologist review and additional diagnostic procedures.", strings.ToLower(class))
	}
	return []string{action, ReviewDisclaimer}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
