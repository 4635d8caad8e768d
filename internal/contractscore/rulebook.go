package contractscore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type KeywordTier struct {
	Name     string
	Keywords []string
}

// Rulebook holds every keyword table the scorer reads. It is treated as immutable once
// handed to NewScorer.
type Rulebook struct {
	KeywordPoints int
	LegalTiers    []KeywordTier
	Structural    []StructuralBonus
	Clauses       []ClausePattern
	Risks         []RiskRule
	Mistakes      []MistakeRule
}

type rulebookFile struct {
	KeywordPoints int               `yaml:"keyword_points,omitempty"`
	LegalKeywords []tierEntry       `yaml:"legal_keywords,omitempty"`
	Structural    []structuralEntry `yaml:"structural_bonuses,omitempty"`
	Clauses       []clauseEntry     `yaml:"clauses,omitempty"`
	Risks         []riskEntry       `yaml:"risks,omitempty"`
	Mistakes      []mistakeEntry    `yaml:"mistakes,omitempty"`
}

type tierEntry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type structuralEntry struct {
	Keywords []string `yaml:"keywords"`
	Points   int      `yaml:"points"`
}

type clauseEntry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type riskEntry struct {
	Severity  Severity      `yaml:"severity"`
	Name      string        `yaml:"name"`
	When      ConditionKind `yaml:"when"`
	Keywords  []string      `yaml:"keywords,omitempty"`
	Threshold int           `yaml:"threshold,omitempty"`
}

type mistakeEntry struct {
	Type     Severity `yaml:"type"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Absence  bool     `yaml:"absence,omitempty"`
	Fix      string   `yaml:"fix"`
}

// LoadRulebook reads a YAML rulebook. Sections missing from the file keep the built-in
// defaults.
func LoadRulebook(path string) (*Rulebook, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}
	rb, err := ParseRulebook(blob)
	if err != nil {
		return nil, fmt.Errorf("rulebook %s: %w", path, err)
	}
	return rb, nil
}

func ParseRulebook(blob []byte) (*Rulebook, error) {
	var f rulebookFile
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	rb := DefaultRulebook()
	if f.KeywordPoints != 0 {
		rb.KeywordPoints = f.KeywordPoints
	}
	if len(f.LegalKeywords) > 0 {
		rb.LegalTiers = rb.LegalTiers[:0]
		for _, t := range f.LegalKeywords {
			rb.LegalTiers = append(rb.LegalTiers, KeywordTier{Name: t.Name, Keywords: normalizeKeywords(t.Keywords)})
		}
	}
	if len(f.Structural) > 0 {
		rb.Structural = rb.Structural[:0]
		for _, s := range f.Structural {
			rb.Structural = append(rb.Structural, StructuralBonus{Keywords: normalizeKeywords(s.Keywords), Points: s.Points})
		}
	}
	if len(f.Clauses) > 0 {
		rb.Clauses = rb.Clauses[:0]
		for _, c := range f.Clauses {
			rb.Clauses = append(rb.Clauses, ClausePattern{Name: strings.TrimSpace(c.Name), Keywords: normalizeKeywords(c.Keywords)})
		}
	}
	if len(f.Risks) > 0 {
		rb.Risks = rb.Risks[:0]
		for i, r := range f.Risks {
			cond, err := r.condition()
			if err != nil {
				return nil, fmt.Errorf("risks[%d] %q: %w", i, r.Name, err)
			}
			rb.Risks = append(rb.Risks, RiskRule{Severity: Severity(strings.ToLower(string(r.Severity))), Name: strings.TrimSpace(r.Name), When: cond})
		}
	}
	if len(f.Mistakes) > 0 {
		rb.Mistakes = rb.Mistakes[:0]
		for _, m := range f.Mistakes {
			rb.Mistakes = append(rb.Mistakes, MistakeRule{
				Type:     Severity(strings.ToLower(string(m.Type))),
				Name:     strings.TrimSpace(m.Name),
				Keywords: normalizeKeywords(m.Keywords),
				Absence:  m.Absence,
				Fix:      strings.TrimSpace(m.Fix),
			})
		}
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return rb, nil
}

func (r riskEntry) condition() (Condition, error) {
	switch ConditionKind(strings.ToLower(string(r.When))) {
	case ConditionPresence, "":
		return KeywordPresence{Keywords: normalizeKeywords(r.Keywords)}, nil
	case ConditionAbsence:
		return KeywordAbsence{Keywords: normalizeKeywords(r.Keywords)}, nil
	case ConditionLengthOver:
		return LengthThreshold{Chars: r.Threshold}, nil
	default:
		return nil, fmt.Errorf("unknown condition %q", r.When)
	}
}

// Validate reports every structural problem in the rulebook.
func (rb *Rulebook) Validate() error {
	var errs []error
	if rb.KeywordPoints < 0 {
		errs = append(errs, errors.New("keyword_points must be >= 0"))
	}
	for i, t := range rb.LegalTiers {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("legal_keywords[%d]: name is required", i))
		}
		errs = append(errs, checkKeywords(fmt.Sprintf("legal_keywords[%d]", i), t.Keywords, true)...)
	}
	for i, s := range rb.Structural {
		errs = append(errs, checkKeywords(fmt.Sprintf("structural_bonuses[%d]", i), s.Keywords, true)...)
	}
	for i, c := range rb.Clauses {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("clauses[%d]: name is required", i))
		}
		errs = append(errs, checkKeywords(fmt.Sprintf("clauses[%d]", i), c.Keywords, true)...)
	}
	for i, r := range rb.Risks {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("risks[%d]: name is required", i))
		}
		if r.Severity != SeverityHigh && r.Severity != SeverityMedium && r.Severity != SeverityLow {
			errs = append(errs, fmt.Errorf("risks[%d]: invalid severity %q", i, r.Severity))
		}
		if err := validateCondition(r.When); err != nil {
			errs = append(errs, fmt.Errorf("risks[%d]: %w", i, err))
		}
		switch c := r.When.(type) {
		case KeywordPresence:
			errs = append(errs, checkKeywords(fmt.Sprintf("risks[%d]", i), c.Keywords, false)...)
		case KeywordAbsence:
			errs = append(errs, checkKeywords(fmt.Sprintf("risks[%d]", i), c.Keywords, false)...)
		}
	}
	for i, m := range rb.Mistakes {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("mistakes[%d]: name is required", i))
		}
		if !m.Type.Valid() {
			errs = append(errs, fmt.Errorf("mistakes[%d]: invalid type %q", i, m.Type))
		}
		errs = append(errs, checkKeywords(fmt.Sprintf("mistakes[%d]", i), m.Keywords, true)...)
	}
	return errors.Join(errs...)
}

func checkKeywords(where string, keywords []string, required bool) []error {
	var errs []error
	if required && len(keywords) == 0 {
		errs = append(errs, fmt.Errorf("%s: keywords are required", where))
	}
	for j, kw := range keywords {
		if kw == "" {
			errs = append(errs, fmt.Errorf("%s: keyword %d is empty", where, j))
		}
	}
	return errs
}

// EncodeYAML renders the rulebook in the same format LoadRulebook accepts.
func (rb *Rulebook) EncodeYAML() ([]byte, error) {
	f := rulebookFile{KeywordPoints: rb.KeywordPoints}
	for _, t := range rb.LegalTiers {
		f.LegalKeywords = append(f.LegalKeywords, tierEntry{Name: t.Name, Keywords: t.Keywords})
	}
	for _, s := range rb.Structural {
		f.Structural = append(f.Structural, structuralEntry{Keywords: s.Keywords, Points: s.Points})
	}
	for _, c := range rb.Clauses {
		f.Clauses = append(f.Clauses, clauseEntry{Name: c.Name, Keywords: c.Keywords})
	}
	for _, r := range rb.Risks {
		e := riskEntry{Severity: r.Severity, Name: r.Name}
		switch c := r.When.(type) {
		case KeywordPresence:
			e.When, e.Keywords = ConditionPresence, c.Keywords
		case KeywordAbsence:
			e.When, e.Keywords = ConditionAbsence, c.Keywords
		case LengthThreshold:
			e.When, e.Threshold = ConditionLengthOver, c.Chars
		default:
			return nil, fmt.Errorf("risk %q: unsupported condition %T", r.Name, r.When)
		}
		f.Risks = append(f.Risks, e)
	}
	for _, m := range rb.Mistakes {
		f.Mistakes = append(f.Mistakes, mistakeEntry{Type: m.Type, Name: m.Name, Keywords: m.Keywords, Absence: m.Absence, Fix: m.Fix})
	}
	return yaml.Marshal(f)
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(kw)))
	}
	return out
}
