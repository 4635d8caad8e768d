// Package contractscore scores contract text against static keyword tables. Every operation
// is a pure function of its input and the Scorer's rulebook.
package contractscore

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joelkehle/contract-analyzer/internal/apperr"
)

type Scorer struct {
	rules *Rulebook
}

// NewScorer returns a scorer over rb, or over the built-in tables when rb is nil.
func NewScorer(rb *Rulebook) *Scorer {
	if rb == nil {
		rb = DefaultRulebook()
	}
	return &Scorer{rules: rb}
}

var defaultScorer = NewScorer(nil)

// Analyze scores in against the built-in tables.
func Analyze(in Input) Result {
	return defaultScorer.Analyze(in)
}

func (s *Scorer) Rulebook() *Rulebook {
	return s.rules
}

// Analyze runs one synchronous pass over the text. Sections whose feature is off are left
// empty; the risk level stays low.
func (s *Scorer) Analyze(in Input) Result {
	doc := newDocument(in.Text)
	res := Result{
		Accuracy:  s.accuracy(doc),
		Clauses:   []string{},
		Risks:     []Risk{},
		RiskLevel: RiskLow,
		Notes:     []Note{},
	}
	if in.Features.Clauses {
		res.Clauses = s.clauses(doc)
	}
	if in.Features.Risks {
		res.Risks = s.risks(doc)
		res.RiskLevel, res.RiskPercent = RiskAssessment(res.Risks)
	}
	if in.Features.Summary {
		res.Summary = GenerateSummary(in.Text, res.Clauses)
	}
	if in.Features.Notes {
		res.Notes = s.notes(doc)
	}
	return res
}

func (s *Scorer) ComputeAccuracy(text string) int {
	return s.accuracy(newDocument(text))
}

func (s *Scorer) ExtractClauses(text string) []string {
	return s.clauses(newDocument(text))
}

func (s *Scorer) DetectRisks(text string) []Risk {
	return s.risks(newDocument(text))
}

func (s *Scorer) GenerateNotes(text string) []Note {
	return s.notes(newDocument(text))
}

func (s *Scorer) accuracy(d document) int {
	score := 0
	for _, tier := range s.rules.LegalTiers {
		for _, kw := range tier.Keywords {
			if strings.Contains(d.text, kw) {
				score += s.rules.KeywordPoints
			}
		}
	}
	for _, b := range s.rules.Structural {
		if d.containsAny(b.Keywords) {
			score += b.Points
		}
	}
	// Half the raw total, rounded half up.
	score = (score + 1) / 2
	if score > MaxAccuracy {
		return MaxAccuracy
	}
	return score
}

func (s *Scorer) clauses(d document) []string {
	out := []string{}
	for _, p := range s.rules.Clauses {
		if d.containsAny(p.Keywords) {
			out = append(out, p.Name)
		}
	}
	return out
}

func (s *Scorer) risks(d document) []Risk {
	out := []Risk{}
	for _, r := range s.rules.Risks {
		if r.When != nil && r.When.matches(d) {
			out = append(out, Risk{Severity: r.Severity, Label: r.Name})
		}
	}
	return out
}

func (s *Scorer) notes(d document) []Note {
	out := []Note{}
	for _, m := range s.rules.Mistakes {
		if m.condition().matches(d) {
			out = append(out, Note{Type: m.Type, Issue: m.Name, Fix: m.Fix})
		}
	}
	return out
}

// RiskAssessment converts fired risks into a level and a capped percentage:
// 40 points per high risk, 20 per medium, low risks do not count.
func RiskAssessment(risks []Risk) (RiskLevel, int) {
	score := 0
	for _, r := range risks {
		switch r.Severity {
		case SeverityHigh:
			score += 40
		case SeverityMedium:
			score += 20
		}
	}
	level := RiskLow
	switch {
	case score > 60:
		level = RiskHigh
	case score > 30:
		level = RiskMedium
	}
	if score > MaxRiskPercent {
		score = MaxRiskPercent
	}
	return level, score
}

// GenerateSummary renders the statistics block followed by one line per clause.
func GenerateSummary(text string, clauses []string) string {
	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text)
	readMinutes := (words + WordsPerMinute - 1) / WordsPerMinute

	var b strings.Builder
	b.WriteString("CONTRACT SUMMARY\n")
	b.WriteString("================\n\n")
	b.WriteString("Statistics:\n")
	fmt.Fprintf(&b, "- Word Count: %d words\n", words)
	fmt.Fprintf(&b, "- Character Count: %d characters\n", chars)
	fmt.Fprintf(&b, "- Estimated Read Time: %d minutes\n\n", readMinutes)
	b.WriteString("Key Elements Detected:\n")
	for _, c := range clauses {
		fmt.Fprintf(&b, "%s\n", ClauseLine(c))
	}
	return b.String()
}

func ClauseLine(label string) string {
	return "✓ " + label
}

func RiskLine(r Risk) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(r.Severity)), r.Label)
}

// CheckLength is the pre-analysis gate callers apply before Analyze.
func CheckLength(text string, minChars int) error {
	if minChars <= 0 {
		minChars = MinContractChars
	}
	if utf8.RuneCountInString(text) < minChars {
		return apperr.New(apperr.CodeTooShort, fmt.Sprintf("Please enter at least %d characters of contract text", minChars))
	}
	return nil
}
