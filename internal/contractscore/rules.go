package contractscore

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// document is the lower-cased view of the contract that every condition inspects.
type document struct {
	text  string
	chars int
}

func newDocument(raw string) document {
	lower := strings.ToLower(raw)
	return document{text: lower, chars: utf8.RuneCountInString(lower)}
}

func (d document) containsAny(keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(d.text, kw) {
			return true
		}
	}
	return false
}

type ConditionKind string

const (
	ConditionPresence   ConditionKind = "presence"
	ConditionAbsence    ConditionKind = "absence"
	ConditionLengthOver ConditionKind = "length_over"
)

// Condition decides whether a rule fires for a document.
type Condition interface {
	Kind() ConditionKind
	matches(d document) bool
}

// KeywordPresence fires when at least one keyword is a substring of the text.
// An empty keyword list never fires.
type KeywordPresence struct {
	Keywords []string
}

func (KeywordPresence) Kind() ConditionKind { return ConditionPresence }

func (c KeywordPresence) matches(d document) bool {
	return len(c.Keywords) > 0 && d.containsAny(c.Keywords)
}

// KeywordAbsence fires when none of the keywords occur in the text.
type KeywordAbsence struct {
	Keywords []string
}

func (KeywordAbsence) Kind() ConditionKind { return ConditionAbsence }

func (c KeywordAbsence) matches(d document) bool {
	return !d.containsAny(c.Keywords)
}

// LengthThreshold fires when the text is longer than Chars characters.
type LengthThreshold struct {
	Chars int
}

func (LengthThreshold) Kind() ConditionKind { return ConditionLengthOver }

func (c LengthThreshold) matches(d document) bool {
	return d.chars > c.Chars
}

type ClausePattern struct {
	Name     string
	Keywords []string
}

type RiskRule struct {
	Severity Severity
	Name     string
	When     Condition
}

type MistakeRule struct {
	Type     Severity
	Name     string
	Keywords []string
	// Absence inverts the trigger: the rule fires when no keyword is present.
	Absence bool
	Fix     string
}

func (m MistakeRule) condition() Condition {
	if m.Absence {
		return KeywordAbsence{Keywords: m.Keywords}
	}
	return KeywordPresence{Keywords: m.Keywords}
}

// StructuralBonus adds Points when any of Keywords is present.
type StructuralBonus struct {
	Keywords []string
	Points   int
}

func validateCondition(c Condition) error {
	switch v := c.(type) {
	case KeywordPresence:
		if len(v.Keywords) == 0 {
			return fmt.Errorf("presence condition requires keywords")
		}
	case KeywordAbsence:
		if len(v.Keywords) == 0 {
			return fmt.Errorf("absence condition requires keywords")
		}
	case LengthThreshold:
		if v.Chars < 0 {
			return fmt.Errorf("length threshold must be >= 0")
		}
	case nil:
		return fmt.Errorf("condition is required")
	default:
		return fmt.Errorf("unsupported condition %T", c)
	}
	return nil
}
