package contractscore

import "time"

const Disclaimer = "This is an automated keyword screen, not legal advice. " +
	"Scores reflect the presence of common contract terms only. " +
	"Have qualified counsel review any agreement before signing."

const (
	MinContractChars         = 50
	MaxAccuracy              = 95
	MaxRiskPercent           = 95
	ComplexLanguageThreshold = 10000
	WordsPerMinute           = 200
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Features selects which optional checks Analyze runs. Accuracy is always computed.
type Features struct {
	Clauses bool `json:"clauses" yaml:"clauses"`
	Risks   bool `json:"risks" yaml:"risks"`
	Summary bool `json:"summary" yaml:"summary"`
	Notes   bool `json:"notes" yaml:"notes"`
}

func AllFeatures() Features {
	return Features{Clauses: true, Risks: true, Summary: true, Notes: true}
}

type Input struct {
	Text     string   `json:"text"`
	Features Features `json:"features"`
}

type Risk struct {
	Severity Severity `json:"severity"`
	Label    string   `json:"label"`
}

type Note struct {
	Type  Severity `json:"type"`
	Issue string   `json:"issue"`
	Fix   string   `json:"fix"`
}

type Result struct {
	Accuracy    int       `json:"accuracy"`
	Clauses     []string  `json:"clauses"`
	Risks       []Risk    `json:"risks"`
	RiskLevel   RiskLevel `json:"risk_level"`
	RiskPercent int       `json:"risk_percent"`
	Summary     string    `json:"summary"`
	Notes       []Note    `json:"notes"`
}

type SourceMetadata struct {
	Filename   string `json:"filename,omitempty"`
	Method     string `json:"method,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

type RequestEnvelope struct {
	AnalysisID string         `json:"analysis_id"`
	Input      Input          `json:"-"`
	Source     SourceMetadata `json:"source"`
}

type ResponseEnvelope struct {
	AnalysisID     string         `json:"analysis_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Source         SourceMetadata `json:"source"`
	Features       Features       `json:"features"`
	Result         Result         `json:"result"`
	ReportMarkdown string         `json:"report_markdown"`
	Disclaimer     string         `json:"disclaimer"`
}
