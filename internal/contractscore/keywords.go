package contractscore

const defaultKeywordPoints = 5

var essentialTerms = []string{
	"hereby", "whereas", "agreement", "contract", "party", "parties", "terms and conditions",
	"effective date", "term", "termination", "liability", "indemnity", "confidentiality",
	"governing law", "jurisdiction", "dispute", "arbitration", "clause", "obligation", "covenant",
	"representation", "warranty", "breach", "force majeure", "intellectual property",
	"consideration", "executed", "signatory", "herein", "thereof",
}

var importantTerms = []string{
	"payment", "fee", "invoice", "billing", "price", "cost", "insurance", "liability insurance",
	"indemnification", "confidential", "trade secret", "proprietary", "negotiate", "mediate",
	"litigate", "severability", "entire agreement", "amendment", "waive", "waiver", "void",
	"assignable", "assignment",
}

// DefaultRulebook returns the built-in keyword tables. Each call returns a fresh copy.
func DefaultRulebook() *Rulebook {
	return &Rulebook{
		KeywordPoints: defaultKeywordPoints,
		LegalTiers: []KeywordTier{
			{Name: "essential", Keywords: clone(essentialTerms)},
			{Name: "important", Keywords: clone(importantTerms)},
		},
		Structural: []StructuralBonus{
			{Keywords: []string{"signature"}, Points: 10},
			{Keywords: []string{"date"}, Points: 10},
			{Keywords: []string{"party", "parties"}, Points: 10},
			{Keywords: []string{"agreement"}, Points: 10},
		},
		Clauses: []ClausePattern{
			{Name: "Payment Terms", Keywords: []string{"payment", "fee", "price", "cost"}},
			{Name: "Termination", Keywords: []string{"termination", "terminate", "end", "conclusion"}},
			{Name: "Liability", Keywords: []string{"liability", "liable", "responsible", "damage"}},
			{Name: "Confidentiality", Keywords: []string{"confidential", "confidentiality", "nda", "secret"}},
			{Name: "Intellectual Property", Keywords: []string{"intellectual property", "copyright", "trademark", "patent"}},
			{Name: "Indemnification", Keywords: []string{"indemnify", "indemnification", "hold harmless"}},
			{Name: "Dispute Resolution", Keywords: []string{"arbitration", "mediation", "litigation", "court"}},
			{Name: "Governing Law", Keywords: []string{"governing law", "jurisdiction", "legal"}},
		},
		Risks: []RiskRule{
			{Severity: SeverityHigh, Name: "Unlimited Liability", When: KeywordPresence{Keywords: []string{"unlimited", "no limit", "no cap"}}},
			{Severity: SeverityHigh, Name: "Vague Termination", When: KeywordPresence{Keywords: []string{"terminate at will", "either party"}}},
			{Severity: SeverityMedium, Name: "Automatic Renewal", When: KeywordPresence{Keywords: []string{"auto renew", "automatic renewal", "renew automatically"}}},
			{Severity: SeverityMedium, Name: "One-Sided Terms", When: KeywordPresence{Keywords: []string{"sole discretion", "at our option", "unilateral"}}},
			{Severity: SeverityMedium, Name: "Missing Dispute Resolution", When: KeywordAbsence{Keywords: []string{"arbitration", "mediation"}}},
			{Severity: SeverityLow, Name: "Complex Language", When: LengthThreshold{Chars: ComplexLanguageThreshold}},
		},
		Mistakes: []MistakeRule{
			{Type: SeverityCritical, Name: "Missing Signature Block", Keywords: []string{"signature", "sign"}, Fix: "Add signature block with date fields for all parties"},
			{Type: SeverityCritical, Name: "Unclear Party Definition", Keywords: []string{"party", "parties"}, Fix: "Define all parties with full legal names and addresses"},
			{Type: SeverityHigh, Name: "Missing Effective Date", Keywords: []string{"effective date", "commencement"}, Fix: "Add specific effective date"},
			{Type: SeverityHigh, Name: "Ambiguous Termination Terms", Keywords: []string{"termination"}, Fix: "Specify termination conditions and notice periods"},
			{Type: SeverityHigh, Name: "Vague Payment Terms", Keywords: []string{"payment", "fee", "cost"}, Fix: "Define payment amount, schedule and method clearly"},
			{Type: SeverityMedium, Name: "Missing Limitation of Liability", Keywords: []string{"liability"}, Fix: "Add limitation of liability clause"},
			{Type: SeverityMedium, Name: "Weak Confidentiality Clause", Keywords: []string{"confidential", "nda"}, Fix: "Strengthen confidentiality protections"},
			{Type: SeverityLow, Name: "Missing Severability Clause", Keywords: []string{"severability"}, Fix: "Add severability clause for validity protection"},
		},
	}
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
