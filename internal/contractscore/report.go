package contractscore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const NotesReportTitle = "Contract Analysis Report"

func BuildResponse(req RequestEnvelope, result Result) ResponseEnvelope {
	env := ResponseEnvelope{
		AnalysisID: req.AnalysisID,
		CreatedAt:  time.Now().UTC(),
		Source:     req.Source,
		Features:   req.Input.Features,
		Result:     result,
		Disclaimer: Disclaimer,
	}
	env.ReportMarkdown = buildMarkdown(env)
	return env
}

func buildMarkdown(env ResponseEnvelope) string {
	res := env.Result
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", NotesReportTitle)
	if env.AnalysisID != "" {
		fmt.Fprintf(&b, "- Analysis ID: %s\n", env.AnalysisID)
	}
	if env.Source.Filename != "" {
		fmt.Fprintf(&b, "- Source: %s\n", env.Source.Filename)
	}
	if env.Source.TotalPages > env.Source.Pages && env.Source.Pages > 0 {
		fmt.Fprintf(&b, "- Pages analyzed: first %d of %d\n", env.Source.Pages, env.Source.TotalPages)
	}
	fmt.Fprintf(&b, "- Date: %s\n\n", env.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	fmt.Fprintf(&b, "## Scores\n\n")
	fmt.Fprintf(&b, "- Accuracy: %d%%\n", res.Accuracy)
	if env.Features.Risks {
		fmt.Fprintf(&b, "- Risk: %s (%d%%)\n", RiskLevelLabel(res.RiskLevel), res.RiskPercent)
	}
	b.WriteString("\n")

	if env.Features.Clauses {
		fmt.Fprintf(&b, "## Clauses (%d)\n\n", len(res.Clauses))
		if len(res.Clauses) == 0 {
			b.WriteString("- No standard clause categories detected.\n")
		}
		for _, c := range res.Clauses {
			fmt.Fprintf(&b, "- %s\n", ClauseLine(c))
		}
		b.WriteString("\n")
	}

	if env.Features.Risks {
		fmt.Fprintf(&b, "## Risk Flags\n\n")
		if len(res.Risks) == 0 {
			b.WriteString("- No risk patterns detected.\n")
		}
		for _, r := range res.Risks {
			fmt.Fprintf(&b, "- %s\n", RiskLine(r))
		}
		b.WriteString("\n")
	}

	if env.Features.Summary && res.Summary != "" {
		fmt.Fprintf(&b, "## Summary\n\n```\n%s```\n\n", res.Summary)
	}

	if env.Features.Notes {
		fmt.Fprintf(&b, "## Notes\n\n")
		lines := NoteLines(res)
		if len(lines) == 0 {
			b.WriteString("- No drafting notes.\n")
		}
		for _, l := range lines {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RiskLevelLabel renders a level the way the dashboard shows it, e.g. "Medium Risk".
func RiskLevelLabel(level RiskLevel) string {
	return cases.Title(language.English).String(string(level)) + " Risk"
}

// NoteLines lists every fired issue first, then every fix, keeping rule order in both groups.
func NoteLines(res Result) []string {
	lines := make([]string, 0, 2*len(res.Notes))
	for _, n := range res.Notes {
		lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Type)), n.Issue))
	}
	for _, n := range res.Notes {
		lines = append(lines, "Fix: "+n.Fix)
	}
	return lines
}

// NotesText is the plain-text notes export.
func NotesText(res Result) string {
	return strings.Join(NoteLines(res), "\n")
}

// NotesMarkdown is the source document for the PDF notes export: a title and one
// paragraph per note line.
func NotesMarkdown(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", NotesReportTitle)
	for _, l := range NoteLines(res) {
		fmt.Fprintf(&b, "%s\n\n", escapeMarkdown(l))
	}
	return b.String()
}

func escapeMarkdown(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`, "#", `\#`, "`", "\\`")
	return r.Replace(s)
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// RenderJSON is the machine-readable form of a response envelope.
func RenderJSON(env ResponseEnvelope) string {
	return prettyJSON(env)
}
