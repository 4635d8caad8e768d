package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/contract-analyzer/internal/contractscore"
	"github.com/joelkehle/contract-analyzer/internal/dashboard"
	"github.com/joelkehle/contract-analyzer/internal/ingest"
)

type analyzeOptions struct {
	text     string
	format   string
	pretty   bool
	notesTXT string
	notesPDF string
	features contractscore.Features
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Score a .txt or .pdf contract (reads stdin when no file or --text is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), a, opts, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.text, "text", "", "contract text to analyze instead of a file")
	f.StringVarP(&opts.format, "format", "f", "markdown", "output format: markdown, json or text")
	f.BoolVar(&opts.pretty, "pretty", false, "render markdown output for the terminal")
	f.StringVar(&opts.notesTXT, "notes-txt", "", "also write the drafting notes to this .txt file")
	f.StringVar(&opts.notesPDF, "notes-pdf", "", "also write the drafting notes to this .pdf file (needs Chrome)")
	f.BoolVar(&opts.features.Clauses, "clauses", true, "extract clause categories")
	f.BoolVar(&opts.features.Risks, "risks", true, "flag risk patterns")
	f.BoolVar(&opts.features.Summary, "summary", true, "generate the summary block")
	f.BoolVar(&opts.features.Notes, "notes", true, "generate drafting notes")
	return cmd
}

func runAnalyze(ctx context.Context, a *app, opts analyzeOptions, args []string, stdin io.Reader, out io.Writer) error {
	switch opts.format {
	case "markdown", "json", "text":
	default:
		return fmt.Errorf("unknown format %q (want markdown, json or text)", opts.format)
	}
	scorer, err := a.scorer()
	if err != nil {
		return err
	}

	doc, err := readInput(ctx, a, opts, args, stdin)
	if err != nil {
		return err
	}
	if doc.Notice != "" && doc.Kind == ingest.KindPDF {
		a.log.Info(doc.Notice, zap.String("file", doc.Source.Filename))
	}
	if err := contractscore.CheckLength(doc.Text, a.cfg.MinChars); err != nil {
		return err
	}

	in := contractscore.Input{Text: doc.Text, Features: opts.features}
	req := contractscore.RequestEnvelope{AnalysisID: uuid.NewString(), Input: in, Source: doc.Source}
	res := scorer.Analyze(in)
	env := contractscore.BuildResponse(req, res)
	a.log.Debug("analysis complete",
		zap.String("analysis_id", env.AnalysisID),
		zap.Int("accuracy", res.Accuracy),
		zap.String("risk_level", string(res.RiskLevel)),
		zap.String("method", doc.Source.Method),
	)

	if err := writeReport(out, env, opts); err != nil {
		return err
	}

	if opts.notesTXT != "" {
		if err := os.WriteFile(opts.notesTXT, []byte(contractscore.NotesText(res)), 0o644); err != nil {
			return fmt.Errorf("write notes: %w", err)
		}
		a.log.Info("notes written", zap.String("file", opts.notesTXT), zap.Int("notes", len(res.Notes)))
	}
	if opts.notesPDF != "" {
		renderer := dashboard.NewChromiumPDFRenderer(a.cfg.WebDir, a.cfg.ChromePath)
		pdf, err := renderer.Render(ctx, contractscore.NotesReportTitle, contractscore.NotesMarkdown(res))
		if err != nil {
			return fmt.Errorf("render notes pdf: %w", err)
		}
		if err := os.WriteFile(opts.notesPDF, pdf, 0o644); err != nil {
			return fmt.Errorf("write notes pdf: %w", err)
		}
		a.log.Info("notes pdf written", zap.String("file", opts.notesPDF), zap.Int("bytes", len(pdf)))
	}
	return nil
}

func readInput(ctx context.Context, a *app, opts analyzeOptions, args []string, stdin io.Reader) (ingest.Document, error) {
	if opts.text != "" {
		if len(args) > 0 {
			return ingest.Document{}, fmt.Errorf("pass either a file or --text, not both")
		}
		return ingest.Document{Text: opts.text, Kind: ingest.KindText, Source: contractscore.SourceMetadata{Method: "text"}}, nil
	}
	ex := ingest.NewExtractor(ingest.Options{MaxBytes: a.cfg.MaxUploadBytes(), MaxPages: a.cfg.MaxPDFPages})
	if len(args) == 0 || args[0] == "-" {
		return ex.Extract(ctx, ingest.Upload{Filename: "stdin", ContentType: "text/plain", Size: -1, Body: stdin})
	}
	f, err := os.Open(args[0])
	if err != nil {
		return ingest.Document{}, fmt.Errorf("open contract: %w", err)
	}
	defer f.Close()
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return ex.Extract(ctx, ingest.Upload{Filename: filepath.Base(args[0]), Size: size, Body: f})
}

func writeReport(out io.Writer, env contractscore.ResponseEnvelope, opts analyzeOptions) error {
	var body string
	switch opts.format {
	case "json":
		body = contractscore.RenderJSON(env) + "\n"
	case "text":
		body = renderText(env)
	default:
		body = env.ReportMarkdown
		if opts.pretty {
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return fmt.Errorf("terminal renderer: %w", err)
			}
			if body, err = r.Render(body); err != nil {
				return fmt.Errorf("render markdown: %w", err)
			}
		}
	}
	_, err := io.WriteString(out, body)
	return err
}

// renderText lays results out the way the dashboard cards show them.
func renderText(env contractscore.ResponseEnvelope) string {
	res := env.Result
	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy: %d%%\n", res.Accuracy)
	if env.Features.Risks {
		fmt.Fprintf(&b, "Risk: %s (%d%%)\n", contractscore.RiskLevelLabel(res.RiskLevel), res.RiskPercent)
	}
	if env.Features.Clauses && len(res.Clauses) > 0 {
		b.WriteString("\nClauses:\n")
		for _, c := range res.Clauses {
			b.WriteString(contractscore.ClauseLine(c) + "\n")
		}
	}
	if env.Features.Risks && len(res.Risks) > 0 {
		b.WriteString("\nRisks:\n")
		for _, r := range res.Risks {
			b.WriteString(contractscore.RiskLine(r) + "\n")
		}
	}
	if env.Features.Summary && res.Summary != "" {
		b.WriteString("\n" + res.Summary)
	}
	if env.Features.Notes && len(res.Notes) > 0 {
		b.WriteString("\nNotes:\n" + contractscore.NotesText(res) + "\n")
	}
	b.WriteString("\n" + contractscore.Disclaimer + "\n")
	return b.String()
}
