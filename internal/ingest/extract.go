// Package ingest turns uploaded contract files into plain text for scoring.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/joelkehle/contract-analyzer/internal/apperr"
	"github.com/joelkehle/contract-analyzer/internal/contractscore"
)

const (
	DefaultMaxBytes = 10 * 1024 * 1024
	DefaultMaxPages = 10

	KindText = "text"
	KindPDF  = "pdf"

	msgUnsupported = "Only .txt and .pdf files supported"
	msgExtraction  = "Could not extract PDF text. Try copying text manually."
)

var (
	pdfPageObject = regexp.MustCompile(`/Type\s*/Page[^s]`)
	pdfInfoPages  = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)
)

type Options struct {
	MaxBytes int64
	MaxPages int
	// PdfToText overrides the pdftotext binary; PdfInfo the pdfinfo binary.
	PdfToText string
	PdfInfo   string
}

// Upload is one file as received from a form or the command line. Size may be -1 when the
// caller does not know it up front.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Document is the extracted text plus what the caller should tell the user about it.
type Document struct {
	Text   string
	Kind   string
	Source contractscore.SourceMetadata
	Notice string
}

type Extractor struct {
	opts Options

	pdfText  func(ctx context.Context, path string, first, last int) (string, error)
	pdfPages func(ctx context.Context, path string) (int, error)
}

func NewExtractor(opts Options) *Extractor {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if strings.TrimSpace(opts.PdfToText) == "" {
		opts.PdfToText = "pdftotext"
	}
	if strings.TrimSpace(opts.PdfInfo) == "" {
		opts.PdfInfo = "pdfinfo"
	}
	e := &Extractor{opts: opts}
	e.pdfText = e.runPdfToText
	e.pdfPages = e.runPdfInfo
	return e
}

func (e *Extractor) MaxBytes() int64 { return e.opts.MaxBytes }

// Extract reads an upload and returns its text. Errors carry user-facing apperr codes.
func (e *Extractor) Extract(ctx context.Context, up Upload) (doc Document, err error) {
	ctx, span := otel.Tracer("contract-analyzer/ingest").Start(ctx, "ingest.extract")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.Message(err))
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("ingest.filename", up.Filename), attribute.Int64("ingest.size", up.Size))

	if up.Size > e.opts.MaxBytes {
		return Document{}, e.tooLarge(up.Size)
	}
	if up.Body == nil {
		return Document{}, apperr.New(apperr.CodeValidation, "Please choose a file to upload")
	}
	blob, err := io.ReadAll(io.LimitReader(up.Body, e.opts.MaxBytes+1))
	if err != nil {
		return Document{}, apperr.Wrap(apperr.CodeInternal, "could not read upload", err)
	}
	if int64(len(blob)) > e.opts.MaxBytes {
		size := up.Size
		if size < int64(len(blob)) {
			size = int64(len(blob))
		}
		return Document{}, e.tooLarge(size)
	}

	kind := DetectKind(up.Filename, up.ContentType, blob)
	span.SetAttributes(attribute.String("ingest.kind", kind))
	switch kind {
	case KindText:
		return Document{
			Text:   decodeText(blob),
			Kind:   KindText,
			Source: contractscore.SourceMetadata{Filename: up.Filename, Method: "text"},
			Notice: "File loaded successfully",
		}, nil
	case KindPDF:
		doc, err := e.extractPDF(ctx, up.Filename, blob)
		if err == nil {
			span.SetAttributes(
				attribute.String("ingest.method", doc.Source.Method),
				attribute.Int("ingest.pages", doc.Source.Pages),
				attribute.Int("ingest.total_pages", doc.Source.TotalPages),
			)
		}
		return doc, err
	default:
		return Document{}, apperr.New(apperr.CodeUnsupportedType, msgUnsupported)
	}
}

func (e *Extractor) tooLarge(size int64) error {
	mb := float64(size) / (1024 * 1024)
	limit := e.opts.MaxBytes / (1024 * 1024)
	return apperr.New(apperr.CodeTooLarge, fmt.Sprintf("File too large (%.1fMB). Max %dMB.", mb, limit))
}

// DetectKind classifies an upload as text or pdf. A declared content type decides on its own;
// only an untyped or application/octet-stream upload falls back to its extension and then its
// leading bytes. It returns "" for anything else.
func DetectKind(filename, contentType string, blob []byte) string {
	if strings.TrimSpace(contentType) != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return ""
		}
		switch mt {
		case "text/plain":
			return KindText
		case "application/pdf":
			return KindPDF
		case "application/octet-stream":
		default:
			return ""
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return KindText
	case ".pdf":
		return KindPDF
	}
	// Exact matches only: mimetype files html, json and csv under text/plain.
	switch m := mimetype.Detect(blob); {
	case m.Is("application/pdf"):
		return KindPDF
	case m.Is("text/plain"):
		return KindText
	}
	return ""
}

func decodeText(blob []byte) string {
	blob = bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))
	if utf8.Valid(blob) {
		return string(blob)
	}
	return strings.ToValidUTF8(string(blob), "�")
}

func (e *Extractor) extractPDF(ctx context.Context, filename string, blob []byte) (Document, error) {
	tmp, err := os.CreateTemp("", "contract-*.pdf")
	if err != nil {
		return Document{}, apperr.Wrap(apperr.CodeInternal, "could not stage upload", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return Document{}, apperr.Wrap(apperr.CodeInternal, "could not stage upload", err)
	}
	if err := tmp.Close(); err != nil {
		return Document{}, apperr.Wrap(apperr.CodeInternal, "could not stage upload", err)
	}

	total, err := e.pdfPages(ctx, tmp.Name())
	if err != nil || total <= 0 {
		total = countPageObjects(blob)
	}
	pages := total
	if pages > e.opts.MaxPages {
		pages = e.opts.MaxPages
	}
	source := contractscore.SourceMetadata{
		Filename:   filename,
		Pages:      pages,
		TotalPages: total,
		Truncated:  total > e.opts.MaxPages,
	}

	text, err := e.pdfText(ctx, tmp.Name(), 1, e.opts.MaxPages)
	if err == nil && strings.TrimSpace(text) != "" {
		source.Method = "pdftotext"
	} else {
		text = extractPrintableText(blob)
		source.Method = "byte-fallback"
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Document{}, apperr.Wrap(apperr.CodeExtractionFailed, msgExtraction, err)
	}

	notice := "PDF loaded successfully"
	if source.Truncated {
		notice = fmt.Sprintf("First %d of %d pages extracted", e.opts.MaxPages, total)
	}
	return Document{Text: text, Kind: KindPDF, Source: source, Notice: notice}, nil
}

func (e *Extractor) runPdfToText(ctx context.Context, path string, first, last int) (string, error) {
	cmd := exec.CommandContext(ctx, e.opts.PdfToText,
		"-f", strconv.Itoa(first), "-l", strconv.Itoa(last), "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (e *Extractor) runPdfInfo(ctx context.Context, path string) (int, error) {
	out, err := exec.CommandContext(ctx, e.opts.PdfInfo, path).Output()
	if err != nil {
		return 0, err
	}
	return parsePdfInfoPages(string(out))
}

func parsePdfInfoPages(out string) (int, error) {
	m := pdfInfoPages.FindStringSubmatch(out)
	if len(m) != 2 {
		return 0, fmt.Errorf("page count not found in pdfinfo output")
	}
	return strconv.Atoi(m[1])
}

func countPageObjects(blob []byte) int {
	return len(pdfPageObject.FindAll(blob, -1))
}

// extractPrintableText keeps runs of printable bytes long enough to be prose. It is the
// last resort when no PDF tooling is installed.
func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= 24 {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(strings.Join(runs, "\n"))
}
