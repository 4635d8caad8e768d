package dashboard

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const renderTimeout = 30 * time.Second

// PDFRenderer turns a markdown document into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, title, markdown string) ([]byte, error)
}

// ChromiumPDFRenderer prints markdown through headless Chrome.
type ChromiumPDFRenderer struct {
	webDir     string
	chromePath string
	styleOnce  sync.Once
	styleCSS   string
	styleErr   error
}

// NewChromiumPDFRenderer uses chromePath when set, otherwise the first Chrome found in the
// usual install locations. webDir may hold a style.css that is appended to the built-in
// print styles.
func NewChromiumPDFRenderer(webDir, chromePath string) *ChromiumPDFRenderer {
	if strings.TrimSpace(chromePath) == "" {
		chromePath = detectChromePath()
	}
	return &ChromiumPDFRenderer{webDir: webDir, chromePath: chromePath}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, title, markdown string) (pdf []byte, err error) {
	ctx, span := otel.Tracer("contract-analyzer/dashboard").Start(ctx, "pdf.render")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("pdf.bytes", len(pdf)))
		span.End()
	}()

	htmlDoc, err := r.buildHTML(title, markdown)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.6).
				WithMarginBottom(0.75).
				WithMarginLeft(0.6).
				WithMarginRight(0.6).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

const printCSS = "html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
	"body{font-family:Helvetica,Arial,sans-serif;font-size:12pt;color:#111;background:#fff;margin:0;} " +
	"h1{font-size:16pt;margin:0 0 1.2rem 0;} h2{font-size:13pt;margin-top:1.4rem;border-bottom:1px solid #ddd;} " +
	"p{margin:0 0 0.5rem 0;line-height:1.4;} pre{white-space:pre-wrap;font-size:10pt;background:#f6f6f6;padding:0.5rem;} " +
	"table{width:100%;border-collapse:collapse;} th,td{border:1px solid #bbb;padding:0.3rem;text-align:left;}"

func (r *ChromiumPDFRenderer) buildHTML(title, markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	styleCSS, err := r.loadStyleCSS()
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + printCSS + "\n" + styleCSS + "</style></head><body>" +
		"<main class='report'>" + content.String() + "</main>" +
		"</body></html>", nil
}

// loadStyleCSS reads webDir/style.css once. A missing file is fine.
func (r *ChromiumPDFRenderer) loadStyleCSS() (string, error) {
	r.styleOnce.Do(func() {
		if r.webDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(r.webDir, "style.css"))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.styleErr = fmt.Errorf("read style.css: %w", err)
			}
			return
		}
		r.styleCSS = string(b)
	})
	return r.styleCSS, r.styleErr
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
