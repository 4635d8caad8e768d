package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/contract-analyzer/internal/account"
	"github.com/joelkehle/contract-analyzer/internal/dashboard"
	"github.com/joelkehle/contract-analyzer/internal/ingest"
)

func newServeCmd(a *app) *cobra.Command {
	var noPDF bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, noPDF)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "listen address (default :8080)")
	f.String("web-dir", "", "directory with the dashboard's static files")
	f.String("chrome-path", "", "Chrome/Chromium binary for PDF notes")
	f.Int("max-analyses", 0, "analyses kept in memory")
	f.BoolVar(&noPDF, "no-pdf", false, "disable the PDF notes download")
	_ = a.v.BindPFlag("addr", f.Lookup("addr"))
	_ = a.v.BindPFlag("web_dir", f.Lookup("web-dir"))
	_ = a.v.BindPFlag("chrome_path", f.Lookup("chrome-path"))
	_ = a.v.BindPFlag("max_analyses", f.Lookup("max-analyses"))
	return cmd
}

func runServe(ctx context.Context, a *app, noPDF bool) error {
	scorer, err := a.scorer()
	if err != nil {
		return err
	}
	cfg := a.cfg
	accounts := account.NewRegistry(0)
	accounts.LimitSessions(cfg.SessionTTL, cfg.MaxSessions)
	opts := dashboard.Options{
		Scorer:    scorer,
		Extractor: ingest.NewExtractor(ingest.Options{MaxBytes: cfg.MaxUploadBytes(), MaxPages: cfg.MaxPDFPages}),
		Accounts:  accounts,
		Analyses:  dashboard.NewAnalysisStore(cfg.MaxAnalyses),
		WebDir:    cfg.WebDir,
		MinChars:  cfg.MinChars,
		Logger:    a.log,
	}
	if !noPDF {
		opts.Renderer = dashboard.NewChromiumPDFRenderer(cfg.WebDir, cfg.ChromePath)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           dashboard.NewServer(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("dashboard listening",
			zap.String("addr", cfg.Addr),
			zap.String("web_dir", cfg.WebDir),
			zap.Bool("pdf", !noPDF),
			zap.Int64("max_upload_bytes", cfg.MaxUploadBytes()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.log.Info("dashboard shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
