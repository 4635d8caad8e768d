package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joelkehle/contract-analyzer/internal/apperr"
	"github.com/joelkehle/contract-analyzer/internal/config"
	"github.com/joelkehle/contract-analyzer/internal/contractscore"
	"github.com/joelkehle/contract-analyzer/internal/logging"
	"github.com/joelkehle/contract-analyzer/internal/telemetry"
)

func main() {
	root, a := newRootCmd()
	if err := execute(context.Background(), root, a); err != nil {
		fmt.Fprintln(os.Stderr, "error:", userMessage(err))
		os.Exit(1)
	}
}

// execute runs the command tree and always releases tracing and logging, including when the
// command fails (cobra skips post-run hooks on error).
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	defer a.close(ctx)
	return root.ExecuteContext(ctx)
}

// userMessage prefers the user-facing text of coded errors.
func userMessage(err error) string {
	if apperr.CodeOf(err) != apperr.CodeInternal {
		return apperr.Message(err)
	}
	return err.Error()
}

// app carries state shared by every subcommand once PersistentPreRunE has run.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *zap.Logger

	shutdownTracing telemetry.ShutdownFunc
	closed          bool
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "contract-analyzer",
		Short:         "Keyword-based contract screening: accuracy, clauses, risks, summary and drafting notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.contract-analyzer.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "emit JSON logs")
	pf.String("rules", "", "YAML rulebook replacing the built-in keyword tables")
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log_json", pf.Lookup("log-json"))
	_ = a.v.BindPFlag("rules_file", pf.Lookup("rules"))

	root.AddCommand(newAnalyzeCmd(a), newRulesCmd(a), newServeCmd(a))
	return root, a
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger
	a.shutdownTracing = shutdown
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debug("config loaded", zap.String("file", used))
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.closed {
		return
	}
	a.closed = true
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil && a.log != nil {
			a.log.Warn("tracing shutdown", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// scorer builds a scorer over the configured rulebook, or the built-in one.
func (a *app) scorer() (*contractscore.Scorer, error) {
	if a.cfg.RulesFile == "" {
		return contractscore.NewScorer(nil), nil
	}
	rb, err := contractscore.LoadRulebook(a.cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	a.log.Info("rulebook loaded", zap.String("file", a.cfg.RulesFile),
		zap.Int("clauses", len(rb.Clauses)), zap.Int("risks", len(rb.Risks)), zap.Int("mistakes", len(rb.Mistakes)))
	return contractscore.NewScorer(rb), nil
}
