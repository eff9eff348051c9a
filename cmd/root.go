package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/evinsights-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/evinsights-cli/internal/config"
	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/logging"
	"github.com/KaramelBytes/evinsights-cli/internal/metrics"
)

var (
	// Global flags
	cfgFile    string
	debug      bool
	quiet      bool
	dataPath   string
	metricsOut string
	logFormat  string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
	// Per-run logger and metrics, set up before every command.
	logger   = zap.NewNop()
	pipeline *metrics.Pipeline
)

var rootCmd = &cobra.Command{
	Use:   "evinsights",
	Short: "EVInsights CLI: clean, explore, model and chat with electric vehicle listings",
	Long: `EVInsights loads a CSV of electric vehicle listings, cleans it into a model-ready table,
summarizes and plots it, trains price regressors, and answers questions about it with
retrieval-augmented generation via OpenRouter, OpenAI or a local Ollama.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupRun()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return finishRun()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)

	// Persistent global flags available to all subcommands
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.evinsights/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	pf.StringVar(&logFormat, "log-format", "", "log format: console or json (overrides config)")
	pf.StringVar(&dataPath, "data", "", "listings CSV (overrides dataset_path)")
	pf.StringVar(&metricsOut, "metrics-out", "", "write Prometheus text metrics for this run to a file")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("data") && dataPath != "" {
		cfg.DatasetPath = dataPath
	}
	if f.Changed("log-format") && logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
}

// setupRun builds the logger and metrics for one command invocation.
func setupRun() error {
	level, format := logging.Level(debug, quiet), logFormat
	if cfg != nil {
		if !debug && !quiet {
			level = cfg.LogLevel
		}
		format = cfg.LogFormat
	}
	l, err := logging.New(level, format)
	if err != nil {
		return err
	}
	logger = l
	pipeline = metrics.NewPipeline("evinsights", logger)
	return nil
}

// requireConfig fails commands that cannot run on a broken configuration.
func requireConfig() error {
	if cfg == nil {
		return errors.New("configuration is not loaded; fix the config file or pass --config")
	}
	return nil
}

func finishRun() error {
	defer func() { _ = logger.Sync() }()
	if metricsOut == "" || pipeline == nil {
		return nil
	}
	if err := pipeline.WriteFile(metricsOut); err != nil {
		return err
	}
	logger.Debug("metrics written", zap.String("path", metricsOut))
	return nil
}

// reportError prints err with a remediation hint when one applies.
func reportError(w io.Writer, err error) {
	var state *dataset.StateError
	if errors.As(err, &state) {
		fmt.Fprintln(w, "✗ Internal error:", err)
		return
	}
	fmt.Fprintln(w, "✗ Error:", err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, "  Hint:", hint)
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, dataset.ErrFileAccess):
		return "check the listings path given by --data or dataset_path (evinsights config set dataset_path <file>)"
	case errors.Is(err, dataset.ErrParse):
		return "the listings file is not valid comma-separated text; check quoting and the header row"
	case errors.Is(err, dataset.ErrSchema):
		return "the listings file does not have the expected columns; compare its header with the documented schema"
	}
	return ai.Hint(err)
}
