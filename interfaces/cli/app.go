// Package cli provides the kvguard command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/kvguard/application"
	domainconfig "github.com/felixgeelhaar/kvguard/domain/config"
	infraconfig "github.com/felixgeelhaar/kvguard/infrastructure/config"
	"github.com/felixgeelhaar/kvguard/infrastructure/logging"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "kvguard",
		Short: "Cache and rate-limit toolkit backed by memory or Redis",
		Long: `kvguard is a small toolkit for caching values with expiry and
bounding how often a caller may perform an action.

Both the cache and the rate limiter run in memory or against a shared Redis
server. Configuration comes from a YAML or JSON file, KVGUARD_* environment
variables, or the built-in defaults.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Path to configuration file")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newExportSchemaCmd(),
		app.newCacheCmd(),
		app.newLimitCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "kvguard version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

// loadConfig reads the --config file, or falls back to defaults plus
// KVGUARD_* overrides when no file is given.
func (a *App) loadConfig(opts ...infraconfig.LoaderOption) (*domainconfig.Config, error) {
	if a.configPath != "" {
		return infraconfig.NewLoader(opts...).LoadFile(a.configPath)
	}

	cfg := &domainconfig.Config{Name: "kvguard", Version: "1.0"}
	if err := infraconfig.ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if errs := domainconfig.NewValidator().Validate(cfg); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", domainconfig.ErrValidationFailed, errs)
	}
	return cfg, nil
}

// openResources loads configuration, points the logger and stdout trace
// exporter at stderr and connects the configured backends. The caller
// closes the result.
func (a *App) openResources(ctx context.Context) (*application.Resources, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	})

	return application.Open(ctx, *cfg, application.WithTraceWriter(a.stderr))
}
