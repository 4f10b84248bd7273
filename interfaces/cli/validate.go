package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	infraconfig "github.com/felixgeelhaar/kvguard/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict     bool
	showSchema bool
}

func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a kvguard configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Required fields (name, version)
  - Backend and strategy names
  - Rate limit policy (points and window)
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  kvguard validate -c kvguard.yaml

  # Strict validation (fail on missing env vars)
  kvguard validate -c kvguard.yaml --strict

  # Show the JSON schema for configuration
  kvguard validate --schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showSchema {
				return a.showConfigSchema()
			}
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")
	cmd.Flags().BoolVar(&opts.showSchema, "schema", false, "Show JSON schema for configuration")

	return cmd
}

func (a *App) validateConfig(opts *validateOptions) error {
	if a.configPath == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	config, err := a.loadConfig(infraconfig.WithStrictEnv(opts.strict))
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := infraconfig.NewBuilder(config).Build()
	if err != nil {
		return fmt.Errorf("configuration build failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", config.Name)
	fmt.Fprintf(a.stdout, "  Version: %s\n", config.Version)
	if config.Description != "" {
		fmt.Fprintf(a.stdout, "  Description: %s\n", config.Description)
	}

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	fmt.Fprintf(a.stdout, "  Cache: %s (default TTL %s)\n", result.Cache.Backend, result.Cache.DefaultTTL)
	fmt.Fprintf(a.stdout, "  Rate limit: %s/%s, %d points per %s\n",
		result.Limiter.Backend, result.Limiter.Strategy,
		result.Limiter.Policy.Points, result.Limiter.Policy.Duration)

	if result.Redis != nil {
		addr := result.Redis.Address
		if result.Redis.URL != "" {
			addr = "url"
		}
		fmt.Fprintf(a.stdout, "  Redis: %s (db %d)\n", addr, result.Redis.DB)
	}
	if result.Breaker != nil {
		fmt.Fprintf(a.stdout, "  Circuit breaker: enabled (threshold=%d)\n", config.Resilience.CircuitBreaker.Threshold)
	}
	if result.Metrics != nil {
		fmt.Fprintf(a.stdout, "  Telemetry: enabled (%s)\n", config.Telemetry.ServiceName)
	}
	if result.Tracing != nil {
		fmt.Fprintf(a.stdout, "  Tracing: %s (sample rate %.2f)\n", result.Tracing.Exporter, result.Tracing.SampleRate)
	}

	return nil
}

func (a *App) showConfigSchema() error {
	schemaJSON, err := infraconfig.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Fprintln(a.stdout, schemaJSON)
	return nil
}
