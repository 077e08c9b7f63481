package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	infraconfig "github.com/felixgeelhaar/itinerary/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	configPath string
	strict     bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an itinerary configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Pool, watcher, sentinel and transport limits
  - Stage names and sentinel rule actions
  - Station definitions
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  itinerary validate -c pipeline.yaml

  # Strict validation (fail on missing env vars)
  itinerary validate -c pipeline.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(opts *validateOptions) error {
	loader := infraconfig.NewLoader(
		infraconfig.WithValidation(true),
		infraconfig.WithStrictEnv(opts.strict),
	)
	cfg, err := a.loadConfig(loader, opts.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
	fmt.Fprintf(a.stdout, "  Version: %s\n", cfg.Version)

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	if cfg.Agent.PoolSize > 0 {
		fmt.Fprintf(a.stdout, "  Pool size: %d\n", cfg.Agent.PoolSize)
	} else {
		fmt.Fprintf(a.stdout, "  Pool size: from memory\n")
	}
	fmt.Fprintf(a.stdout, "  Batch agents: %t\n", cfg.Agent.Batch)
	fmt.Fprintf(a.stdout, "  Max move errors: %d\n", cfg.Agent.MaxMoveErrors)
	fmt.Fprintf(a.stdout, "  Max itinerary steps: %d\n", cfg.Agent.MaxItinerarySteps)
	fmt.Fprintf(a.stdout, "  Storage: %s\n", cfg.Storage.Driver)
	fmt.Fprintf(a.stdout, "  Transport: %s\n", cfg.Transport.Kind)

	if cfg.Watcher.Enabled {
		fmt.Fprintf(a.stdout, "  Watcher: enabled (default limit %s)\n", cfg.Watcher.DefaultLimit.Duration())
	}
	if cfg.Sentinel.Enabled {
		fmt.Fprintf(a.stdout, "  Sentinel: enabled (every %s, %d rules)\n", cfg.Sentinel.PollInterval.Duration(), len(cfg.Sentinel.Rules))
	}

	if len(cfg.Stations) > 0 {
		fmt.Fprintf(a.stdout, "  Stations: %d\n", len(cfg.Stations))
		for _, s := range cfg.Stations {
			fmt.Fprintf(a.stdout, "    - %s (%s::%s)\n", s.Name, s.DataType, s.ServiceType)
		}
	}

	return nil
}
