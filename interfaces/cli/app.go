// Package cli provides the command-line interface of itinerary.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/itinerary"
	"github.com/felixgeelhaar/itinerary/domain/config"
	infraconfig "github.com/felixgeelhaar/itinerary/infrastructure/config"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// Version information, overridable at build time.
var (
	Version   = itinerary.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App represents the CLI application.
type App struct {
	root     *cobra.Command
	stdout   io.Writer
	stderr   io.Writer
	envFiles []string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "itinerary",
		Short: "Route payloads through stations with a pool of agents",
		Long: `itinerary runs payloads through a pipeline of stations. Agents ask a
directory for the next station, stage by stage, until the payload is done
or has failed, while a watchdog looks for agents stuck at one station.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadEnvFiles()
		},
	}

	app.root.PersistentFlags().StringSliceVar(&app.envFiles, "env-file", nil, "Load environment variables from dotenv files before reading the config")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newRunCmd(),
		app.newReportsCmd(),
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

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "itinerary version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

// loadEnvFiles fills the environment from --env-file without overriding
// variables that are already set.
func (a *App) loadEnvFiles() error {
	if len(a.envFiles) == 0 {
		return nil
	}
	if err := godotenv.Load(a.envFiles...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// loadConfig loads path and installs the configured logger on stderr.
func (a *App) loadConfig(loader *infraconfig.Loader, path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path is required (-c flag)")
	}
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.stderr,
	})
	return cfg, nil
}
