package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/itinerary/domain/config"
	"github.com/felixgeelhaar/itinerary/domain/report"
	infraconfig "github.com/felixgeelhaar/itinerary/infrastructure/config"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage"
)

// reportsOptions holds options for the reports command.
type reportsOptions struct {
	configPath string
	prefix     string
	errorsOnly bool
	limit      int
	jsonOutput bool
}

// newReportsCmd creates the reports command.
func (a *App) newReportsCmd() *cobra.Command {
	opts := &reportsOptions{}

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List completion reports from the configured store",
		Long: `List the completion reports persisted by earlier runs, most recent first.

Examples:
  # Last ten reports
  itinerary reports -c pipeline.yaml --limit 10

  # Failed runs of invoices
  itinerary reports -c pipeline.yaml --errors --prefix invoice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listReports(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (required)")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Only payloads whose name starts with prefix")
	cmd.Flags().BoolVar(&opts.errorsOnly, "errors", false, "Only runs that ended in error")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of reports (0 = all)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output reports as JSON")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func (a *App) listReports(ctx context.Context, opts *reportsOptions) error {
	cfg, err := a.loadConfig(infraconfig.NewLoader(), opts.configPath)
	if err != nil {
		return err
	}
	switch cfg.Storage.Driver {
	case config.StorageNone, config.StorageMemory:
		return fmt.Errorf("storage driver %q keeps no reports between runs", cfg.Storage.Driver)
	}

	store, closer, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer closer.Close()

	reports, err := store.List(ctx, report.ListFilter{
		ShortNamePrefix: opts.prefix,
		ErrorsOnly:      opts.errorsOnly,
		Limit:           opts.limit,
	})
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	return a.printReports(reports, opts.jsonOutput)
}
