package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/report"
	infraconfig "github.com/felixgeelhaar/itinerary/infrastructure/config"
)

// runOptions holds options for the run command.
type runOptions struct {
	configPath string
	inputs     []string
	batch      bool
	trace      string
	stats      bool
	watch      bool
	timeout    time.Duration
	jsonOutput bool
}

// newRunCmd creates the run command.
func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Route payloads through the configured stations",
		Long: `Run the configured stations and agent pool, dispatch the given payloads
and wait until every one of them (and everything they sprout) is finished.

Each file argument becomes one payload of form UNKNOWN named after the file.
An --input name=FORM flag adds an empty payload of the given form.

Examples:
  # Route two files
  itinerary run -c pipeline.yaml a.txt b.txt

  # Route synthetic payloads on batch agents
  itinerary run -c pipeline.yaml --batch --input doc-1=TEXT --input doc-2=TEXT

  # Print station timings and export spans to stdout
  itinerary run -c pipeline.yaml --stats --trace stdout a.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (required)")
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Add a payload (name or name=FORM)")
	cmd.Flags().BoolVar(&opts.batch, "batch", false, "Use batch agents (overrides config)")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "Span exporter: none, stdout or otlp (overrides config)")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print station timings when done")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload log level and watcher limit when the config changes")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Give up waiting after this long")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output reports as JSON")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// runPipeline builds a node from the configuration and routes the payloads.
func (a *App) runPipeline(ctx context.Context, opts *runOptions, files []string) error {
	loader := infraconfig.NewLoader()
	cfg, err := a.loadConfig(loader, opts.configPath)
	if err != nil {
		return err
	}

	payloads, err := readPayloads(files, opts.inputs)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return fmt.Errorf("nothing to run: pass files or --input")
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	n, err := newNode(ctx, cfg, nodeOptions{batch: opts.batch, trace: opts.trace, tracer: a.stderr})
	if err != nil {
		return err
	}
	defer n.close()

	if err := n.start(ctx); err != nil {
		return err
	}
	if opts.watch {
		go n.watch(ctx, loader, opts.configPath)
	}

	started := time.Now().UTC()
	if cfg.Agent.Batch || opts.batch {
		err = n.pool.DispatchBatch(ctx, payloads, n.pickup)
	} else {
		for _, p := range payloads {
			if err = n.pool.Dispatch(ctx, p, n.pickup); err != nil {
				break
			}
		}
	}
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := n.pool.Wait(ctx); err != nil {
		return fmt.Errorf("wait: %w", err)
	}

	if opts.stats && n.guard != nil {
		if err := n.guard.DumpStats(a.stdout); err != nil {
			return err
		}
	}

	if n.store == nil {
		fmt.Fprintf(a.stdout, "Routed %d payloads (reports disabled)\n", len(payloads))
		return nil
	}
	all, err := n.store.List(ctx, report.ListFilter{})
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	var reports []*report.Report
	for _, r := range all {
		if !r.CompletedAt.Before(started) {
			reports = append(reports, r)
		}
	}
	return a.printReports(reports, opts.jsonOutput)
}

// readPayloads turns file arguments and --input flags into payloads.
func readPayloads(files, inputs []string) ([]payload.Payload, error) {
	out := make([]payload.Payload, 0, len(files)+len(inputs))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		out = append(out, payload.New(filepath.Base(f), data, payload.FormUnknown))
	}
	for _, in := range inputs {
		name, form, ok := strings.Cut(in, "=")
		if !ok || form == "" {
			form = payload.FormUnknown
		}
		if name == "" {
			return nil, fmt.Errorf("invalid input %q: missing name", in)
		}
		out = append(out, payload.New(name, nil, form))
	}
	return out, nil
}

// printReports writes reports as a table or as JSON.
func (a *App) printReports(reports []*report.Report, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(reports) == 0 {
		fmt.Fprintf(a.stdout, "No reports\n")
		return nil
	}
	for _, r := range reports {
		status := "✓"
		if r.HasErrors() {
			status = "✗"
		}
		fmt.Fprintf(a.stdout, "%s %s %s (%d stations", status, r.ShortName, strings.Join(r.Forms, ","), len(r.History))
		if r.MoveErrors > 0 {
			fmt.Fprintf(a.stdout, ", %d move errors", r.MoveErrors)
		}
		fmt.Fprintf(a.stdout, ")\n")
		if r.ProcessingError != "" {
			for _, line := range strings.Split(strings.TrimSpace(r.ProcessingError), "\n") {
				fmt.Fprintf(a.stdout, "    %s\n", line)
			}
		}
	}
	return nil
}
