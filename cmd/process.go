package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/ingest/batch"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
	"github.com/otherjamesbrown/emlsync/pkg/pipeline"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Process command flags.
var (
	processForce       bool
	processMetricsFile string
	processOutput      string
)

// fileResult is the printable summary of one processed file.
type fileResult struct {
	File          string   `json:"file" yaml:"file"`
	Status        string   `json:"status" yaml:"status"`
	RunID         string   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	MessageID     string   `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Participants  int      `json:"participants" yaml:"participants"`
	Resolved      int      `json:"resolved" yaml:"resolved"`
	Notes         int      `json:"notes" yaml:"notes"`
	CompanyNote   bool     `json:"company_note" yaml:"company_note"`
	Tasks         int      `json:"tasks" yaml:"tasks"`
	DealID        *crm.ID  `json:"deal_id,omitempty" yaml:"deal_id,omitempty"`
	ActivityIDs   []crm.ID `json:"activity_ids,omitempty" yaml:"activity_ids,omitempty"`
	AttachmentURL string   `json:"attachment_url,omitempty" yaml:"attachment_url,omitempty"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result statuses.
const (
	statusProcessed = string(batch.StatusProcessed)
	statusSkipped   = string(batch.StatusSkipped)
	statusHalted    = string(batch.StatusHalted)
	statusFailed    = string(batch.StatusFailed)
)

// NewProcessCommand creates the process command.
func NewProcessCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "process <file.eml|dir>...",
		Short: "Sync .eml messages into the CRM",
		Long: `Parse each .eml file, analyze it with the LLM, and write the result to the CRM.

For every external participant emlsync finds or creates a contact and company,
writes one note per contact (with the original message attached), adds a
company note, creates follow-up tasks for the primary contact, and opens a deal
when the message is sales-oriented.

Each Message-ID is recorded in the ledger after a successful run. Messages
already in the ledger are skipped unless --force is given.

Directories are searched recursively for *.eml files. Files are processed one
at a time in order. A file that cannot be parsed is reported and the command
exits with status 1 after the remaining files have run.

Examples:
  # Process one message
  emlsync process inbox/pilot-pricing.eml

  # Process a mailbox export
  emlsync process ./export/

  # Re-run messages already in the ledger
  emlsync process --force archive/*.eml

  # Write run metrics for the node-exporter textfile collector
  emlsync process --metrics-file /var/lib/node_exporter/emlsync.prom inbox/*.eml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), cmd.OutOrStdout(), deps, args)
		},
	}

	cmd.Flags().BoolVarP(&processForce, "force", "f", false, "Reprocess messages already recorded in the ledger")
	cmd.Flags().StringVar(&processMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	cmd.Flags().StringVarP(&processOutput, "output", "o", OutputText, "Output format: text, json, yaml")

	return cmd
}

func runProcess(ctx context.Context, out io.Writer, deps *Deps, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateOutput(processOutput); err != nil {
		return err
	}
	if err := deps.Load(); err != nil {
		return err
	}
	cfg := deps.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := deps.log().With(logging.F("component", "cli"))

	book, err := deps.OpenLedger(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer book.Close()

	client, err := deps.NewCRM(cfg.CRM, deps.log())
	if err != nil {
		return fmt.Errorf("creating CRM client: %w", err)
	}
	oracle := deps.NewOracle(cfg.LLM, deps.log())
	enricher, err := deps.NewEnricher(cfg.Enrichment, oracle, deps.log())
	if err != nil {
		return fmt.Errorf("creating enrichment chain: %w", err)
	}

	registry := deps.NewRegistry()
	processor, err := pipeline.New(cfg.Pipeline(), pipeline.Deps{
		CRM:      client,
		Oracle:   oracle,
		Enricher: enricher,
		Ledger:   book,
	}, pipeline.WithLogger(deps.log()), pipeline.WithMetrics(pipeline.NewMetrics(registry)))
	if err != nil {
		return err
	}

	paths, err := batch.Discover(files)
	if err != nil {
		return err
	}

	results := make([]fileResult, 0, len(paths))
	runner := batch.NewRunner(
		batch.WithLogger(deps.log()),
		batch.WithProgressCallback(progressLogger(logger)),
	)
	summary := runner.Run(ctx, paths, func(ctx context.Context, path string) (batch.Status, error) {
		outcome, err := processor.ProcessFile(ctx, path, pipeline.Options{Force: processForce})
		result := summarize(path, outcome, err)
		results = append(results, result)

		if err != nil {
			logger.Error("Processing failed",
				logging.F("file", path),
				logging.F("code", string(pferrors.CodeOf(err))),
				logging.Err(err),
			)
		}
		if processOutput == OutputText {
			printResult(out, result)
		}
		return batch.Status(result.Status), err
	})

	if processOutput != OutputText {
		if err := writeResults(out, processOutput, results); err != nil {
			return err
		}
	} else if len(paths) > 1 {
		fmt.Fprintf(out, "\n%d files: %d processed, %d skipped, %d halted, %d failed\n",
			summary.TotalFiles, summary.ProcessedCount, summary.SkippedCount, summary.HaltedCount, summary.FailedCount)
	}

	if processMetricsFile != "" {
		if err := prometheus.WriteToTextfile(processMetricsFile, registry); err != nil {
			logger.Warn("Could not write metrics file", logging.F("path", processMetricsFile), logging.Err(err))
		}
	}

	if summary.Cancelled {
		return fmt.Errorf("%w: %v", summary.Err(), ctx.Err())
	}
	return summary.Err()
}

// progressLogger logs a debug line after each finished file and when the
// batch completes.
func progressLogger(logger logging.Logger) func(*batch.Progress) {
	lastDone := 0
	return func(p *batch.Progress) {
		s := p.Snapshot()
		switch {
		case s.Status == "completed" || s.Status == "failed":
			logger.Debug("Batch complete",
				logging.F("files", s.TotalFiles),
				logging.F("success", s.IsSuccess()),
				logging.F("elapsed_seconds", s.ElapsedSeconds),
			)
		case s.DoneCount > lastDone:
			lastDone = s.DoneCount
			fields := []logging.Field{
				logging.F("done", s.DoneCount),
				logging.F("total", s.TotalFiles),
				logging.F("percent", s.PercentComplete()),
				logging.F("failed", s.FailedCount),
			}
			if s.EstimatedRemainingSeconds != nil {
				fields = append(fields, logging.F("eta_seconds", *s.EstimatedRemainingSeconds))
			}
			logger.Debug("Batch progress", fields...)
		}
	}
}

// summarize converts a run outcome to its printable form. An outcome that
// comes back with an error still carries what the run did.
func summarize(path string, o *pipeline.Outcome, err error) fileResult {
	r := fileResult{File: path, Status: statusProcessed}
	if o != nil {
		r.RunID = o.RunID
		r.MessageID = o.MessageID
		r.Participants = o.Participants
		r.Resolved = o.Resolved
		r.Notes = len(o.ActivityIDs)
		r.CompanyNote = o.CompanyNote
		r.Tasks = o.TasksCreated
		r.DealID = o.DealID
		r.ActivityIDs = o.ActivityIDs
		r.AttachmentURL = o.AttachmentURL
		switch {
		case o.Skipped:
			r.Status = statusSkipped
		case o.Halted:
			r.Status = statusHalted
		}
	}
	if err != nil {
		r.Status = statusFailed
		r.Error = err.Error()
	}
	return r
}

func printResult(out io.Writer, r fileResult) {
	switch r.Status {
	case statusSkipped:
		fmt.Fprintf(out, "%-10s %s  already processed (%s)\n", r.Status, r.File, r.MessageID)
	case statusHalted:
		fmt.Fprintf(out, "%-10s %s  no external participants resolved\n", r.Status, r.File)
	case statusFailed:
		fmt.Fprintf(out, "%-10s %s  %s\n", r.Status, r.File, r.Error)
	default:
		deal := "-"
		if r.DealID != nil {
			deal = fmt.Sprintf("%d", *r.DealID)
		}
		fmt.Fprintf(out, "%-10s %s  contacts=%d/%d notes=%d tasks=%d deal=%s\n",
			r.Status, r.File, r.Resolved, r.Participants, r.Notes, r.Tasks, deal)
	}
}

func validateOutput(format string) error {
	switch format {
	case OutputText, OutputJSON, OutputYAML:
		return nil
	default:
		return fmt.Errorf("%w: invalid output format %q (want text, json or yaml)", pferrors.ErrValidation, format)
	}
}

func writeResults(out io.Writer, format string, v any) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return errors.New("unsupported output format")
	}
}
