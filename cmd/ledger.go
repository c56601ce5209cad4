package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/ledger"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// NewLedgerCommand creates the ledger command with its subcommands.
func NewLedgerCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and edit the processed-message ledger",
		Long: `Inspect and edit the ledger of processed Message-IDs.

The ledger stores one entry per Message-ID after a successful run. The process
command skips any message already recorded here unless --force is given.

Message-IDs are stored as they appear in the header, angle brackets included.
A bare id is looked up in both forms.

Examples:
  # Was this message synced?
  emlsync ledger check '<q3-pilot-7781@cyberdyne.ai>'

  # Record a message as synced without running it
  emlsync ledger mark q3-pilot-7781@cyberdyne.ai`,
	}

	cmd.AddCommand(newLedgerCheckCommand(deps))
	cmd.AddCommand(newLedgerMarkCommand(deps))

	return cmd
}

func newLedgerCheckCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "check <message-id>",
		Short: "Show whether a Message-ID has been processed",
		Long: `Show whether a Message-ID is recorded in the ledger and when it was marked.

Example:
  emlsync ledger check '<q3-pilot-7781@cyberdyne.ai>'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), deps, func(ctx context.Context, book ledger.Ledger) error {
				return runLedgerCheck(ctx, cmd.OutOrStdout(), book, args[0])
			})
		},
	}
}

func newLedgerMarkCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <message-id>",
		Short: "Record a Message-ID as processed",
		Long: `Record a Message-ID as processed so the process command skips it.

Angle brackets are added when missing. Marking an id twice keeps the first
timestamp.

Example:
  emlsync ledger mark q3-pilot-7781@cyberdyne.ai`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), deps, func(ctx context.Context, book ledger.Ledger) error {
				return runLedgerMark(ctx, cmd.OutOrStdout(), deps.log(), book, args[0])
			})
		},
	}
}

// withLedger opens the configured ledger for fn. Ledger commands need no
// CRM credentials.
func withLedger(ctx context.Context, deps *Deps, fn func(context.Context, ledger.Ledger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := deps.Load(); err != nil {
		return err
	}
	if err := deps.Config.Ledger.Validate(); err != nil {
		return err
	}
	book, err := deps.OpenLedger(ctx, deps.Config.Ledger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer book.Close()
	return fn(ctx, book)
}

func runLedgerCheck(ctx context.Context, out io.Writer, book ledger.Ledger, raw string) error {
	for _, id := range messageIDForms(raw) {
		at, err := book.ProcessedAt(ctx, id)
		if pferrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		fmt.Fprintf(out, "%s processed at %s\n", id, at.Local().Format(time.RFC3339))
		return nil
	}
	fmt.Fprintf(out, "%s not processed\n", strings.TrimSpace(raw))
	return nil
}

func runLedgerMark(ctx context.Context, out io.Writer, logger logging.Logger, book ledger.Ledger, raw string) error {
	id := bracketed(raw)
	if id == "" {
		return fmt.Errorf("%w: message id is empty", pferrors.ErrValidation)
	}
	if err := book.Mark(ctx, id); err != nil {
		return fmt.Errorf("marking %s: %w", id, err)
	}
	logger.Info("Message marked as processed", logging.F("message_id", id))
	fmt.Fprintf(out, "%s marked\n", id)
	return nil
}

// messageIDForms returns the id as given, followed by its bracketed form
// when that differs.
func messageIDForms(raw string) []string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return nil
	}
	forms := []string{id}
	if b := bracketed(id); b != id {
		forms = append(forms, b)
	}
	return forms
}

func bracketed(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "<") {
		id = "<" + id
	}
	if !strings.HasSuffix(id, ">") {
		id += ">"
	}
	return id
}
