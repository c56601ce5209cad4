// Package main provides the emlsync CLI entry point.
// emlsync reads .eml messages and records their participants, notes,
// follow-up tasks and deals in a CRM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/emlsync/cmd"
	"github.com/otherjamesbrown/emlsync/pkg/buildinfo"
)

// newRootCommand builds the command tree around deps.
func newRootCommand(deps *cmd.Deps) *cobra.Command {
	var (
		verbose bool
		logJSON bool
	)

	rootCmd := &cobra.Command{
		Use:   "emlsync",
		Short: "Sync .eml messages into a CRM",
		Long: `emlsync reads .eml messages, analyzes them with an LLM, and records what it
finds in the CRM: contacts and companies for every external participant, a
note per contact with the original message attached, follow-up tasks, and a
deal for sales conversations. Each Message-ID is processed once.

CONFIGURATION:
  Settings come from ~/.emlsync/config.yaml, .env, environment variables
  (CRM_API_BASE_URL, CRM_API_KEY, LLM_BASE_URL, LLM_MODEL, ...) and flags.
  Run 'emlsync config show' to see the merged result.

COMMON WORKFLOWS:
  Sync messages:    emlsync process inbox/*.eml
  Re-run one:       emlsync process --force inbox/pilot.eml
  Check the ledger: emlsync ledger check '<id@example.com>'
  Store a key:      emlsync auth set-key crm`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			// Skip initialization for commands that don't need it.
			switch c.Name() {
			case "version", "help", "completion", "auth", "set-key", "clear-key", "status":
				return nil
			}
			deps.Options.Flags.Verbose = verbose
			deps.Options.Flags.LogJSON = logJSON
			return deps.Load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&deps.Options.ConfigPath, "config", "", "Config file (default ~/.emlsync/config.yaml)")
	flags.StringVar(&deps.Options.EnvFile, "env-file", "", "Load environment variables from this file, overriding the environment")
	flags.StringVar(&deps.Options.Flags.APIKey, "api-key", "", "CRM API key")
	flags.StringVar(&deps.Options.Flags.BaseURL, "base-url", "", "CRM API base URL")
	flags.StringVar(&deps.Options.Flags.DBPath, "db-path", "", "SQLite ledger path")
	flags.StringVar(&deps.Options.Flags.LLMURL, "llm-url", "", "LLM gateway base URL")
	flags.StringVar(&deps.Options.Flags.LLMModel, "llm-model", "", "LLM model name")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(cmd.NewProcessCommand(deps))
	rootCmd.AddCommand(cmd.NewLedgerCommand(deps))
	rootCmd.AddCommand(cmd.NewAuthCommand(deps))
	rootCmd.AddCommand(cmd.NewConfigCommand(deps))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// newVersionCommand prints version information.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build time of emlsync.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			info := buildinfo.Get("emlsync")
			out := c.OutOrStdout()
			fmt.Fprintf(out, "emlsync version %s\n", info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
			return nil
		},
	}
}

func main() {
	// Set up signal handling for graceful shutdown. The first signal cancels
	// the run; a second exits immediately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
		<-sigChan
		os.Exit(130)
	}()

	if err := newRootCommand(cmd.DefaultDeps()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
