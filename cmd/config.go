package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/emlsync/config"
	"github.com/otherjamesbrown/emlsync/credentials"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect emlsync configuration",
		Long: `Inspect the effective emlsync configuration.

Values are merged from, lowest to highest priority: built-in defaults, the
YAML config file, .env, --env-file, environment variables, and command-line
flags. API keys not provided by any of these are read from the OS keyring.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Print the merged configuration as YAML with API keys masked, followed by the
sources that contributed to it.

Example:
  emlsync --env-file prod.env config show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Load(); err != nil {
				return err
			}
			data, err := deps.Config.Redacted(credentials.MaskAPIKey).YAML()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			path := deps.Options.ConfigPath
			if path == "" {
				path, _ = config.ConfigPath()
			}
			fmt.Fprintf(out, "# config file: %s\n", path)
			if len(deps.Config.Sources) > 0 {
				fmt.Fprintf(out, "# loaded from: %s\n", strings.Join(deps.Config.Sources, ", "))
			}
			if err := deps.Config.Validate(); err != nil {
				fmt.Fprintf(out, "# not ready to process: %v\n", err)
			}
			_, err = out.Write(data)
			return err
		},
	})

	return cmd
}
