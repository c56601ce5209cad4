package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/emlsync/credentials"
)

// Auth command flags.
var (
	authKey string
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys stored in the OS keyring",
		Long: `Manage the CRM and LLM API keys stored in the operating system keyring.

A stored key is only used when no --api-key flag, environment variable, or
.env entry provides one.

Accounts:
  crm   CRM API key (default)
  llm   LLM gateway API key`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthClearKeyCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))

	return cmd
}

func newAuthSetKeyCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-key [crm|llm]",
		Short: "Store an API key in the keyring",
		Long: `Store an API key in the keyring. The key is read from --key, or prompted for
with hidden input, or read from the first line of stdin when stdin is not a
terminal.

Examples:
  emlsync auth set-key
  emlsync auth set-key llm --key sk-abc123
  echo "$CRM_KEY" | emlsync auth set-key crm`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountArg(args)
			if err != nil {
				return err
			}
			key := strings.TrimSpace(authKey)
			if key == "" {
				read := deps.ReadSecret
				if read == nil {
					read = readSecret
				}
				key, err = read(cmd.ErrOrStderr(), fmt.Sprintf("API key for %s: ", account))
				if err != nil {
					return err
				}
			}
			if err := deps.Keyring.Set(account, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s) in %s\n",
				account, credentials.MaskAPIKey(key), credentials.Description())
			return nil
		},
	}
	cmd.Flags().StringVar(&authKey, "key", "", "API key to store (prompted when omitted)")
	return cmd
}

func newAuthClearKeyCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-key [crm|llm]",
		Short: "Remove an API key from the keyring",
		Long: `Remove a stored API key from the keyring. Environment variables and .env files
are not affected.

Example:
  emlsync auth clear-key crm`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountArg(args)
			if err != nil {
				return err
			}
			err = deps.Keyring.Delete(account)
			if errors.Is(err, credentials.ErrNoCredentials) {
				fmt.Fprintf(cmd.OutOrStdout(), "No key stored for %s\n", account)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", account)
			return nil
		},
	}
}

func newAuthStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API keys are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Keyring: %s\n", credentials.Description())
			for _, account := range credentials.Accounts {
				key, err := deps.Keyring.Get(account)
				switch {
				case errors.Is(err, credentials.ErrNoCredentials):
					fmt.Fprintf(out, "  %-12s (not set)\n", account)
				case err != nil:
					fmt.Fprintf(out, "  %-12s error: %v\n", account, err)
				default:
					fmt.Fprintf(out, "  %-12s %s\n", account, credentials.MaskAPIKey(key))
				}
			}
			return nil
		},
	}
}

func accountArg(args []string) (string, error) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return credentials.ParseAccount(name)
}

// readSecret prompts on w and reads a key from stdin, hiding input on a
// terminal.
func readSecret(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(w, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
