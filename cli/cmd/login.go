package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fluxbase-eu/outpack/internal/npm"
)

var loginRegistry string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a registry token in the system keychain",
	Long: `Store an npm registry auth token in the system keychain. The token is
used whenever npm.auth_token is not configured.

The token is read from the terminal without echo, or from stdin when piped.

Examples:
  outpack login
  echo "$NPM_TOKEN" | outpack login --registry https://npm.pkg.github.com`,
	Args:    cobra.NoArgs,
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := registryFlag()
		token, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := npm.NewTokenStore().Save(registry, token); err != nil {
			return err
		}
		GetFormatter().PrintSuccess("Token stored for " + registry)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Remove a registry token from the system keychain",
	Args:    cobra.NoArgs,
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := registryFlag()
		if err := npm.NewTokenStore().Delete(registry); err != nil {
			return err
		}
		GetFormatter().PrintSuccess("Token removed for " + registry)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, logoutCmd} {
		c.Flags().StringVar(&loginRegistry, "registry", "", "registry URL (default is npm.registry)")
	}
}

func registryFlag() string {
	if loginRegistry != "" {
		return loginRegistry
	}
	return cfg.NPM.Registry
}

// readToken prompts on a terminal and reads one line otherwise
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Registry token: ")
		data, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
