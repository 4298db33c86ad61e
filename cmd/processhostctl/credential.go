package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/PlumpMath/piso/internal/credstore"
	"github.com/PlumpMath/piso/internal/secmem"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage run-as passwords in the OS credential store",
	// Credentials do not need a valid deployment config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <principal>",
	Short: "Store the password for a run-as account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readPassword(cmd, args[0])
		if err != nil {
			return err
		}
		defer secret.Zero()

		if err := credstore.Set(args[0], secret); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored password for %s\n", args[0])
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <principal>",
	Short: "Remove the stored password for a run-as account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credstore.Delete(args[0]); err != nil {
			if errors.Is(err, credstore.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "No password stored for %s\n", args[0])
				return nil
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed password for %s\n", args[0])
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)
}

// readPassword prompts without echo on a terminal and reads one line from
// stdin otherwise.
func readPassword(cmd *cobra.Command, principal string) (*secmem.SecureString, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", principal)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		secret := secmem.NewSecureString(string(raw))
		for i := range raw {
			raw[i] = 0
		}
		return secret, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return secmem.NewSecureString(strings.TrimRight(line, "\r\n")), nil
}
