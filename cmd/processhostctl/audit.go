package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PlumpMath/piso/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the deployment audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Check the hash chain of the audit log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.AuditFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no audit file configured")
		}

		n, err := audit.Verify(path)
		if err != nil {
			return fmt.Errorf("%s: %d entries verified before failure: %w", path, n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, chain intact\n", path, n)
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}
