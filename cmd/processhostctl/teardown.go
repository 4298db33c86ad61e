package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PlumpMath/piso/internal/deploy"
	"github.com/PlumpMath/piso/internal/svcctl"
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Stop and delete the service and remove its staging directory",
	Long: `teardown removes a deployment left behind by "deploy --detach" or by an
interrupted session. It never fails: problems are logged and teardown carries on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, closeAudit := managerOptions()
		defer closeAudit()
		m, err := deploy.Attach(targetSpec(cfg), opts...)
		if err != nil {
			return err
		}

		warnIfNotElevated(svcctl.VerbStop, svcctl.VerbDelete)
		m.Dispose(context.Background())
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed (%s)\n", m.ServiceName(), m.State(context.Background()))
		return nil
	},
}
