package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PlumpMath/piso/internal/deploy"
	"github.com/PlumpMath/piso/internal/svcctl"
	"github.com/PlumpMath/piso/internal/svcquery"
)

var outputFormat string

// statusReport is what `status` prints.
type statusReport struct {
	Service    string                `json:"service" yaml:"service"`
	State      svcctl.State          `json:"state" yaml:"state"`
	TargetDir  string                `json:"targetDir" yaml:"targetDir"`
	BinaryPath string                `json:"binaryPath" yaml:"binaryPath"`
	Staged     bool                  `json:"staged" yaml:"staged"`
	Native     *svcquery.ServiceInfo `json:"native,omitempty" yaml:"native,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the observed state of the deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := deploy.Attach(targetSpec(cfg), deploy.WithController(newController()))
		if err != nil {
			return err
		}

		report := statusReport{
			Service:    m.ServiceName(),
			State:      m.State(context.Background()),
			TargetDir:  m.TargetDir(),
			BinaryPath: m.BinaryPath(),
		}
		if _, err := os.Stat(m.BinaryPath()); err == nil {
			report.Staged = true
		}
		if report.State != svcctl.Unregistered {
			info, err := svcquery.GetStatus(m.ServiceName())
			if err == nil {
				report.Native = &info
			} else if !errors.Is(err, svcquery.ErrUnsupported) {
				log.Debug("native status unavailable", "error", err)
			}
		}
		return writeReport(cmd.OutOrStdout(), report, outputFormat)
	},
}

func init() {
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, yaml, json)")
}

func writeReport(w io.Writer, report statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(w, "Service:     %s\n", report.Service)
		fmt.Fprintf(w, "State:       %s\n", report.State)
		fmt.Fprintf(w, "Target dir:  %s\n", report.TargetDir)
		fmt.Fprintf(w, "Binary:      %s\n", report.BinaryPath)
		fmt.Fprintf(w, "Staged:      %t\n", report.Staged)
		if report.Native != nil {
			fmt.Fprintf(w, "Start type:  %s\n", report.Native.StartType)
			fmt.Fprintf(w, "Registered:  %s\n", report.Native.BinaryPath)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use text, yaml, json)", format)
	}
}
