package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PlumpMath/piso/internal/audit"
	"github.com/PlumpMath/piso/internal/config"
	"github.com/PlumpMath/piso/internal/deploy"
	"github.com/PlumpMath/piso/internal/executor"
	"github.com/PlumpMath/piso/internal/logging"
	"github.com/PlumpMath/piso/internal/privilege"
	"github.com/PlumpMath/piso/internal/svcctl"
)

var (
	version = "0.1.0"
	cfgFile string
	envFile string

	v   = config.New()
	cfg *config.Config

	logCloser io.Closer
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "processhostctl",
	Short: "Deploy an executable as an auto-start Windows service",
	Long: `processhostctl stages a service executable into <container>/processhost,
registers it with the service control manager, starts it, and tears the
deployment down again when the session ends.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// No config needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "processhostctl v%s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is "+config.Dir()+"/processhost.yaml)")
	flags.StringVar(&envFile, "env-file", "", "load PROCESSHOST_* variables from this dotenv file first")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("log-file", "", "also write logs to this file (rotated)")
	flags.String("source-dir", "", "directory holding the files to deploy")
	flags.String("executable", "", "file name of the service executable")
	flags.String("service-name", "", "service identity")
	flags.String("container-dir", "", "directory the processhost staging directory is created in")
	flags.String("run-as-user", "", "account the service runs under (default LocalSystem)")

	for key, flag := range map[string]string{
		"log_level":     "log-level",
		"log_format":    "log-format",
		"log_file":      "log-file",
		"source_dir":    "source-dir",
		"executable":    "executable",
		"service_name":  "service-name",
		"container_dir": "container-dir",
		"run_as_user":   "run-as-user",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(credentialCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, validates the result,
// and initializes logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result := loaded.ValidateTiered()

	var output io.Writer = os.Stderr
	if loaded.LogFile != "" {
		w, closer, err := logging.OpenFile(loaded.LogFile, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output, logCloser = w, closer
	}
	logging.Init(loaded.LogFormat, loaded.LogLevel, output)

	for _, w := range result.Warnings {
		log.Warn("config validation", "error", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			log.Error("config validation", "error", f)
		}
		return fmt.Errorf("invalid configuration: %w", result.Fatals[0])
	}

	cfg = loaded
	return nil
}

// newController builds the sc.exe client with the configured timeout.
func newController() *svcctl.Client {
	return svcctl.New(
		executor.New(),
		svcctl.WithCommandTimeout(time.Duration(cfg.CommandTimeoutSeconds)*time.Second),
	)
}

func statusWait() time.Duration {
	return time.Duration(cfg.StatusWaitSeconds) * time.Second
}

// warnIfNotElevated logs the control verbs the SCM is likely to refuse.
func warnIfNotElevated(verbs ...string) {
	if missing := privilege.Missing(verbs...); len(missing) > 0 {
		log.Warn("not running elevated, service control will likely be denied", "verbs", missing)
	}
}

// managerOptions returns the options shared by deploy and teardown, plus a
// func that closes the audit log.
func managerOptions() ([]deploy.Option, func()) {
	opts := []deploy.Option{
		deploy.WithController(newController()),
		deploy.WithStatusWait(statusWait()),
	}
	if cfg.AuditFile == "" {
		return opts, func() {}
	}
	al, err := audit.NewLogger(cfg.AuditFile, 10, 3)
	if err != nil {
		log.Warn("audit log unavailable, continuing without it", "path", cfg.AuditFile, "error", err)
		return opts, func() {}
	}
	return append(opts, deploy.WithAuditor(al)), func() {
		if n := al.DroppedCount(); n > 0 {
			log.Warn("audit entries dropped", "count", n)
		}
		_ = al.Close()
	}
}
