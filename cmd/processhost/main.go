package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/PlumpMath/piso/internal/logging"
)

const (
	configFileName = "processhost.yaml"
	logFileName    = "processhost.log"
	stopGrace      = 5 * time.Second
)

var (
	version     = "0.1.0"
	cfgFile     string
	serviceName string
)

var log = logging.L("host")

var rootCmd = &cobra.Command{
	Use:   "processhost",
	Short: "Process host run by the service control manager",
	Long: `processhost is the executable staged into <container>/processhost and
registered as an auto-start service. Started from a console it runs until
Enter is pressed or the process is interrupted.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "processhost v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+configFileName+" next to the executable)")
	rootCmd.Flags().StringVar(&serviceName, "service-name", "processhost", "name reported to the service control manager")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHost() error {
	// Services start in %SystemRoot%\System32; everything the host owns
	// lives next to the executable.
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	dir := filepath.Dir(exe)
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to chdir to %s: %w", dir, err)
	}

	path := cfgFile
	if path == "" {
		path = filepath.Join(dir, configFileName)
	}
	if path, err = filepath.Abs(path); err != nil {
		return err
	}
	c, err := readHostConfig(path)
	if err != nil {
		return err
	}

	service := isWindowsService()
	var console io.Writer
	if !service {
		console = os.Stderr
	}
	out, closer, err := logging.OpenFile(filepath.Join(dir, logFileName), console)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closer.Close()
	logging.Init(c.LogFormat, c.LogLevel, out)

	if service {
		return runAsService(serviceName, func() (*host, error) {
			return startHost(context.Background(), path, c)
		})
	}
	return runConsole(path, c)
}

func runConsole(path string, c hostConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := startHost(ctx, path, c)
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "processhost v%s running, press Enter to stop\n", version)
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			stop()
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	return h.stop(stopGrace)
}
