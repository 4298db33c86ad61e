package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/PlumpMath/piso/internal/bundle"
	"github.com/PlumpMath/piso/internal/bundle/providers"
	"github.com/PlumpMath/piso/internal/deploy"
	"github.com/PlumpMath/piso/internal/svcctl"
)

var (
	detach      bool
	metricsAddr string
	include     []string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy and start the service, and tear it down on exit",
	Long: `deploy stages the source files, registers and starts the service, then
waits for Ctrl+C (or SIGTERM) and tears everything down again. With --detach
it returns right after starting the service and leaves it in place.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().BoolVar(&detach, "detach", false, "leave the service running and exit after deploy")
	deployCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the session runs")
	deployCmd.Flags().StringSliceVar(&include, "include", nil, "only fetch bundle files matching these glob patterns")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sourceDir, cleanupSource, err := resolveSource(ctx)
	if err != nil {
		return err
	}
	defer cleanupSource()

	spec, err := specFromConfig(cfg, sourceDir)
	if err != nil {
		return err
	}

	opts, closeAudit := managerOptions()
	defer closeAudit()
	m, err := deploy.New(spec, opts...)
	if err != nil {
		return err
	}

	warnIfNotElevated(svcctl.VerbCreate, svcctl.VerbStart, svcctl.VerbStop, svcctl.VerbDelete)

	if metricsAddr != "" {
		shutdown := serveMetrics(metricsAddr)
		defer shutdown()
	}

	// Teardown must not inherit the signal context; by then it is canceled.
	teardownCtx := context.WithoutCancel(ctx)

	if err := m.Deploy(ctx); err != nil {
		log.Error("deploy failed, tearing down", "error", err)
		m.Dispose(teardownCtx)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s deployed to %s (%s)\n", m.ServiceName(), m.TargetDir(), m.State(ctx))

	if detach {
		if spec.Credential != nil {
			spec.Credential.Secret.Zero()
		}
		return nil
	}

	fmt.Fprintln(out, "Press Ctrl+C to stop the service and remove the deployment.")
	<-ctx.Done()

	fmt.Fprintln(out, "Tearing down...")
	m.Dispose(teardownCtx)
	return nil
}

// resolveSource returns the configured source directory, or fetches the
// configured bundle into a temporary directory that the returned func
// removes.
func resolveSource(ctx context.Context) (string, func(), error) {
	noop := func() {}
	if !cfg.Bundle.Enabled() {
		return cfg.SourceDir, noop, nil
	}

	p, err := providers.FromConfig(ctx, cfg.Bundle)
	if err != nil {
		return "", noop, err
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	dir, err := os.MkdirTemp("", "processhost-bundle-*")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create bundle directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove bundle directory", "dir", dir, "error", err)
		}
	}

	names, err := bundle.Fetch(ctx, p, dir, include...)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	log.Info("fetched bundle", "provider", cfg.Bundle.Provider, "files", names)
	return dir, cleanup, nil
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
