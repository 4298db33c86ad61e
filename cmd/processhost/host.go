package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"vawter.tech/stopper"

	"github.com/PlumpMath/piso/internal/health"
	"github.com/PlumpMath/piso/internal/logging"
)

// Components reported to the health monitor.
const (
	componentConfig  = "config"
	componentWatcher = "watcher"
)

const (
	defaultHeartbeat = 30 * time.Second
	reloadDebounce   = 100 * time.Millisecond
)

// hostConfig is the optional processhost.yaml read next to the executable.
type hostConfig struct {
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds"`
}

func (c hostConfig) heartbeat() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return defaultHeartbeat
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// readHostConfig returns defaults when the file does not exist.
func readHostConfig(path string) (hostConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROCESSHOST")
	v.AutomaticEnv()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("heartbeat_seconds", int(defaultHeartbeat/time.Second))

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return hostConfig{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var c hostConfig
	if err := v.Unmarshal(&c); err != nil {
		return hostConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}

// host is the supervised work loop of a running processhost.
type host struct {
	configPath string
	started    time.Time
	sctx       *stopper.Context
	health     *health.Monitor

	mu       sync.Mutex
	cfg      hostConfig
	debounce *time.Timer
}

// startHost applies c and starts the heartbeat and the config watcher.
func startHost(ctx context.Context, configPath string, c hostConfig) (*host, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(configPath), err)
	}

	logging.SetLevel(c.LogLevel)
	h := &host{
		configPath: filepath.Clean(configPath),
		started:    time.Now(),
		cfg:        c,
		sctx:       stopper.WithContext(ctx),
		health:     health.NewMonitor(),
	}
	h.health.Update(componentConfig, health.Healthy, "")
	h.health.Update(componentWatcher, health.Healthy, "")
	h.sctx.Defer(func() {
		_ = watcher.Close()
		h.mu.Lock()
		if h.debounce != nil {
			h.debounce.Stop()
		}
		h.mu.Unlock()
	})
	h.sctx.Go(h.heartbeatLoop)
	h.sctx.Go(func(sctx *stopper.Context) error {
		return h.watchConfig(sctx, watcher)
	})

	log.Info("processhost started", "version", version, "config", h.configPath, "heartbeat", c.heartbeat())
	return h, nil
}

// stop asks the work loop to finish and waits for it.
func (h *host) stop(grace time.Duration) error {
	h.sctx.Stop(grace)
	return h.sctx.Wait()
}

func (h *host) heartbeatLoop(sctx *stopper.Context) error {
	h.mu.Lock()
	interval := h.cfg.heartbeat()
	h.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sctx.Stopping():
			return nil
		case <-ticker.C:
			report := h.health.Report()
			uptime := time.Since(h.started).Round(time.Second)
			if report.Status != health.Healthy {
				log.Warn("alive", "uptime", uptime, "health", report)
				continue
			}
			log.Debug("alive", "uptime", uptime, "health", report)
		}
	}
}

func (h *host) watchConfig(sctx *stopper.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-sctx.Stopping():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				h.health.Update(componentWatcher, health.Unhealthy, "event channel closed")
				return nil
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			h.mu.Lock()
			if h.debounce != nil {
				h.debounce.Stop()
			}
			h.debounce = time.AfterFunc(reloadDebounce, h.reload)
			h.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				h.health.Update(componentWatcher, health.Unhealthy, "error channel closed")
				return nil
			}
			h.health.Update(componentWatcher, health.Degraded, err.Error())
		}
	}
}

// reload re-reads the config file. Only the log level takes effect without
// a restart.
func (h *host) reload() {
	if h.sctx.IsStopping() {
		return
	}
	c, err := readHostConfig(h.configPath)
	if err != nil {
		h.health.Update(componentConfig, health.Degraded, err.Error())
		return
	}
	h.health.Update(componentConfig, health.Healthy, "")

	h.mu.Lock()
	prev := h.cfg
	h.cfg = c
	h.mu.Unlock()

	if logging.ParseLevel(c.LogLevel) != logging.ParseLevel(prev.LogLevel) {
		logging.SetLevel(c.LogLevel)
		log.Info("log level changed", "from", prev.LogLevel, "to", c.LogLevel)
	}
	if c.LogFormat != prev.LogFormat || c.HeartbeatSeconds != prev.HeartbeatSeconds {
		log.Info("config change requires a restart", "config", h.configPath)
	}
}
