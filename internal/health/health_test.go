package health

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestEmptyMonitorIsHealthy(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Healthy {
		t.Fatalf("Overall() = %q, want %q", got, Healthy)
	}
	if r := m.Report(); r.Status != Healthy || len(r.Components) != 0 {
		t.Fatalf("Report() = %+v", r)
	}
}

func TestOverallIsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("heartbeat", Healthy, "")
	m.Update("config", Degraded, "reload failed")
	if got := m.Overall(); got != Degraded {
		t.Fatalf("Overall() = %q, want %q", got, Degraded)
	}

	m.Update("watcher", Unhealthy, "closed")
	if got := m.Overall(); got != Unhealthy {
		t.Fatalf("Overall() = %q, want %q", got, Unhealthy)
	}

	m.Update("config", Healthy, "")
	m.Update("watcher", Healthy, "")
	if got := m.Overall(); got != Healthy {
		t.Fatalf("Overall() after recovery = %q, want %q", got, Healthy)
	}
}

func TestGetReturnsLatest(t *testing.T) {
	m := NewMonitor()
	m.Update("config", Degraded, "first")
	m.Update("config", Degraded, "second")

	c, ok := m.Get("config")
	if !ok {
		t.Fatal("Get(config) not found")
	}
	if c.Message != "second" || c.UpdatedAt.IsZero() {
		t.Fatalf("Get(config) = %+v", c)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing) should not be found")
	}
}

func TestAllIsSortedByName(t *testing.T) {
	m := NewMonitor()
	m.Update("watcher", Healthy, "")
	m.Update("config", Healthy, "")
	m.Update("heartbeat", Healthy, "")

	all := m.All()
	names := make([]string, len(all))
	for i, c := range all {
		names[i] = c.Name
	}
	if got := strings.Join(names, ","); got != "config,heartbeat,watcher" {
		t.Fatalf("All() order = %s", got)
	}
}

func TestReportLogValue(t *testing.T) {
	m := NewMonitor()
	m.Update("config", Degraded, "reload failed")
	m.Update("heartbeat", Healthy, "")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("health", "report", m.Report())

	out := buf.String()
	for _, want := range []string{"report.status=degraded", "report.config=degraded", "report.heartbeat=healthy"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestUnknownStatusRanksAsHealthy(t *testing.T) {
	if worse(Status("bogus"), Healthy) {
		t.Fatal("unknown status should not rank worse than healthy")
	}
}
