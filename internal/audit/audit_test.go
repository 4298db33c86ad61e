package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNilLoggerLogDoesNotPanic(t *testing.T) {
	var l *Logger
	l.Log(EventServiceCreated, "dep-1", "SampleSvc", map[string]any{"key": "value"})
}

func TestNilLoggerCloseDoesNotPanic(t *testing.T) {
	var l *Logger
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close() returned error: %v", err)
	}
}

func TestNilLoggerDroppedCountReturnsNegOne(t *testing.T) {
	var l *Logger
	if got := l.DroppedCount(); got != -1 {
		t.Fatalf("nil DroppedCount() = %d, want -1", got)
	}
}

func TestWorkingLoggerDroppedCountReturnsZero(t *testing.T) {
	l := newTestLogger(t)
	defer l.Close()
	if got := l.DroppedCount(); got != 0 {
		t.Fatalf("DroppedCount() = %d, want 0", got)
	}
}

func TestLogWritesJSONLEntry(t *testing.T) {
	l := newTestLogger(t)
	l.Log(EventDeployStarted, "dep-1", "SampleSvc", map[string]any{"target": `C:\c1\processhost`})
	l.Close()

	entries := mustReadEntries(t, l.filePath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.EventType != EventDeployStarted {
		t.Fatalf("eventType = %q, want %q", entry.EventType, EventDeployStarted)
	}
	if entry.DeploymentID != "dep-1" || entry.Service != "SampleSvc" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.PrevHash != genesisHash {
		t.Fatalf("prevHash = %q, want genesis", entry.PrevHash)
	}
	if entry.EntryHash == "" {
		t.Fatal("entryHash is empty")
	}
}

func TestHashChainLinking(t *testing.T) {
	l := newTestLogger(t)
	l.Log(EventDeployStarted, "dep-1", "SampleSvc", nil)
	l.Log(EventServiceCreated, "dep-1", "SampleSvc", map[string]any{"binPath": `C:\c1\processhost\svc.exe`})
	l.Log(EventServiceStarted, "dep-1", "SampleSvc", nil)
	l.Close()

	entries := mustReadEntries(t, l.filePath)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].EntryHash {
			t.Fatalf("entry %d prevHash does not link to entry %d", i, i-1)
		}
	}
	if n, err := Verify(l.filePath); err != nil || n != 3 {
		t.Fatalf("Verify = %d, %v", n, err)
	}
}

func TestNewLoggerContinuesExistingChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	first, err := NewLogger(path, 1, 2)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	first.Log(EventDeployStarted, "dep-1", "SampleSvc", nil)
	first.Close()

	second, err := NewLogger(path, 1, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second.Log(EventDisposed, "dep-2", "SampleSvc", nil)
	second.Close()

	if n, err := Verify(path); err != nil || n != 2 {
		t.Fatalf("Verify = %d, %v", n, err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)
	l.Log(EventServiceCreated, "dep-1", "SampleSvc", map[string]any{"principal": "LocalSystem"})
	l.Log(EventServiceDeleted, "dep-1", "SampleSvc", nil)
	l.Close()

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "LocalSystem", "Administrator", 1)
	if err := os.WriteFile(l.filePath, []byte(tampered), 0o600); err != nil {
		t.Fatal(err)
	}

	n, err := Verify(l.filePath)
	if !errors.Is(err, ErrChainBroken) {
		t.Fatalf("Verify error = %v, want ErrChainBroken", err)
	}
	if n != 0 {
		t.Fatalf("verified %d entries before the tampered one, want 0", n)
	}
}

func TestVerifyDetectsRemovedEntry(t *testing.T) {
	l := newTestLogger(t)
	l.Log(EventDeployStarted, "dep-1", "SampleSvc", nil)
	l.Log(EventServiceCreated, "dep-1", "SampleSvc", nil)
	l.Log(EventServiceStarted, "dep-1", "SampleSvc", nil)
	l.Close()

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	kept := lines[0] + "\n" + lines[2] + "\n"
	if err := os.WriteFile(l.filePath, []byte(kept), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(l.filePath); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("Verify error = %v, want ErrChainBroken", err)
	}
}

func TestRotationWritesSentinel(t *testing.T) {
	l := newTestLogger(t)
	l.maxSize = 200

	for i := 0; i < 10; i++ {
		l.Log(EventServiceStarted, "dep-1", "SampleSvc", map[string]any{"i": i})
	}
	l.Close()

	entries := mustReadEntries(t, l.filePath)
	if len(entries) == 0 {
		t.Fatal("no entries in current log file after rotation")
	}
	if entries[0].EventType != EventLogRotated {
		t.Fatalf("first entry after rotation eventType = %q, want %q", entries[0].EventType, EventLogRotated)
	}
	if prevFile, _ := entries[0].Details["previousFile"].(string); prevFile != "audit.jsonl.1" {
		t.Fatalf("sentinel previousFile = %q", prevFile)
	}

	backup := mustReadEntries(t, l.filePath+".1")
	if len(backup) == 0 {
		t.Fatal("no entries in backup file")
	}
	if entries[0].PrevHash != backup[len(backup)-1].EntryHash {
		t.Fatalf("sentinel prevHash = %q, want last backup entry hash", entries[0].PrevHash)
	}
	if _, err := Verify(l.filePath); err != nil {
		t.Fatalf("Verify rotated file: %v", err)
	}
	if _, err := os.Stat(l.filePath + ".4"); !os.IsNotExist(err) {
		t.Fatalf("more backups than maxBackups kept: %v", err)
	}
}

func TestCriticalEventsSet(t *testing.T) {
	for _, e := range []string{EventServiceCreated, EventServiceDeleted, EventDisposed} {
		if !criticalEvents[e] {
			t.Errorf("event %q should be in criticalEvents", e)
		}
	}
	for _, e := range []string{EventDeployStarted, EventStaged, EventServiceStarted, EventServiceStopped} {
		if criticalEvents[e] {
			t.Errorf("event %q should NOT be in criticalEvents", e)
		}
	}
}

func TestDroppedCountIncrementsOnWriteFailure(t *testing.T) {
	l := newTestLogger(t)

	// Swap in a read-only handle so the write fails.
	l.file.Close()
	f, err := os.Open(l.filePath)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	l.file = f

	l.Log(EventServiceStarted, "dep-1", "SampleSvc", nil)
	if got := l.DroppedCount(); got != 1 {
		t.Fatalf("DroppedCount() = %d, want 1", got)
	}
	l.file.Close()
}

func TestLengthPrefixedHashDistinguishesFieldBoundaries(t *testing.T) {
	a, err := computeHash(Entry{DeploymentID: "ab", Service: "c", PrevHash: genesisHash})
	if err != nil {
		t.Fatal(err)
	}
	b, err := computeHash(Entry{DeploymentID: "a", Service: "bc", PrevHash: genesisHash})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("entries with shifted field boundaries hash the same")
	}
}

// --- helpers ---

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "audit.jsonl"), 50, 3)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return l
}

func mustReadEntries(t *testing.T, filePath string) []Entry {
	t.Helper()
	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}
