// Package audit keeps a tamper-evident record of the service control and
// staging actions taken by deployments.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PlumpMath/piso/internal/logging"
)

var log = logging.L("audit")

// Event types for audit logging.
const (
	EventDeployStarted  = "deploy_started"
	EventStaged         = "staged"
	EventServiceCreated = "service_created"
	EventServiceStarted = "service_started"
	EventServiceStopped = "service_stopped"
	EventServiceDeleted = "service_deleted"
	EventStagingRemoved = "staging_removed"
	EventDisposed       = "disposed"
	EventLogRotated     = "log_rotated"
)

const genesisHash = "genesis"

// criticalEvents are event types that require fsync after writing.
var criticalEvents = map[string]bool{
	EventServiceCreated: true,
	EventServiceDeleted: true,
	EventDisposed:       true,
}

// Entry is a single audit log record.
type Entry struct {
	Timestamp    string         `json:"timestamp"`
	EventType    string         `json:"eventType"`
	DeploymentID string         `json:"deploymentId,omitempty"`
	Service      string         `json:"service,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	PrevHash     string         `json:"prevHash"`
	EntryHash    string         `json:"entryHash"`
}

// Logger writes tamper-evident JSONL audit logs with a SHA-256 hash chain.
// On rotation a sentinel entry (EventLogRotated) is written as the first
// record in the new file, with prevHash linking to the last entry of the old
// file.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger opens filePath for appending, creating its directory. An
// existing log is continued: the chain links to its last entry.
func NewLogger(filePath string, maxSizeMB, maxBackups int) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	l := &Logger{
		filePath:   filePath,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   genesisHash,
	}
	if last, err := lastHash(filePath); err != nil {
		return nil, err
	} else if last != "" {
		l.prevHash = last
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}
	log.Debug("audit log opened", "path", filePath)
	return l, nil
}

// Log writes a single audit entry with hash chain linking.
// The chain only advances after a successful write, so a failed write leaves
// no gap. Safe to call on a nil receiver (no-op).
func (l *Logger) Log(eventType, deploymentID, service string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		EventType:    eventType,
		DeploymentID: deploymentID,
		Service:      service,
		Details:      details,
		PrevHash:     l.prevHash,
	}
	entryHash, err := computeHash(entry)
	if err != nil {
		log.Error("failed to compute audit entry hash", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	entry.EntryHash = entryHash

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error("failed to marshal audit entry", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	if l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit log rotation failed", "error", err)
			l.dropped.Add(1)
			return
		}
		// The sentinel moved the chain; relink this entry to it.
		entry.PrevHash = l.prevHash
		if entry.EntryHash, err = computeHash(entry); err != nil {
			l.dropped.Add(1)
			return
		}
		if data, err = json.Marshal(entry); err != nil {
			l.dropped.Add(1)
			return
		}
		data = append(data, '\n')
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("failed to write audit entry", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)
	l.prevHash = entry.EntryHash

	if criticalEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Error("failed to fsync critical audit entry", "error", err, "eventType", eventType)
		}
	}
}

// Close closes the audit log file. Safe to call on a nil receiver (no-op).
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// DroppedCount returns the number of audit entries that failed to write.
// Returns -1 if the logger is nil.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// computeHash produces the SHA-256 hash for an audit entry. Fields are
// length-prefixed so no delimiter choice can make two entries collide.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.DeploymentID, entry.Service, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	prevHashBeforeRotation := l.prevHash

	if l.file != nil {
		l.file.Close()
	}

	// Shift existing backups: .3 → delete, .2 → .3, .1 → .2
	for i := l.maxBackups; i >= 2; i-- {
		src := l.backupName(i - 1)
		dst := l.backupName(i)
		if i == l.maxBackups {
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				log.Warn("audit log rotation: failed to remove oldest backup", "path", dst, "error", err)
			}
		}
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			log.Warn("audit log rotation: failed to rename backup", "src", src, "dst", dst, "error", err)
		}
	}

	if err := os.Rename(l.filePath, l.backupName(1)); err != nil && !os.IsNotExist(err) {
		log.Warn("audit log rotation: failed to rename current log", "error", err)
	}

	if err := l.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  prevHashBeforeRotation,
		Details: map[string]any{
			"previousFile": filepath.Base(l.backupName(1)),
		},
	}
	sentinelHash, err := computeHash(sentinel)
	if err != nil {
		return fmt.Errorf("hash rotation sentinel: %w", err)
	}
	sentinel.EntryHash = sentinelHash

	data, err := json.Marshal(sentinel)
	if err != nil {
		return fmt.Errorf("marshal rotation sentinel: %w", err)
	}
	data = append(data, '\n')

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write rotation sentinel: %w", err)
	}
	l.written += int64(n)
	l.prevHash = sentinel.EntryHash
	return nil
}

func (l *Logger) backupName(index int) string {
	if index == 0 {
		return l.filePath
	}
	return fmt.Sprintf("%s.%d", l.filePath, index)
}

// ErrChainBroken reports an entry whose hash or link does not verify.
var ErrChainBroken = errors.New("audit: hash chain broken")

// Verify reads filePath and checks that every entry hashes to its recorded
// entryHash and links to the entry before it. It returns the number of
// verified entries. A file starting with a rotation sentinel is accepted
// without its predecessor.
func Verify(filePath string) (int, error) {
	entries, err := readEntries(filePath)
	if err != nil {
		return 0, err
	}

	prev := ""
	for i, e := range entries {
		want, err := computeHash(e)
		if err != nil {
			return i, fmt.Errorf("entry %d: %w", i+1, err)
		}
		if want != e.EntryHash {
			return i, fmt.Errorf("%w: entry %d (%s) hash mismatch", ErrChainBroken, i+1, e.EventType)
		}
		switch {
		case i == 0 && (e.PrevHash == genesisHash || e.EventType == EventLogRotated):
		case i == 0:
			return i, fmt.Errorf("%w: first entry links to %q", ErrChainBroken, e.PrevHash)
		case e.PrevHash != prev:
			return i, fmt.Errorf("%w: entry %d (%s) does not link to entry %d", ErrChainBroken, i+1, e.EventType, i)
		}
		prev = e.EntryHash
	}
	return len(entries), nil
}

func readEntries(filePath string) ([]Entry, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// lastHash returns the entryHash of the last entry in filePath, or "" when
// the file does not exist or is empty.
func lastHash(filePath string) (string, error) {
	entries, err := readEntries(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].EntryHash, nil
}
