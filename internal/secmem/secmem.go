// Package secmem holds secrets, such as the run-as password of a deployed
// service, in a form that refuses to print itself and can be wiped.
package secmem

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/PlumpMath/piso/internal/logging"
)

var log = logging.L("secmem")

const redacted = "[REDACTED]"

// SecureString holds sensitive data with best-effort memory zeroing.
// Go's GC may copy the backing array, so this is defense-in-depth, not a
// guarantee. Call Zero() once the secret has been handed to its consumer.
//
// Every formatting and serialization path (fmt, slog, JSON, YAML, text)
// yields [REDACTED]. Use Reveal() to get the plaintext value explicitly.
type SecureString struct {
	mu         sync.Mutex
	data       []byte
	zeroed     atomic.Bool
	warnedOnce atomic.Bool
}

// NewSecureString creates a SecureString from the given string.
func NewSecureString(s string) *SecureString {
	b := make([]byte, len(s))
	copy(b, s)
	return &SecureString{data: b}
}

// Reveal returns the plaintext value. Use only at the point of actual use
// (e.g., building the control-utility argument list).
// Returns "" if the receiver is nil or the data has been zeroed.
// Logs a warning once after Zero() to aid debugging without log spam.
func (s *SecureString) Reveal() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	isZeroed := s.data == nil && s.zeroed.Load()
	val := string(s.data)
	s.mu.Unlock()

	if isZeroed {
		if s.warnedOnce.CompareAndSwap(false, true) {
			log.Warn("Reveal() called after Zero(), secret has been wiped")
		}
		return ""
	}
	return val
}

// Empty reports whether there is no usable secret: nil, zero length, or wiped.
func (s *SecureString) Empty() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data) == 0
}

// IsZeroed returns true if Zero() has been called.
func (s *SecureString) IsZeroed() bool {
	if s == nil {
		return false
	}
	return s.zeroed.Load()
}

// Zero overwrites the backing byte slice with zeros. Safe to call repeatedly.
func (s *SecureString) Zero() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
	s.zeroed.Store(true)
}

// String returns [REDACTED].
func (s *SecureString) String() string {
	return redacted
}

// GoString returns [REDACTED] for %#v.
func (s *SecureString) GoString() string {
	return redacted
}

// Format implements fmt.Formatter so that all verbs produce [REDACTED].
func (s *SecureString) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, redacted)
}

// LogValue implements slog.LogValuer.
func (s *SecureString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON returns "[REDACTED]".
func (s *SecureString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// MarshalText returns [REDACTED].
func (s *SecureString) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalYAML implements yaml.Marshaler.
func (s *SecureString) MarshalYAML() (any, error) {
	return redacted, nil
}

// UnmarshalJSON rejects deserialization so a SecureString is never populated
// from untrusted input.
func (s *SecureString) UnmarshalJSON(data []byte) error {
	return fmt.Errorf("secmem: cannot deserialize into SecureString")
}
