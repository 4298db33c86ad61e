package secmem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestRevealReturnsOriginalValue(t *testing.T) {
	s := NewSecureString("P@ssw0rd!")
	if got := s.Reveal(); got != "P@ssw0rd!" {
		t.Fatalf("Reveal() = %q, want %q", got, "P@ssw0rd!")
	}
}

func TestRevealOnNilReturnsEmpty(t *testing.T) {
	var s *SecureString
	if got := s.Reveal(); got != "" {
		t.Fatalf("nil Reveal() = %q, want empty", got)
	}
}

func TestRevealAfterZeroReturnsEmpty(t *testing.T) {
	s := NewSecureString("secret")
	s.Zero()
	if got := s.Reveal(); got != "" {
		t.Fatalf("Reveal() after Zero() = %q, want empty", got)
	}
	if !s.warnedOnce.Load() {
		t.Fatal("warnedOnce should be set after Reveal post-Zero")
	}
}

func TestEmpty(t *testing.T) {
	var nilSecret *SecureString
	if !nilSecret.Empty() {
		t.Fatal("nil secret should be empty")
	}
	if !NewSecureString("").Empty() {
		t.Fatal("zero-length secret should be empty")
	}
	s := NewSecureString("x")
	if s.Empty() {
		t.Fatal("non-empty secret reported empty")
	}
	s.Zero()
	if !s.Empty() {
		t.Fatal("wiped secret should be empty")
	}
}

func TestIsZeroed(t *testing.T) {
	s := NewSecureString("token")
	if s.IsZeroed() {
		t.Fatal("IsZeroed() = true before Zero()")
	}
	s.Zero()
	s.Zero()
	if !s.IsZeroed() {
		t.Fatal("IsZeroed() = false after Zero()")
	}

	var nilSecret *SecureString
	nilSecret.Zero()
	if nilSecret.IsZeroed() {
		t.Fatal("nil IsZeroed() = true, want false")
	}
}

func TestFormatAllVerbsRedacted(t *testing.T) {
	s := NewSecureString("secret")
	for _, format := range []string{"%s", "%v", "%+v", "%#v", "%q"} {
		if got := fmt.Sprintf(format, s); got != "[REDACTED]" {
			t.Errorf("fmt.Sprintf(%q, s) = %q, want [REDACTED]", format, got)
		}
	}
}

func TestSlogValueRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("creating service", "password", NewSecureString("hunter2"))

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, "password=[REDACTED]") {
		t.Fatalf("expected redacted attr, got: %s", out)
	}
}

func TestSerializationRedacted(t *testing.T) {
	type account struct {
		User     string        `json:"user" yaml:"user"`
		Password *SecureString `json:"password" yaml:"password"`
	}
	acct := account{User: `CORP\svc-host`, Password: NewSecureString("hunter2")}

	data, err := json.Marshal(acct)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if strings.Contains(string(data), "hunter2") || !strings.Contains(string(data), `"password":"[REDACTED]"`) {
		t.Fatalf("json = %s", data)
	}

	out, err := yaml.Marshal(acct)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	if strings.Contains(string(out), "hunter2") || !strings.Contains(string(out), "[REDACTED]") {
		t.Fatalf("yaml = %s", out)
	}

	text, err := acct.Password.MarshalText()
	if err != nil || string(text) != "[REDACTED]" {
		t.Fatalf("MarshalText = %q, %v", text, err)
	}
}

func TestUnmarshalJSONRejects(t *testing.T) {
	var s SecureString
	if err := json.Unmarshal([]byte(`"should-fail"`), &s); err == nil {
		t.Fatal("UnmarshalJSON should return an error")
	}
}

func TestZeroWipesBackingArray(t *testing.T) {
	s := NewSecureString("abc")
	backing := s.data
	s.Zero()

	for i, b := range backing {
		if b != 0 {
			t.Fatalf("byte %d = %d after Zero(), want 0", i, b)
		}
	}
	if s.data != nil {
		t.Fatalf("data should be nil after Zero(), got %v", s.data)
	}
}

func TestConcurrentRevealAndZero(t *testing.T) {
	s := NewSecureString("concurrent-test")
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Reveal()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Zero()
	}()

	wg.Wait()

	if got := s.Reveal(); got != "" {
		t.Fatalf("Reveal() after concurrent Zero = %q, want empty", got)
	}
}
