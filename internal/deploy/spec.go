package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/PlumpMath/piso/internal/secmem"
)

// StagingDirName is the fixed child of the container directory that holds
// the deployed files. It is the only path Dispose ever deletes.
const StagingDirName = "processhost"

// ErrInvalidConfig matches every *ConfigError.
var ErrInvalidConfig = errors.New("deploy: invalid configuration")

// ConfigError reports a Spec field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deploy: invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("deploy: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// Credential is the account the service runs under. The secret is wiped when
// the owning Manager is disposed.
type Credential struct {
	Principal string
	Secret    *secmem.SecureString
}

// Spec is the input to New.
type Spec struct {
	SourceDir      string
	ExecutableName string
	ServiceName    string
	ContainerDir   string
	// Credential is optional; nil runs the service as LocalSystem.
	Credential *Credential
}

// TargetDir is ContainerDir joined with StagingDirName.
func (s Spec) TargetDir() string {
	return filepath.Join(s.ContainerDir, StagingDirName)
}

// Validate checks every required field. SourceDir must exist and be a
// directory when Validate is called.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.SourceDir) == "" {
		return &ConfigError{Field: "SourceDir", Reason: "must not be empty"}
	}
	info, err := os.Stat(s.SourceDir)
	if err != nil {
		return &ConfigError{Field: "SourceDir", Reason: "cannot be read", Err: err}
	}
	if !info.IsDir() {
		return &ConfigError{Field: "SourceDir", Reason: "is not a directory"}
	}
	if err := s.validateTarget(); err != nil {
		return err
	}
	inside, err := within(s.TargetDir(), s.SourceDir, foldCase)
	if err != nil {
		return &ConfigError{Field: "SourceDir", Reason: "cannot be resolved", Err: err}
	}
	if inside {
		return &ConfigError{Field: "SourceDir", Reason: fmt.Sprintf("must not be inside the staging directory %s", s.TargetDir())}
	}
	return nil
}

// foldCase is set where the file system ignores case in names.
var foldCase = runtime.GOOS == "windows"

// within reports whether path is dir or a descendant of it.
func within(dir, path string, fold bool) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	if fold {
		absDir, absPath = strings.ToLower(absDir), strings.ToLower(absPath)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		// Different volumes.
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

// containsName reports whether names holds name, ignoring case when fold
// is set.
func containsName(names []string, name string, fold bool) bool {
	for _, n := range names {
		if n == name || (fold && strings.EqualFold(n, name)) {
			return true
		}
	}
	return false
}

// validateTarget checks the fields that identify an existing deployment.
func (s Spec) validateTarget() error {
	if strings.TrimSpace(s.ExecutableName) == "" {
		return &ConfigError{Field: "ExecutableName", Reason: "must not be empty"}
	}
	if filepath.Base(s.ExecutableName) != s.ExecutableName || strings.ContainsAny(s.ExecutableName, `/\`) {
		return &ConfigError{Field: "ExecutableName", Reason: "must be a file name without directories"}
	}
	if strings.TrimSpace(s.ServiceName) == "" {
		return &ConfigError{Field: "ServiceName", Reason: "must not be empty"}
	}
	if strings.TrimSpace(s.ContainerDir) == "" {
		return &ConfigError{Field: "ContainerDir", Reason: "must not be empty"}
	}
	if s.Credential != nil && strings.TrimSpace(s.Credential.Principal) == "" {
		return &ConfigError{Field: "Credential.Principal", Reason: "must not be empty when a credential is given"}
	}
	return nil
}
