// Package staging prepares the fixed directory a service binary runs from:
// stale content is removed, access is granted to the run-as principal, and
// the top-level files of a source directory are copied in.
package staging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/PlumpMath/piso/internal/logging"
)

// Operation names used in *Error.
const (
	OpRemoveStale = "remove stale"
	OpCreate      = "create"
	OpGrant       = "grant"
	OpReadSource  = "read source"
	OpCopy        = "copy"
	OpClean       = "clean"
)

// Error records the staging step and path that failed.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("staging: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// GrantFunc gives principal full control of path, inherited by everything
// created beneath it where the platform supports inheritance.
type GrantFunc func(path, principal string) error

// Stager owns one target directory.
type Stager struct {
	source string
	target string
	grant  GrantFunc
	log    *slog.Logger
}

// Option configures a Stager.
type Option func(*Stager)

// WithGrant replaces the platform access grant.
func WithGrant(fn GrantFunc) Option {
	return func(s *Stager) {
		if fn != nil {
			s.grant = fn
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stager) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Stager copying from source into target.
func New(source, target string, opts ...Option) *Stager {
	s := &Stager{
		source: filepath.Clean(source),
		target: filepath.Clean(target),
		grant:  grantFullControl,
		log:    logging.L("staging"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Source returns the source directory.
func (s *Stager) Source() string { return s.source }

// Target returns the staging directory.
func (s *Stager) Target() string { return s.target }

// Stage recreates the target directory and copies every file directly under
// the source into it. An existing target is removed first. When principal is
// non-empty it is granted full control of the target before any file is
// copied. Stage returns the names of the staged files in sorted order.
func (s *Stager) Stage(principal string) ([]string, error) {
	if _, err := os.Lstat(s.target); err == nil {
		s.log.Info("removing stale staging directory", "path", s.target)
		if err := os.RemoveAll(s.target); err != nil {
			return nil, &Error{Op: OpRemoveStale, Path: s.target, Err: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Op: OpRemoveStale, Path: s.target, Err: err}
	}

	if err := os.MkdirAll(s.target, 0o755); err != nil {
		return nil, &Error{Op: OpCreate, Path: s.target, Err: err}
	}

	if principal != "" {
		if err := s.grant(s.target, principal); err != nil {
			return nil, &Error{Op: OpGrant, Path: s.target, Err: err}
		}
		s.log.Info("granted full control", "path", s.target, "principal", principal)
	}

	entries, err := os.ReadDir(s.source)
	if err != nil {
		return nil, &Error{Op: OpReadSource, Path: s.source, Err: err}
	}

	var staged []string
	for _, entry := range entries {
		src := filepath.Join(s.source, entry.Name())
		info, err := os.Stat(src)
		if err != nil {
			return staged, &Error{Op: OpReadSource, Path: src, Err: err}
		}
		if !info.Mode().IsRegular() {
			continue
		}

		dst := filepath.Join(s.target, entry.Name())
		if err := copyFile(src, dst, info); err != nil {
			return staged, &Error{Op: OpCopy, Path: src, Err: err}
		}
		if principal != "" && !grantInherits {
			if err := s.grant(dst, principal); err != nil {
				return staged, &Error{Op: OpGrant, Path: dst, Err: err}
			}
		}
		staged = append(staged, entry.Name())
	}

	sort.Strings(staged)
	s.log.Info("staged files", "path", s.target, "count", len(staged))
	return staged, nil
}

// Clean removes the target directory and everything in it. A missing target
// is not an error.
func (s *Stager) Clean() error {
	if err := os.RemoveAll(s.target); err != nil {
		return &Error{Op: OpClean, Path: s.target, Err: err}
	}
	return nil
}

// copyFile copies src to dst keeping the permission bits and mtime of src.
func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
