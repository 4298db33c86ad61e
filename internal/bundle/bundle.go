// Package bundle fetches a deployable file set from a storage provider into
// a local directory that can then be used as a deployment source.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/PlumpMath/piso/internal/logging"
	"github.com/PlumpMath/piso/internal/retry"
	"github.com/PlumpMath/piso/internal/workerpool"
)

var log = logging.L("bundle")

const maxParallelDownloads = 4

// downloadRetry governs retries of a single failed object download.
var downloadRetry = retry.DefaultConfig()

// Provider lists and downloads the objects of one bundle. Names are relative
// to the bundle root and use forward slashes.
type Provider interface {
	List(ctx context.Context) ([]string, error)
	Download(ctx context.Context, name, localPath string) error
}

// ContainedPath ensures that the resolved path stays within basePath.
// Returns the safe absolute path or an error if path traversal is detected.
func ContainedPath(basePath, untrustedPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	joined := filepath.Join(absBase, filepath.FromSlash(untrustedPath))
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) && absJoined != absBase {
		return "", fmt.Errorf("path traversal detected: %q resolves outside base %q", untrustedPath, absBase)
	}
	return absJoined, nil
}

// Fetch downloads every top-level object of p into dir, creating dir if
// needed. Nested names are skipped the same way staging skips
// subdirectories. When include patterns are given, only names matching at
// least one of them are fetched. Fetch returns the fetched names sorted.
func Fetch(ctx context.Context, p Provider, dir string, include ...string) ([]string, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("bundle: invalid include pattern %q", pattern)
		}
	}

	names, err := p.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundle: list: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: create %s: %w", dir, err)
	}

	type job struct{ name, dest string }
	var jobs []job
	for _, name := range names {
		if name == "" || strings.Contains(name, "/") {
			log.Debug("skipping nested object", "name", name)
			continue
		}
		if !included(name, include) {
			continue
		}
		dest, err := ContainedPath(dir, name)
		if err != nil {
			return nil, fmt.Errorf("bundle: %w", err)
		}
		jobs = append(jobs, job{name: name, dest: dest})
	}

	tasks := make([]workerpool.Task, 0, len(jobs))
	for _, j := range jobs {
		tasks = append(tasks, func(ctx context.Context) error {
			err := retry.Do(ctx, downloadRetry, "download "+j.name, func(ctx context.Context) error {
				err := p.Download(ctx, j.name, j.dest)
				if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
					return retry.Permanent(err)
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("bundle: download %s: %w", j.name, err)
			}
			return nil
		})
	}
	if err := runAll(workerpool.New(ctx, maxParallelDownloads, len(tasks)), tasks); err != nil {
		return nil, err
	}

	fetched := make([]string, 0, len(jobs))
	for _, j := range jobs {
		fetched = append(fetched, j.name)
	}
	if len(fetched) == 0 {
		return nil, errors.New("bundle: no files matched")
	}
	sort.Strings(fetched)
	log.Info("bundle fetched", "dir", dir, "count", len(fetched))
	return fetched, nil
}

// runAll submits every task and waits for the pool. The pool is always
// drained, even when a submit is rejected.
func runAll(pool *workerpool.Pool, tasks []workerpool.Task) error {
	for _, task := range tasks {
		if err := pool.Submit(task); err != nil {
			return errors.Join(err, pool.Wait())
		}
	}
	return pool.Wait()
}

func included(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
