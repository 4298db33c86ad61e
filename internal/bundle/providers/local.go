package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/PlumpMath/piso/internal/bundle"
)

// LocalProvider reads a bundle from a local or mounted directory.
type LocalProvider struct {
	BasePath string
}

// NewLocalProvider creates a LocalProvider rooted at basePath joined with
// the optional prefix.
func NewLocalProvider(basePath, prefix string) (*LocalProvider, error) {
	if basePath == "" {
		return nil, errors.New("local provider base path is required")
	}
	root := filepath.Clean(basePath)
	if prefix != "" {
		var err error
		root, err = bundle.ContainedPath(basePath, prefix)
		if err != nil {
			return nil, err
		}
	}
	return &LocalProvider{BasePath: root}, nil
}

// List enumerates every file under the base path.
func (p *LocalProvider) List(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(p.BasePath); err != nil {
		return nil, fmt.Errorf("failed to stat bundle root %s: %w", p.BasePath, err)
	}

	var results []string
	walkErr := filepath.WalkDir(p.BasePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(p.BasePath, path)
		if err != nil {
			return err
		}
		results = append(results, filepath.ToSlash(relPath))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to list bundle files: %w", walkErr)
	}
	return results, nil
}

// Download copies one file out of the bundle.
func (p *LocalProvider) Download(_ context.Context, name, localPath string) error {
	if name == "" {
		return errors.New("remote path is required")
	}
	if localPath == "" {
		return errors.New("local destination path is required")
	}

	srcPath, err := bundle.ContainedPath(p.BasePath, name)
	if err != nil {
		return err
	}
	return copyFile(srcPath, localPath)
}

func copyFile(srcPath, destPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	info, statErr := srcFile.Stat()
	if statErr != nil {
		_ = srcFile.Close()
		return fmt.Errorf("failed to stat source file: %w", statErr)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		_ = srcFile.Close()
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	destFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		_ = srcFile.Close()
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	_, err = io.Copy(destFile, srcFile)
	closeErr := destFile.Close()
	if err == nil {
		err = closeErr
	}
	closeErr = srcFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}

	if err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}

// writeStream creates localPath and copies r into it.
func writeStream(localPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	_, err = io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

// objectPrefix turns a configured prefix into a key prefix ending in "/".
func objectPrefix(prefix string) string {
	prefix = filepath.ToSlash(prefix)
	for len(prefix) > 0 && prefix[0] == '/' {
		prefix = prefix[1:]
	}
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return prefix
}
