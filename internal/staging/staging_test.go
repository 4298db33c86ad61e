package staging

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sourceDir(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "build")
	writeFile(t, filepath.Join(src, "svc.exe"), "MZ fake binary")
	writeFile(t, filepath.Join(src, "svc.config"), "<configuration/>")
	writeFile(t, filepath.Join(src, "nested", "ignored.dll"), "not copied")
	return src
}

func TestStageCopiesTopLevelFilesOnly(t *testing.T) {
	src := sourceDir(t)
	target := filepath.Join(t.TempDir(), "processhost")

	staged, err := New(src, target).Stage("")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.config", "svc.exe"}, staged)

	for _, name := range staged {
		want, err := os.ReadFile(filepath.Join(src, name))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(target, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	assert.NoDirExists(t, filepath.Join(target, "nested"))
}

func TestStagePreservesModTime(t *testing.T) {
	src := sourceDir(t)
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "svc.exe"), mtime, mtime))

	target := filepath.Join(t.TempDir(), "processhost")
	_, err := New(src, target).Stage("")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(target, "svc.exe"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "mtime = %s", info.ModTime())
}

func TestStageRemovesStaleDirectory(t *testing.T) {
	src := sourceDir(t)
	target := filepath.Join(t.TempDir(), "processhost")
	writeFile(t, filepath.Join(target, "leftover.log"), "from a previous run")
	writeFile(t, filepath.Join(target, "old", "deep.bin"), "stale")

	_, err := New(src, target).Stage("")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(target, "leftover.log"))
	assert.NoDirExists(t, filepath.Join(target, "old"))
	entries, err := os.ReadDir(target)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStageGrantsPrincipalBeforeCopy(t *testing.T) {
	src := sourceDir(t)
	target := filepath.Join(t.TempDir(), "processhost")

	var granted []string
	grant := func(path, principal string) error {
		assert.Equal(t, `CORP\svc-host`, principal)
		if len(granted) == 0 {
			entries, err := os.ReadDir(path)
			require.NoError(t, err)
			assert.Empty(t, entries, "grant must happen before files are copied")
		}
		granted = append(granted, path)
		return nil
	}

	_, err := New(src, target, WithGrant(grant)).Stage(`CORP\svc-host`)
	require.NoError(t, err)
	require.NotEmpty(t, granted)
	assert.Equal(t, target, granted[0])
	if !grantInherits {
		assert.Len(t, granted, 3)
	}
}

func TestStageWithoutPrincipalSkipsGrant(t *testing.T) {
	called := false
	grant := func(string, string) error { called = true; return nil }
	_, err := New(sourceDir(t), filepath.Join(t.TempDir(), "processhost"), WithGrant(grant)).Stage("")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestStageGrantFailure(t *testing.T) {
	cause := errors.New("no such principal")
	grant := func(string, string) error { return cause }
	target := filepath.Join(t.TempDir(), "processhost")

	_, err := New(sourceDir(t), target, WithGrant(grant)).Stage("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, OpGrant, stageErr.Op)
	assert.Equal(t, target, stageErr.Path)
}

func TestStageMissingSource(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), filepath.Join(t.TempDir(), "processhost")).Stage("")
	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, OpReadSource, stageErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStageWithCurrentUser(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("DACL grant needs a resolvable account and is exercised on Windows hosts")
	}
	u, err := user.Current()
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "processhost")
	staged, err := New(sourceDir(t), target).Stage(u.Username)
	require.NoError(t, err)
	assert.Len(t, staged, 2)

	info, err := os.Stat(filepath.Join(target, "svc.exe"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o600)
}

func TestCleanRemovesOnlyTarget(t *testing.T) {
	container := t.TempDir()
	writeFile(t, filepath.Join(container, "sibling.txt"), "keep me")
	target := filepath.Join(container, "processhost")

	s := New(sourceDir(t), target)
	_, err := s.Stage("")
	require.NoError(t, err)

	require.NoError(t, s.Clean())
	assert.NoDirExists(t, target)
	assert.FileExists(t, filepath.Join(container, "sibling.txt"))

	require.NoError(t, s.Clean(), "cleaning a missing target is not an error")
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: OpCopy, Path: "/src/svc.exe", Err: os.ErrPermission}
	assert.Equal(t, "staging: copy /src/svc.exe: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
}
