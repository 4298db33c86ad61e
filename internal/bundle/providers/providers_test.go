package providers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlumpMath/piso/internal/bundle"
	"github.com/PlumpMath/piso/internal/config"
)

func seedBundle(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	release := filepath.Join(base, "releases", "1.2.0")
	require.NoError(t, os.MkdirAll(filepath.Join(release, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(release, "svc.exe"), []byte("binary"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(release, "svc.config"), []byte("config"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(release, "docs", "notes.md"), []byte("nested"), 0o644))
	return base
}

func TestLocalProviderList(t *testing.T) {
	base := seedBundle(t)
	p, err := NewLocalProvider(base, "releases/1.2.0")
	require.NoError(t, err)

	names, err := p.List(context.Background())
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"docs/notes.md", "svc.config", "svc.exe"}, names)
}

func TestLocalProviderDownloadKeepsModTime(t *testing.T) {
	base := seedBundle(t)
	mtime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	src := filepath.Join(base, "releases", "1.2.0", "svc.exe")
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	p, err := NewLocalProvider(base, "releases/1.2.0")
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out", "svc.exe")
	require.NoError(t, p.Download(context.Background(), "svc.exe", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(got))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestLocalProviderRejectsTraversal(t *testing.T) {
	base := seedBundle(t)
	_, err := NewLocalProvider(base, "../elsewhere")
	assert.Error(t, err)

	p, err := NewLocalProvider(base, "")
	require.NoError(t, err)
	assert.Error(t, p.Download(context.Background(), "../../etc/passwd", filepath.Join(t.TempDir(), "x")))
}

func TestLocalProviderMissingRoot(t *testing.T) {
	p, err := NewLocalProvider(filepath.Join(t.TempDir(), "absent"), "")
	require.NoError(t, err)
	_, err = p.List(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFetchFromLocalProvider(t *testing.T) {
	base := seedBundle(t)
	p, err := FromConfig(context.Background(), config.BundleConfig{
		Provider: "local",
		Path:     base,
		Prefix:   "releases/1.2.0",
	})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "source")
	names, err := bundle.Fetch(context.Background(), p, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.config", "svc.exe"}, names)
	assert.FileExists(t, filepath.Join(dir, "svc.exe"))
	assert.NoDirExists(t, filepath.Join(dir, "docs"))
}

func TestFromConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := FromConfig(ctx, config.BundleConfig{})
	assert.Error(t, err)

	_, err = FromConfig(ctx, config.BundleConfig{Provider: "ftp"})
	assert.ErrorContains(t, err, "unknown bundle provider")

	p, err := FromConfig(ctx, config.BundleConfig{Provider: "local"})
	assert.Error(t, err)
	assert.Nil(t, p)

	_, err = FromConfig(ctx, config.BundleConfig{Provider: "azure", Bucket: "artifacts", ConnectionString: "not a connection string"})
	assert.Error(t, err)

	_, err = FromConfig(ctx, config.BundleConfig{Provider: "b2", Bucket: "artifacts"})
	assert.Error(t, err)

	_, err = FromConfig(ctx, config.BundleConfig{Provider: "s3"})
	assert.Error(t, err)
}

func TestFromConfigS3StaticCredentials(t *testing.T) {
	p, err := FromConfig(context.Background(), config.BundleConfig{
		Provider:       "s3",
		Bucket:         "artifacts",
		Prefix:         "/processhost/1.2.0",
		Region:         "eu-west-1",
		Endpoint:       "http://127.0.0.1:9000",
		AccountID:      "AKIAEXAMPLE",
		ApplicationKey: "example-secret",
	})
	require.NoError(t, err)
	s3p, ok := p.(*S3Provider)
	require.True(t, ok)
	assert.Equal(t, "processhost/1.2.0/", s3p.Prefix)
	assert.Equal(t, "artifacts", s3p.Bucket)
}

const devStorageConnectionString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestFromConfigAzureDevelopmentStorage(t *testing.T) {
	p, err := FromConfig(context.Background(), config.BundleConfig{
		Provider:         "azure",
		Bucket:           "artifacts",
		ConnectionString: devStorageConnectionString,
	})
	require.NoError(t, err)
	_, ok := p.(*AzureProvider)
	assert.True(t, ok)
}

func TestObjectPrefix(t *testing.T) {
	assert.Equal(t, "", objectPrefix(""))
	assert.Equal(t, "a/b/", objectPrefix("a/b"))
	assert.Equal(t, "a/b/", objectPrefix("/a/b/"))
}
