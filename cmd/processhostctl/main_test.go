package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/PlumpMath/piso/internal/audit"
	"github.com/PlumpMath/piso/internal/config"
	"github.com/PlumpMath/piso/internal/credstore"
	"github.com/PlumpMath/piso/internal/secmem"
	"github.com/PlumpMath/piso/internal/svcctl"
)

func sampleReport() statusReport {
	return statusReport{
		Service:    "SampleSvc",
		State:      svcctl.Running,
		TargetDir:  `C:\containers\c1\processhost`,
		BinaryPath: `C:\containers\c1\processhost\svc.exe`,
		Staged:     true,
	}
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "running", decoded["state"])
	assert.Equal(t, "SampleSvc", decoded["service"])
	assert.NotContains(t, decoded, "native")
}

func TestWriteReportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "yaml"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "running", decoded["state"])
	assert.Equal(t, true, decoded["staged"])
}

func TestWriteReportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "text"))
	assert.Contains(t, buf.String(), "State:       running")
}

func TestWriteReportUnknownFormat(t *testing.T) {
	assert.Error(t, writeReport(&bytes.Buffer{}, sampleReport(), "xml"))
}

func baseConfig(t *testing.T) *config.Config {
	c := config.Default()
	c.SourceDir = t.TempDir()
	c.Executable = "svc.exe"
	c.ServiceName = "SampleSvc"
	c.ContainerDir = t.TempDir()
	return c
}

func TestSpecFromConfigLocalSystem(t *testing.T) {
	c := baseConfig(t)
	spec, err := specFromConfig(c, c.SourceDir)
	require.NoError(t, err)
	assert.Nil(t, spec.Credential)
	assert.Equal(t, filepath.Join(c.ContainerDir, "processhost"), spec.TargetDir())
}

func TestSpecFromConfigPasswordFromConfig(t *testing.T) {
	c := baseConfig(t)
	c.RunAsUser = `CORP\svc-host`
	c.RunAsPassword = "hunter2"

	spec, err := specFromConfig(c, c.SourceDir)
	require.NoError(t, err)
	require.NotNil(t, spec.Credential)
	assert.Equal(t, "hunter2", spec.Credential.Secret.Reveal())
	assert.Empty(t, c.RunAsPassword, "plaintext copy in the config is dropped")
}

func TestSpecFromConfigPasswordFromStore(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, credstore.Set(`CORP\svc-host`, secmem.NewSecureString("from-store")))

	c := baseConfig(t)
	c.RunAsUser = `CORP\svc-host`
	spec, err := specFromConfig(c, c.SourceDir)
	require.NoError(t, err)
	assert.Equal(t, "from-store", spec.Credential.Secret.Reveal())
}

func TestSpecFromConfigAccountWithoutPassword(t *testing.T) {
	keyring.MockInit()
	c := baseConfig(t)
	c.RunAsUser = `NT AUTHORITY\NetworkService`
	spec, err := specFromConfig(c, c.SourceDir)
	require.NoError(t, err)
	require.NotNil(t, spec.Credential)
	assert.True(t, spec.Credential.Secret.Empty())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "processhostctl v"))
}

func TestCredentialSetFromStdin(t *testing.T) {
	keyring.MockInit()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("s3cret\n"))
	rootCmd.SetArgs([]string{"credential", "set", `CORP\svc-host`})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil); rootCmd.SetIn(nil) })

	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		t.Skip("stdin is a terminal")
	}

	require.NoError(t, rootCmd.Execute())
	got, err := credstore.Get(`CORP\svc-host`)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.Reveal())
}

func TestAuditVerifyCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	al, err := audit.NewLogger(path, 1, 1)
	require.NoError(t, err)
	al.Log(audit.EventDeployStarted, "dep-1", "SampleSvc", nil)
	al.Log(audit.EventDisposed, "dep-1", "SampleSvc", nil)
	require.NoError(t, al.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"audit", "verify", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "2 entries, chain intact")
}
