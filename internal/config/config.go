package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. PROCESSHOST_RUN_AS_PASSWORD.
	EnvPrefix = "PROCESSHOST"

	configName = "processhost"
)

// Config describes one deployment plus the ambient settings of the CLI.
type Config struct {
	SourceDir             string       `mapstructure:"source_dir" yaml:"source_dir"`
	Executable            string       `mapstructure:"executable" yaml:"executable"`
	ServiceName           string       `mapstructure:"service_name" yaml:"service_name"`
	ContainerDir          string       `mapstructure:"container_dir" yaml:"container_dir"`
	RunAsUser             string       `mapstructure:"run_as_user" yaml:"run_as_user,omitempty"`
	RunAsPassword         string       `mapstructure:"run_as_password" yaml:"-"`
	CommandTimeoutSeconds int          `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds"`
	StatusWaitSeconds     int          `mapstructure:"status_wait_seconds" yaml:"status_wait_seconds"`
	LogLevel              string       `mapstructure:"log_level" yaml:"log_level"`
	LogFormat             string       `mapstructure:"log_format" yaml:"log_format"`
	LogFile               string       `mapstructure:"log_file" yaml:"log_file,omitempty"`
	AuditFile             string       `mapstructure:"audit_file" yaml:"audit_file,omitempty"`
	Bundle                BundleConfig `mapstructure:"bundle" yaml:"bundle,omitempty"`
}

// BundleConfig selects where the deployable files come from when they are
// not already on disk. An empty Provider means SourceDir is used as is.
type BundleConfig struct {
	Provider         string `mapstructure:"provider" yaml:"provider,omitempty"`
	Path             string `mapstructure:"path" yaml:"path,omitempty"`
	Bucket           string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix           string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region           string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint         string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	CredentialsFile  string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
	ConnectionString string `mapstructure:"connection_string" yaml:"-"`
	AccountID        string `mapstructure:"account_id" yaml:"account_id,omitempty"`
	ApplicationKey   string `mapstructure:"application_key" yaml:"-"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		CommandTimeoutSeconds: 120,
		StatusWaitSeconds:     30,
		LogLevel:              "info",
		LogFormat:             "text",
		AuditFile:             filepath.Join(Dir(), "audit.jsonl"),
	}
}

// New returns a viper instance primed with defaults and the environment
// binding. Every key gets a default so AutomaticEnv can resolve it during
// Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("source_dir", d.SourceDir)
	v.SetDefault("executable", d.Executable)
	v.SetDefault("service_name", d.ServiceName)
	v.SetDefault("container_dir", d.ContainerDir)
	v.SetDefault("run_as_user", d.RunAsUser)
	v.SetDefault("run_as_password", d.RunAsPassword)
	v.SetDefault("command_timeout_seconds", d.CommandTimeoutSeconds)
	v.SetDefault("status_wait_seconds", d.StatusWaitSeconds)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("audit_file", d.AuditFile)
	for _, key := range []string{
		"provider", "path", "bucket", "prefix", "region", "endpoint",
		"credentials_file", "connection_string", "account_id", "application_key",
	} {
		v.SetDefault("bundle."+key, "")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile (or processhost.yaml from the config search path) into
// v and decodes the result. A missing default file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dir is the machine-wide configuration directory.
func Dir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ProcessHost")
	case "darwin":
		return "/Library/Application Support/ProcessHost"
	default:
		return "/etc/processhost"
	}
}
