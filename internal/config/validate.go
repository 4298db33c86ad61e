package config

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Bundle provider names.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderAzure = "azure"
	ProviderB2    = "b2"
)

var knownProviders = map[string]bool{
	ProviderLocal: true,
	ProviderS3:    true,
	ProviderGCS:   true,
	ProviderAzure: true,
	ProviderB2:    true,
}

// ValidationResult separates problems that must stop the CLI from problems
// that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal problem was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config. Out-of-range timeouts are clamped and
// reported as warnings; values that would produce a broken control-utility
// invocation are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if strings.IndexFunc(c.ServiceName, unicode.IsSpace) >= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("service_name %q must not contain whitespace", c.ServiceName))
	}
	if strings.ContainsRune(c.Executable, '/') || strings.ContainsRune(c.Executable, '\\') {
		r.Fatals = append(r.Fatals, fmt.Errorf("executable %q must be a file name, not a path", c.Executable))
	}
	if c.RunAsPassword != "" && c.RunAsUser == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("run_as_password is set but run_as_user is empty"))
	}
	for _, ch := range c.RunAsPassword {
		if unicode.IsControl(ch) {
			r.Fatals = append(r.Fatals, fmt.Errorf("run_as_password contains control characters"))
			break
		}
	}

	if c.CommandTimeoutSeconds < 5 {
		r.Warnings = append(r.Warnings, fmt.Errorf("command_timeout_seconds %d is below minimum 5, clamping", c.CommandTimeoutSeconds))
		c.CommandTimeoutSeconds = 5
	} else if c.CommandTimeoutSeconds > 3600 {
		r.Warnings = append(r.Warnings, fmt.Errorf("command_timeout_seconds %d exceeds maximum 3600, clamping", c.CommandTimeoutSeconds))
		c.CommandTimeoutSeconds = 3600
	}

	if c.StatusWaitSeconds < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("status_wait_seconds %d is below minimum 1, clamping", c.StatusWaitSeconds))
		c.StatusWaitSeconds = 1
	} else if c.StatusWaitSeconds > 600 {
		r.Warnings = append(r.Warnings, fmt.Errorf("status_wait_seconds %d exceeds maximum 600, clamping", c.StatusWaitSeconds))
		c.StatusWaitSeconds = 600
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	r.Fatals = append(r.Fatals, c.Bundle.validate()...)
	return r
}

// Validate runs ValidateTiered, logs every problem, and returns them all.
func (c *Config) Validate() []error {
	r := c.ValidateTiered()
	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}
	for _, err := range r.Fatals {
		slog.Error("config validation", "error", err)
	}
	return r.AllErrors()
}

// Enabled reports whether a remote or local bundle source is configured.
func (b BundleConfig) Enabled() bool {
	return b.Provider != ""
}

func (b BundleConfig) validate() []error {
	if !b.Enabled() {
		return nil
	}
	provider := strings.ToLower(b.Provider)
	if !knownProviders[provider] {
		return []error{fmt.Errorf("bundle.provider %q is not one of local, s3, gcs, azure, b2", b.Provider)}
	}

	var errs []error
	switch provider {
	case ProviderLocal:
		if b.Path == "" {
			errs = append(errs, fmt.Errorf("bundle.path is required for the local provider"))
		}
	case ProviderAzure:
		if b.Bucket == "" {
			errs = append(errs, fmt.Errorf("bundle.bucket (container) is required for the azure provider"))
		}
		if b.ConnectionString == "" {
			errs = append(errs, fmt.Errorf("bundle.connection_string is required for the azure provider"))
		}
	case ProviderB2:
		if b.Bucket == "" {
			errs = append(errs, fmt.Errorf("bundle.bucket is required for the b2 provider"))
		}
		if b.AccountID == "" || b.ApplicationKey == "" {
			errs = append(errs, fmt.Errorf("bundle.account_id and bundle.application_key are required for the b2 provider"))
		}
	default:
		if b.Bucket == "" {
			errs = append(errs, fmt.Errorf("bundle.bucket is required for the %s provider", provider))
		}
	}
	return errs
}
