package main

import (
	"errors"
	"fmt"

	"github.com/PlumpMath/piso/internal/config"
	"github.com/PlumpMath/piso/internal/credstore"
	"github.com/PlumpMath/piso/internal/deploy"
	"github.com/PlumpMath/piso/internal/secmem"
)

// specFromConfig maps the config onto a deployment spec. The run-as
// password comes from the config (normally via PROCESSHOST_RUN_AS_PASSWORD)
// or, failing that, from the OS credential store.
func specFromConfig(c *config.Config, sourceDir string) (deploy.Spec, error) {
	spec := deploy.Spec{
		SourceDir:      sourceDir,
		ExecutableName: c.Executable,
		ServiceName:    c.ServiceName,
		ContainerDir:   c.ContainerDir,
	}
	if c.RunAsUser == "" {
		return spec, nil
	}

	cred := &deploy.Credential{Principal: c.RunAsUser}
	switch {
	case c.RunAsPassword != "":
		cred.Secret = secmem.NewSecureString(c.RunAsPassword)
		c.RunAsPassword = ""
	default:
		secret, err := credstore.Get(c.RunAsUser)
		switch {
		case err == nil:
			cred.Secret = secret
		case errors.Is(err, credstore.ErrNotFound):
			// Built-in accounts such as NT AUTHORITY\NetworkService have no password.
			log.Info("no stored password for run-as user", "principal", c.RunAsUser)
		default:
			return spec, fmt.Errorf("failed to read stored password: %w", err)
		}
	}
	spec.Credential = cred
	return spec, nil
}

// targetSpec identifies an existing deployment without touching credentials.
func targetSpec(c *config.Config) deploy.Spec {
	return deploy.Spec{
		SourceDir:      c.SourceDir,
		ExecutableName: c.Executable,
		ServiceName:    c.ServiceName,
		ContainerDir:   c.ContainerDir,
	}
}
