// Package credstore keeps run-as passwords in the OS credential store
// (Windows Credential Manager, macOS Keychain, Secret Service on Linux) so
// they never have to live in a config file.
package credstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/PlumpMath/piso/internal/secmem"
)

// Service is the credential store namespace for every entry.
const Service = "processhost"

// ErrNotFound is returned when no secret is stored for a principal.
var ErrNotFound = errors.New("credstore: no stored secret")

func key(principal string) string {
	return strings.ToLower(strings.TrimSpace(principal))
}

// Get returns the stored secret for principal.
func Get(principal string) (*secmem.SecureString, error) {
	if key(principal) == "" {
		return nil, errors.New("credstore: principal is required")
	}
	value, err := keyring.Get(Service, key(principal))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w for %s", ErrNotFound, principal)
		}
		return nil, fmt.Errorf("credstore: read %s: %w", principal, err)
	}
	return secmem.NewSecureString(value), nil
}

// Set stores secret for principal, replacing any previous value.
func Set(principal string, secret *secmem.SecureString) error {
	if key(principal) == "" {
		return errors.New("credstore: principal is required")
	}
	if secret.Empty() {
		return errors.New("credstore: secret is empty")
	}
	if err := keyring.Set(Service, key(principal), secret.Reveal()); err != nil {
		return fmt.Errorf("credstore: write %s: %w", principal, err)
	}
	return nil
}

// Delete removes the secret for principal. Deleting a missing entry returns
// ErrNotFound.
func Delete(principal string) error {
	if err := keyring.Delete(Service, key(principal)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w for %s", ErrNotFound, principal)
		}
		return fmt.Errorf("credstore: delete %s: %w", principal, err)
	}
	return nil
}
