// Package providers implements bundle.Provider for the local filesystem and
// the object stores the CLI can fetch from.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/PlumpMath/piso/internal/bundle"
	"github.com/PlumpMath/piso/internal/config"
)

// FromConfig builds the provider named by cfg.Provider. Providers that hold
// network clients also implement io.Closer.
func FromConfig(ctx context.Context, cfg config.BundleConfig) (bundle.Provider, error) {
	var (
		p   bundle.Provider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderLocal:
		p, err = asProvider(NewLocalProvider(cfg.Path, cfg.Prefix))
	case config.ProviderS3:
		p, err = asProvider(NewS3Provider(ctx, cfg))
	case config.ProviderGCS:
		p, err = asProvider(NewGCSProvider(ctx, cfg))
	case config.ProviderAzure:
		p, err = asProvider(NewAzureProvider(cfg))
	case config.ProviderB2:
		p, err = asProvider(NewB2Provider(ctx, cfg))
	case "":
		return nil, fmt.Errorf("no bundle provider configured")
	default:
		return nil, fmt.Errorf("unknown bundle provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", cfg.Provider, err)
	}
	return p, nil
}

// asProvider keeps a failed constructor's typed nil out of the interface.
func asProvider[T bundle.Provider](p T, err error) (bundle.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
