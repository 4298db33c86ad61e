package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/PlumpMath/piso/internal/config"
)

// GCSProvider reads a bundle from a Google Cloud Storage bucket.
type GCSProvider struct {
	Bucket string
	Prefix string
	client *storage.Client
}

// NewGCSProvider creates a client from CredentialsFile, or from application
// default credentials when it is empty.
func NewGCSProvider(ctx context.Context, cfg config.BundleConfig) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSProvider{
		Bucket: cfg.Bucket,
		Prefix: objectPrefix(cfg.Prefix),
		client: client,
	}, nil
}

// List lists the objects directly under the prefix.
func (g *GCSProvider) List(ctx context.Context) ([]string, error) {
	it := g.client.Bucket(g.Bucket).Objects(ctx, &storage.Query{
		Prefix:    g.Prefix,
		Delimiter: "/",
	})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s/%s: %w", g.Bucket, g.Prefix, err)
		}
		// Synthetic directory entries only carry Prefix.
		if attrs.Name == "" {
			continue
		}
		if name := strings.TrimPrefix(attrs.Name, g.Prefix); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Download streams one object to localPath.
func (g *GCSProvider) Download(ctx context.Context, name, localPath string) error {
	r, err := g.client.Bucket(g.Bucket).Object(g.Prefix + name).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("gcs open %s: %w", name, err)
	}
	defer r.Close()
	return writeStream(localPath, r)
}

// Close releases the client.
func (g *GCSProvider) Close() error {
	return g.client.Close()
}
