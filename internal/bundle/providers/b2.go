package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Backblaze/blazer/b2"

	"github.com/PlumpMath/piso/internal/config"
)

// B2Provider reads a bundle from a Backblaze B2 bucket.
type B2Provider struct {
	Prefix string
	bucket *b2.Bucket
}

// NewB2Provider authorizes the account and opens the bucket.
func NewB2Provider(ctx context.Context, cfg config.BundleConfig) (*B2Provider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("b2 bucket is required")
	}
	if cfg.AccountID == "" || cfg.ApplicationKey == "" {
		return nil, errors.New("b2 account id and application key are required")
	}

	client, err := b2.NewClient(ctx, cfg.AccountID, cfg.ApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("authorize b2 account: %w", err)
	}
	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open b2 bucket %s: %w", cfg.Bucket, err)
	}
	return &B2Provider{Prefix: objectPrefix(cfg.Prefix), bucket: bucket}, nil
}

// List lists the files directly under the prefix.
func (p *B2Provider) List(ctx context.Context) ([]string, error) {
	iter := p.bucket.List(ctx, b2.ListPrefix(p.Prefix), b2.ListDelimiter("/"))

	var names []string
	for iter.Next() {
		full := iter.Object().Name()
		// Directory placeholders end in the delimiter.
		if strings.HasSuffix(full, "/") {
			continue
		}
		if name := strings.TrimPrefix(full, p.Prefix); name != "" {
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("b2 list %s: %w", p.Prefix, err)
	}
	return names, nil
}

// Download streams one file to localPath.
func (p *B2Provider) Download(ctx context.Context, name, localPath string) error {
	r := p.bucket.Object(p.Prefix + name).NewReader(ctx)
	defer r.Close()
	return writeStream(localPath, r)
}
