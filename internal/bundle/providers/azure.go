package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/PlumpMath/piso/internal/config"
)

// AzureProvider reads a bundle from an Azure Blob Storage container.
type AzureProvider struct {
	Container string
	Prefix    string
	client    *azblob.Client
}

// NewAzureProvider connects with ConnectionString; Bucket names the container.
func NewAzureProvider(cfg config.BundleConfig) (*AzureProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("azure container is required")
	}
	if cfg.ConnectionString == "" {
		return nil, errors.New("azure connection string is required")
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &AzureProvider{
		Container: cfg.Bucket,
		Prefix:    objectPrefix(cfg.Prefix),
		client:    client,
	}, nil
}

// List lists the blobs under the prefix.
func (a *AzureProvider) List(ctx context.Context) ([]string, error) {
	prefix := a.Prefix
	pager := a.client.NewListBlobsFlatPager(a.Container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var names []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list %s/%s: %w", a.Container, a.Prefix, err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if name := strings.TrimPrefix(*item.Name, a.Prefix); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// Download writes one blob to localPath.
func (a *AzureProvider) Download(ctx context.Context, name, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	_, err = a.client.DownloadFile(ctx, a.Container, a.Prefix+name, f, nil)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("azure download %s: %w", name, err)
	}
	return nil
}
