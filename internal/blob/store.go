package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// Object describes one listed blob.
type Object struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// Store reads blobs of a single container.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// StoreProvider returns the store for a container URL.
type StoreProvider interface {
	Store(containerURL string) (Store, error)
}

var ErrInvalidBaseFolder = errors.New("invalid_base_folder")

// ParseBaseFolder splits https://account.blob.core.windows.net/container/a/b
// into the container URL and the blob prefix "a/b/".
func ParseBaseFolder(raw string) (containerURL, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidBaseFolder, raw)
	}

	path := strings.TrimLeft(u.Path, "/")
	containerName, rest, _ := strings.Cut(path, "/")
	if containerName == "" {
		return "", "", fmt.Errorf("%w: %q has no container", ErrInvalidBaseFolder, raw)
	}
	if rest = strings.TrimRight(rest, "/"); rest != "" {
		prefix = rest + "/"
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, containerName), prefix, nil
}

// AzureStores builds container clients authenticated with the default Azure
// credential chain (environment, workload identity, managed identity, CLI).
type AzureStores struct {
	once    sync.Once
	cred    azcore.TokenCredential
	credErr error
}

func NewAzureStores() *AzureStores {
	return &AzureStores{}
}

func (p *AzureStores) Store(containerURL string) (Store, error) {
	p.once.Do(func() {
		p.cred, p.credErr = azidentity.NewDefaultAzureCredential(nil)
	})
	if p.credErr != nil {
		return nil, fmt.Errorf("azure credential: %w", p.credErr)
	}

	client, err := container.NewClient(containerURL, p.cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzureStore{client: client}, nil
}

type AzureStore struct {
	client *container.Client
}

func (s *AzureStore) List(ctx context.Context, prefix string) ([]Object, error) {
	pager := s.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})

	var objects []Object
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := Object{Name: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					obj.Size = *props.ContentLength
				}
				if props.LastModified != nil {
					obj.LastModified = *props.LastModified
				}
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func (s *AzureStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
