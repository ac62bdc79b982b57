// Package azblob implements storage.Storage on Azure Blob Storage using a
// shared-key connection string. Plain-HTTP endpoints (Azurite) are allowed.
package azblob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderAzBlob, func(cfg storage.Config, log *logger.Logger) (storage.Storage, error) {
		return NewStorage(cfg, log)
	})
}

// Storage implements storage.Storage on one blob container.
type Storage struct {
	container *container.Client
	cfg       storage.Config
	log       *logger.Logger

	mu    sync.Mutex
	ready bool
}

// NewStorage creates a client from cfg.ConnectionString for cfg.Container.
func NewStorage(cfg storage.Config, log *logger.Logger) (*Storage, error) {
	if log == nil {
		log = logger.Nop()
	}
	params := ParseConnectionString(cfg.ConnectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, errors.InvalidInput("connection_string", "AccountName and AccountKey are required")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("storage: create blob client: %w", err)
	}

	return &Storage{
		container: client.ServiceClient().NewContainerClient(cfg.Container),
		cfg:       cfg,
		log:       log,
	}, nil
}

// ensureContainer creates the container on first write.
func (s *Storage) ensureContainer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	_, err := s.container.Create(ctx, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("ensure container %s: %w", s.cfg.Container, err)
	}
	s.ready = true
	return nil
}

// Read downloads the blob at path.
func (s *Storage) Read(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.container.NewBlobClient(s.cfg.Key(path)).DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NotFound(path)
		}
		return nil, errors.Storage("read", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Storage("read", path, err)
	}
	return data, nil
}

// Write uploads data as a block blob.
func (s *Storage) Write(ctx context.Context, path string, data []byte) error {
	if err := s.ensureContainer(ctx); err != nil {
		return errors.Storage("write", path, err)
	}
	_, err := s.container.NewBlockBlobClient(s.cfg.Key(path)).UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType(path)),
		},
	})
	if err != nil {
		s.log.Error("blob upload failed", logger.Fields("path", path, "size", len(data), logger.FieldError, err.Error()))
		return errors.Storage("write", path, err)
	}
	s.log.Debug("blob uploaded", logger.Fields("path", path, "size", len(data)))
	return nil
}

// Exists reports whether the blob exists.
func (s *Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.container.NewBlobClient(s.cfg.Key(path)).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.Storage("stat", path, err)
	}
	return true, nil
}

// Delete removes the blob. Returns nil if it does not exist.
func (s *Storage) Delete(ctx context.Context, path string) error {
	_, err := s.container.NewBlobClient(s.cfg.Key(path)).Delete(ctx, nil)
	if err != nil && !isNotFound(err) {
		return errors.Storage("delete", path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound)
}

func contentType(path string) string {
	if strings.HasSuffix(path, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

// ParseConnectionString splits "Key=Value;Key=Value" into a map. Values may
// themselves contain '='.
func ParseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}

// compile-time check
var _ storage.Storage = (*Storage)(nil)
