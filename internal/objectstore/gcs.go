package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

const hashMetadataKey = "content-sha256"

// GCSStore keeps objects in a Cloud Storage bucket through the JSON API.
type GCSStore struct {
	svc    *storagev1.Service
	logger *slog.Logger
	bucket string
	prefix string
}

// NewGCSStore connects with application default credentials, or with the configured
// service account file.
func NewGCSStore(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: object store bucket", common.ErrMissingConfig)
	}
	opts = append([]option.ClientOption{option.WithScopes(storagev1.DevstorageReadWriteScope)}, opts...)
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return NewGCSStoreWithService(svc, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewGCSStoreWithService wraps an existing storage service.
func NewGCSStoreWithService(svc *storagev1.Service, bucket, prefix string, logger *slog.Logger) *GCSStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{
		svc:    svc,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "objectstore", "backend", "gcs", "bucket", bucket),
	}
}

// Put uploads data. Content-keyed objects already present with the same digest are
// not uploaded again.
func (s *GCSStore) Put(ctx context.Context, data []byte, key string, metadata map[string]string) (service.ObjectInfo, error) {
	hash := ContentHash(data)
	derived := key == ""
	key, err := resolveKey(key, hash)
	if err != nil {
		return service.ObjectInfo{}, err
	}
	name := s.name(key)
	info := service.ObjectInfo{Key: key, ContentHash: hash, Size: int64(len(data))}

	if derived {
		existing, err := s.svc.Objects.Get(s.bucket, name).Context(ctx).Do()
		if err == nil && existing.Metadata[hashMetadataKey] == hash {
			s.logger.Debug("Object already stored", "key", key)
			info.ETag = existing.Etag
			return info, nil
		}
		if err != nil && !errors.Is(mapError(err), common.ErrNotFound) {
			return service.ObjectInfo{}, fmt.Errorf("failed to stat object %s: %w", key, mapError(err))
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[hashMetadataKey] = hash

	contentType := metadata["mime_type"]
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	obj := &storagev1.Object{Name: name, Metadata: meta, ContentType: contentType}
	stored, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return service.ObjectInfo{}, fmt.Errorf("failed to upload object %s: %w", key, mapError(err))
	}

	info.ETag = stored.Etag
	s.logger.Debug("Uploaded object", "key", key, "size", info.Size)
	return info, nil
}

// Get downloads an object, or returns common.ErrNotFound.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Objects.Get(s.bucket, s.name(key)).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download object %s: %w", key, mapError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) name(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// mapError converts API status codes into the shared sentinel errors.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", common.ErrNotFound, err)
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", common.ErrAuth, err)
	case apiErr.Code >= 500:
		return fmt.Errorf("%w: %w", common.ErrServerError, err)
	default:
		return err
	}
}

var _ service.ObjectStore = (*GCSStore)(nil)
