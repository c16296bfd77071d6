package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

const metaSuffix = ".meta.json"

// FileStore writes objects under a root directory. Each object has a JSON sidecar
// holding its metadata and digest.
type FileStore struct {
	logger *slog.Logger
	root   string
}

type sidecar struct {
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentHash string            `json:"content_hash"`
	Size        int64             `json:"size"`
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: object store root", common.ErrMissingConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &FileStore{
		root:   root,
		logger: logger.With("component", "objectstore", "backend", "filesystem"),
	}, nil
}

// Put stores data. An empty key stores the object under its content key, so writing the
// same bytes twice is a no-op.
func (s *FileStore) Put(ctx context.Context, data []byte, key string, metadata map[string]string) (service.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return service.ObjectInfo{}, err
	}
	hash := ContentHash(data)
	key, err := resolveKey(key, hash)
	if err != nil {
		return service.ObjectInfo{}, err
	}
	info := service.ObjectInfo{Key: key, ContentHash: hash, ETag: hash, Size: int64(len(data))}

	full := s.path(key)
	if existing, err := s.readSidecar(key); err == nil && existing.ContentHash == hash {
		if _, statErr := os.Stat(full); statErr == nil {
			s.logger.Debug("Object already stored", "key", key)
			return info, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return service.ObjectInfo{}, fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := writeAtomic(full, data); err != nil {
		return service.ObjectInfo{}, fmt.Errorf("failed to write object %s: %w", key, err)
	}

	meta, err := json.MarshalIndent(sidecar{Metadata: metadata, ContentHash: hash, Size: info.Size}, "", "  ")
	if err != nil {
		return service.ObjectInfo{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeAtomic(full+metaSuffix, meta); err != nil {
		return service.ObjectInfo{}, fmt.Errorf("failed to write metadata for %s: %w", key, err)
	}

	s.logger.Debug("Stored object", "key", key, "size", info.Size)
	return info, nil
}

// Get returns the bytes stored under key, or common.ErrNotFound.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Metadata returns the metadata recorded with an object.
func (s *FileStore) Metadata(key string) (map[string]string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	sc, err := s.readSidecar(key)
	if err != nil {
		return nil, err
	}
	return sc.Metadata, nil
}

func (s *FileStore) readSidecar(key string) (sidecar, error) {
	var sc sidecar
	raw, err := os.ReadFile(s.path(key) + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return sc, fmt.Errorf("metadata for %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return sc, fmt.Errorf("failed to read metadata for %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("failed to parse metadata for %s: %w", key, err)
	}
	return sc, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// writeAtomic writes through a temp file and rename so readers never see partial data.
func writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

var _ service.ObjectStore = (*FileStore)(nil)
