// Package objectstore keeps receipt attachments content-addressed by their SHA-256
// digest, on the local filesystem or in a Google Cloud Storage bucket.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// ErrInvalidKey is returned for keys that are absolute or escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// Config selects and configures a backend.
type Config struct {
	Backend         string `mapstructure:"backend"` // "filesystem" (default) or "gcs"
	Root            string `mapstructure:"root"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (service.ObjectStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "filesystem", "fs":
		return NewFileStore(cfg.Root, logger)
	case "gcs":
		return NewGCSStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported object store backend: %s", cfg.Backend)
	}
}

// ContentHash returns the hex SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentKey is the key an object gets when the caller supplies none. The two-character
// fan-out keeps directories small.
func ContentKey(hash string) string {
	return path.Join("sha256", hash[:2], hash)
}

// resolveKey returns the caller's key, or the content key when it is empty.
func resolveKey(key, hash string) (string, error) {
	if key == "" {
		return ContentKey(hash), nil
	}
	return cleanKey(key)
}

func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
