package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

func TestFileStore_ContentAddressed(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, nil)
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("%PDF-1.4 corner bakery receipt")
	meta := map[string]string{"message_id": "m1", "filename": "receipt.pdf"}

	info, err := store.Put(ctx, data, "", meta)
	require.NoError(t, err)

	hash := ContentHash(data)
	assert.Equal(t, ContentKey(hash), info.Key)
	assert.Equal(t, hash, info.ContentHash)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.FileExists(t, filepath.Join(root, "sha256", hash[:2], hash))

	again, err := store.Put(ctx, data, "", map[string]string{"message_id": "m2"})
	require.NoError(t, err)
	assert.Equal(t, info, again)

	got, err := store.Get(ctx, info.Key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	stored, err := store.Metadata(info.Key)
	require.NoError(t, err)
	assert.Equal(t, meta, stored, "re-putting identical bytes keeps the first metadata")
}

func TestFileStore_ExplicitKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, []byte("v1"), "exports/receipts.csv", nil)
	require.NoError(t, err)
	info, err := store.Put(ctx, []byte("v2"), "exports/receipts.csv", nil)
	require.NoError(t, err)
	assert.Equal(t, "exports/receipts.csv", info.Key)

	got, err := store.Get(ctx, "exports/receipts.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestFileStore_Errors(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "sha256/ab/missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	for _, key := range []string{"../escape", "/etc/passwd", "a/../../b", `dir\file`} {
		_, err := store.Put(ctx, []byte("x"), key, nil)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Put(cancelled, []byte("x"), "", nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewFileStore("", nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected writes leave nothing behind")
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(ctx, Config{Backend: "gcs"}, nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = New(ctx, Config{Backend: "s3"}, nil)
	assert.Error(t, err)
}
