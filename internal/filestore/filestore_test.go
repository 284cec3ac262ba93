package filestore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_PutThenOpenRoundTrips(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	key, size, err := d.Put(ctx, bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, int64(11), size)

	rc, err := d.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestDisk_DeleteRemovesObject(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	key, _, err := d.Put(ctx, bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	require.NoError(t, d.Delete(ctx, key))

	_, err = d.Open(ctx, key)
	assert.Error(t, err)
}

func TestDisk_DeleteMissingKeyIsNotError(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, d.Delete(context.Background(), "does-not-exist"))
}
