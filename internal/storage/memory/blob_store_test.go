package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("price\n300\n")
	uri, err := store.PutObject(context.Background(), "batches/b1.csv", "text/csv", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://batches/b1.csv", uri)

	payload[0] = 'P'
	stored, contentType, ok := store.Object("batches/b1.csv")
	require.True(t, ok)
	assert.Equal(t, "price\n300\n", string(stored))
	assert.Equal(t, "text/csv", contentType)

	stored[0] = 'X'
	again, _, _ := store.Object("batches/b1.csv")
	assert.Equal(t, "price\n300\n", string(again), "callers receive copies")
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"/b.json", "a.csv"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.csv", "b.json"}, store.Paths())

	_, err := store.PutObject(context.Background(), "/", "", bytes.NewReader(nil))
	assert.Error(t, err)
}
