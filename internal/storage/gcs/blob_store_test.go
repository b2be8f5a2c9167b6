package gcs

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "fares"})
	assert.ErrorContains(t, err, "client is required")

	_, err = New(&storage.Client{}, Config{})
	assert.ErrorContains(t, err, "bucket name is required")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{prefix: "/exports/", path: "/batches/b1.csv", want: "exports/batches/b1.csv"},
		{prefix: "", path: "b1.csv", want: "b1.csv"},
		{prefix: "exports", path: "//b1.json", want: "exports/b1.json"},
	}
	for _, tc := range tests {
		store, err := New(&storage.Client{}, Config{Bucket: "fares", Prefix: tc.prefix})
		require.NoError(t, err)
		assert.Equal(t, tc.want, store.ObjectName(tc.path), "prefix=%q path=%q", tc.prefix, tc.path)
	}
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(&storage.Client{}, Config{Bucket: "fares"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "  ", "text/csv", strings.NewReader("x"))
	assert.ErrorContains(t, err, "path is required")
}
