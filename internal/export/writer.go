// Package export serialises aggregated rows and hands them to blob stores
// selected by the destination URI.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/batch"
	"github.com/JakeFAU/flight-fare-crawler/internal/storage/local"
)

// ErrUnsupportedScheme is returned for destinations without a registered store.
var ErrUnsupportedScheme = errors.New("unsupported export scheme")

// Writer implements batch.Sink.
//
// Destinations are resolved as follows: bare paths and file:// URIs are
// written to the local filesystem, scheme://host URIs use a store registered
// for exactly that prefix, and anything else falls back to a store
// registered for the bare scheme with host and path joined as the object
// name. The format comes from the file extension and defaults to CSV.
type Writer struct {
	hasher batch.Hasher
	stores map[string]batch.BlobStore
	logger *zap.Logger
}

var _ batch.Sink = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

// WithStore routes destinations starting with prefix ("memory" or
// "gs://bucket") to store.
func WithStore(prefix string, store batch.BlobStore) Option {
	return func(w *Writer) {
		w.stores[strings.TrimSuffix(prefix, "://")] = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a Writer that fingerprints payloads with hasher.
func NewWriter(hasher batch.Hasher, opts ...Option) *Writer {
	w := &Writer{
		hasher: hasher,
		stores: make(map[string]batch.BlobStore),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write encodes rows for uri and stores them.
func (w *Writer) Write(ctx context.Context, uri string, rows []batch.Flat) (batch.Artifact, error) {
	store, objectPath, err := w.resolve(uri)
	if err != nil {
		return batch.Artifact{}, err
	}
	format := FormatFor(objectPath)
	var payload []byte
	switch format {
	case FormatJSON:
		payload, err = EncodeJSON(rows)
	default:
		payload, err = EncodeCSV(rows)
	}
	if err != nil {
		return batch.Artifact{}, fmt.Errorf("encode %s: %w", format, err)
	}
	checksum := ""
	if w.hasher != nil {
		if checksum, err = w.hasher.Hash(payload); err != nil {
			return batch.Artifact{}, fmt.Errorf("hash export: %w", err)
		}
	}
	stored, err := store.PutObject(ctx, objectPath, format.ContentType(), bytes.NewReader(payload))
	if err != nil {
		return batch.Artifact{}, fmt.Errorf("store export: %w", err)
	}
	w.logger.Info("export written",
		zap.String("uri", stored),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(payload)))
	return batch.Artifact{URI: stored, Checksum: checksum, Bytes: len(payload), Format: string(format)}, nil
}

// FormatFor picks the format from the extension of p.
func FormatFor(p string) Format {
	if strings.EqualFold(path.Ext(p), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

func (w *Writer) resolve(uri string) (batch.BlobStore, string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, "", fmt.Errorf("export destination is required")
	}
	if !strings.Contains(uri, "://") {
		return localTarget(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse export destination: %w", err)
	}
	if u.Scheme == "file" {
		return localTarget(u.Path)
	}
	if store, ok := w.stores[u.Scheme+"://"+u.Host]; ok {
		return store, strings.TrimPrefix(u.Path, "/"), nil
	}
	if store, ok := w.stores[u.Scheme]; ok {
		return store, strings.TrimPrefix(u.Host+u.Path, "/"), nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
}

func localTarget(p string) (batch.BlobStore, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", fmt.Errorf("resolve export path: %w", err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return nil, "", err
	}
	return store, filepath.Base(abs), nil
}
