package aggregate

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/codec"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/model"
)

const (
	indexContentType = "application/octet-stream"
	metaContentType  = "application/json"
)

// StoreOptions contains configuration options for the aggregate store.
type StoreOptions struct {
	// Codec encodes metadata sidecars. Defaults to JSON, which is the
	// persisted sidecar contract.
	Codec codec.Codec

	// Compression is applied to index blob payloads on publish.
	Compression flat.Compression
}

// Store persists index/sidecar pairs in an object store. A pair is one
// logical record: loads that can read one half but not the other report the
// whole record as corrupted.
type Store struct {
	blobs blobstore.Store
	opts  StoreOptions
}

// NewStore creates an aggregate store on top of the given object store.
func NewStore(blobs blobstore.Store, optFns ...func(o *StoreOptions)) *Store {
	opts := StoreOptions{
		Codec:       codec.Default,
		Compression: flat.CompressionNone,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{blobs: blobs, opts: opts}
}

// WithCompression sets the index blob compression codec.
func WithCompression(c flat.Compression) func(o *StoreOptions) {
	return func(o *StoreOptions) {
		o.Compression = c
	}
}

// LoadDocument loads a standalone document index. A missing pair maps to
// ErrNotFound; a half-written or unreadable pair maps to ErrCorrupted, which
// merge callers treat as "document not ready".
func (s *Store) LoadDocument(ctx context.Context, keys KeyPair) (*DocumentIndex, error) {
	idx, err := s.loadIndex(ctx, keys)
	if err != nil {
		return nil, err
	}

	var meta model.DocumentMeta
	if err := s.loadMeta(ctx, keys.MetaKey, &meta); err != nil {
		return nil, err
	}

	doc := &DocumentIndex{Index: idx, Meta: meta}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// PublishDocument writes a document index pair. The sidecar is written last
// and acts as the commit point: if the sidecar write fails the document is
// not yet indexed, and merge callers will skip the orphaned index blob.
func (s *Store) PublishDocument(ctx context.Context, keys KeyPair, doc *DocumentIndex) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	return s.publish(ctx, keys, doc.Index, doc.Meta)
}

// LoadAggregate loads a session or master aggregate and verifies its
// position invariant.
func (s *Store) LoadAggregate(ctx context.Context, keys KeyPair) (*Aggregate, error) {
	idx, err := s.loadIndex(ctx, keys)
	if err != nil {
		return nil, err
	}

	var meta model.AggregateMeta
	if err := s.loadMeta(ctx, keys.MetaKey, &meta); err != nil {
		return nil, err
	}
	if meta.Documents == nil {
		meta.Documents = make(map[string]model.DocumentRecords)
	}

	agg := &Aggregate{Index: idx, Documents: meta.Documents}
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	return agg, nil
}

// PublishAggregate writes a session or master aggregate as one unit. The
// invariant is checked before anything is written.
func (s *Store) PublishAggregate(ctx context.Context, keys KeyPair, agg *Aggregate) error {
	if err := agg.Validate(); err != nil {
		return err
	}
	return s.publish(ctx, keys, agg.Index, agg.Meta())
}

func (s *Store) loadIndex(ctx context.Context, keys KeyPair) (*flat.Flat, error) {
	data, err := s.blobs.Get(ctx, keys.IndexKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		// Only a fully absent pair counts as not found. An orphaned
		// sidecar means a writer died mid-publish.
		if _, metaErr := s.blobs.Get(ctx, keys.MetaKey); metaErr == nil {
			return nil, fmt.Errorf("%w: index blob missing for sidecar %s", ErrCorrupted, keys.MetaKey)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, keys.IndexKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", keys.IndexKey, err)
	}

	idx, err := flat.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, keys.IndexKey, err)
	}
	return idx, nil
}

func (s *Store) loadMeta(ctx context.Context, key string, v any) error {
	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: sidecar missing: %s", ErrCorrupted, key)
	}
	if err != nil {
		return fmt.Errorf("load sidecar %s: %w", key, err)
	}
	if err := s.opts.Codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: sidecar unreadable: %s: %v", ErrCorrupted, key, err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, keys KeyPair, idx *flat.Flat, meta any) error {
	indexData, err := idx.Marshal(s.opts.Compression)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	metaData, err := s.opts.Codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}

	if err := s.blobs.Put(ctx, keys.IndexKey, indexData, indexContentType); err != nil {
		return fmt.Errorf("put index %s: %w", keys.IndexKey, err)
	}
	if err := s.blobs.Put(ctx, keys.MetaKey, metaData, metaContentType); err != nil {
		return fmt.Errorf("put sidecar %s: %w", keys.MetaKey, err)
	}
	return nil
}
