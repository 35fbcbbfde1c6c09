package model

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// BlobLocation identifies a stored page image in the object store.
type BlobLocation struct {
	Bucket string
	Key    string
}

// String returns a string representation of the BlobLocation.
func (l BlobLocation) String() string {
	return fmt.Sprintf("%s/%s", l.Bucket, l.Key)
}

// PageVector pairs one embedding vector with its provenance.
type PageVector struct {
	// Vector is the embedding. All vectors of a deployment share one
	// fixed dimension.
	Vector []float32

	// Location points at the source page image.
	Location BlobLocation

	// PageNumber is the 1-based page within the source document.
	PageNumber int
}

// VectorBatch is the ordered set of embeddings produced for one document.
// It is consumed exactly once when the document index is built.
type VectorBatch struct {
	DocumentID string
	OwnerID    string
	Pages      []PageVector
}

// ImageRecord is the per-vector provenance entry of a metadata sidecar.
//
// LocalIndex is the vector's position within its own document index
// (0-based, insertion order). GlobalIndex is its position within a merged
// index and stays nil until the record has been merged.
type ImageRecord struct {
	Key         string `json:"key"`
	Bucket      string `json:"bucket"`
	LocalIndex  int    `json:"index"`
	PageFile    string `json:"page_file,omitempty"`
	GlobalIndex *int   `json:"global_index,omitempty"`
}

// Location returns the record's source image location.
func (r ImageRecord) Location() BlobLocation {
	return BlobLocation{Bucket: r.Bucket, Key: r.Key}
}

// PageNumber derives the 1-based page number from the page file name
// (e.g. "page_0007.png"), falling back to the key's base name. Returns 0
// when no page number can be derived.
func (r ImageRecord) PageNumber() int {
	name := r.PageFile
	if name == "" {
		name = path.Base(r.Key)
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	i := strings.LastIndexByte(name, '_')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// WithGlobalIndex returns a copy of the record with its merged position set.
func (r ImageRecord) WithGlobalIndex(pos int) ImageRecord {
	r.GlobalIndex = &pos
	return r
}

// DocumentMeta is the metadata sidecar of a standalone document index.
type DocumentMeta struct {
	DocumentID string        `json:"documentId"`
	OwnerID    string        `json:"ownerId"`
	Images     []ImageRecord `json:"images"`
}

// DocumentRecords holds one document's merged records inside an aggregate
// sidecar. Every record carries a populated GlobalIndex.
type DocumentRecords struct {
	OwnerID string        `json:"ownerId"`
	Records []ImageRecord `json:"records"`
}

// AggregateMeta is the metadata sidecar of a session or master index.
type AggregateMeta struct {
	Documents map[string]DocumentRecords `json:"documents"`
}
