// Package aggregate owns the merged-index model: standalone document
// indexes, session and master aggregates, their metadata sidecars and the
// position-offset bookkeeping that keeps every vector resolvable back to a
// document page.
package aggregate

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/model"
)

var (
	// ErrNotFound is returned when no index has been published yet for a
	// scope. This is an expected "nothing indexed yet" condition.
	ErrNotFound = errors.New("aggregate: index not found")

	// ErrCorrupted is returned when an index/sidecar pair is present but
	// unreadable or internally inconsistent. The pair must be treated as a
	// single logical record; a partial pair is corrupt, not absent.
	ErrCorrupted = errors.New("aggregate: index corrupted")

	// ErrDocumentExists is returned when a document id is already present
	// in an aggregate. Re-merging is rejected to avoid silent duplication.
	ErrDocumentExists = errors.New("aggregate: document already merged")
)

// DocumentIndex is a standalone index over one document's page embeddings,
// paired with its provenance sidecar. Immutable after creation.
type DocumentIndex struct {
	Index *flat.Flat
	Meta  model.DocumentMeta
}

// Validate checks that the sidecar matches the index: one record per vector,
// local positions dense in insertion order, no merged positions assigned.
func (d *DocumentIndex) Validate() error {
	if d.Index == nil {
		return fmt.Errorf("%w: missing index", ErrCorrupted)
	}
	if len(d.Meta.Images) != d.Index.Count() {
		return fmt.Errorf("%w: %d records for %d vectors", ErrCorrupted, len(d.Meta.Images), d.Index.Count())
	}
	for i, rec := range d.Meta.Images {
		if rec.LocalIndex != i {
			return fmt.Errorf("%w: record %d has local index %d", ErrCorrupted, i, rec.LocalIndex)
		}
		if rec.GlobalIndex != nil {
			return fmt.Errorf("%w: record %d carries a global index before merge", ErrCorrupted, i)
		}
	}
	return nil
}

// Resolved is an ImageRecord together with the document it belongs to.
type Resolved struct {
	DocumentID string
	Record     model.ImageRecord
}

// Aggregate is a merged index over many documents (session or master scope)
// plus the per-document records that map every index position back to its
// source page.
type Aggregate struct {
	Index     *flat.Flat
	Documents map[string]model.DocumentRecords
}

// New creates an empty aggregate for the given vector dimension.
func New(dimension int) (*Aggregate, error) {
	idx, err := flat.New(flat.WithDimension(dimension))
	if err != nil {
		return nil, err
	}
	return &Aggregate{
		Index:     idx,
		Documents: make(map[string]model.DocumentRecords),
	}, nil
}

// Append merges a document index into the aggregate and returns the global
// offset its vectors were assigned. Vectors are appended in local order;
// every record's global index becomes offset + local index. A document id
// that is already present is rejected with ErrDocumentExists and the
// aggregate is left unchanged.
func (a *Aggregate) Append(doc *DocumentIndex) (int, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	if _, exists := a.Documents[doc.Meta.DocumentID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDocumentExists, doc.Meta.DocumentID)
	}

	offset := a.Index.Count()
	if _, err := a.Index.AddBatch(doc.Index.Vectors()); err != nil {
		return 0, err
	}

	records := make([]model.ImageRecord, len(doc.Meta.Images))
	for i, rec := range doc.Meta.Images {
		records[i] = rec.WithGlobalIndex(offset + rec.LocalIndex)
	}

	a.Documents[doc.Meta.DocumentID] = model.DocumentRecords{
		OwnerID: doc.Meta.OwnerID,
		Records: records,
	}
	return offset, nil
}

// Meta returns the sidecar representation of the aggregate.
func (a *Aggregate) Meta() model.AggregateMeta {
	return model.AggregateMeta{Documents: a.Documents}
}

// Positions returns the set of index positions that have a provenance
// record. Search uses this to drop stale positions instead of failing.
func (a *Aggregate) Positions() *roaring.Bitmap {
	bm := roaring.New()
	for _, doc := range a.Documents {
		for _, rec := range doc.Records {
			if rec.GlobalIndex != nil && *rec.GlobalIndex >= 0 {
				bm.Add(uint32(*rec.GlobalIndex))
			}
		}
	}
	return bm
}

// ResolveAll returns a position-to-record lookup across all documents.
func (a *Aggregate) ResolveAll() map[int]Resolved {
	out := make(map[int]Resolved)
	for docID, doc := range a.Documents {
		for _, rec := range doc.Records {
			if rec.GlobalIndex == nil {
				continue
			}
			out[*rec.GlobalIndex] = Resolved{DocumentID: docID, Record: rec}
		}
	}
	return out
}

// Validate checks the aggregate invariant: for every vector at position i
// exactly one record across all documents has global index i, with i in
// [0, count), no gaps and no duplicates.
func (a *Aggregate) Validate() error {
	count := a.Index.Count()
	seen := roaring.New()

	for docID, doc := range a.Documents {
		for i, rec := range doc.Records {
			if rec.GlobalIndex == nil {
				return fmt.Errorf("%w: document %s record %d has no global index", ErrCorrupted, docID, i)
			}
			pos := *rec.GlobalIndex
			if pos < 0 || pos >= count {
				return fmt.Errorf("%w: document %s record %d position %d out of range [0,%d)", ErrCorrupted, docID, i, pos, count)
			}
			if seen.Contains(uint32(pos)) {
				return fmt.Errorf("%w: duplicate position %d", ErrCorrupted, pos)
			}
			seen.Add(uint32(pos))
		}
	}

	if got := int(seen.GetCardinality()); got != count {
		return fmt.Errorf("%w: %d positions covered for %d vectors", ErrCorrupted, got, count)
	}
	return nil
}
