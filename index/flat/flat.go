// Package flat provides a brute-force flat index for vector storage and
// exact nearest-neighbor search.
package flat

import (
	"container/heap"
	"sync"

	"github.com/hupe1980/pagevec/distance"
	"github.com/hupe1980/pagevec/index"
)

// Compile-time check to ensure Flat satisfies the index interface.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all adds and searches.
	Dimension int

	// NormalizeVectors enables L2 normalization for stored vectors and
	// queries. Commonly used for cosine search over L2 distance.
	NormalizeVectors bool
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension: 0,
}

// Flat is a brute-force index over squared L2 distance. Vectors are stored
// in one contiguous buffer in insertion order; position i occupies
// [i*dim, (i+1)*dim).
type Flat struct {
	mu           sync.RWMutex
	vecs         []float32
	count        int
	distanceFunc distance.Func
	opts         Options
}

// New creates a new instance of the flat index.
// Dimension is required and must be set at creation time.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: opts.Dimension}
	}

	return &Flat{
		distanceFunc: distance.SquaredL2,
		opts:         opts,
	}, nil
}

// WithDimension sets the fixed vector dimensionality.
func WithDimension(dim int) func(o *Options) {
	return func(o *Options) {
		o.Dimension = dim
	}
}

// Add appends a vector and returns its position.
func (f *Flat) Add(v []float32) (int, error) {
	if len(v) != f.opts.Dimension {
		return 0, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(v)}
	}

	if f.opts.NormalizeVectors {
		if normalized, ok := distance.NormalizeL2Copy(v); ok {
			v = normalized
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	pos := f.count
	f.vecs = append(f.vecs, v...)
	f.count++
	return pos, nil
}

// AddBatch appends vectors in order and returns the position of the first.
// On a dimension mismatch nothing is appended.
func (f *Flat) AddBatch(vs [][]float32) (int, error) {
	for _, v := range vs {
		if len(v) != f.opts.Dimension {
			return 0, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(v)}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	first := f.count
	for _, v := range vs {
		if f.opts.NormalizeVectors {
			if normalized, ok := distance.NormalizeL2Copy(v); ok {
				v = normalized
			}
		}
		f.vecs = append(f.vecs, v...)
		f.count++
	}
	return first, nil
}

// Search returns the k nearest vectors to q, nearest first. When the index
// holds fewer than k vectors all of them are returned. Distances are squared
// L2, so they are non-negative and sorted ascending.
func (f *Flat) Search(q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(q) != f.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(q)}
	}

	if f.opts.NormalizeVectors {
		if normalized, ok := distance.NormalizeL2Copy(q); ok {
			q = normalized
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	dim := f.opts.Dimension
	candidates := &resultHeap{}
	heap.Init(candidates)

	for pos := 0; pos < f.count; pos++ {
		if filter != nil && !filter(pos) {
			continue
		}

		d := f.distanceFunc(q, f.vecs[pos*dim:(pos+1)*dim])
		if candidates.Len() < k {
			heap.Push(candidates, index.SearchResult{Position: pos, Distance: d})
			continue
		}
		if worst := (*candidates)[0]; d < worst.Distance {
			(*candidates)[0] = index.SearchResult{Position: pos, Distance: d}
			heap.Fix(candidates, 0)
		}
	}

	// Drain the max-heap into ascending distance order.
	results := make([]index.SearchResult, candidates.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(candidates).(index.SearchResult)
	}
	return results, nil
}

// Vectors exports all vectors in position order as one freshly allocated
// slice per vector. Used by merge operations to append a whole index at once.
func (f *Flat) Vectors() [][]float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dim := f.opts.Dimension
	out := make([][]float32, f.count)
	for i := 0; i < f.count; i++ {
		v := make([]float32, dim)
		copy(v, f.vecs[i*dim:(i+1)*dim])
		out[i] = v
	}
	return out
}

// Count returns the number of vectors in the index.
func (f *Flat) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Dimension returns the fixed vector dimensionality of the index.
func (f *Flat) Dimension() int {
	return f.opts.Dimension
}

// resultHeap is a max-heap over distance so the worst candidate sits at the
// root and can be evicted cheaply. Ties prefer the lower position.
type resultHeap []index.SearchResult

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	if h[i].Distance == h[j].Distance {
		return h[i].Position > h[j].Position
	}
	return h[i].Distance > h[j].Distance
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(index.SearchResult))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
