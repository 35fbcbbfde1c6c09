// Package merger rebuilds the namespace-wide master index from all
// published document indexes. The rebuild is deterministic: shards are
// merged oldest first, so re-running over an unchanged input set reproduces
// the same global position assignment.
package merger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/blobstore"
	"github.com/hupe1980/pagevec/lease"
)

// Options contains configuration options for the merge service.
type Options struct {
	// Logger receives structured progress logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Parallelism bounds concurrent shard downloads. Defaults to 4.
	Parallelism int
}

// Summary reports the outcome of one master rebuild.
type Summary struct {
	// TotalVectors is the master's vector count after the rebuild.
	TotalVectors int

	// TotalDocuments is the number of documents in the master.
	TotalDocuments int

	// MergedShards counts source indexes that contributed vectors.
	MergedShards int

	// SkippedShards counts source indexes that were unreadable, not yet
	// committed or duplicates of an already-merged document.
	SkippedShards int

	// NothingToMerge is set when no shard contributed any vector. The
	// previous master, if any, is left untouched in that case.
	NothingToMerge bool
}

// Service rebuilds the master index on a fixed schedule.
type Service struct {
	blobs     blobstore.Store
	store     *aggregate.Store
	locker    lease.Locker
	prefix    string
	dimension int
	opts      Options
}

// New creates a merge service scanning and publishing under the given key
// prefix.
func New(blobs blobstore.Store, store *aggregate.Store, locker lease.Locker, prefix string, dimension int, optFns ...func(o *Options)) *Service {
	opts := Options{
		Logger:      slog.Default(),
		Parallelism: 4,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Service{
		blobs:     blobs,
		store:     store,
		locker:    locker,
		prefix:    prefix,
		dimension: dimension,
		opts:      opts,
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

type shardRef struct {
	keys aggregate.KeyPair
	info blobstore.ObjectInfo
}

// RebuildMaster scans all document indexes in the namespace, merges them
// oldest first into a fresh master aggregate and republishes it as one
// unit. A single unreadable shard is skipped and logged, never fatal. When
// zero shards contribute any vector the previous master is left untouched.
func (s *Service) RebuildMaster(ctx context.Context) (*Summary, error) {
	held, err := s.locker.Acquire(ctx, "master")
	if err != nil {
		return nil, fmt.Errorf("acquire master lease: %w", err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.opts.Logger.WarnContext(ctx, "master lease release failed", "error", err)
		}
	}()

	shards, err := s.enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate shards: %w", err)
	}
	if len(shards) == 0 {
		s.opts.Logger.InfoContext(ctx, "no document indexes to merge")
		return &Summary{NothingToMerge: true}, nil
	}

	docs, errs := s.fetch(ctx, shards)

	agg, err := aggregate.New(s.dimension)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for i, shard := range shards {
		if errs[i] != nil {
			s.opts.Logger.WarnContext(ctx, "skipping shard",
				"index_key", shard.keys.IndexKey,
				"error", errs[i],
			)
			summary.SkippedShards++
			continue
		}

		doc := docs[i]
		if _, err := agg.Append(doc); err != nil {
			s.opts.Logger.WarnContext(ctx, "skipping shard",
				"index_key", shard.keys.IndexKey,
				"document_id", doc.Meta.DocumentID,
				"error", err,
			)
			summary.SkippedShards++
			continue
		}

		summary.MergedShards++
		s.opts.Logger.DebugContext(ctx, "shard merged",
			"index_key", shard.keys.IndexKey,
			"document_id", doc.Meta.DocumentID,
			"vectors", doc.Index.Count(),
		)
	}

	if agg.Index.Count() == 0 {
		// Never replace a working master with an empty rebuild.
		s.opts.Logger.InfoContext(ctx, "no vectors merged, keeping previous master",
			"skipped", summary.SkippedShards,
		)
		summary.NothingToMerge = true
		return summary, nil
	}

	if err := s.store.PublishAggregate(ctx, aggregate.MasterKeys(s.prefix), agg); err != nil {
		return nil, fmt.Errorf("publish master: %w", err)
	}

	summary.TotalVectors = agg.Index.Count()
	summary.TotalDocuments = len(agg.Documents)

	s.opts.Logger.InfoContext(ctx, "master index rebuilt",
		"total_vectors", summary.TotalVectors,
		"total_documents", summary.TotalDocuments,
		"merged", summary.MergedShards,
		"skipped", summary.SkippedShards,
	)
	return summary, nil
}

// enumerate lists all document index keys under the namespace, excluding
// the master and session outputs, in deterministic merge order: oldest
// first, ties broken by key.
func (s *Service) enumerate(ctx context.Context) ([]shardRef, error) {
	infos, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	var shards []shardRef
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, "/"+aggregate.IndexFileName) {
			continue
		}
		if aggregate.IsReserved(info.Key) {
			continue
		}
		shards = append(shards, shardRef{
			keys: aggregate.KeyPair{
				IndexKey: info.Key,
				MetaKey:  aggregate.MetaKeyFor(info.Key),
			},
			info: info,
		})
	}

	sort.Slice(shards, func(i, j int) bool {
		a, b := shards[i].info, shards[j].info
		if a.LastModified.Equal(b.LastModified) {
			return a.Key < b.Key
		}
		return a.LastModified.Before(b.LastModified)
	})
	return shards, nil
}

// fetch downloads all shards with bounded parallelism. Per-shard failures
// are recorded, not propagated; the merge decides what to skip.
func (s *Service) fetch(ctx context.Context, shards []shardRef) ([]*aggregate.DocumentIndex, []error) {
	docs := make([]*aggregate.DocumentIndex, len(shards))
	errs := make([]error, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			docs[i], errs[i] = s.store.LoadDocument(gctx, shard.keys)
			return nil
		})
	}

	// Workers never return errors; they record them per shard.
	_ = g.Wait()
	return docs, errs
}
