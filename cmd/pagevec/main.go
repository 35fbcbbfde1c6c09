// Package main is the pagevec CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/pagevec/aggregate"
	"github.com/hupe1980/pagevec/answer"
	"github.com/hupe1980/pagevec/blobstore"
	minioblob "github.com/hupe1980/pagevec/blobstore/minio"
	s3blob "github.com/hupe1980/pagevec/blobstore/s3"
	"github.com/hupe1980/pagevec/config"
	"github.com/hupe1980/pagevec/embedding"
	"github.com/hupe1980/pagevec/index/flat"
	"github.com/hupe1980/pagevec/lease"
	"github.com/hupe1980/pagevec/merger"
	"github.com/hupe1980/pagevec/search"
	"github.com/hupe1980/pagevec/server"
	"github.com/hupe1980/pagevec/session"
	"github.com/hupe1980/pagevec/writer"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "pagevec:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pagevec <serve|merge|version> [flags]")
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "merge":
		return runMerge(args[1:])
	case "version":
		fmt.Println(version)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want serve, merge or version)", args[0])
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}

	searcher := search.New(deps.store, deps.images, deps.embedder, deps.answerer, cfg.Store.Prefix, search.WithLogger(logger))
	w := writer.New(deps.store, cfg.Store.Prefix, cfg.Dimension, writer.WithLogger(logger))
	sessions := session.New(deps.store, deps.locker, cfg.Store.Prefix, cfg.Dimension, session.WithLogger(logger))

	srv := server.New(searcher, w, sessions, deps.store, server.WithLogger(logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}

	svc := merger.New(deps.blobs, deps.store, deps.locker, cfg.Store.Prefix, cfg.Dimension, merger.WithLogger(logger))
	summary, err := svc.RebuildMaster(ctx)
	if err != nil {
		return err
	}
	if summary.NothingToMerge {
		logger.Info("nothing to merge")
		return nil
	}
	logger.Info("merge finished",
		"total_vectors", summary.TotalVectors,
		"total_documents", summary.TotalDocuments,
		"merged", summary.MergedShards,
		"skipped", summary.SkippedShards,
	)
	return nil
}

type deps struct {
	blobs    blobstore.Store
	images   blobstore.Store
	store    *aggregate.Store
	locker   lease.Locker
	embedder embedding.Client
	answerer answer.Client
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	blobs, images, err := buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	compression, err := parseCompression(cfg.Store.Compression)
	if err != nil {
		return nil, err
	}
	store := aggregate.NewStore(blobs, aggregate.WithCompression(compression))

	locker, err := buildLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var embedder embedding.Client
	if cfg.Embedding.BaseURL != "" {
		var embedOpts []func(o *embedding.HTTPOptions)
		if cfg.Embedding.Model != "" {
			embedOpts = append(embedOpts, embedding.WithModel(cfg.Embedding.Model))
		}
		embedOpts = append(embedOpts, embedding.WithDimension(cfg.Dimension))
		embedder = embedding.NewHTTPClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, embedOpts...)
	} else {
		logger.Warn("no embedding backend configured, using deterministic mock")
		embedder = &embedding.Mock{Dim: cfg.Dimension}
	}

	var answerer answer.Client
	if cfg.Answer.BaseURL != "" {
		var answerOpts []func(o *answer.HTTPOptions)
		if cfg.Answer.Model != "" {
			answerOpts = append(answerOpts, answer.WithModel(cfg.Answer.Model))
		}
		answerer = answer.NewHTTPClient(cfg.Answer.BaseURL, cfg.Answer.APIKey, answerOpts...)
	} else {
		logger.Warn("no answer backend configured, falling back to canned answers")
		answerer = &answer.Mock{}
	}

	return &deps{
		blobs:    blobs,
		images:   images,
		store:    store,
		locker:   locker,
		embedder: embedder,
		answerer: answerer,
	}, nil
}

func buildStores(ctx context.Context, cfg *config.Config) (indexes, images blobstore.Store, err error) {
	switch cfg.Store.Backend {
	case "memory":
		mem := blobstore.NewMemoryStore()
		return mem, mem, nil

	case "s3":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Store.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3blob.NewStore(client, cfg.Store.Bucket, ""),
			s3blob.NewStore(client, cfg.Store.ImageBucket, ""), nil

	case "minio":
		client, err := miniogo.New(cfg.Store.Endpoint, &miniogo.Options{
			Creds: credentials.NewStaticV4(cfg.Store.AccessKey, cfg.Store.SecretKey, ""),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("minio client: %w", err)
		}
		return minioblob.NewStore(client, cfg.Store.Bucket, ""),
			minioblob.NewStore(client, cfg.Store.ImageBucket, ""), nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildLocker(ctx context.Context, cfg *config.Config) (lease.Locker, error) {
	switch cfg.Lease.Backend {
	case "memory":
		return lease.NewMemoryLocker(), nil
	case "dynamodb":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return lease.NewDDBLocker(dynamodb.NewFromConfig(awsCfg), cfg.Lease.Table), nil
	default:
		return nil, fmt.Errorf("unknown lease backend %q", cfg.Lease.Backend)
	}
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Store.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Store.Region))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func parseCompression(name string) (flat.Compression, error) {
	switch name {
	case "none":
		return flat.CompressionNone, nil
	case "gzip":
		return flat.CompressionGzip, nil
	case "lz4":
		return flat.CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
