// Package blobstore provides the object-store abstraction used for all
// persisted artifacts: serialized index blobs, their JSON metadata sidecars
// and the source page images.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory store for tests and single-process use
//   - s3.Store: Amazon S3
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends. Missing
// keys must map to ErrNotFound; List must report last-modified timestamps,
// which the batch merger uses to define its deterministic merge order.
package blobstore
