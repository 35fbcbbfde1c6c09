// Package s3 implements the blobstore interface on Amazon S3.
//
// Missing keys (NoSuchKey, NotFound) are mapped to blobstore.ErrNotFound.
// List uses the ListObjectsV2 paginator and reports last-modified
// timestamps, which the batch merger relies on for its deterministic
// oldest-first merge order.
package s3
