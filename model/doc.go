// Package model defines the shared data types of the index lifecycle:
// embedding batches, per-vector provenance records and the metadata
// sidecar shapes persisted next to every index blob.
package model
