// Package pagevec manages the lifecycle of page-image vector indexes: it
// ingests per-document embedding batches, builds standalone per-document
// similarity indexes, merges them incrementally into per-session indexes,
// consolidates everything periodically into a master index and serves top-K
// similarity queries resolved back to document and page provenance.
//
// The root package offers a Pipeline facade that wires the lifecycle
// components over one object store. The subpackages are usable on their
// own: writer publishes document indexes, session and merger own the two
// merge paths, search executes queries, and index/flat is the underlying
// similarity index primitive.
package pagevec
