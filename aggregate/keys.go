package aggregate

import (
	"path"
	"strings"
)

// File names of an index/sidecar pair. Document pairs use index.index and
// meta.json; aggregate outputs use latest.index and latest-meta.json under
// a reserved path segment.
const (
	IndexFileName = "index.index"
	MetaFileName  = "meta.json"

	AggregateIndexFileName = "latest.index"
	AggregateMetaFileName  = "latest-meta.json"

	masterSegment   = "master"
	sessionsSegment = "sessions"
)

// KeyPair addresses an index blob and its metadata sidecar.
type KeyPair struct {
	IndexKey string
	MetaKey  string
}

// DocumentKeys returns the key pair of a standalone document index.
// Layout: {prefix}/{ownerID}/{indexID}/index.index + meta.json.
func DocumentKeys(prefix, ownerID, indexID string) KeyPair {
	dir := path.Join(prefix, ownerID, indexID)
	return KeyPair{
		IndexKey: path.Join(dir, IndexFileName),
		MetaKey:  path.Join(dir, MetaFileName),
	}
}

// MasterKeys returns the key pair of the namespace-wide master index.
// Layout: {prefix}/master/latest.index + latest-meta.json.
func MasterKeys(prefix string) KeyPair {
	dir := path.Join(prefix, masterSegment)
	return KeyPair{
		IndexKey: path.Join(dir, AggregateIndexFileName),
		MetaKey:  path.Join(dir, AggregateMetaFileName),
	}
}

// SessionKeys returns the key pair of a session index.
// Layout: {prefix}/sessions/{sessionID}/latest.index + latest-meta.json.
func SessionKeys(prefix, sessionID string) KeyPair {
	dir := path.Join(prefix, sessionsSegment, sessionID)
	return KeyPair{
		IndexKey: path.Join(dir, AggregateIndexFileName),
		MetaKey:  path.Join(dir, AggregateMetaFileName),
	}
}

// MetaKeyFor derives the sidecar key of a document index key.
func MetaKeyFor(indexKey string) string {
	return strings.TrimSuffix(indexKey, IndexFileName) + MetaFileName
}

// IsReserved reports whether the key lives under an aggregate output path
// (master or session). The batch merger uses this to keep its own outputs
// out of the merge inputs.
func IsReserved(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if segment == masterSegment || segment == sessionsSegment {
			return true
		}
	}
	return false
}
