// Package collection stores typed entities in Redis hashes and keeps
// secondary indexes over them consistent.
//
// A collection named "company" keeps every entity in the hash
// "company:master", keyed by the entity's master key. Each declared index
// adds one more structure:
//
//	company:name          unique index, hash of indexed value -> master key or payload
//	company:category[x]   lookup index, set of master keys or payloads for value x
//	company:category      lookup registry, set of the per-value set keys above
//
// Every mutation on an IndexedStore is queued into a single MULTI/EXEC
// transaction that touches the master hash and every index, so readers never
// observe a half-applied write. The previous value needed to reconcile an
// update is read before the transaction is opened; concurrent writers to the
// same master key can race in that window unless Config.WatchRetries enables
// WATCH-based optimistic locking.
//
// Uniqueness of a unique index is a caller contract: a second entity with the
// same indexed value replaces the first one's index entry.
package collection
