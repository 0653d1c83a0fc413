// Package subtitlecache keeps a bounded, persistent cache of downloaded
// subtitle files in the store's subtitles partition.
//
// The cache holds at most CacheCapacity records. Inserting into a full cache
// first deletes the records with the oldest write timestamp. Reads never
// change ordering, so eviction follows write time rather than access recency.
//
// Storage trouble never escapes the Manager: a missing store turns every
// lookup into a miss and every insert into a no-op, and individual store
// failures are logged and treated the same way. Only caller mistakes (empty
// ids, unset timestamps) are returned as services.ErrInvalidArgument.
package subtitlecache
