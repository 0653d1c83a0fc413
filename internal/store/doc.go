// Package store provides the persistent partitioned record store behind the
// subtitle cache and session data.
//
// A Store holds JSON documents keyed by their "id" field in a fixed set of
// partitions (tokens, subtitles, settings, languages). Three backends share
// the same contract: SQLite (default, modernc driver), bbolt, and an in-memory
// map for tests and ephemeral runs. Open creates every partition up front so
// callers never see a missing partition at runtime.
//
// Failures to open are tagged services.ErrStorageUnavailable; failures of an
// individual operation are tagged services.ErrStorage. Callers decide whether
// to degrade.
package store
