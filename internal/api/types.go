package api

import (
	"time"

	"subselect/internal/cachestatus"
	"subselect/internal/subtitlecache"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StatusResponse summarizes the running service.
type StatusResponse struct {
	Running       bool   `json:"running"`
	StartedAt     string `json:"startedAt,omitempty"`
	StoreBackend  string `json:"storeBackend,omitempty"`
	Degraded      bool   `json:"degraded"`
	Cached        int    `json:"cached"`
	Capacity      int    `json:"capacity"`
	SessionActive bool   `json:"sessionActive"`
	Subscribers   int    `json:"subscribers"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

// CacheEntry describes a cached subtitle without its content.
type CacheEntry struct {
	ID        string `json:"id"`
	FileName  string `json:"fileName"`
	Title     string `json:"title"`
	Language  string `json:"language,omitempty"`
	Timestamp int64  `json:"timestamp"`
	CachedAt  string `json:"cachedAt"`
	Size      int    `json:"size"`
}

// CacheListResponse wraps the cache listing.
type CacheListResponse struct {
	Items    []CacheEntry `json:"items"`
	Capacity int          `json:"capacity"`
	Degraded bool         `json:"degraded"`
}

// CacheStatusResponse answers whether an id is cached.
type CacheStatusResponse struct {
	ID     string `json:"id"`
	Cached bool   `json:"cached"`
}

// CacheClearResponse reports how many entries were removed.
type CacheClearResponse struct {
	Removed int `json:"removed"`
}

// SubtitleResponse is a loaded subtitle and where it came from.
type SubtitleResponse struct {
	subtitlecache.CacheRecord
	Source    string `json:"source"`
	Remaining int    `json:"remaining,omitempty"`
}

// CacheEvent is the payload of a server-sent cache-status event.
type CacheEvent struct {
	Sequence  uint64 `json:"seq"`
	ID        string `json:"id"`
	Cached    bool   `json:"cached"`
	Timestamp string `json:"ts"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// FromCacheRecord converts a cache record to its listing form.
func FromCacheRecord(rec subtitlecache.CacheRecord) CacheEntry {
	return CacheEntry{
		ID:        rec.ID,
		FileName:  rec.FileName,
		Title:     rec.Title,
		Language:  rec.Language,
		Timestamp: rec.Timestamp,
		CachedAt:  time.UnixMilli(rec.Timestamp).UTC().Format(dateTimeFormat),
		Size:      len(rec.Content),
	}
}

// FromEvent converts a hub event to its wire form.
func FromEvent(evt cachestatus.Event) CacheEvent {
	return CacheEvent{
		Sequence:  evt.Sequence,
		ID:        evt.ID,
		Cached:    evt.Cached,
		Timestamp: evt.Timestamp.UTC().Format(dateTimeFormat),
	}
}
