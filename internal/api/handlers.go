package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"subselect/internal/logging"
	"subselect/internal/services"
	"subselect/internal/subtitlecache"
	"subselect/internal/subtitles"
)

const maxRecordBytes = 8 << 20

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cache := s.deps.Subtitles.Cache()
	entries := cache.List(r.Context())
	resp := StatusResponse{
		Running:       true,
		StartedAt:     s.startedAt.Format(dateTimeFormat),
		StoreBackend:  s.deps.StoreBackend,
		Degraded:      cache.Degraded(),
		Cached:        len(entries),
		Capacity:      cache.Capacity(),
		Subscribers:   s.deps.Hub.Subscribers(),
		DroppedEvents: s.deps.Hub.Dropped(),
	}
	if s.deps.Tokens != nil {
		if rec, err := s.deps.Tokens.Current(r.Context()); err == nil && rec != nil {
			resp.SessionActive = true
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheList(w http.ResponseWriter, r *http.Request) {
	cache := s.deps.Subtitles.Cache()
	records := cache.List(r.Context())
	items := make([]CacheEntry, 0, len(records))
	for _, rec := range records {
		items = append(items, FromCacheRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, CacheListResponse{
		Items:    items,
		Capacity: cache.Capacity(),
		Degraded: cache.Degraded(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	removed := s.deps.Subtitles.Cache().Clear(r.Context())
	logging.WithContext(r.Context(), s.logger).Info("cache cleared", logging.Int("removed", removed))
	s.writeJSON(w, http.StatusOK, CacheClearResponse{Removed: removed})
}

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.deps.Subtitles.Cache().Lookup(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "subtitle not cached", Kind: "not_found"})
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCachePut(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var rec subtitlecache.CacheRecord
	if err := decodeBody(r, &rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		s.writeError(w, r, services.InvalidArgument("api", "store", "record id does not match path"))
		return
	}
	if err := s.deps.Subtitles.Put(r.Context(), rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cached, err := s.deps.Subtitles.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CacheStatusResponse{ID: id, Cached: cached})
}

func (s *Server) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	meta := subtitles.Meta{
		Title:    query.Get("title"),
		Language: query.Get("language"),
	}
	result, err := s.deps.Subtitles.LoadWithMeta(r.Context(), r.PathValue("id"), meta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SubtitleResponse{
		CacheRecord: result.Record,
		Source:      string(result.Source),
		Remaining:   result.Remaining,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRecordBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return services.InvalidArgument("api", "decode", "request body is empty")
		}
		return services.Wrap(services.ErrInvalidArgument, "api", "decode", "malformed JSON body", err)
	}
	return nil
}
