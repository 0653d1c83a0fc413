// Package api serves the HTTP interface the userscript talks to.
//
// # Routes
//
//	GET    /api/status              service and cache summary
//	GET    /api/cache               cached entries, oldest first (no content)
//	DELETE /api/cache               remove every cached entry
//	GET    /api/cache/{id}          cached record or 404
//	PUT    /api/cache/{id}          store a record supplied by the client
//	GET    /api/cache/{id}/status   {"id","cached"}
//	GET    /api/subtitles/{id}      read-through load (cache, then OpenSubtitles)
//	GET    /api/events              server-sent cache-status events
//	GET    /api/settings            overlay settings
//	PUT    /api/settings            partial update, persisted after a quiet period
//
// DTOs use camelCase JSON tags for the userscript. Errors are reported as
// {"error","kind"} with the status derived from the services error markers.
// When an API token is configured every route requires
// "Authorization: Bearer <token>".
package api
