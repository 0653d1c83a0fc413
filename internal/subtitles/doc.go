// Package subtitles is the read-through layer in front of the subtitle
// cache. A lookup that misses the cache fetches the file from OpenSubtitles
// using the stored session token, inserts it, and returns it; concurrent
// requests for the same id share a single download.
//
// The CLI and the HTTP API both go through Service so cache semantics stay
// identical regardless of the entry point.
package subtitles
