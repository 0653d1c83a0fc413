// Package daemon coordinates the long-running subselect process.
//
// It wires the HTTP API and scheduled maintenance into a single lifecycle
// with flock-based locking so only one instance serves a data directory.
// Maintenance prunes the expired language list and re-checks the session
// token on the configured cron schedule.
//
// Keep orchestration logic here: request handling lives in internal/api and
// cache semantics in internal/subtitles.
package daemon
