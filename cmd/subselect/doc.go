// Command subselect is the CLI and daemon entry point for the subtitle
// companion service.
//
// `subselect serve` runs the HTTP API the userscript talks to. The remaining
// commands operate on the same store directly, so the cache, session and
// settings can be inspected or modified without a running daemon.
package main
