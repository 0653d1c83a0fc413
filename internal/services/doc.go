// Package services defines shared utilities consumed by the cache, gateway,
// and API layers.
//
// Key responsibilities:
//   - Context helpers that stamp subtitle identifiers and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (invalid input, storage, upstream) so callers can pick a safe default or
//     an HTTP status without string matching.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability) stays uniform across the service.
package services
