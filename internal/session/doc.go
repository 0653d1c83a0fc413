// Package session persists the small per-user documents that sit beside the
// subtitle cache: the OpenSubtitles session token, overlay settings, the
// account quota snapshot, and the cached language catalogue.
//
// Each document lives under a fixed id in its store partition. Tokens and the
// language list carry a write timestamp and expire softly; settings never
// expire and fall back to defaults when absent.
package session
