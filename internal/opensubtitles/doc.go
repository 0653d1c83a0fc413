// Package opensubtitles talks to the OpenSubtitles REST API.
//
// Client covers search, the two-step download (negotiate a link, then fetch
// the file), user info, the language catalogue, and login. HTTP failures are
// tagged with the services markers: 401/403 become ErrAuthRequired, 404
// ErrNotFound, transport failures ErrNetwork, and any other error status
// ErrUpstream.
//
// Gateway wraps Client.Download for the read-through cache path. It spaces
// calls at least MinInterval apart and retries rate limits and transient
// failures with exponential backoff.
package opensubtitles
