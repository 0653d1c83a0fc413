// Package textutil provides file name sanitization for saved subtitle files
// and small text helpers shared by the CLI and API.
package textutil
