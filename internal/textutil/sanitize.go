package textutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	unsafeFileChars = regexp.MustCompile(`[/\\?%*:|"<>]`)
	repeatedDots    = regexp.MustCompile(`\.\.+`)
)

// SanitizeFileName makes name safe to use as a single path segment.
// Unsafe characters become dashes, runs of dots collapse to one, control
// characters are dropped, and the result is NFC-normalized and trimmed.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = unsafeFileChars.ReplaceAllString(name, "-")
	name = repeatedDots.ReplaceAllString(name, ".")
	return strings.Trim(strings.TrimSpace(name), ".")
}

// SubtitleFileName returns a sanitized file name ending in .srt, using
// fallback when name sanitizes to nothing.
func SubtitleFileName(name, fallback string) string {
	clean := SanitizeFileName(name)
	if clean == "" {
		clean = SanitizeFileName(fallback)
	}
	if clean == "" {
		clean = "subtitle"
	}
	if !strings.EqualFold(filepath.Ext(clean), ".srt") {
		clean += ".srt"
	}
	return clean
}

// TitleFromFileName strips the extension from a subtitle file name.
func TitleFromFileName(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
}
