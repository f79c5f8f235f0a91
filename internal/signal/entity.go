package signal

import (
	"net/url"
	"path/filepath"
	"strings"
)

// EntityFromURL returns the lower-cased hostname of an http(s) URL. Other
// schemes (chrome://, file://, about:) have no identity.
func EntityFromURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// EntityFromExecutable returns the lower-cased base name of an executable path
// or package identifier, without a trailing .exe.
func EntityFromExecutable(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	// Windows paths are reported with backslashes regardless of the host OS.
	raw = strings.ReplaceAll(raw, `\`, "/")
	base := strings.ToLower(filepath.Base(raw))
	base = strings.TrimSuffix(base, ".exe")
	switch base {
	case "", ".", "/", "unknown":
		return "", false
	}
	return base, true
}
