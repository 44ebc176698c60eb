package provider

import (
	"net/url"
	"regexp"
	"strings"
)

var playlistIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// ParsePlaylistRef extracts the playlist id from a bare id, an
// open.spotify.com playlist URL, or a spotify:playlist: URI. Anything
// else is ErrInvalidPlaylistRef.
func ParsePlaylistRef(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidPlaylistRef
	}

	if playlistIDPattern.MatchString(trimmed) {
		return trimmed, nil
	}

	if strings.HasPrefix(trimmed, "spotify:") {
		parts := strings.Split(trimmed, ":")
		if len(parts) == 3 && parts[1] == "playlist" && playlistIDPattern.MatchString(parts[2]) {
			return parts[2], nil
		}
		return "", ErrInvalidPlaylistRef
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidPlaylistRef
	}
	if parsed.Host != "open.spotify.com" && parsed.Host != "play.spotify.com" {
		return "", ErrInvalidPlaylistRef
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	// embed and intl-xx prefixes appear on shared links
	if len(parts) > 0 && parts[0] == "embed" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}

	if len(parts) == 2 && parts[0] == "playlist" && playlistIDPattern.MatchString(parts[1]) {
		return parts[1], nil
	}

	return "", ErrInvalidPlaylistRef
}
