package provider

import (
	"context"
	"errors"
	"fmt"

	"botcheck-go-srv/internal/models"
)

// ErrInvalidPlaylistRef marks input that is neither a playlist id, URL,
// nor URI. Surfaced before any network call, with no side effects.
var ErrInvalidPlaylistRef = errors.New("not a recognizable playlist reference")

// StatusError carries the provider's HTTP status so callers can tell a
// deleted playlist (404) from a rate limit (429).
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("playlist provider error: status %d", e.Code)
}

// Provider retrieves playlist data. Two implementations exist (the
// official Web API and the anonymous token proxy), chosen once at
// construction; callers never know which one they hold.
type Provider interface {
	Playlist(ctx context.Context, id string) (*models.PlaylistSnapshot, error)
	AllTracks(ctx context.Context, id string) ([]models.PlaylistTrack, error)
}
