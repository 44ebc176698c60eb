package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"botcheck-go-srv/internal/models"
)

const trackPageLimit = 100

// WebAPI is the official Web API implementation, authenticated with
// client credentials.
type WebAPI struct {
	client *spotify.Client
}

func NewWebAPI(ctx context.Context, clientID, clientSecret string) *WebAPI {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := config.Client(ctx)
	return &WebAPI{client: spotify.New(httpClient)}
}

// Playlist fetches one snapshot.
func (w *WebAPI) Playlist(ctx context.Context, id string) (*models.PlaylistSnapshot, error) {
	res, err := w.client.GetPlaylist(ctx, spotify.ID(id))
	if err != nil {
		return nil, wrapSpotifyErr(err)
	}
	return snapshotFromPlaylist(res), nil
}

// snapshotFromPlaylist maps the library's playlist type onto ours.
// Optional upstream fields get their defaults here, at construction, not
// in consumers: an empty description maps to nil, a missing image to "".
// The library counts are spotify.Numeric and need explicit conversion.
func snapshotFromPlaylist(res *spotify.FullPlaylist) *models.PlaylistSnapshot {
	snap := &models.PlaylistSnapshot{
		ID:          string(res.ID),
		Name:        res.Name,
		OwnerID:     res.Owner.ID,
		OwnerName:   res.Owner.DisplayName,
		Followers:   int(res.Followers.Count),
		TrackCount:  int(res.Tracks.Total),
		Public:      res.IsPublic,
		ExternalURL: res.ExternalURLs["spotify"],
		SnapshotID:  res.SnapshotID,
	}
	if desc := strings.TrimSpace(res.Description); desc != "" {
		snap.Description = &desc
	}
	if len(res.Images) > 0 {
		snap.ImageURL = res.Images[0].URL
	}
	return snap
}

// AllTracks walks the (limit, offset) pages until a short page or the
// reported total is reached.
func (w *WebAPI) AllTracks(ctx context.Context, id string) ([]models.PlaylistTrack, error) {
	var tracks []models.PlaylistTrack
	offset := 0

	for {
		page, err := w.client.GetPlaylistItems(ctx, spotify.ID(id),
			spotify.Limit(trackPageLimit), spotify.Offset(offset))
		if err != nil {
			return tracks, fmt.Errorf("playlist items at offset %d: %w", offset, wrapSpotifyErr(err))
		}

		for _, item := range page.Items {
			ft := item.Track.Track
			if ft == nil || item.IsLocal {
				continue
			}
			tracks = append(tracks, models.PlaylistTrack{
				ID:      string(ft.ID),
				Title:   ft.Name,
				Artist:  joinArtists(ft.Artists),
				Album:   ft.Album.Name,
				AddedAt: item.AddedAt,
			})
		}

		offset += len(page.Items)
		if len(page.Items) < trackPageLimit || offset >= int(page.Total) {
			break
		}
	}

	return tracks, nil
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func wrapSpotifyErr(err error) error {
	var se spotify.Error
	if errors.As(err, &se) {
		return &StatusError{Code: se.Status}
	}
	return err
}
