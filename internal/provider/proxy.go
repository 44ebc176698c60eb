package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"botcheck-go-srv/internal/models"
)

const proxyAPIBase = "https://api.spotify.com/v1"

// Proxy fetches playlist data with the anonymous web-player token instead
// of registered app credentials. Same Provider contract as WebAPI.
type Proxy struct {
	session *webSession
	client  *http.Client
}

func NewProxy() *Proxy {
	return &Proxy{
		session: newWebSession(),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Ready reports whether an anonymous session token could be obtained. The
// token endpoint flakes on cold starts, so callers poll this before
// accepting traffic.
func (p *Proxy) Ready(ctx context.Context) bool {
	_, err := p.session.Token(ctx)
	return err == nil
}

func (p *Proxy) get(ctx context.Context, path string, out any) error {
	token, err := p.session.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", proxyAPIBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", sessionUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// token aged out server-side; next call starts a fresh session
		p.session.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type proxyPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	SnapshotID  string `json:"snapshot_id"`
	Owner       struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Followers struct {
		Total int `json:"total"`
	} `json:"followers"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func (p *Proxy) Playlist(ctx context.Context, id string) (*models.PlaylistSnapshot, error) {
	var raw proxyPlaylist
	if err := p.get(ctx, "/playlists/"+url.PathEscape(id), &raw); err != nil {
		return nil, err
	}

	snap := &models.PlaylistSnapshot{
		ID:          raw.ID,
		Name:        raw.Name,
		OwnerID:     raw.Owner.ID,
		OwnerName:   raw.Owner.DisplayName,
		Followers:   raw.Followers.Total,
		TrackCount:  raw.Tracks.Total,
		Public:      raw.Public,
		ExternalURL: raw.ExternalURLs.Spotify,
		SnapshotID:  raw.SnapshotID,
	}
	if desc := strings.TrimSpace(raw.Description); desc != "" {
		snap.Description = &desc
	}
	if len(raw.Images) > 0 {
		snap.ImageURL = raw.Images[0].URL
	}
	return snap, nil
}

type proxyTrackPage struct {
	Items []struct {
		AddedAt string `json:"added_at"`
		IsLocal bool   `json:"is_local"`
		Track   *struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Name string `json:"name"`
			} `json:"album"`
		} `json:"track"`
	} `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// AllTracks pages through /playlists/{id}/tracks with (limit, offset),
// stopping on a short page or once the reported total is covered.
func (p *Proxy) AllTracks(ctx context.Context, id string) ([]models.PlaylistTrack, error) {
	var tracks []models.PlaylistTrack
	offset := 0

	for {
		path := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d",
			url.PathEscape(id), trackPageLimit, offset)

		var page proxyTrackPage
		if err := p.get(ctx, path, &page); err != nil {
			return tracks, fmt.Errorf("playlist tracks at offset %d: %w", offset, err)
		}

		for _, item := range page.Items {
			if item.Track == nil || item.IsLocal {
				continue
			}
			names := make([]string, len(item.Track.Artists))
			for i, a := range item.Track.Artists {
				names[i] = a.Name
			}
			tracks = append(tracks, models.PlaylistTrack{
				ID:      item.Track.ID,
				Title:   item.Track.Name,
				Artist:  strings.Join(names, ", "),
				Album:   item.Track.Album.Name,
				AddedAt: item.AddedAt,
			})
		}

		offset += len(page.Items)
		if len(page.Items) < trackPageLimit || offset >= page.Total {
			break
		}
	}

	return tracks, nil
}
