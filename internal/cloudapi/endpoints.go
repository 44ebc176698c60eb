package cloudapi

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"botcheck-go-srv/internal/models"
)

// VerifyResult is the verification endpoint's answer.
type VerifyResult struct {
	Active bool   `json:"active"`
	Tier   string `json:"tier"`
	// ExpiresAt is epoch milliseconds; zero when inactive.
	ExpiresAt int64 `json:"expiresAt"`
}

// Expiry converts ExpiresAt into a time, nil when unset.
func (v VerifyResult) Expiry() *time.Time {
	if v.ExpiresAt == 0 {
		return nil
	}
	t := time.UnixMilli(v.ExpiresAt)
	return &t
}

// VerifySubscription asks the service whether (email, subID) still maps to
// an active subscription.
func (c *Client) VerifySubscription(ctx context.Context, email, subID string) (VerifyResult, error) {
	req := map[string]string{"email": email, "subscriptionId": subID}
	var res VerifyResult
	if err := c.DoRequest(ctx, "POST", "/subscription/verify", req, &res); err != nil {
		return VerifyResult{}, fmt.Errorf("verify subscription: %w", err)
	}
	return res, nil
}

type syncRequest struct {
	UserID           string                   `json:"userId"`
	TrackedPlaylists []models.TrackedPlaylist `json:"trackedPlaylists"`
}

type syncResponse struct {
	// TrackedPlaylists, when present, fully replaces the local collection.
	TrackedPlaylists []models.TrackedPlaylist `json:"trackedPlaylists"`
}

// SyncTracked pushes the local collection keyed by userID. A non-nil return
// with ok=true is the authoritative remote copy the caller must adopt
// wholesale; ok=false means the remote kept ours.
func (c *Client) SyncTracked(ctx context.Context, userID string, local []models.TrackedPlaylist) ([]models.TrackedPlaylist, bool, error) {
	var res syncResponse
	err := c.DoRequest(ctx, "POST", "/sync/tracked", syncRequest{UserID: userID, TrackedPlaylists: local}, &res)
	if err != nil {
		return nil, false, fmt.Errorf("sync tracked playlists: %w", err)
	}
	if res.TrackedPlaylists == nil {
		return nil, false, nil
	}
	return res.TrackedPlaylists, true, nil
}

// ServerHistory fetches the service-side follower history for a playlist.
// Only paying tiers have this; it is independent of the local history ring.
func (c *Client) ServerHistory(ctx context.Context, playlistID string) ([]models.HistoryEntry, error) {
	var res struct {
		History []models.HistoryEntry `json:"history"`
	}
	path := "/history/" + url.PathEscape(playlistID)
	if err := c.DoRequest(ctx, "GET", path, nil, &res); err != nil {
		return nil, fmt.Errorf("fetch server history: %w", err)
	}
	return res.History, nil
}
