package models

import "time"

// Tier is the subscription level governing feature access.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// ValidTier reports whether s names a known tier.
func ValidTier(s string) bool {
	switch Tier(s) {
	case TierFree, TierPremium, TierPro:
		return true
	}
	return false
}

// PlaylistSnapshot is one fetch of a playlist's public attributes.
// Immutable once built; a refetch produces a new snapshot.
type PlaylistSnapshot struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	OwnerID     string  `json:"owner_id"`
	OwnerName   string  `json:"owner_name"`
	Followers   int     `json:"followers"`
	TrackCount  int     `json:"track_count"`
	Public      bool    `json:"public"`
	Description *string `json:"description"`
	ImageURL    string  `json:"image_url,omitempty"`
	ExternalURL string  `json:"external_url,omitempty"`
	// SnapshotID changes whenever playlist contents change. Opaque,
	// not date-bearing.
	SnapshotID string `json:"snapshot_id,omitempty"`
	// CreatedEstimate is only present when a caller has a usable creation
	// date from elsewhere. Never derived here.
	CreatedEstimate *time.Time `json:"created_estimate,omitempty"`
}

// PlaylistTrack is one entry of a full track listing.
type PlaylistTrack struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album,omitempty"`
	AddedAt string `json:"added_at,omitempty"`
}

// HistoryEntry is one time-stamped follower observation.
type HistoryEntry struct {
	Followers int       `json:"followers"`
	CheckedAt time.Time `json:"checked_at"`
}

// TrackedPlaylist is a playlist the user monitors for follower drift.
// History is newest-first.
type TrackedPlaylist struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ImageURL  string         `json:"image_url,omitempty"`
	Followers int            `json:"followers"`
	History   []HistoryEntry `json:"history"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TrackUpdate carries one capture of display fields + follower count.
type TrackUpdate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"image_url,omitempty"`
	Followers int       `json:"followers"`
	CheckedAt time.Time `json:"checked_at"`
}

// RiskLevel buckets a risk score for display.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskFactor is one triggered heuristic with its severity.
// Severity is empty for the neutral "no red flags" factor.
type RiskFactor struct {
	Label    string `json:"label"`
	Severity string `json:"severity,omitempty"`
}

// RiskAssessment is the computed bot-likelihood for one snapshot.
// Derived and stateless; never persisted verbatim.
type RiskAssessment struct {
	Score   int          `json:"score"`
	Level   RiskLevel    `json:"level"`
	Factors []RiskFactor `json:"factors"`
}

// Entitlement is the persisted subscription state. Owned exclusively by
// the entitlement cache; everyone else reads the resolved tier.
type Entitlement struct {
	Tier           Tier       `json:"tier"`
	ExpiresAt      *time.Time `json:"expires_at"`
	LastVerified   time.Time  `json:"last_verified"`
	Email          string     `json:"email,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
}

// TierLimits is the pure per-tier feature table. ChecksPerDay and
// APIPerDay of -1 mean unlimited; BulkSize 0 means bulk is locked.
type TierLimits struct {
	ChecksPerDay int  `json:"checks_per_day"`
	BulkSize     int  `json:"bulk_size"`
	APIAccess    bool `json:"api_access"`
	APIPerDay    int  `json:"api_per_day"`
}

// Settings is the object-valued user settings key.
type Settings struct {
	AutoTrack     bool `json:"auto_track"`
	RiskAlerts    bool `json:"risk_alerts"`
	SyncOnPayment bool `json:"sync_on_payment"`
}

// DefaultSettings are applied when nothing is stored yet.
func DefaultSettings() Settings {
	return Settings{RiskAlerts: true, SyncOnPayment: true}
}
