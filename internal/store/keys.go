package store

// Persisted state layout. One key per value; everything above the backend
// goes through these.
const (
	KeyDailyUsageCount = "daily_usage_count"
	KeyDailyUsageDate  = "daily_usage_date"
	KeyAPIUsageCount   = "api_usage_count"
	KeyAPIUsageDate    = "api_usage_date"

	KeyTrackedPlaylists = "tracked_playlists"

	KeyUserTier           = "user_tier"
	KeyUserEmail          = "user_email"
	KeySubscriptionID     = "subscription_id"
	KeySubscriptionExpiry = "subscription_expiry"
	KeyLastVerified       = "last_verified"

	KeySettings = "user_settings"

	// Server-supplied per-playlist history for paying tiers. Independent
	// from the locally captured tracked-playlist history.
	KeyServerHistory = "server_history"
)
