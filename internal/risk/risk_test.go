package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcheck-go-srv/internal/models"
)

func strPtr(s string) *string { return &s }

func TestScore_CleanPlaylist(t *testing.T) {
	s := models.PlaylistSnapshot{
		Name:        "My Mix",
		Followers:   0,
		TrackCount:  0, // ratio rule skipped entirely
		Description: strPtr("A great mix"),
	}

	got := Score(s)
	require.Equal(t, 0, got.Score)
	require.Equal(t, models.RiskLow, got.Level)
	require.Equal(t, []models.RiskFactor{{Label: "no red flags"}}, got.Factors)
}

func TestScore_GenericNameNoDescription(t *testing.T) {
	s := models.PlaylistSnapshot{
		Name:       "chill vibes",
		Followers:  100000,
		TrackCount: 50, // ratio 2000: neither tail triggers
	}

	// 100000 is also a round thousand, so three rules fire
	got := Score(s)
	require.Equal(t, 35, got.Score)
	require.Equal(t, models.RiskMedium, got.Level)
	require.Equal(t, []models.RiskFactor{
		{Label: "no description", Severity: "warning"},
		{Label: "round follower count", Severity: "warning"},
		{Label: "generic name pattern", Severity: "warning"},
	}, got.Factors)
}

func TestScore_ShortDescriptionCountsRunes(t *testing.T) {
	s := models.PlaylistSnapshot{
		Name:        "Deep Cuts",
		Followers:   5001,
		TrackCount:  100, // ratio ~50, no ratio factor
		Description: strPtr("délicieux"), // 9 runes, 10 bytes
	}

	got := Score(s)
	require.Equal(t, 10, got.Score)
	require.Contains(t, got.Factors, models.RiskFactor{Label: "no description", Severity: "warning"})
}

func TestScore_LowRatioAndRoundFollowers(t *testing.T) {
	s := models.PlaylistSnapshot{
		Name:        "Deep Cuts",
		Followers:   5000,
		TrackCount:  2000000, // ratio 0.0025
		Description: strPtr("handpicked rarities"),
	}

	got := Score(s)
	require.Equal(t, 30, got.Score) // low ratio 15 + round count 15
	require.Equal(t, models.RiskMedium, got.Level)
}

func TestScore_HighRatioIsDanger(t *testing.T) {
	s := models.PlaylistSnapshot{
		Name:        "Hits",
		Followers:   200001,
		TrackCount:  5, // ratio > 10000
		Description: strPtr("all the hits right now"),
	}

	got := Score(s)
	require.Contains(t, got.Factors, models.RiskFactor{Label: "suspiciously high ratio", Severity: "danger"})
	require.Equal(t, 25, got.Score)
	require.Equal(t, models.RiskMedium, got.Level)
}

func TestScore_NewPlaylistRuleNeedsEstimate(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-10 * 24 * time.Hour)

	s := models.PlaylistSnapshot{
		Name:        "Fresh Finds",
		Followers:   20001,
		TrackCount:  100, // ratio ~200, no ratio factor
		Description: strPtr("new music every friday"),
	}

	// without an estimate the rule must stay silent
	got := scoreAt(s, now)
	require.Equal(t, 0, got.Score)

	s.CreatedEstimate = &created
	got = scoreAt(s, now)
	require.Equal(t, 30, got.Score)
	require.Contains(t, got.Factors, models.RiskFactor{Label: "new playlist, high followers", Severity: "danger"})
}

func TestScore_ClampsAt100(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-24 * time.Hour)

	s := models.PlaylistSnapshot{
		Name:            "chill sleep lofi",
		Followers:       51000,  // round, > 50000
		TrackCount:      2,      // ratio 25500 > 10000
		Description:     nil,    // +10
		CreatedEstimate: &created, // +30
	}

	got := scoreAt(s, now)
	require.Equal(t, 90, got.Score) // 25+10+15+10+30
	require.Equal(t, models.RiskHigh, got.Level)
	require.LessOrEqual(t, got.Score, 100)
}

func TestScore_Deterministic(t *testing.T) {
	s := models.PlaylistSnapshot{
		Name:       "workout bangers",
		Followers:  123000,
		TrackCount: 40,
	}

	first := Score(s)
	second := Score(s)
	require.Equal(t, first, second)
}
