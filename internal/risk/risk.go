package risk

import (
	"strings"
	"time"
	"unicode/utf8"

	"botcheck-go-srv/internal/models"
)

// Names that bot-run playlists recycle endlessly. Substring match,
// case-insensitive.
var genericTerms = []string{"chill", "vibes", "lofi", "study", "sleep", "workout"}

const (
	severityWarning = "warning"
	severityDanger  = "danger"
)

// Score computes the bot-risk assessment for one snapshot. Pure: identical
// input always yields an identical assessment. Rules are additive and
// independently evaluated; nothing short-circuits.
func Score(s models.PlaylistSnapshot) models.RiskAssessment {
	return scoreAt(s, time.Now())
}

// scoreAt exists so the age rule is testable against a fixed clock. The
// age rule only fires when the caller supplied a creation estimate; no
// creation date is ever derived here.
func scoreAt(s models.PlaylistSnapshot, now time.Time) models.RiskAssessment {
	score := 0
	var factors []models.RiskFactor

	add := func(points int, label, severity string) {
		score += points
		factors = append(factors, models.RiskFactor{Label: label, Severity: severity})
	}

	// 1. follower/track ratio, both tails
	if s.TrackCount > 0 {
		ratio := float64(s.Followers) / float64(s.TrackCount)
		if ratio < 10 {
			add(15, "low follower ratio", severityWarning)
		}
		if ratio > 10000 {
			add(25, "suspiciously high ratio", severityDanger)
		}
	}

	// 2. missing or throwaway description; shorter-than-10 counts runes,
	// not bytes, so accented text is measured like any other
	if s.Description == nil || utf8.RuneCountInString(*s.Description) < 10 {
		add(10, "no description", severityWarning)
	}

	// 3. purchased follower packages come in round thousands
	if s.Followers > 1000 && s.Followers%1000 == 0 {
		add(15, "round follower count", severityWarning)
	}

	// 4. generic farmed name with an outsized audience
	if s.Followers > 50000 && containsGenericTerm(s.Name) {
		add(10, "generic name pattern", severityWarning)
	}

	// 5. young playlist, big audience; only when an estimate exists
	if s.CreatedEstimate != nil {
		age := now.Sub(*s.CreatedEstimate)
		if age < 30*24*time.Hour && s.Followers > 10000 {
			add(30, "new playlist, high followers", severityDanger)
		}
	}

	if score > 100 {
		score = 100
	}

	if len(factors) == 0 {
		factors = []models.RiskFactor{{Label: "no red flags"}}
	}

	return models.RiskAssessment{
		Score:   score,
		Level:   levelFor(score),
		Factors: factors,
	}
}

func levelFor(score int) models.RiskLevel {
	switch {
	case score >= 50:
		return models.RiskHigh
	case score >= 25:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func containsGenericTerm(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range genericTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
