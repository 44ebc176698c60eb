package entitlement

import (
	"context"

	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/quota"
)

// Action is a gated operation.
type Action string

const (
	ActionCheck Action = "check"
	ActionBulk  Action = "bulk"
	ActionAPI   Action = "api"
)

// Limits is the pure tier → feature table. -1 means unlimited.
func Limits(tier models.Tier) models.TierLimits {
	switch tier {
	case models.TierPro:
		return models.TierLimits{ChecksPerDay: -1, BulkSize: 100, APIAccess: true, APIPerDay: 500}
	case models.TierPremium:
		return models.TierLimits{ChecksPerDay: -1, BulkSize: 25}
	default:
		return models.TierLimits{ChecksPerDay: 10}
	}
}

// Gate composes the limit table with the daily quota counters.
type Gate struct {
	cache   *Cache
	counter *quota.Counter
}

func NewGate(cache *Cache, counter *quota.Counter) *Gate {
	return &Gate{cache: cache, counter: counter}
}

// CanPerform reports whether action is allowed right now for the resolved
// tier. Checks are unlimited for paying tiers and day-bounded for free;
// bulk is a capacity gate (allowed iff the tier's bulk size is non-zero,
// not quota-tracked); api needs the tier's API access plus headroom on the
// independent api counter.
func (g *Gate) CanPerform(ctx context.Context, action Action) bool {
	tier := g.cache.Tier(ctx)
	limits := Limits(tier)

	switch action {
	case ActionCheck:
		if limits.ChecksPerDay < 0 {
			return true
		}
		return g.counter.Usage(ctx, quota.KindInteractive) < limits.ChecksPerDay
	case ActionBulk:
		return limits.BulkSize > 0
	case ActionAPI:
		if !limits.APIAccess {
			return false
		}
		if limits.APIPerDay < 0 {
			return true
		}
		return g.counter.Usage(ctx, quota.KindAPI) < limits.APIPerDay
	}
	return false
}
