package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"botcheck-go-srv/internal/cloudapi"
	"botcheck-go-srv/internal/events"
	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/store"
)

// Verifier is the remote verification endpoint.
type Verifier interface {
	VerifySubscription(ctx context.Context, email, subID string) (cloudapi.VerifyResult, error)
}

// Syncer pushes the tracked collection to the cloud after payment.
type Syncer interface {
	SyncTracked(ctx context.Context, userID string, local []models.TrackedPlaylist) ([]models.TrackedPlaylist, bool, error)
}

// TrackedStore is the slice of the tracker the cache needs for sync.
type TrackedStore interface {
	List(ctx context.Context) []models.TrackedPlaylist
	MergeFromRemote(ctx context.Context, remote []models.TrackedPlaylist)
}

// Cache owns the persisted entitlement state. Everything else reads the
// resolved tier through Tier; nobody writes the entitlement keys directly.
type Cache struct {
	kv        *store.KV
	verifier  Verifier
	syncer    Syncer
	tracked   TrackedStore
	broadcast *events.Broadcaster
	log       zerolog.Logger
	now       func() time.Time

	mu sync.Mutex
}

func NewCache(kv *store.KV, verifier Verifier, syncer Syncer, tracked TrackedStore, broadcast *events.Broadcaster, log zerolog.Logger) *Cache {
	return &Cache{
		kv:        kv,
		verifier:  verifier,
		syncer:    syncer,
		tracked:   tracked,
		broadcast: broadcast,
		log:       log.With().Str("component", "entitlement").Logger(),
		now:       time.Now,
	}
}

func (c *Cache) load(ctx context.Context) models.Entitlement {
	e := models.Entitlement{Tier: models.TierFree}
	var tier string
	if c.kv.Get(ctx, store.KeyUserTier, &tier) && models.ValidTier(tier) {
		e.Tier = models.Tier(tier)
	}
	c.kv.Get(ctx, store.KeyUserEmail, &e.Email)
	c.kv.Get(ctx, store.KeySubscriptionID, &e.SubscriptionID)
	var expiry int64
	if c.kv.Get(ctx, store.KeySubscriptionExpiry, &expiry) && expiry > 0 {
		t := time.UnixMilli(expiry)
		e.ExpiresAt = &t
	}
	var verified int64
	if c.kv.Get(ctx, store.KeyLastVerified, &verified) && verified > 0 {
		e.LastVerified = time.UnixMilli(verified)
	}
	return e
}

// Tier resolves the current tier. Free, or non-free with an unexpired (or
// absent) expiry, answers from cache with no network call. An elapsed
// non-free expiry triggers exactly one verification attempt; its result is
// adopted, and an unreachable remote keeps the prior tier rather than
// downgrading speculatively.
func (c *Cache) Tier(ctx context.Context) models.Tier {
	c.mu.Lock()
	e := c.load(ctx)
	expired := e.Tier != models.TierFree && e.ExpiresAt != nil && e.ExpiresAt.Before(c.now())
	c.mu.Unlock()

	if !expired {
		return e.Tier
	}
	c.log.Debug().Str("tier", string(e.Tier)).Msg("entitlement expired, re-verifying")
	return c.VerifySubscription(ctx)
}

// VerifySubscription re-checks the subscription against the remote
// endpoint and returns the resulting tier.
func (c *Cache) VerifySubscription(ctx context.Context) models.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.load(ctx)

	// nothing on record to verify against
	if e.Email == "" && e.SubscriptionID == "" {
		c.kv.Set(ctx, store.KeyUserTier, string(models.TierFree))
		return models.TierFree
	}

	res, err := c.verifier.VerifySubscription(ctx, e.Email, e.SubscriptionID)
	if err != nil {
		// fail open to the last-known state: a transient outage must not
		// lock out a paying user
		c.log.Warn().Err(err).Msg("verification unreachable, keeping cached tier")
		return e.Tier
	}

	nowMs := c.now().UnixMilli()
	if !res.Active {
		c.kv.Set(ctx, store.KeyUserTier, string(models.TierFree))
		c.kv.Remove(ctx, store.KeySubscriptionExpiry)
		c.kv.Set(ctx, store.KeyLastVerified, nowMs)
		c.log.Info().Msg("subscription inactive, downgraded to free")
		return models.TierFree
	}

	tier := models.TierFree
	if models.ValidTier(res.Tier) {
		tier = models.Tier(res.Tier)
	}
	c.kv.Set(ctx, store.KeyUserTier, string(tier))
	if exp := res.Expiry(); exp != nil {
		c.kv.Set(ctx, store.KeySubscriptionExpiry, exp.UnixMilli())
	} else {
		c.kv.Remove(ctx, store.KeySubscriptionExpiry)
	}
	c.kv.Set(ctx, store.KeyLastVerified, nowMs)
	return tier
}

// HandlePaymentSuccess records the new subscription, kicks off a cloud
// sync of the tracked collection keyed by the account email, and
// broadcasts SUBSCRIPTION_UPDATED.
func (c *Cache) HandlePaymentSuccess(ctx context.Context, email, subID string, tier models.Tier, expiresAt int64) {
	c.mu.Lock()
	c.kv.Set(ctx, store.KeyUserEmail, email)
	c.kv.Set(ctx, store.KeySubscriptionID, subID)
	c.kv.Set(ctx, store.KeyUserTier, string(tier))
	if expiresAt > 0 {
		c.kv.Set(ctx, store.KeySubscriptionExpiry, expiresAt)
	} else {
		c.kv.Remove(ctx, store.KeySubscriptionExpiry)
	}
	c.kv.Set(ctx, store.KeyLastVerified, c.now().UnixMilli())
	c.mu.Unlock()

	c.syncTracked(ctx, email)

	c.broadcast.SubscriptionUpdated(events.SubscriptionData{
		Email:          email,
		SubscriptionID: subID,
		Tier:           string(tier),
		ExpiresAt:      expiresAt,
	})
}

func (c *Cache) syncTracked(ctx context.Context, email string) {
	remote, authoritative, err := c.syncer.SyncTracked(ctx, email, c.tracked.List(ctx))
	if err != nil {
		// local collection stays as-is on any sync failure
		c.log.Warn().Err(err).Msg("cloud sync failed, local tracked playlists untouched")
		return
	}
	if authoritative {
		c.tracked.MergeFromRemote(ctx, remote)
	}
}

// SignOut clears the account identity and expiry and forces free.
func (c *Cache) SignOut(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kv.Remove(ctx, store.KeyUserEmail)
	c.kv.Remove(ctx, store.KeySubscriptionID)
	c.kv.Remove(ctx, store.KeySubscriptionExpiry)
	c.kv.Remove(ctx, store.KeyLastVerified)
	c.kv.Set(ctx, store.KeyUserTier, string(models.TierFree))
}

// Snapshot returns a copy of the stored entitlement for display.
func (c *Cache) Snapshot(ctx context.Context) models.Entitlement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}
