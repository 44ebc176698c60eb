package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"botcheck-go-srv/internal/cloudapi"
	"botcheck-go-srv/internal/events"
	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/quota"
	"botcheck-go-srv/internal/store"
)

type fakeVerifier struct {
	calls  int
	result cloudapi.VerifyResult
	err    error
}

func (f *fakeVerifier) VerifySubscription(context.Context, string, string) (cloudapi.VerifyResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSyncer struct {
	calls  int
	userID string
	remote []models.TrackedPlaylist
	err    error
}

func (f *fakeSyncer) SyncTracked(_ context.Context, userID string, _ []models.TrackedPlaylist) ([]models.TrackedPlaylist, bool, error) {
	f.calls++
	f.userID = userID
	if f.err != nil {
		return nil, false, f.err
	}
	return f.remote, f.remote != nil, nil
}

type fakeTracked struct {
	local  []models.TrackedPlaylist
	merged []models.TrackedPlaylist
}

func (f *fakeTracked) List(context.Context) []models.TrackedPlaylist { return f.local }
func (f *fakeTracked) MergeFromRemote(_ context.Context, remote []models.TrackedPlaylist) {
	f.merged = remote
}

type fixture struct {
	cache    *Cache
	kv       *store.KV
	verifier *fakeVerifier
	syncer   *fakeSyncer
	tracked  *fakeTracked
	events   *events.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b, err := store.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	kv := store.NewKV(b, zerolog.Nop())
	f := &fixture{
		kv:       kv,
		verifier: &fakeVerifier{},
		syncer:   &fakeSyncer{},
		tracked:  &fakeTracked{},
		events:   events.NewBroadcaster(zerolog.Nop()),
	}
	f.cache = NewCache(kv, f.verifier, f.syncer, f.tracked, f.events, zerolog.Nop())
	return f
}

func (f *fixture) seedPaid(ctx context.Context, tier models.Tier, expiresAt int64) {
	f.kv.Set(ctx, store.KeyUserTier, string(tier))
	f.kv.Set(ctx, store.KeyUserEmail, "user@example.com")
	f.kv.Set(ctx, store.KeySubscriptionID, "sub_1")
	if expiresAt > 0 {
		f.kv.Set(ctx, store.KeySubscriptionExpiry, expiresAt)
	}
}

func TestTier_FirstRunIsFree(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, models.TierFree, f.cache.Tier(context.Background()))
	require.Zero(t, f.verifier.calls, "free tier must not hit the network")
}

func TestTier_UnexpiredPaidTierSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPaid(ctx, models.TierPremium, time.Now().Add(time.Hour).UnixMilli())

	require.Equal(t, models.TierPremium, f.cache.Tier(ctx))
	require.Zero(t, f.verifier.calls)
}

func TestTier_ElapsedExpiryTriggersOneVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPaid(ctx, models.TierPremium, time.Now().Add(-time.Millisecond).UnixMilli())
	f.verifier.err = errors.New("network down")

	got := f.cache.Tier(ctx)
	require.Equal(t, 1, f.verifier.calls)
	require.Equal(t, models.TierPremium, got, "fail open to last-known tier")
}

func TestVerify_NoIdentityForcesFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kv.Set(ctx, store.KeyUserTier, string(models.TierPro))

	require.Equal(t, models.TierFree, f.cache.VerifySubscription(ctx))
	require.Zero(t, f.verifier.calls)
}

func TestVerify_ActiveAdoptsTierAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPaid(ctx, models.TierPremium, 0)

	expiry := time.Now().Add(30 * 24 * time.Hour).UnixMilli()
	f.verifier.result = cloudapi.VerifyResult{Active: true, Tier: "pro", ExpiresAt: expiry}

	require.Equal(t, models.TierPro, f.cache.VerifySubscription(ctx))

	e := f.cache.Snapshot(ctx)
	require.Equal(t, models.TierPro, e.Tier)
	require.NotNil(t, e.ExpiresAt)
	require.Equal(t, expiry, e.ExpiresAt.UnixMilli())
	require.False(t, e.LastVerified.IsZero())
}

func TestVerify_InactiveClearsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPaid(ctx, models.TierPro, time.Now().Add(time.Hour).UnixMilli())
	f.verifier.result = cloudapi.VerifyResult{Active: false}

	require.Equal(t, models.TierFree, f.cache.VerifySubscription(ctx))

	e := f.cache.Snapshot(ctx)
	require.Equal(t, models.TierFree, e.Tier)
	require.Nil(t, e.ExpiresAt)
}

func TestHandlePaymentSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracked.local = []models.TrackedPlaylist{{ID: "p1"}}

	var got events.Event
	f.events.Subscribe("test", func(ev events.Event) error { got = ev; return nil })

	expiry := time.Now().Add(time.Hour).UnixMilli()
	f.cache.HandlePaymentSuccess(ctx, "user@example.com", "sub_9", models.TierPremium, expiry)

	e := f.cache.Snapshot(ctx)
	require.Equal(t, models.TierPremium, e.Tier)
	require.Equal(t, "user@example.com", e.Email)
	require.Equal(t, "sub_9", e.SubscriptionID)

	require.Equal(t, 1, f.syncer.calls)
	require.Equal(t, "user@example.com", f.syncer.userID)

	require.Equal(t, events.TypeSubscriptionUpdated, got.Type)
	require.Equal(t, "premium", got.Data.Tier)
}

func TestHandlePaymentSuccess_SyncFailureLeavesLocal(t *testing.T) {
	f := newFixture(t)
	f.syncer.err = errors.New("offline")

	f.cache.HandlePaymentSuccess(context.Background(), "a@b.c", "s", models.TierPremium, 0)
	require.Nil(t, f.tracked.merged)
}

func TestHandlePaymentSuccess_AuthoritativeRemoteReplaces(t *testing.T) {
	f := newFixture(t)
	f.syncer.remote = []models.TrackedPlaylist{{ID: "cloud"}}

	f.cache.HandlePaymentSuccess(context.Background(), "a@b.c", "s", models.TierPremium, 0)
	require.Equal(t, f.syncer.remote, f.tracked.merged)
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPaid(ctx, models.TierPro, time.Now().Add(time.Hour).UnixMilli())

	f.cache.SignOut(ctx)

	e := f.cache.Snapshot(ctx)
	require.Equal(t, models.TierFree, e.Tier)
	require.Empty(t, e.Email)
	require.Empty(t, e.SubscriptionID)
	require.Nil(t, e.ExpiresAt)

	require.Equal(t, models.TierFree, f.cache.Tier(ctx))
	require.Zero(t, f.verifier.calls)
}

func TestGate_CanPerform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	counter := quota.NewCounter(f.kv)
	gate := NewGate(f.cache, counter)

	// free: bounded checks, no bulk, no api
	require.True(t, gate.CanPerform(ctx, ActionCheck))
	require.False(t, gate.CanPerform(ctx, ActionBulk))
	require.False(t, gate.CanPerform(ctx, ActionAPI))

	for i := 0; i < Limits(models.TierFree).ChecksPerDay; i++ {
		counter.Increment(ctx, quota.KindInteractive)
	}
	require.False(t, gate.CanPerform(ctx, ActionCheck), "free check quota exhausted")

	// pro: unlimited checks, bulk capacity, api with its own quota
	f.seedPaid(ctx, models.TierPro, time.Now().Add(time.Hour).UnixMilli())
	require.True(t, gate.CanPerform(ctx, ActionCheck))
	require.True(t, gate.CanPerform(ctx, ActionBulk))
	require.True(t, gate.CanPerform(ctx, ActionAPI))
}
