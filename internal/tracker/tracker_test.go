package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	b, err := store.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return New(store.NewKV(b, zerolog.Nop()), zerolog.Nop())
}

func update(id string, followers int, at time.Time) models.TrackUpdate {
	return models.TrackUpdate{
		ID:        id,
		Name:      "playlist " + id,
		Followers: followers,
		CheckedAt: at,
	}
}

func TestTrack_NewPlaylistGetsSingletonHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now()

	s.Track(ctx, update("a", 100, at))

	list := s.List(ctx)
	require.Len(t, list, 1)
	require.Equal(t, "a", list[0].ID)
	require.Len(t, list[0].History, 1)
	require.Equal(t, 100, list[0].History[0].Followers)
}

func TestTrack_HistoryCapEvictsOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 31; i++ {
		s.Track(ctx, update("a", 100+i, base.Add(time.Duration(i)*time.Hour)))
	}

	hist := s.HistoryOf(ctx, "a")
	require.Len(t, hist, HistoryCap)
	// newest first; the very first capture (100) fell off the tail
	require.Equal(t, 130, hist[0].Followers)
	require.Equal(t, 101, hist[len(hist)-1].Followers)
}

func TestTrack_CollectionCapEvictsLeastRecentlyUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 51; i++ {
		id := fmt.Sprintf("p%02d", i)
		s.Track(ctx, update(id, 10, base.Add(time.Duration(i)*time.Minute)))
	}

	list := s.List(ctx)
	require.Len(t, list, CollectionCap)
	require.Equal(t, "p50", list[0].ID)
	// p00 was tracked first, never updated again, so it was the tail
	for _, p := range list {
		require.NotEqual(t, "p00", p.ID)
	}
}

func TestTrack_UpdateMovesToFrontAndOverwritesDisplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	s.Track(ctx, update("a", 100, base))
	s.Track(ctx, update("b", 200, base.Add(time.Minute)))

	u := update("a", 150, base.Add(2*time.Minute))
	u.Name = "renamed"
	s.Track(ctx, u)

	list := s.List(ctx)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "renamed", list[0].Name)
	require.Equal(t, 150, list[0].Followers)
	require.Len(t, list[0].History, 2)
	require.Len(t, list, 2, "update must not duplicate the entry")
}

func TestTrack_SameInstantStillPrepends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now()

	s.Track(ctx, update("a", 100, at))
	s.Track(ctx, update("a", 100, at))

	require.Len(t, s.HistoryOf(ctx, "a"), 2)
}

func TestUntrack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Track(ctx, update("a", 1, time.Now()))
	s.Untrack(ctx, "a")
	require.Empty(t, s.List(ctx))
	require.Empty(t, s.HistoryOf(ctx, "a"))

	// absent id is a no-op
	s.Untrack(ctx, "missing")
}

func TestMergeFromRemote_FullReplacement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Track(ctx, update("local", 1, time.Now()))

	remote := []models.TrackedPlaylist{
		{ID: "remote", Name: "from the cloud", Followers: 9},
	}
	s.MergeFromRemote(ctx, remote)

	list := s.List(ctx)
	require.Len(t, list, 1)
	require.Equal(t, "remote", list[0].ID)
}

func TestCopycatOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := update("a", 100, time.Now())
	u.Name = "Late Night Chill Vibes"
	s.Track(ctx, u)

	name, ok := s.CopycatOf(ctx, "b", "late night chill vibez")
	require.True(t, ok)
	require.Equal(t, "Late Night Chill Vibes", name)

	_, ok = s.CopycatOf(ctx, "b", "Completely Different Title")
	require.False(t, ok)

	// a playlist is never its own copycat
	_, ok = s.CopycatOf(ctx, "a", "Late Night Chill Vibes")
	require.False(t, ok)
}

func TestTrack_ConcurrentSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			s.Track(ctx, update("a", n, at))
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	require.Len(t, s.HistoryOf(ctx, "a"), 10, "no capture may be lost")
}
