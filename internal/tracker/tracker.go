package tracker

import (
	"context"
	"strings"
	"sync"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/rs/zerolog"

	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/store"
)

const (
	// HistoryCap bounds per-playlist history; oldest entries fall off the tail.
	HistoryCap = 30
	// CollectionCap bounds the tracked set; least-recently-updated falls off.
	CollectionCap = 50

	copycatThreshold = 0.90
)

// Store holds the bounded tracked-playlist collection. The whole collection
// lives under one kv key; mu serializes every read-modify-write so
// concurrent Track calls on the same id cannot lose history entries.
type Store struct {
	kv  *store.KV
	log zerolog.Logger
	mu  sync.Mutex
}

func New(kv *store.KV, log zerolog.Logger) *Store {
	return &Store{kv: kv, log: log.With().Str("component", "tracker").Logger()}
}

func (s *Store) load(ctx context.Context) []models.TrackedPlaylist {
	list := []models.TrackedPlaylist{}
	s.kv.Get(ctx, store.KeyTrackedPlaylists, &list)
	return list
}

// List returns the collection, most-recently-updated first.
func (s *Store) List(ctx context.Context) []models.TrackedPlaylist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Track records one capture. An existing entry gets its display fields
// overwritten and the observation prepended to its history; a new entry is
// prepended to the collection. Both bounds are enforced by dropping tails.
// No same-instant de-duplication: two captures at the same timestamp are
// two history entries, cadence is the caller's business.
func (s *Store) Track(ctx context.Context, u models.TrackUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	entry := models.HistoryEntry{Followers: u.Followers, CheckedAt: u.CheckedAt}

	idx := -1
	for i := range list {
		if list[i].ID == u.ID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		p := list[idx]
		p.Name = u.Name
		p.ImageURL = u.ImageURL
		p.Followers = u.Followers
		p.UpdatedAt = u.CheckedAt
		p.History = append([]models.HistoryEntry{entry}, p.History...)
		if len(p.History) > HistoryCap {
			p.History = p.History[:HistoryCap]
		}
		// move to the front: collection order is recency of update
		list = append(list[:idx], list[idx+1:]...)
		list = append([]models.TrackedPlaylist{p}, list...)
	} else {
		p := models.TrackedPlaylist{
			ID:        u.ID,
			Name:      u.Name,
			ImageURL:  u.ImageURL,
			Followers: u.Followers,
			History:   []models.HistoryEntry{entry},
			UpdatedAt: u.CheckedAt,
		}
		list = append([]models.TrackedPlaylist{p}, list...)
		if len(list) > CollectionCap {
			evicted := list[CollectionCap:]
			list = list[:CollectionCap]
			for _, e := range evicted {
				s.log.Debug().Str("id", e.ID).Msg("tracked playlist evicted")
			}
		}
	}

	s.kv.Set(ctx, store.KeyTrackedPlaylists, list)
}

// Untrack removes id. No-op when absent.
func (s *Store) Untrack(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i], list[i+1:]...)
			s.kv.Set(ctx, store.KeyTrackedPlaylists, list)
			return
		}
	}
}

// HistoryOf returns the newest-first history for id, empty if untracked.
func (s *Store) HistoryOf(ctx context.Context, id string) []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.load(ctx) {
		if p.ID == id {
			return p.History
		}
	}
	return []models.HistoryEntry{}
}

// MergeFromRemote replaces the local collection wholesale. The remote copy
// is authoritative: no field-level merging. Callers must not invoke this
// after a failed sync; a transport failure leaves local state untouched
// simply by never reaching here.
func (s *Store) MergeFromRemote(ctx context.Context, remote []models.TrackedPlaylist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv.Set(ctx, store.KeyTrackedPlaylists, remote)
}

// CopycatOf reports the tracked playlist whose name nearly duplicates name
// (Jaro-Winkler on lowercased names). Bot networks clone the titles of
// playlists they inflate, so a near-identical title on a different id is
// worth surfacing alongside the risk score.
func (s *Store) CopycatOf(ctx context.Context, id, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return "", false
	}

	jw := metrics.NewJaroWinkler()
	var bestName string
	var bestScore float64

	for _, p := range s.load(ctx) {
		if p.ID == id {
			continue
		}
		score := strutil.Similarity(query, strings.ToLower(p.Name), jw)
		if score > bestScore && score >= copycatThreshold {
			bestScore = score
			bestName = p.Name
		}
	}

	return bestName, bestName != ""
}
