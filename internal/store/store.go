package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Backend is the raw persistence primitive. Implementations must be safe
// for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Open selects a backend by name. The choice is made once at construction;
// nothing downstream probes the backend type.
func Open(backend, path string, log zerolog.Logger) (Backend, error) {
	switch backend {
	case "sqlite":
		return OpenSQLite(path + ".db")
	case "badger":
		return OpenBadger(path, log)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

// KV is the store every component persists through. It never surfaces
// backend failures: Get reports a miss and the caller's default survives,
// Set/Remove/Clear log and carry on. Values are JSON.
type KV struct {
	backend Backend
	log     zerolog.Logger
}

func NewKV(backend Backend, log zerolog.Logger) *KV {
	return &KV{backend: backend, log: log.With().Str("component", "store").Logger()}
}

// Get decodes the value under key into out. Returns false on a miss or any
// backend/decode failure, leaving out untouched so a pre-set default wins.
func (s *KV) Get(ctx context.Context, key string, out any) bool {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("get failed, using default")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("corrupt value, using default")
		return false
	}
	return true
}

// Set stores v under key. Failures are logged, not returned.
func (s *KV) Set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("marshal failed, value dropped")
		return
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("set failed, value dropped")
	}
}

// Remove deletes key. Failures are logged, not returned.
func (s *KV) Remove(ctx context.Context, key string) {
	if err := s.backend.Remove(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("remove failed")
	}
}

// Clear wipes everything. Failures are logged, not returned.
func (s *KV) Clear(ctx context.Context) {
	if err := s.backend.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("clear failed")
	}
}
