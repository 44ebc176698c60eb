package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/risk"
)

// DefaultConcurrency caps simultaneous in-flight fetches per chunk.
const DefaultConcurrency = 5

// DefaultPace is the suspension between chunks, keeping the fan-out under
// the provider's rate limit.
const DefaultPace = 100 * time.Millisecond

// Fetcher retrieves one playlist snapshot.
type Fetcher interface {
	Playlist(ctx context.Context, id string) (*models.PlaylistSnapshot, error)
}

// Result is one identifier's outcome. Err is nil on success; a failed
// sibling never contaminates the rest of its chunk.
type Result struct {
	ID         string
	Snapshot   *models.PlaylistSnapshot
	Assessment *models.RiskAssessment
	Err        error
}

func (r Result) Success() bool { return r.Err == nil }

// MarshalJSON emits the {success, error, id} wire shape.
func (r Result) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID         string                   `json:"id"`
		Success    bool                     `json:"success"`
		Error      string                   `json:"error,omitempty"`
		Snapshot   *models.PlaylistSnapshot `json:"playlist,omitempty"`
		Assessment *models.RiskAssessment   `json:"risk,omitempty"`
	}
	w := wire{ID: r.ID, Success: r.Err == nil, Snapshot: r.Snapshot, Assessment: r.Assessment}
	if r.Err != nil {
		w.Error = r.Err.Error()
	}
	return json.Marshal(w)
}

// Pipeline is the concurrency-bounded, paced batch validator.
type Pipeline struct {
	fetch Fetcher
	pace  time.Duration
	log   zerolog.Logger
}

func New(fetch Fetcher, pace time.Duration, log zerolog.Logger) *Pipeline {
	if pace <= 0 {
		pace = DefaultPace
	}
	return &Pipeline{
		fetch: fetch,
		pace:  pace,
		log:   log.With().Str("component", "pipeline").Logger(),
	}
}

// ValidateBatch fetches and scores ids in consecutive chunks of
// concurrency. Each chunk's fetches run concurrently and the chunk is
// awaited in full before the next dispatch; between chunks (never after
// the last) the pipeline waits out the pacing interval. Results come back
// in input order, each slot filled positionally with that identifier's own
// outcome.
func (p *Pipeline) ValidateBatch(ctx context.Context, ids []string, concurrency int) []Result {
	return p.ValidateBatchProgress(ctx, ids, concurrency, nil)
}

// ValidateBatchProgress is ValidateBatch with a per-item callback, invoked
// in input order as each chunk completes. Used by the streaming surface.
func (p *Pipeline) ValidateBatchProgress(ctx context.Context, ids []string, concurrency int, onResult func(index int, r Result)) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(ids))

	for start := 0; start < len(ids); start += concurrency {
		// suspend for the pacing interval between chunks, measured from
		// the previous chunk's completion; never before the first
		if start > 0 {
			select {
			case <-ctx.Done():
				for i := start; i < len(ids); i++ {
					results[i] = Result{ID: ids[i], Err: ctx.Err()}
				}
				return results
			case <-time.After(p.pace):
			}
		}

		end := start + concurrency
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				results[slot] = p.validateOne(ctx, ids[slot])
			}(i)
		}
		wg.Wait()

		if onResult != nil {
			for i := start; i < end; i++ {
				onResult(i, results[i])
			}
		}
	}

	return results
}

func (p *Pipeline) validateOne(ctx context.Context, id string) Result {
	snap, err := p.fetch.Playlist(ctx, id)
	if err != nil {
		p.log.Debug().Err(err).Str("id", id).Msg("fetch failed")
		return Result{ID: id, Err: err}
	}
	assessment := risk.Score(*snap)
	return Result{ID: id, Snapshot: snap, Assessment: &assessment}
}
