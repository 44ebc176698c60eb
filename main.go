package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"botcheck-go-srv/internal/config"
	"botcheck-go-srv/internal/entitlement"
	"botcheck-go-srv/internal/events"
	"botcheck-go-srv/internal/logger"
	"botcheck-go-srv/internal/models"
	"botcheck-go-srv/internal/pipeline"
	"botcheck-go-srv/internal/provider"
	"botcheck-go-srv/internal/quota"
	"botcheck-go-srv/internal/risk"
	"botcheck-go-srv/internal/scheduler"
	"botcheck-go-srv/internal/store"
	"botcheck-go-srv/internal/tracker"

	"botcheck-go-srv/internal/cloudapi"
)

/* =========================
   Middleware
   ========================= */

func RecoveryMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Bytes("stack", debug.Stack()).Msg("handler panicked")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

/* =========================
   SSE Helpers
   ========================= */

func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return flusher, nil
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

/* =========================
   JSON Helpers
   ========================= */

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeFetchError maps provider failures onto the HTTP surface: bad input
// is the caller's fault, a numeric upstream status passes through for 404
// and 429, anything else is a bad gateway.
func writeFetchError(w http.ResponseWriter, err error) {
	if errors.Is(err, provider.ErrInvalidPlaylistRef) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *provider.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusNotFound:
			writeError(w, http.StatusNotFound, "playlist not found")
			return
		case http.StatusTooManyRequests:
			writeError(w, http.StatusTooManyRequests, "upstream rate limit hit, retry later")
			return
		}
	}
	writeError(w, http.StatusBadGateway, "playlist fetch failed: "+err.Error())
}

/* =========================
   Server
   ========================= */

type server struct {
	log     zerolog.Logger
	cfg     *config.Config
	kv      *store.KV
	counter *quota.Counter
	tracked *tracker.Store
	cache   *entitlement.Cache
	gate    *entitlement.Gate
	prov    provider.Provider
	pipe    *pipeline.Pipeline
	cloud   *cloudapi.Client
}

func (s *server) settings(ctx context.Context) models.Settings {
	st := models.DefaultSettings()
	s.kv.Get(ctx, store.KeySettings, &st)
	return st
}

/* =========================
   Check
   ========================= */

type checkRequest struct {
	URL   string `json:"url"`
	Track bool   `json:"track"`
}

func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !s.gate.CanPerform(ctx, entitlement.ActionCheck) {
		writeError(w, http.StatusTooManyRequests, "daily check limit reached")
		return
	}

	id, err := provider.ParsePlaylistRef(req.URL)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	// the attempt costs quota, not the outcome
	checksToday := s.counter.Increment(ctx, quota.KindInteractive)

	snap, err := s.prov.Playlist(ctx, id)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	assessment := risk.Score(*snap)
	copycat, hasCopycat := s.tracked.CopycatOf(ctx, snap.ID, snap.Name)

	trackIt := req.Track || s.settings(ctx).AutoTrack
	if trackIt {
		s.tracked.Track(ctx, models.TrackUpdate{
			ID:        snap.ID,
			Name:      snap.Name,
			ImageURL:  snap.ImageURL,
			Followers: snap.Followers,
			CheckedAt: time.Now(),
		})
	}

	resp := map[string]any{
		"playlist":     snap,
		"risk":         assessment,
		"tracked":      trackIt,
		"checks_today": checksToday,
	}
	if hasCopycat {
		resp["copycat_of"] = copycat
	}
	writeJSON(w, http.StatusOK, resp)
}

/* =========================
   Batch (SSE)
   ========================= */

type batchRequest struct {
	URLs []string `json:"urls"`
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}

	if !s.gate.CanPerform(ctx, entitlement.ActionBulk) {
		writeError(w, http.StatusForbidden, "bulk validation requires a paid plan")
		return
	}

	limits := entitlement.Limits(s.cache.Tier(ctx))
	if limits.BulkSize > 0 && len(req.URLs) > limits.BulkSize {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("batch of %d exceeds the plan limit of %d", len(req.URLs), limits.BulkSize))
		return
	}

	ids := make([]string, len(req.URLs))
	for i, u := range req.URLs {
		id, err := provider.ParsePlaylistRef(u)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid playlist reference at index %d: %q", i, u))
			return
		}
		ids[i] = id
	}

	flusher, err := setupSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	send := func(v any) { sendEvent(w, flusher, v) }

	send(map[string]any{"status": "started", "total": len(ids)})

	results := s.pipe.ValidateBatchProgress(ctx, ids, s.cfg.BatchConcurrency, func(index int, res pipeline.Result) {
		send(map[string]any{
			"status": "processing",
			"index":  index + 1,
			"total":  len(ids),
			"result": res,
		})
	})

	send(map[string]any{
		"status":    "complete",
		"total":     len(ids),
		"results":   results,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

/* =========================
   Tracked Playlists
   ========================= */

func (s *server) handleTrackedList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"playlists": s.tracked.List(r.Context())})
}

func (s *server) handleTrackedAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := provider.ParsePlaylistRef(req.URL)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	snap, err := s.prov.Playlist(ctx, id)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	s.tracked.Track(ctx, models.TrackUpdate{
		ID:        snap.ID,
		Name:      snap.Name,
		ImageURL:  snap.ImageURL,
		Followers: snap.Followers,
		CheckedAt: time.Now(),
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        snap.ID,
		"name":      snap.Name,
		"followers": snap.Followers,
	})
}

func (s *server) handleTrackedRemove(w http.ResponseWriter, r *http.Request) {
	s.tracked.Untrack(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleTrackedHistory serves the local history ring; when it is empty and
// the user is on a paying tier, the companion service's longer history is
// fetched and cached under its own key, so a later outage still has
// something to show.
func (s *server) handleTrackedHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	history := s.tracked.HistoryOf(ctx, id)
	source := "local"

	if len(history) == 0 && s.cache.Tier(ctx) != models.TierFree {
		cached := map[string][]models.HistoryEntry{}
		s.kv.Get(ctx, store.KeyServerHistory, &cached)

		remote, err := s.cloud.ServerHistory(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("server history unavailable, using cached copy")
			remote = cached[id]
		} else {
			cached[id] = remote
			s.kv.Set(ctx, store.KeyServerHistory, cached)
		}
		if len(remote) > 0 {
			history = remote
			source = "server"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "history": history, "source": source})
}

// handleTracks is the programmatic surface: full track listings are pro
// only and burn the independent api quota.
func (s *server) handleTracks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if !s.gate.CanPerform(ctx, entitlement.ActionAPI) {
		writeError(w, http.StatusForbidden, "API access requires the pro plan with remaining daily quota")
		return
	}
	s.counter.Increment(ctx, quota.KindAPI)

	tracks, err := s.prov.AllTracks(ctx, id)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "total": len(tracks), "tracks": tracks})
}

/* =========================
   Account
   ========================= */

func (s *server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tier := s.cache.Tier(ctx)
	snap := s.cache.Snapshot(ctx)

	writeJSON(w, http.StatusOK, map[string]any{
		"tier":          tier,
		"expires_at":    snap.ExpiresAt,
		"last_verified": snap.LastVerified,
		"email":         snap.Email,
		"limits":        entitlement.Limits(tier),
		"usage": map[string]int{
			"checks": s.counter.Usage(ctx, quota.KindInteractive),
			"api":    s.counter.Usage(ctx, quota.KindAPI),
		},
	})
}

type paymentWebhook struct {
	Email          string `json:"email"`
	SubscriptionID string `json:"subscriptionId"`
	Tier           string `json:"tier"`
	ExpiresAt      int64  `json:"expiresAt"`
}

func (s *server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhook
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || !models.ValidTier(req.Tier) {
		writeError(w, http.StatusBadRequest, "email and a known tier are required")
		return
	}

	s.cache.HandlePaymentSuccess(r.Context(), req.Email, req.SubscriptionID, models.Tier(req.Tier), req.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.cache.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

/* =========================
   Settings
   ========================= */

func (s *server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings(r.Context()))
}

func (s *server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var st models.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.kv.Set(r.Context(), store.KeySettings, st)
	writeJSON(w, http.StatusOK, st)
}

/* =========================
   Routing
   ========================= */

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/check", s.handleCheck)
	mux.HandleFunc("POST /api/v1/batch", s.handleBatch)

	mux.HandleFunc("GET /api/v1/tracked", s.handleTrackedList)
	mux.HandleFunc("POST /api/v1/tracked", s.handleTrackedAdd)
	mux.HandleFunc("DELETE /api/v1/tracked/{id}", s.handleTrackedRemove)
	mux.HandleFunc("GET /api/v1/tracked/{id}/history", s.handleTrackedHistory)

	mux.HandleFunc("GET /api/v1/playlist/{id}/tracks", s.handleTracks)

	mux.HandleFunc("GET /api/v1/entitlement", s.handleEntitlement)
	mux.HandleFunc("POST /api/v1/payment/webhook", s.handlePaymentWebhook)
	mux.HandleFunc("POST /api/v1/signout", s.handleSignOut)

	mux.HandleFunc("GET /api/v1/settings", s.handleSettingsGet)
	mux.HandleFunc("PUT /api/v1/settings", s.handleSettingsPut)

	return RecoveryMiddleware(s.log, CORSMiddleware(mux))
}

/* =========================
   Main
   ========================= */

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// persistence
	backend, err := store.Open(cfg.StoreBackend, cfg.StorePath, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer backend.Close()
	kv := store.NewKV(backend, log)

	// playlist data provider
	var prov provider.Provider
	switch cfg.Provider {
	case "proxy":
		proxy := provider.NewProxy()
		if err := pipeline.AwaitReady(ctx, proxy.Ready); err != nil {
			log.Warn().Err(err).Msg("web session not ready yet, continuing anyway")
		}
		prov = proxy
	default:
		if cfg.SpotifyID == "" || cfg.SpotifySecret == "" {
			log.Fatal().Msg("SPOTIFY_ID and SPOTIFY_SECRET must be set for the webapi provider")
		}
		prov = provider.NewWebAPI(ctx, cfg.SpotifyID, cfg.SpotifySecret)
	}

	// components
	counter := quota.NewCounter(kv)
	tracked := tracker.New(kv, log)
	broadcast := events.NewBroadcaster(log)
	cloud := cloudapi.NewClient(cfg.CloudAPIBase, cfg.CloudAPIToken)
	cache := entitlement.NewCache(kv, cloud, cloud, tracked, broadcast, log)
	gate := entitlement.NewGate(cache, counter)
	pipe := pipeline.New(prov, time.Duration(cfg.BatchPaceMs)*time.Millisecond, log)

	broadcast.Subscribe("audit-log", func(ev events.Event) error {
		log.Info().Str("event", ev.Type).Str("tier", ev.Data.Tier).Msg("subscription updated")
		return nil
	})

	srv := &server{
		log:     log,
		cfg:     cfg,
		kv:      kv,
		counter: counter,
		tracked: tracked,
		cache:   cache,
		gate:    gate,
		prov:    prov,
		pipe:    pipe,
		cloud:   cloud,
	}

	// background tasks
	runners := []*scheduler.Runner{
		scheduler.NewDaily("quota-rollover", func(ctx context.Context) {
			counter.Rollover(ctx)
		}, log),
		scheduler.NewRunner("tracked-refresh", time.Duration(cfg.RefreshIntervalHours)*time.Hour, func(ctx context.Context) {
			for _, p := range tracked.List(ctx) {
				snap, err := prov.Playlist(ctx, p.ID)
				if err != nil {
					log.Warn().Err(err).Str("id", p.ID).Msg("tracked refresh skipped")
					continue
				}
				tracked.Track(ctx, models.TrackUpdate{
					ID:        snap.ID,
					Name:      snap.Name,
					ImageURL:  snap.ImageURL,
					Followers: snap.Followers,
					CheckedAt: time.Now(),
				})
			}
		}, log),
		scheduler.NewRunner("entitlement-reverify", time.Duration(cfg.ReverifyIntervalHours)*time.Hour, func(ctx context.Context) {
			cache.VerifySubscription(ctx)
		}, log),
	}
	for _, r := range runners {
		r.Start()
	}

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.routes(),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("provider", cfg.Provider).Msg("botcheck engine listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// graceful shutdown: drain requests, stop runners, close the store
	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}

	for _, r := range runners {
		r.Stop()
	}
}
