// Package server exposes a cdp.System over HTTP: read views, authenticated
// operations, event history and a websocket event stream.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cdpvault/native/cdp"
	"cdpvault/observability"
	"cdpvault/services/cdpd/indexer"
	"cdpvault/services/cdpd/stream"
)

// Persister stores engine snapshots.
type Persister interface {
	Save(*cdp.Snapshot) error
}

// History answers event history queries.
type History interface {
	Query(ctx context.Context, f indexer.Filter) ([]stream.Record, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	System    *cdp.System
	Store     Persister
	History   History
	Hub       *stream.Hub
	Metrics   *observability.CDPMetrics
	Gatherer  prometheus.Gatherer
	Auth      AuthConfig
	RateLimit RateLimit
	Buffer    int
	Logger    *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	sys     *cdp.System
	store   Persister
	history History
	hub     *stream.Hub
	metrics *observability.CDPMetrics
	auth    *Authenticator
	limiter *RateLimiter
	buffer  int
	logger  *slog.Logger

	// persistMu orders snapshot and save so a later state is never
	// overwritten by an earlier one.
	persistMu sync.Mutex
	router    http.Handler
}

// New constructs the router.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	srv := &Server{
		sys:     cfg.System,
		store:   cfg.Store,
		history: cfg.History,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		auth:    NewAuthenticator(cfg.Auth),
		limiter: NewRateLimiter(cfg.RateLimit),
		buffer:  cfg.Buffer,
		logger:  cfg.Logger,
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(cfg.Gatherer), "cdpd")
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware(s.metrics))

		api.Get("/system", s.handleSystem)
		api.Get("/ilks", s.handleIlks)
		api.Get("/ilks/{ilk}", s.handleIlk)
		api.Get("/ilks/{ilk}/urns", s.handleUrns)
		api.Get("/urns/{ilk}/{owner}", s.handleUrn)
		api.Get("/balances/{owner}", s.handleBalances)
		api.Get("/auctions/{ilk}", s.handleAuctions)
		api.Get("/auctions/{ilk}/{id}", s.handleAuction)
		api.Get("/settlement/queue", s.handleQueue)
		api.Get("/events", s.handleEvents)
		api.Get("/stream", s.handleStream)

		api.Group(func(w chi.Router) {
			w.Use(s.auth.Middleware)

			w.Post("/positions/{ilk}/adjust", s.handleAdjust)
			w.Post("/positions/{ilk}/frob", s.handleFrob)
			w.Post("/positions/{ilk}/fork", s.handleFork)
			w.Post("/positions/{ilk}/move", s.handleMovePosition)
			w.Post("/collateral/{ilk}/flux", s.handleFlux)
			w.Post("/collateral/{ilk}/exit", s.handleExit)
			w.Post("/stable/move", s.handleMove)
			w.Post("/hope", s.handleHope)
			w.Post("/nope", s.handleNope)

			w.Post("/ilks/{ilk}/drip", s.handleDrip)
			w.Post("/ilks/{ilk}/poke", s.handlePoke)
			w.Post("/liquidations/{ilk}/{urn}", s.handleBark)
			w.Post("/auctions/{ilk}/{id}/take", s.handleTake)
			w.Post("/auctions/{ilk}/{id}/redo", s.handleRedo)
			w.Post("/auctions/{ilk}/{id}/yank", s.handleYank)
			w.Post("/auctions/{ilk}/upchost", s.handleUpchost)
			w.Post("/settlement/heal", s.handleHeal)
			w.Post("/settlement/flog", s.handleFlog)
			w.Post("/settlement/flap", s.handleFlap)

			w.Post("/admin/join", s.handleJoin)
			w.Post("/admin/params", s.handleParam)
			w.Post("/admin/calc", s.handleCalc)
			w.Post("/admin/prices/{ilk}", s.handlePrice)
			w.Post("/admin/sink", s.handleSink)
			w.Post("/admin/rely", s.handleRely)
			w.Post("/admin/deny", s.handleDeny)
			w.Post("/admin/cage", s.handleCage)
		})
	})
	return r
}

// observe logs and measures every request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, status, elapsed)
		s.logger.Debug("http request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", route,
			"status", status,
			"duration", elapsed,
		)
	})
}

// Persist saves a snapshot after a successful mutation and refreshes the
// ledger gauges.
func (s *Server) Persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	totals := s.sys.Totals()
	s.metrics.SetLedger("debt", totals.Debt)
	s.metrics.SetLedger("vice", totals.Vice)
	s.metrics.SetLedger("surplus", totals.Surplus)
	s.metrics.SetLedger("deficit", totals.Deficit)
	s.metrics.SetLedger("queued", totals.Queued)
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.sys.Snapshot()); err != nil {
		s.logger.Error("persist snapshot", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "live": s.sys.Totals().Live})
}
