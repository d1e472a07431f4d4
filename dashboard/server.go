// Package dashboard exposes the HTTP command surface: bot lifecycle
// operations, session blob CRUD and prometheus metrics.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"whatsapp-session-keeper/store"
	"whatsapp-session-keeper/types"
	"whatsapp-session-keeper/utils"
)

// Controller is the slice of the supervisor the command surface needs.
type Controller interface {
	Identity() types.BotIdentity
	CurrentSnapshot() types.StatusSnapshot
	RequestChallenge(ctx context.Context) (string, error)
	RequestManualConnect(ctx context.Context) error
	Restart(ctx context.Context) error
	Send(ctx context.Context, destination, payload string) error
}

// Server hosts the command surface for one bot plus its session store.
type Server struct {
	log      zerolog.Logger
	bot      Controller
	store    store.SessionStore
	limiter  *utils.RateLimiter
	http     *http.Server
	stop     chan struct{}
	stopOnce sync.Once
}

const (
	limiterCleanupInterval = time.Minute
	limiterMaxIdle         = 3 * time.Minute
)

// NewServer builds the server on addr. The store is exposed directly for
// session CRUD; lifecycle operations go through the controller.
func NewServer(addr string, bot Controller, st store.SessionStore, logger zerolog.Logger) *Server {
	s := &Server{
		log:     logger.With().Str("component", "dashboard").Logger(),
		bot:     bot,
		store:   st,
		limiter: utils.NewRateLimiter(rate.Limit(5), 10),
		stop:    make(chan struct{}),
	}
	s.limiter.StartCleanup(limiterCleanupInterval, limiterMaxIdle, s.stop)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.metricsMiddleware)

		r.Get("/health", s.handleHealth)

		r.Route("/bot", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/generate-qr", s.handleGenerateQR)
			r.Post("/connect", s.handleConnect)
			r.Post("/restart", s.handleRestart)
			r.Post("/restore-session", s.handleRestoreSession)
			r.Post("/send", s.handleSend)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/upload", s.handleUploadSession)
			r.Get("/download/{id}", s.handleDownloadSession)
			r.Delete("/{id}", s.handleDeleteSession)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.log.Info().Str("addr", s.http.Addr).Msg("command surface listening")
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server failed")
		}
	}()
}

// Shutdown drains in-flight requests and stops limiter eviction.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.http.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			caller = r.RemoteAddr
		}
		if !s.limiter.Allow(caller) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"success": false,
				"error":   "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		utils.APIRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}
