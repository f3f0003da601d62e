package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sendrec/chaptersync/internal/cart"
	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/docs"
	"github.com/sendrec/chaptersync/internal/playback"
	"github.com/sendrec/chaptersync/internal/ratelimit"
	"github.com/sendrec/chaptersync/internal/session"
)

const defaultHeartbeat = 30 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Pinger   Pinger
	Sessions *session.Manager
	Orders   *cart.OrderService
	Page     *chapter.Config
	// Images resolves catalog image references. Nil passes URLs through
	// and hides object-storage images.
	Images            playback.AddressResolver
	BaseURL           string
	StorageEndpoint   string
	FrameHosts        []string
	HeartbeatInterval time.Duration
	EnableDocs        bool
}

type Server struct {
	router        chi.Router
	pinger        Pinger
	sessions      *session.Manager
	orders        *cart.OrderService
	page          *chapter.Config
	images        playback.AddressResolver
	secureCookies bool
	heartbeat     time.Duration
	limiters      []*ratelimit.Limiter
	enableDocs    bool
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StorageEndpoint,
		FrameHosts:      cfg.FrameHosts,
	}))

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	s := &Server{
		router:        r,
		pinger:        cfg.Pinger,
		sessions:      cfg.Sessions,
		orders:        cfg.Orders,
		page:          cfg.Page,
		images:        cfg.Images,
		secureCookies: strings.HasPrefix(cfg.BaseURL, "https://"),
		heartbeat:     heartbeat,
		enableDocs:    cfg.EnableDocs,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

func (s *Server) newLimiter(requestsPerSecond float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(requestsPerSecond, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	if s.enableDocs {
		s.router.Get("/api/docs", docs.HandleDocs)
		s.router.Get("/api/docs/openapi.yaml", docs.HandleSpec)
	}

	if s.page == nil || s.sessions == nil {
		return
	}

	s.router.Get("/", s.handleWatchPage)
	s.router.Get("/api/chapters", s.handleChapters)
	s.router.Get("/api/limits", s.handleLimits)

	sessionLimiter := s.newLimiter(0.5, 5)
	s.router.With(sessionLimiter.Middleware).Post("/api/sessions", s.handleCreateSession)

	checkoutLimiter := s.newLimiter(0.2, 3)
	s.router.Route("/api/session", func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Delete("/", s.handleDeleteSession)
		r.Post("/ready", s.handleReady)
		r.Post("/state", s.handleState)
		r.Post("/position", s.handlePosition)
		r.Post("/seek", s.handleSeek)
		r.Get("/view", s.handleView)
		r.Get("/events", s.handleEvents)
		r.Get("/cart", s.handleCart)
		r.Post("/cart/items/{id}", s.handleToggleItem)
		r.Post("/cart/step", s.handleStep)
		r.With(checkoutLimiter.Middleware).Post("/checkout", s.handleCheckout)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
