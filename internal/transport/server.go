// Package transport exposes the facilitation session over HTTP and websocket.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/control"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

// Config holds server configuration.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	MaxMessageBytes int64         // control message and websocket frame limit
	WriteTimeout    time.Duration // per websocket frame
	PingInterval    time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     30 * time.Second,
		MaxMessageBytes: 64 << 10,
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
	}
}

// Bus is the event bus surface the server uses.
type Bus interface {
	Publish(topic event.Topic, payload any) error
	Subscribe(ctx context.Context, topics ...event.Topic) (<-chan event.Envelope, error)
}

// Server is the HTTP server.
type Server struct {
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	session *state.Session
	control control.Handler
	bus     Bus
	log     zerolog.Logger
	now     func() time.Time

	// ctx outlives individual requests; Shutdown cancels it to close websockets.
	ctx  context.Context
	stop context.CancelFunc
}

// New creates a server. bus may be nil, in which case websocket clients only
// receive the snapshot sent on connect.
func New(cfg Config, session *state.Session, handler control.Handler, bus Bus, log zerolog.Logger) *Server {
	def := DefaultConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}

	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		session: session,
		control: handler,
		bus:     bus,
		log:     log,
		now:     time.Now,
	}
	s.ctx, s.stop = context.WithCancel(context.Background())
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderParticipant},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/session", s.getSession)
		r.Post("/control", s.postControl)
		r.Post("/transcript", s.postTranscript)
		r.Put("/context", s.putContext)
		r.Get("/ws", s.serveWS)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
	}
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes open websockets and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
