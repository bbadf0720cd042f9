package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fstr/pereval/internal/config"
	"github.com/fstr/pereval/internal/web/handlers"
	"github.com/fstr/pereval/internal/web/middleware"
	"github.com/fstr/pereval/internal/web/sse"
)

// maxBodyBytes caps request bodies; images arrive inline as base64
const maxBodyBytes = 64 << 20

// Server represents the web server
type Server struct {
	addr       string
	allowedNet *net.IPNet
	timeouts   *config.TimeoutConfig
	router     *chi.Mux
	sseBroker  *sse.Broker
	handlers   *handlers.Handlers
}

// NewServer creates a new web server in front of store
func NewServer(store handlers.PassStore, addr string, allowedNet *net.IPNet, timeouts *config.TimeoutConfig, version handlers.VersionInfo) *Server {
	if timeouts == nil {
		timeouts = config.DefaultTimeoutConfig()
	}
	broker := sse.NewBroker(30 * time.Second)
	s := &Server{
		addr:       addr,
		allowedNet: allowedNet,
		timeouts:   timeouts,
		router:     chi.NewRouter(),
		sseBroker:  broker,
		handlers:   handlers.New(store, broker, version),
	}

	s.setupRoutes()
	return s
}

// SSEBroker returns the SSE broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Long-lived stream, no timeout
	r.Get("/api/events", s.sseBroker.ServeHTTP)

	h := s.handlers
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.timeouts.Request))
		r.Use(middleware.MaxBodySize(maxBodyBytes))

		r.Get("/healthz", h.Health)

		r.Route("/submitData", func(r chi.Router) {
			r.Post("/", h.SubmitData)
			r.Get("/", h.ListSubmissions)
			r.Get("/{id}", h.GetSubmission)
			r.Patch("/{id}", h.PatchSubmission)
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: s.timeouts.ReadRequest,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout protects regular requests
		WriteTimeout: 0,
		IdleTimeout:  s.timeouts.Idle,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		s.sseBroker.Stop()
		return err
	}
}
