// Package server serves the single-page app and its JSON API.
package server

import (
	"context"
	"net/http"
	"time"

	"smartchef/internal/app"
	"smartchef/internal/config"
	"smartchef/internal/logging"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP front of the application.
type Server struct {
	cfg      *config.Config
	app      *app.App
	log      logrus.FieldLogger
	router   *chi.Mux
	server   *http.Server
	cookies  *cookieSigner
	spa      *spaHandler
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// New creates a Server for cfg on top of a.
func New(cfg *config.Config, a *app.App, log logrus.FieldLogger) *Server {
	log = logging.WithComponent(log, "server")

	s := &Server{
		cfg:      cfg,
		app:      a,
		log:      log,
		cookies:  newCookieSigner(cfg.SessionSecret, log),
		spa:      newSPAHandler(cfg, log),
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.router = s.setupRouter()
	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Mount attaches an extra handler, such as the Telegram webhook, to the router.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Get("/dietary-options", s.handleDietaryOptions)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)

			r.Get("/session", s.handleSession)
			r.With(chimiddleware.Timeout(90*time.Second)).Post("/recipes/generate", s.handleGenerate)

			r.Route("/mealplan", func(r chi.Router) {
				r.Get("/", s.handleGetPlan)
				r.Get("/ws", s.handlePlanSocket)
				r.Put("/{day}/{mealTime}", s.handleSaveSlot)
				r.Delete("/{day}/{mealTime}", s.handleRemoveSlot)
			})
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	})

	// Everything else is the app bundle.
	r.Get("/*", s.spa.ServeHTTP)
	r.Head("/*", s.spa.ServeHTTP)

	return r
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
