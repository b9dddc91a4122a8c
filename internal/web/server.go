package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/edvart/dotastats/internal/store"
)

// Server is the read-only HTTP API over the stored matches and players.
type Server struct {
	router *chi.Mux
	store  store.Store
	log    logrus.FieldLogger
}

// NewServer creates a new HTTP server.
func NewServer(s store.Store, log logrus.FieldLogger) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		store:  s,
		log:    log,
	}
	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/matches", s.handleListMatches)
		r.Get("/matches/{matchID}", s.handleGetMatch)
		r.Get("/players", s.handleSearchPlayers)
		r.Get("/players/{steamID}", s.handleGetPlayer)
		r.Get("/heroes/{heroID}", s.handleGetHero)
		r.Get("/items/{itemID}", s.handleGetItem)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
