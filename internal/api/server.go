package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/TalkyTrainer/internal/flow"
	"github.com/BTreeMap/TalkyTrainer/internal/messaging"
	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/store"
)

// AdminStore is the part of the record store behind the admin endpoints.
type AdminStore interface {
	store.TemplateStore
	store.DenylistStore
	store.SettingsStore
}

// RelayStatus reports whether the group relay holds its subscription.
type RelayStatus interface {
	Started() bool
}

// ServerDeps holds the collaborators of the HTTP server.
type ServerDeps struct {
	Store       AdminStore
	Messaging   messaging.Service
	Training    *flow.TrainingFlow
	Relay       RelayStatus  // optional
	Webhook     http.Handler // Twilio inbound webhook, optional
	RelayTarget string       // default recipient of POST /relay
	APIToken    string       // bearer token for admin routes, optional
	Provider    string
}

// Server exposes the relay endpoint and the training admin API.
type Server struct {
	deps   ServerDeps
	router *chi.Mux
}

// NewServer builds the router.
func NewServer(deps ServerDeps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{deps: deps, router: router}

	router.Get("/health", s.healthHandler)
	if deps.Webhook != nil {
		router.Post("/twilio/webhook", deps.Webhook.ServeHTTP)
	}

	router.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.APIToken))
		r.Post("/relay", s.relayHandler)

		r.Route("/prompts/{key}", func(r chi.Router) {
			r.Get("/", s.promptHandler)
			r.Get("/modifications", s.modificationsHandler)
			r.Post("/regenerate", s.regenerateHandler)
		})
		r.Get("/templates/{businessID}", s.getTemplateHandler)
		r.Put("/templates/{businessID}", s.putTemplateHandler)
		r.Put("/deactivated/{phone}", s.deactivateHandler)
		r.Delete("/deactivated/{phone}", s.reactivateHandler)
		r.Get("/settings/response-delay", s.getResponseDelayHandler)
		r.Put("/settings/response-delay", s.putResponseDelayHandler)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, models.Error("Unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
