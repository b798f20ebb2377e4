// Package server exposes the narrow HTTP API for managing automations and
// inspecting the interaction catalogs. Authentication is handled upstream;
// handlers trust the X-User-ID header set by the gateway.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"streamwire/internal/actions"
	"streamwire/internal/common/logging"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
)

type Server struct {
	store     storage.Storage
	providers *providers.Registry
	executors *actions.Registry
	router    *mux.Router
	logger    logging.Logger
}

func New(store storage.Storage, providerRegistry *providers.Registry, executorRegistry *actions.Registry) *Server {
	s := &Server{
		store:     store,
		providers: providerRegistry,
		executors: executorRegistry,
		logger:    logging.GetGlobalLogger().WithFields(logging.String("component", "server")),
	}

	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/automations", s.CreateAutomation).Methods("POST")
	api.HandleFunc("/automations", s.ListMyAutomations).Methods("GET")
	api.HandleFunc("/automations/{id}", s.GetAutomation).Methods("GET")
	api.HandleFunc("/catalog/triggers", s.GetTriggerCatalog).Methods("GET")
	api.HandleFunc("/catalog/responses", s.GetResponseCatalog).Methods("GET")

	router.HandleFunc("/health", s.HealthCheck).Methods("GET")

	s.router = router
	return s
}

// Router returns the configured handler for mounting into an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

// NewHTTPServer builds an http.Server with conservative timeouts.
func (s *Server) NewHTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
