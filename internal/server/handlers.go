package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/common/logging"
	"streamwire/internal/dispatch"
	"streamwire/internal/storage"
)

// userIDHeader carries the authenticated user id, set by the upstream
// gateway after session validation.
const userIDHeader = "X-User-ID"

type createAutomationRequest struct {
	TriggerProvider     string `json:"trigger_provider"`
	TriggerInteraction  string `json:"trigger_interaction"`
	ResponseProvider    string `json:"response_provider"`
	ResponseInteraction string `json:"response_interaction"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type automationResponse struct {
	Message    string              `json:"message"`
	Automation *storage.Automation `json:"automation"`
}

// CreateAutomation wires a trigger interaction on one linked provider to a
// response interaction on another. Both providers must already be linked by
// the user; creating the same wiring twice returns the existing automation.
func (s *Server) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "user identity missing"})
		return
	}

	var req createAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	if req.TriggerProvider == "" || req.TriggerInteraction == "" ||
		req.ResponseProvider == "" || req.ResponseInteraction == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "all interaction fields are required"})
		return
	}

	if !s.providers.IsRegistered(req.TriggerProvider) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "unsupported trigger provider"})
		return
	}
	if !validTriggerInteraction(req.TriggerInteraction) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "unsupported trigger interaction"})
		return
	}
	if !s.executors.IsRegistered(req.ResponseInteraction) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "unsupported response interaction"})
		return
	}

	triggerCred, err := s.store.GetCredentialByUserProvider(r.Context(), userID, req.TriggerProvider)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "trigger provider is not linked"})
		return
	}

	responseCred, err := s.store.GetCredentialByUserProvider(r.Context(), userID, req.ResponseProvider)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "response provider is not linked"})
		return
	}

	automation, err := s.store.CreateAutomation(r.Context(), &storage.Automation{
		UserID:               userID,
		TriggerProvider:      req.TriggerProvider,
		TriggerInteraction:   req.TriggerInteraction,
		ResponseProvider:     req.ResponseProvider,
		ResponseInteraction:  req.ResponseInteraction,
		TriggerCredentialID:  triggerCred.ID,
		ResponseCredentialID: responseCred.ID,
	})
	if err != nil {
		s.logger.Error("Failed to create automation", err, logging.String("user_id", userID))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "automation could not be created"})
		return
	}

	writeJSON(w, http.StatusOK, automationResponse{
		Message:    "Automation created successfully",
		Automation: automation,
	})
}

// GetAutomation returns a single automation by id.
func (s *Server) GetAutomation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	automation, err := s.store.GetAutomation(r.Context(), id)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrTypeNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "automation not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to load automation"})
		return
	}

	writeJSON(w, http.StatusOK, automationResponse{
		Message:    "Automation found",
		Automation: automation,
	})
}

// ListMyAutomations returns all automations of the requesting user.
func (s *Server) ListMyAutomations(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "user identity missing"})
		return
	}

	automations, err := s.store.ListAutomationsByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to list automations"})
		return
	}
	if automations == nil {
		automations = []*storage.Automation{}
	}

	writeJSON(w, http.StatusOK, automations)
}

// GetTriggerCatalog lists the trigger interactions available per registered
// provider.
func (s *Server) GetTriggerCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := make(map[string][]string)
	for _, name := range s.providers.Names() {
		catalog[name] = []string{dispatch.TriggerInLive, dispatch.TriggerOutLive}
	}
	writeJSON(w, http.StatusOK, catalog)
}

// GetResponseCatalog lists the registered response interaction kinds.
func (s *Server) GetResponseCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.executors.Kinds())
}

// HealthCheck reports storage health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Health(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validTriggerInteraction(kind string) bool {
	return kind == dispatch.TriggerInLive || kind == dispatch.TriggerOutLive
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
