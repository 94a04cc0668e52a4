package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// healthHandler reports liveness and the relay subscription state.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"provider":  s.deps.Provider,
	}
	if s.deps.Relay != nil {
		healthData["relay_started"] = s.deps.Relay.Started()
	}
	writeJSON(w, http.StatusOK, healthData)
}

// relayHandler forwards a message, optionally with media, to a number or group (POST /relay).
func (s *Server) relayHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RelayRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server relayHandler invalid JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	target := strings.TrimSpace(req.To)
	if target == "" {
		target = s.deps.RelayTarget
	}
	if target == "" {
		writeJSON(w, http.StatusBadRequest, models.Error(models.ErrEmptyRecipient.Error()))
		return
	}
	to, err := s.deps.Messaging.ValidateAndCanonicalizeRecipient(target)
	if err != nil {
		slog.Warn("Server relayHandler recipient validation failed", "error", err, "to", target)
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if req.MediaURL != "" {
		err = s.deps.Messaging.SendMedia(r.Context(), to, req.MediaURL, req.Message)
	} else {
		err = s.deps.Messaging.SendMessage(r.Context(), to, req.Message)
	}
	if err != nil {
		slog.Error("Server relayHandler send failed", "error", err, "to", to)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to relay message"))
		return
	}
	slog.Info("Server relayHandler message relayed", "to", to, "media", req.MediaURL != "")
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Message relayed", nil))
}

// promptHandler returns the prompt record for a key (GET /prompts/{key}).
func (s *Server) promptHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, err := s.deps.Training.Prompts().Record(key)
	if err != nil {
		slog.Error("Server promptHandler lookup failed", "error", err, "key", key)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load prompt"))
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, models.Error("Prompt not found"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(rec))
}

// modificationsHandler returns pending and historical entries (GET /prompts/{key}/modifications).
func (s *Server) modificationsHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	mods := s.deps.Training.Modifications()
	pending, err := mods.Pending(key)
	if err != nil {
		slog.Error("Server modificationsHandler pending lookup failed", "error", err, "key", key)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load modifications"))
		return
	}
	history, err := mods.History(key)
	if err != nil {
		slog.Error("Server modificationsHandler history lookup failed", "error", err, "key", key)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load modifications"))
		return
	}
	if pending == nil {
		pending = []models.ModificationEntry{}
	}
	if history == nil {
		history = []models.ModificationEntry{}
	}
	writeJSON(w, http.StatusOK, models.Success(map[string]interface{}{
		"pending":   pending,
		"history":   history,
		"threshold": mods.Threshold(),
	}))
}

// regenerateHandler folds the pending entries into the prompt now (POST /prompts/{key}/regenerate).
func (s *Server) regenerateHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	changed, err := s.deps.Training.Regenerator().Regenerate(r.Context(), key, s.deps.Training.BusinessID())
	if err != nil {
		slog.Error("Server regenerateHandler failed", "error", err, "key", key)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to regenerate prompt"))
		return
	}
	if !changed {
		writeJSON(w, http.StatusOK, models.SuccessWithMessage("No pending modifications", nil))
		return
	}
	rec, err := s.deps.Training.Prompts().Record(key)
	if err != nil {
		slog.Error("Server regenerateHandler reload failed", "error", err, "key", key)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load prompt"))
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Prompt regenerated", rec))
}

// getTemplateHandler returns the effective template, defaults included (GET /templates/{businessID}).
func (s *Server) getTemplateHandler(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	writeJSON(w, http.StatusOK, models.Success(s.deps.Training.Templates().Resolve(businessID)))
}

// putTemplateHandler stores a business template (PUT /templates/{businessID}).
func (s *Server) putTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var t models.BusinessTemplate
	if err := decodeJSON(r, &t); err != nil {
		slog.Warn("Server putTemplateHandler invalid JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	t.BusinessID = chi.URLParam(r, "businessID")
	if err := t.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.deps.Store.SaveBusinessTemplate(t); err != nil {
		slog.Error("Server putTemplateHandler save failed", "error", err, "businessID", t.BusinessID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to save template"))
		return
	}
	slog.Info("Server putTemplateHandler template saved", "businessID", t.BusinessID)
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Template saved", t))
}

func (s *Server) deactivateHandler(w http.ResponseWriter, r *http.Request) {
	s.setDeactivated(w, r, true)
}

func (s *Server) reactivateHandler(w http.ResponseWriter, r *http.Request) {
	s.setDeactivated(w, r, false)
}

// setDeactivated adds or removes a number from the denylist (PUT|DELETE /deactivated/{phone}).
func (s *Server) setDeactivated(w http.ResponseWriter, r *http.Request, deactivated bool) {
	phone, err := s.deps.Messaging.ValidateAndCanonicalizeRecipient(chi.URLParam(r, "phone"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.deps.Store.SetDeactivated(phone, deactivated); err != nil {
		slog.Error("Server setDeactivated failed", "error", err, "phone", phone)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to update denylist"))
		return
	}
	slog.Info("Server setDeactivated updated", "phone", phone, "deactivated", deactivated)
	writeJSON(w, http.StatusOK, models.Success(map[string]interface{}{
		"phone":       phone,
		"deactivated": deactivated,
	}))
}

// getResponseDelayHandler returns the reply delay in seconds (GET /settings/response-delay).
func (s *Server) getResponseDelayHandler(w http.ResponseWriter, r *http.Request) {
	value, ok, err := s.deps.Store.GetSetting(models.SettingResponseDelay)
	if err != nil {
		slog.Error("Server getResponseDelayHandler failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to load setting"))
		return
	}
	seconds := 0.0
	if ok {
		if parsed, perr := strconv.ParseFloat(strings.TrimSpace(value), 64); perr == nil {
			seconds = parsed
		} else {
			slog.Warn("Server getResponseDelayHandler stored value invalid", "value", value)
		}
	}
	writeJSON(w, http.StatusOK, models.Success(models.ResponseDelayRequest{Seconds: seconds}))
}

// putResponseDelayHandler sets the reply delay (PUT /settings/response-delay).
func (s *Server) putResponseDelayHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ResponseDelayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	value := strconv.FormatFloat(req.Seconds, 'f', -1, 64)
	if err := s.deps.Store.SetSetting(models.SettingResponseDelay, value); err != nil {
		slog.Error("Server putResponseDelayHandler failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to save setting"))
		return
	}
	slog.Info("Server putResponseDelayHandler delay updated", "seconds", value)
	writeJSON(w, http.StatusOK, models.Success(req))
}

// maxRequestBody bounds what decodeJSON reads from a request.
const maxRequestBody = 1 << 20

// internalErrorBody is the encoded models.Error("Internal server error"), written when a body cannot be encoded.
var internalErrorBody = []byte(`{"status":"error","message":"Internal server error"}`)

// writeJSON encodes body before any header is written, so an encoding failure becomes a clean 500.
func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("Server writeJSON encode failed", "error", err, "status", status)
		status, payload = http.StatusInternalServerError, internalErrorBody
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Warn("Server writeJSON write failed", "error", err)
	}
}

// decodeJSON reads at most maxRequestBody bytes into v. Unknown fields are an error.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
