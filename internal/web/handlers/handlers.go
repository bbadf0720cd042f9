package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fstr/pereval/internal/database"
	"github.com/fstr/pereval/internal/web/sse"
)

// PassStore is the record store the gateway calls into
type PassStore interface {
	CreatePass(ctx context.Context, np database.NewPass) (int64, error)
	GetPass(ctx context.Context, id int64) (*database.PassRecord, error)
	ListPassesBySubmitter(ctx context.Context, email string) ([]*database.PassRecord, error)
	UpdatePass(ctx context.Context, id int64, patch database.PassPatch) (*database.UpdateResult, error)
	Ping(ctx context.Context) error
}

// Publisher receives submission events. *sse.Broker implements it.
type Publisher interface {
	Broadcast(event sse.Event)
}

// VersionInfo holds application version information
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store       PassStore
	events      Publisher
	versionInfo VersionInfo
}

// New creates a new Handlers instance. events may be nil.
func New(store PassStore, events Publisher, version VersionInfo) *Handlers {
	return &Handlers{
		store:       store,
		events:      events,
		versionInfo: version,
	}
}

func (h *Handlers) broadcast(eventType sse.EventType, data any) {
	if h.events != nil {
		h.events.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]any{"status": status, "message": message})
}

// errorKind classifies a store error for the response body and status code
func errorKind(err error) (status int, kind string) {
	switch {
	case database.IsValidation(err):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case database.IsPermissionDenied(err):
		return http.StatusConflict, "permission_denied"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "persistence"
	default:
		return http.StatusInternalServerError, "persistence"
	}
}

// Health reports whether the store is reachable
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "version": h.versionInfo})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.versionInfo})
}
