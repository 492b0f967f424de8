package chat

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-places-chat/internal/api"
	"github.com/FACorreiaa/go-places-chat/internal/api/snapshot"
)

const (
	defaultSessionsLimit = 50
	maxSessionsLimit     = 200
)

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID format")
		return uuid.Nil, false
	}
	return id, true
}

// ListSessions godoc
// @Summary      List sessions
// @Description  Returns the sessions holding search results, most recently updated first.
// @Tags         Sessions
// @Produce      json
// @Param        limit query int false "Maximum number of sessions (default 50, max 200)"
// @Success      200 {array} types.SessionSummary
// @Failure      400 {object} map[string]interface{}
// @Router       /api/v1/sessions [get]
func (h *HandlerImpl) ListSessions(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "ListSessions"))

	limit := defaultSessionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSessionsLimit {
			api.ErrorResponse(w, r, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	list, err := h.chatService.Sessions(r.Context(), limit)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to list sessions", slog.Any("error", err))
		api.ErrorResponse(w, r, api.StatusForError(err), err.Error())
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, list)
}

// GetSession godoc
// @Summary      Get session state
// @Description  Returns whether the session has an active search and what it holds.
// @Tags         Sessions
// @Produce      json
// @Param        sessionID path string true "Session ID"
// @Success      200 {object} types.SessionSummary
// @Failure      400 {object} map[string]interface{}
// @Router       /api/v1/sessions/{sessionID} [get]
func (h *HandlerImpl) GetSession(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "GetSession"))
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	summary, err := h.chatService.Session(r.Context(), id)
	if err != nil {
		l.ErrorContext(r.Context(), "Failed to load session", slog.Any("error", err))
		api.ErrorResponse(w, r, api.StatusForError(err), err.Error())
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, summary)
}

// EndSession godoc
// @Summary      End a session
// @Description  Drops the session's search results. The next turn starts a fresh search.
// @Tags         Sessions
// @Param        sessionID path string true "Session ID"
// @Success      204
// @Failure      404 {object} map[string]interface{}
// @Router       /api/v1/sessions/{sessionID} [delete]
func (h *HandlerImpl) EndSession(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "EndSession"))
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.chatService.EndSession(r.Context(), id); err != nil {
		l.WarnContext(r.Context(), "Failed to end session", slog.Any("error", err))
		api.ErrorResponse(w, r, api.StatusForError(err), err.Error())
		return
	}
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// SessionPlacesGeoJSON godoc
// @Summary      Session places as GeoJSON
// @Description  Returns the candidates of the session's latest search as a FeatureCollection.
// @Tags         Sessions
// @Produce      json
// @Param        sessionID path string true "Session ID"
// @Success      200 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Router       /api/v1/sessions/{sessionID}/places.geojson [get]
func (h *HandlerImpl) SessionPlacesGeoJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	snap, err := h.chatService.SessionSnapshot(r.Context(), id)
	if err != nil {
		api.ErrorResponse(w, r, api.StatusForError(err), err.Error())
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, snapshot.FeatureCollection(snap))
}
