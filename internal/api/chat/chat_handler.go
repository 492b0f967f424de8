package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-places-chat/internal/api"
	"github.com/FACorreiaa/go-places-chat/internal/types"
)

// SessionIDHeader carries the session a turn ran against.
const SessionIDHeader = "X-Session-ID"

type HandlerImpl struct {
	chatService Service
	logger      *slog.Logger
}

func NewHandlerImpl(chatService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		chatService: chatService,
		logger:      logger,
	}
}

type sseError struct {
	Error string `json:"error"`
}

// Chat godoc
// @Summary      Run a conversational turn
// @Description  Streams the narration of a fresh search or a refinement as server-sent events. Each "response" event carries the cumulative text; the last one carries the places. Fresh searches end with an "end" event, failures with a single "error" event.
// @Tags         Chat
// @Accept       json
// @Produce      text/event-stream
// @Param        request body types.TurnRequest true "Conversation turn"
// @Success      200 {object} types.TurnResponse "SSE stream of response events"
// @Header       200 {string} X-Session-ID "Session the turn ran against"
// @Router       /api/v1/chat [post]
func (h *HandlerImpl) Chat(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("HandlerImpl").Start(r.Context(), "Chat", trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", r.URL.Path),
	))
	defer span.End()
	l := h.logger.With(slog.String("HandlerImpl", "Chat"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var req types.TurnRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid chat request", slog.Any("error", err))
		h.writeEvent(w, flusher, "error", sseError{Error: err.Error()})
		return
	}

	stream, err := h.chatService.StartTurn(ctx, req)
	if err != nil {
		l.WarnContext(ctx, "Chat turn rejected", slog.Any("error", err))
		h.writeEvent(w, flusher, "error", sseError{Error: err.Error()})
		return
	}
	span.SetAttributes(attribute.String("session.id", stream.SessionID.String()))
	w.Header().Set(SessionIDHeader, stream.SessionID.String())

	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				return
			}
			switch ev.Kind {
			case types.EventFragment, types.EventResult:
				h.writeEvent(w, flusher, "response", ev.Response)
			case types.EventEnd:
				h.writeEvent(w, flusher, "end", struct{}{})
			case types.EventError:
				h.writeEvent(w, flusher, "error", sseError{Error: ev.Err.Error()})
			}
		case <-ctx.Done():
			l.InfoContext(ctx, "Client disconnected", slog.String("session_id", stream.SessionID.String()))
			return
		}
	}
}

func (h *HandlerImpl) writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal event", slog.String("event", event), slog.Any("error", err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
