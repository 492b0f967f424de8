package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-places-chat/internal/types"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

type sseEvent struct {
	Event string
	Data  string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, ev.Event, "malformed block %q", block)
		out = append(out, ev)
	}
	return out
}

func setupHandlerTest() (*chatFixture, http.Handler) {
	f := setupChatTest()
	h := NewHandlerImpl(f.service, testLogger())
	r := chi.NewRouter()
	r.Post("/api/v1/chat", h.Chat)
	r.Get("/api/v1/sessions", h.ListSessions)
	r.Get("/api/v1/sessions/{sessionID}", h.GetSession)
	r.Delete("/api/v1/sessions/{sessionID}", h.EndSession)
	r.Get("/api/v1/sessions/{sessionID}/places.geojson", h.SessionPlacesGeoJSON)
	return f, r
}

func TestHandlerImpl_Chat(t *testing.T) {
	t.Run("fresh search streams responses then end", func(t *testing.T) {
		f, router := setupHandlerTest()
		id := uuid.New()
		f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("tapas bar", nil).Once()
		f.places.On("Search", mock.Anything, "tapas bar", mock.Anything).
			Return([]places.Place{rawPlace("p1", "Taberna", 4.5)}, nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("One ", "taberna.")).Once()

		body := `{"session_id":"` + id.String() + `","location":{"latitude":38.72,"longitude":-9.14},"messages":[{"role":"user","content":"tapas"}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
		assert.Equal(t, id.String(), rr.Header().Get(SessionIDHeader))

		events := parseSSE(t, rr.Body.String())
		require.Len(t, events, 4)
		assert.Equal(t, "response", events[0].Event)
		assert.JSONEq(t, `{"response":"One ","places":[]}`, events[0].Data)
		assert.JSONEq(t, `{"response":"One taberna.","places":[]}`, events[1].Data)

		var final types.TurnResponse
		require.NoError(t, json.Unmarshal([]byte(events[2].Data), &final))
		assert.Equal(t, "response", events[2].Event)
		assert.Equal(t, "One taberna.", final.Response)
		require.Len(t, final.Places, 1)
		assert.Equal(t, 1.0, final.Places[0].Relevancy)

		assert.Equal(t, sseEvent{Event: "end", Data: "{}"}, events[3])
	})

	t.Run("refinement has no end event", func(t *testing.T) {
		f, router := setupHandlerTest()
		id := uuid.New()
		seedSnapshot(t, f, id, rawPlace("p1", "Taberna", 4.5), rawPlace("p2", "Cervejaria", 4.3))
		f.llm.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				args.Get(3).(*types.Relevancies).Relevancies = []types.Relevancy{{ID: "p2", Relevancy: 0.8}, {ID: "p1", Relevancy: 0.3}}
			}).Return(nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("Seafood first.")).Once()

		body := `{"session_id":"` + id.String() + `","location":{"latitude":38.72,"longitude":-9.14},"messages":[{"role":"user","content":"seafood"}]}`
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body)))

		events := parseSSE(t, rr.Body.String())
		require.Len(t, events, 2)
		var final types.TurnResponse
		require.NoError(t, json.Unmarshal([]byte(events[1].Data), &final))
		assert.Equal(t, []string{"p2", "p1"}, ids(final.Places))
	})

	t.Run("missing snapshot is a single error event", func(t *testing.T) {
		_, router := setupHandlerTest()
		body := `{"intent":"refine","session_id":"` + uuid.NewString() + `","location":{"latitude":0,"longitude":0},"messages":[{"role":"user","content":"cheaper"}]}`
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body)))

		events := parseSSE(t, rr.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, "error", events[0].Event)
		assert.Contains(t, events[0].Data, "no search has been made")
	})

	t.Run("invalid body", func(t *testing.T) {
		_, router := setupHandlerTest()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"messages":`)))

		events := parseSSE(t, rr.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, "error", events[0].Event)
		assert.Contains(t, events[0].Data, "badly-formed JSON")
		assert.Empty(t, rr.Header().Get(SessionIDHeader))
	})

	t.Run("validation failure", func(t *testing.T) {
		_, router := setupHandlerTest()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat",
			strings.NewReader(`{"location":{"latitude":1,"longitude":1},"messages":[]}`)))

		events := parseSSE(t, rr.Body.String())
		require.Len(t, events, 1)
		assert.JSONEq(t, `{"error":"messages must not be empty"}`, events[0].Data)
	})

	t.Run("missing location", func(t *testing.T) {
		f, router := setupHandlerTest()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat",
			strings.NewReader(`{"messages":[{"role":"user","content":"coffee"}]}`)))

		events := parseSSE(t, rr.Body.String())
		require.Len(t, events, 1)
		assert.JSONEq(t, `{"error":"location is required"}`, events[0].Data)
		f.llm.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything)
	})
}

func TestHandlerImpl_Sessions(t *testing.T) {
	f, router := setupHandlerTest()
	id := uuid.New()

	t.Run("unknown session has no search yet", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String(), nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var summary types.SessionSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
		assert.Equal(t, types.StateNoSearchYet, summary.State)
	})

	t.Run("bad id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("geojson of unknown session is not found", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String()+"/places.geojson", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("active session", func(t *testing.T) {
		seedSnapshot(t, f, id, rawPlace("p1", "Taberna", 4.5))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String(), nil))
		var summary types.SessionSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
		assert.Equal(t, types.StateHasActiveSearch, summary.State)
		assert.Equal(t, 1, summary.CandidateCount)

		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String()+"/places.geojson", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		var fc struct {
			Type     string `json:"type"`
			Features []struct {
				Geometry struct {
					Coordinates []float64 `json:"coordinates"`
				} `json:"geometry"`
			} `json:"features"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
		assert.Equal(t, "FeatureCollection", fc.Type)
		require.Len(t, fc.Features, 1)
		assert.Equal(t, []float64{-9.14, 38.71}, fc.Features[0].Geometry.Coordinates)
	})

	t.Run("end session", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id.String(), nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id.String(), nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)

		_, err := f.repo.Load(context.Background(), id)
		assert.ErrorIs(t, err, types.ErrSnapshotNotFound)
	})
}

func TestHandlerImpl_ListSessions(t *testing.T) {
	f, router := setupHandlerTest()

	t.Run("empty", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	older, newer := uuid.New(), uuid.New()
	seedSnapshot(t, f, older, rawPlace("p1", "Taberna", 4.5))
	time.Sleep(2 * time.Millisecond)
	seedSnapshot(t, f, newer, rawPlace("p2", "Cervejaria", 4.4), rawPlace("p3", "Tasca", 4.1))

	t.Run("newest first", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var list []types.SessionSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.Len(t, list, 2)
		assert.Equal(t, newer, list[0].SessionID)
		assert.Equal(t, 2, list[0].CandidateCount)
		assert.Equal(t, older, list[1].SessionID)
	})

	t.Run("limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions?limit=1", nil))

		var list []types.SessionSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, newer, list[0].SessionID)
	})

	for _, raw := range []string{"0", "201", "many"} {
		t.Run("invalid limit "+raw, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions?limit="+raw, nil))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}
