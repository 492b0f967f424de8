package chat

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"google.golang.org/genai"

	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	"github.com/FACorreiaa/go-places-chat/internal/api/snapshot"
	"github.com/FACorreiaa/go-places-chat/internal/types"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) GenerateText(ctx context.Context, req generativeAI.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) GenerateTextStream(ctx context.Context, req generativeAI.Request) iter.Seq2[string, error] {
	args := m.Called(ctx, req)
	return args.Get(0).(iter.Seq2[string, error])
}

func (m *MockProvider) GenerateJSON(ctx context.Context, req generativeAI.Request, schema *genai.Schema, out any) error {
	args := m.Called(ctx, req, schema, out)
	return args.Error(0)
}

type MockPlacesService struct {
	mock.Mock
}

func (m *MockPlacesService) Search(ctx context.Context, query string, near *types.Location) ([]places.Place, error) {
	args := m.Called(ctx, query, near)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]places.Place), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

func rawPlace(id, name string, rating float64) places.Place {
	return places.Place{
		ID:              id,
		DisplayName:     &places.DisplayName{Text: name},
		PrimaryType:     "restaurant",
		Rating:          ptr(rating),
		UserRatingCount: ptr(420),
		Location:        &places.Location{Latitude: ptr(38.71), Longitude: ptr(-9.14)},
		GoogleMapsURI:   "https://maps.google.com/?cid=" + id,
		WebsiteURI:      "https://" + id + ".example",
	}
}

func fragments(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func failingStream(err error, parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
		yield("", err)
	}
}

func isOp(op string) any {
	return mock.MatchedBy(func(r generativeAI.Request) bool { return r.Operation == op })
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type chatFixture struct {
	service *ServiceImpl
	llm     *MockProvider
	places  *MockPlacesService
	repo    *snapshot.MemoryRepository
}

func setupChatTest() *chatFixture {
	f := &chatFixture{
		llm:    new(MockProvider),
		places: new(MockPlacesService),
		repo:   snapshot.NewMemoryRepository(0),
	}
	f.service = NewServiceImpl(f.llm, f.places, f.repo, DefaultOptions(), testLogger())
	return f
}

// collect drains a turn until its channel closes.
func collect(t *testing.T, events <-chan types.TurnEvent) []types.TurnEvent {
	t.Helper()
	var out []types.TurnEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("turn did not finish")
			return nil
		}
	}
}

func kinds(events []types.TurnEvent) []types.TurnEventKind {
	out := make([]types.TurnEventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func ids(ps []types.Place) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
