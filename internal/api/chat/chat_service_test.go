package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	"github.com/FACorreiaa/go-places-chat/internal/types"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

var lisbon = types.Location{Latitude: 38.72, Longitude: -9.14}

func userSays(contents ...string) []types.Message {
	msgs := make([]types.Message, 0, len(contents))
	for i, c := range contents {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		msgs = append(msgs, types.Message{Role: role, Content: c})
	}
	return msgs
}

func seedSnapshot(t *testing.T, f *chatFixture, id uuid.UUID, candidates ...places.Place) {
	t.Helper()
	require.NoError(t, f.repo.Save(context.Background(), types.CandidateSnapshot{
		SessionID:  id,
		Query:      "sushi restaurant",
		Location:   lisbon,
		Candidates: candidates,
	}))
}

func TestServiceImpl_FreshSearch(t *testing.T) {
	ctx := context.Background()
	f := setupChatTest()
	id := uuid.New()

	f.llm.On("GenerateText", mock.Anything, isOp(generativeAI.OpDeriveQuery)).
		Return("\"sushi restaurant\"\n", nil).Once()
	f.places.On("Search", mock.Anything, "sushi restaurant", &lisbon).
		Return([]places.Place{rawPlace("p1", "Sushi Go", 4.6), rawPlace("p2", "Omakase", 4.8)}, nil).Once()

	var savedBeforeNarration bool
	narration := iter.Seq2[string, error](func(yield func(string, error) bool) {
		_, err := f.repo.Load(context.Background(), id)
		savedBeforeNarration = err == nil
		for _, p := range []string{"Two ", "sushi spots."} {
			if !yield(p, nil) {
				return
			}
		}
	})
	f.llm.On("GenerateTextStream", mock.Anything, mock.MatchedBy(func(r generativeAI.Request) bool {
		return r.Operation == generativeAI.OpNarrate && strings.HasPrefix(r.Prompt, "Describe the places overall briefly")
	})).Return(narration).Once()

	stream, err := f.service.StartTurn(ctx, types.TurnRequest{
		SessionID: &id,
		Location:  &lisbon,
		Messages:  userSays("sushi near me"),
	})
	require.NoError(t, err)
	assert.Equal(t, id, stream.SessionID)

	events := collect(t, stream.Events)
	require.Equal(t, []types.TurnEventKind{types.EventFragment, types.EventFragment, types.EventResult, types.EventEnd}, kinds(events))
	assert.True(t, savedBeforeNarration, "snapshot must be persisted before narration starts")

	assert.Equal(t, "Two ", events[0].Response.Response)
	assert.Equal(t, "Two sushi spots.", events[1].Response.Response)
	assert.NotNil(t, events[0].Response.Places)
	assert.Empty(t, events[0].Response.Places)

	result := events[2].Response
	assert.Equal(t, "Two sushi spots.", result.Response)
	require.Len(t, result.Places, 2)
	for _, p := range result.Places {
		assert.Equal(t, 1.0, p.Relevancy)
	}
	assert.Equal(t, []string{"p1", "p2"}, ids(result.Places))
	assert.Equal(t, "Omakase", result.Places[1].Name)
	assert.Equal(t, "https://maps.google.com/?cid=p2", result.Places[1].WebsiteURL)
	assert.Equal(t, "https://p2.example", result.Places[1].URL)

	snap, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sushi restaurant", snap.Query)
	assert.Equal(t, lisbon, snap.Location)
	assert.Len(t, snap.Candidates, 2)

	f.llm.AssertExpectations(t)
	f.places.AssertExpectations(t)
}

func TestServiceImpl_Refinement(t *testing.T) {
	ctx := context.Background()
	f := setupChatTest()
	id := uuid.New()
	seedSnapshot(t, f, id,
		rawPlace("p1", "Sushi Go", 4.6),
		rawPlace("p2", "Omakase", 4.8),
		rawPlace("p3", "Temaki Bar", 4.1),
	)

	f.llm.On("GenerateJSON", mock.Anything, isOp(generativeAI.OpRank), relevanciesSchema, mock.AnythingOfType("*types.Relevancies")).
		Run(func(args mock.Arguments) {
			out := args.Get(3).(*types.Relevancies)
			out.Relevancies = []types.Relevancy{
				{ID: "p1", Relevancy: 0.4},
				{ID: "ghost", Relevancy: 1},
				{ID: "p2", Relevancy: 0.9},
				{ID: "p1", Relevancy: 0.95},
			}
		}).Return(nil).Once()
	f.llm.On("GenerateTextStream", mock.Anything, mock.MatchedBy(func(r generativeAI.Request) bool {
		return r.Operation == generativeAI.OpNarrate &&
			strings.Contains(r.SystemInstruction, "Never quote numeric relevancy scores") &&
			strings.Contains(r.Prompt, "p1, p2, p3") &&
			!strings.Contains(r.Prompt, "0.9")
	})).Return(fragments("Omakase fits a budget ", "less well, but...")).Once()

	stream, err := f.service.StartTurn(ctx, types.TurnRequest{
		SessionID: &id,
		Location:  &lisbon,
		Messages:  userSays("sushi near me", "Here are three places.", "something more upscale"),
	})
	require.NoError(t, err)

	events := collect(t, stream.Events)
	require.Equal(t, []types.TurnEventKind{types.EventFragment, types.EventFragment, types.EventResult}, kinds(events))

	result := events[2].Response
	assert.Equal(t, "Omakase fits a budget less well, but...", result.Response)
	assert.Equal(t, []string{"p2", "p1"}, ids(result.Places))
	assert.Equal(t, 0.9, result.Places[0].Relevancy)
	assert.Equal(t, 0.4, result.Places[1].Relevancy)
	assert.Equal(t, "Omakase", result.Places[0].Name)

	f.places.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	snap, err := f.repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, snap.Candidates, 3, "refinement must not touch the snapshot")
	f.llm.AssertExpectations(t)
}

func TestServiceImpl_RefinementUsesCallerRelevancies(t *testing.T) {
	f := setupChatTest()
	id := uuid.New()
	seedSnapshot(t, f, id, rawPlace("p1", "Sushi Go", 4.6), rawPlace("p2", "Omakase", 4.8))

	f.llm.On("GenerateJSON", mock.Anything, isOp(generativeAI.OpRank), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(3).(*types.Relevancies).Relevancies = []types.Relevancy{{ID: "p1", Relevancy: 0.7}}
		}).Return(nil).Once()
	f.llm.On("GenerateTextStream", mock.Anything, mock.MatchedBy(func(r generativeAI.Request) bool {
		return strings.Contains(r.Prompt, "Previous ranking, best match first (ids):\np2, p1") &&
			!strings.Contains(r.Prompt, "0.35")
	})).Return(fragments("ok")).Once()

	stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
		SessionID:           &id,
		Intent:              types.IntentRefine,
		Location:            &lisbon,
		Messages:            userSays("cheaper"),
		ProposedLocationIDs: []types.Relevancy{{ID: "p1", Relevancy: 0.35}, {ID: "p2", Relevancy: 0.8}},
	})
	require.NoError(t, err)

	events := collect(t, stream.Events)
	require.Equal(t, []types.TurnEventKind{types.EventFragment, types.EventResult}, kinds(events))
	assert.Equal(t, []string{"p1"}, ids(events[1].Response.Places))
	f.llm.AssertExpectations(t)
}

func TestServiceImpl_MissingSnapshot(t *testing.T) {
	f := setupChatTest()
	id := uuid.New()

	stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
		SessionID: &id,
		Intent:    types.IntentRefine,
		Location:  &lisbon,
		Messages:  userSays("a", "b", "c"),
	})
	require.NoError(t, err)

	events := collect(t, stream.Events)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Kind)
	assert.Equal(t, types.KindMissingSnapshot, types.KindOf(events[0].Err))
	f.llm.AssertNotCalled(t, "GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.llm.AssertNotCalled(t, "GenerateTextStream", mock.Anything, mock.Anything)
}

func TestServiceImpl_LookupFailure(t *testing.T) {
	f := setupChatTest()
	id := uuid.New()
	upstream := &places.StatusError{StatusCode: 500, Body: "backend unavailable"}

	f.llm.On("GenerateText", mock.Anything, isOp(generativeAI.OpDeriveQuery)).Return("ramen", nil).Once()
	f.places.On("Search", mock.Anything, "ramen", mock.Anything).
		Return(nil, types.NewTurnError(types.KindUpstreamLookupFailure, "places lookup failed", upstream)).Once()

	stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
		SessionID: &id,
		Location:  &lisbon,
		Messages:  userSays("ramen"),
	})
	require.NoError(t, err)

	events := collect(t, stream.Events)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Kind)
	assert.Equal(t, types.KindUpstreamLookupFailure, types.KindOf(events[0].Err))
	var statusErr *places.StatusError
	require.ErrorAs(t, events[0].Err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)

	_, err = f.repo.Load(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrSnapshotNotFound)
	f.llm.AssertNotCalled(t, "GenerateTextStream", mock.Anything, mock.Anything)
}

func TestServiceImpl_DeriveFailure(t *testing.T) {
	f := setupChatTest()
	f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded")).Once()

	stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
		Intent:   types.IntentNewSearch,
		Location: &lisbon,
		Messages: userSays("tapas"),
	})
	require.NoError(t, err)

	events := collect(t, stream.Events)
	require.Len(t, events, 1)
	assert.Equal(t, types.KindModelInvocationFailure, types.KindOf(events[0].Err))
	assert.Contains(t, events[0].Err.Error(), "quota exceeded")
	f.places.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestServiceImpl_NarrationFailure(t *testing.T) {
	f := setupChatTest()
	id := uuid.New()
	seedSnapshot(t, f, id, rawPlace("p1", "Sushi Go", 4.6))

	f.llm.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(3).(*types.Relevancies).Relevancies = []types.Relevancy{{ID: "p1", Relevancy: 0.5}}
		}).Return(nil).Once()
	f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).
		Return(failingStream(errors.New("stream reset"), "Sushi Go is ")).Once()

	stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
		SessionID: &id,
		Location:  &lisbon,
		Messages:  userSays("anything open late?"),
	})
	require.NoError(t, err)

	events := collect(t, stream.Events)
	require.Equal(t, []types.TurnEventKind{types.EventFragment, types.EventError}, kinds(events))
	assert.Equal(t, types.KindModelInvocationFailure, types.KindOf(events[1].Err))
}

func TestServiceImpl_LegacyClassifier(t *testing.T) {
	t.Run("short conversations start a fresh search on the shared slot", func(t *testing.T) {
		f := setupChatTest()
		f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("pizza", nil).Once()
		f.places.On("Search", mock.Anything, "pizza", mock.Anything).
			Return([]places.Place{rawPlace("p1", "Forno", 4.5)}, nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("One pizzeria.")).Once()

		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			Location: &lisbon,
			Messages: userSays("pizza", "Sure, where?"),
		})
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, stream.SessionID)

		events := collect(t, stream.Events)
		assert.Equal(t, types.EventEnd, events[len(events)-1].Kind)
		_, err = f.repo.Load(context.Background(), uuid.Nil)
		assert.NoError(t, err)
	})

	t.Run("longer conversations refine the shared slot", func(t *testing.T) {
		f := setupChatTest()

		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			Location: &lisbon,
			Messages: userSays("pizza", "Here you go", "cheaper"),
		})
		require.NoError(t, err)

		events := collect(t, stream.Events)
		require.Len(t, events, 1)
		assert.Equal(t, types.KindMissingSnapshot, types.KindOf(events[0].Err))
		f.llm.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything)
	})
}

func TestServiceImpl_IntentOverrides(t *testing.T) {
	t.Run("new_search without a session gets a fresh session id", func(t *testing.T) {
		f := setupChatTest()
		f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("bakery", nil).Once()
		f.places.On("Search", mock.Anything, "bakery", mock.Anything).Return([]places.Place{}, nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("Nothing found.")).Once()

		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			Intent:   types.IntentNewSearch,
			Location: &lisbon,
			Messages: userSays("a", "b", "c", "d", "bakery"),
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, stream.SessionID)

		events := collect(t, stream.Events)
		require.Equal(t, []types.TurnEventKind{types.EventFragment, types.EventResult, types.EventEnd}, kinds(events))
		assert.Empty(t, events[1].Response.Places)
		_, err = f.repo.Load(context.Background(), stream.SessionID)
		assert.NoError(t, err)
	})

	t.Run("new_search replaces an existing snapshot", func(t *testing.T) {
		f := setupChatTest()
		id := uuid.New()
		seedSnapshot(t, f, id, rawPlace("old", "Old Place", 4.2))

		f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("gelato", nil).Once()
		f.places.On("Search", mock.Anything, "gelato", mock.Anything).
			Return([]places.Place{rawPlace("new", "Gelateria", 4.7)}, nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("Gelato!")).Once()

		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			SessionID: &id,
			Intent:    types.IntentNewSearch,
			Location:  &lisbon,
			Messages:  userSays("actually, ice cream"),
		})
		require.NoError(t, err)
		collect(t, stream.Events)

		snap, err := f.repo.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "gelato", snap.Query)
		require.Len(t, snap.Candidates, 1)
		assert.Equal(t, "new", snap.Candidates[0].ID)
	})

	t.Run("session without snapshot starts fresh regardless of length", func(t *testing.T) {
		f := setupChatTest()
		id := uuid.New()
		f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("wine bar", nil).Once()
		f.places.On("Search", mock.Anything, "wine bar", mock.Anything).Return([]places.Place{}, nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("None.")).Once()

		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			SessionID: &id,
			Location:  &lisbon,
			Messages:  userSays("a", "b", "c", "d", "wine"),
		})
		require.NoError(t, err)
		events := collect(t, stream.Events)
		assert.Equal(t, types.EventEnd, events[len(events)-1].Kind)
	})
}

func TestServiceImpl_Deterministic(t *testing.T) {
	run := func() []types.TurnEvent {
		f := setupChatTest()
		id := uuid.MustParse("5b7f3c1e-9f51-4f0e-8d5e-3f4b2a8c9d10")
		seedSnapshot(t, f, id, rawPlace("p1", "A", 4.1), rawPlace("p2", "B", 4.2), rawPlace("p3", "C", 4.3))
		f.llm.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				args.Get(3).(*types.Relevancies).Relevancies = []types.Relevancy{
					{ID: "p3", Relevancy: 0.5}, {ID: "p1", Relevancy: 0.5}, {ID: "p2", Relevancy: 0.8},
				}
			}).Return(nil).Once()
		f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).Return(fragments("B first.")).Once()

		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			SessionID: &id,
			Location:  &lisbon,
			Messages:  userSays("rank them"),
		})
		require.NoError(t, err)
		return collect(t, stream.Events)
	}

	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("turns differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{"p2", "p3", "p1"}, ids(first[len(first)-1].Response.Places))
}

func TestServiceImpl_ClientDisconnect(t *testing.T) {
	f := setupChatTest()
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("noodles", nil).Once()
	f.places.On("Search", mock.Anything, "noodles", mock.Anything).
		Return([]places.Place{rawPlace("p1", "Noodle Bar", 4.4)}, nil).Once()
	f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).
		Return(iter.Seq2[string, error](func(yield func(string, error) bool) {
			close(started)
			<-ctx.Done()
			yield("", ctx.Err())
		})).Once()

	stream, err := f.service.StartTurn(ctx, types.TurnRequest{
		SessionID: &id,
		Location:  &lisbon,
		Messages:  userSays("noodles"),
	})
	require.NoError(t, err)

	<-started
	cancel()
	assert.Empty(t, collect(t, stream.Events))

	_, err = f.repo.Load(context.Background(), id)
	assert.NoError(t, err, "snapshot saved before narration survives the disconnect")
}

func TestServiceImpl_LegacyTurnsNarrateConcurrently(t *testing.T) {
	f := setupChatTest()
	narrating := make(chan struct{}, 2)
	release := make(chan struct{})

	f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("tapas", nil).Twice()
	f.places.On("Search", mock.Anything, "tapas", mock.Anything).
		Return([]places.Place{rawPlace("p1", "Taberna", 4.3)}, nil).Twice()
	f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).
		Return(iter.Seq2[string, error](func(yield func(string, error) bool) {
			narrating <- struct{}{}
			<-release
			yield("Tapas.", nil)
		})).Twice()

	var streams []*TurnStream
	for range 2 {
		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			Location: &lisbon,
			Messages: userSays("tapas"),
		})
		require.NoError(t, err)
		require.Equal(t, uuid.Nil, stream.SessionID)
		streams = append(streams, stream)
	}

	for i := range 2 {
		select {
		case <-narrating:
		case <-time.After(2 * time.Second):
			t.Fatalf("legacy turn %d did not reach narration while the other was narrating", i+1)
		}
	}
	close(release)

	for _, stream := range streams {
		events := collect(t, stream.Events)
		assert.Equal(t, types.EventEnd, events[len(events)-1].Kind)
	}
	_, err := f.repo.Load(context.Background(), uuid.Nil)
	assert.NoError(t, err)
}

func TestServiceImpl_KeyedTurnsAreSerialised(t *testing.T) {
	f := setupChatTest()
	id := uuid.New()
	narrating := make(chan struct{}, 2)
	release := make(chan struct{})

	f.llm.On("GenerateText", mock.Anything, mock.Anything).Return("tapas", nil).Twice()
	f.places.On("Search", mock.Anything, "tapas", mock.Anything).
		Return([]places.Place{rawPlace("p1", "Taberna", 4.3)}, nil).Twice()
	f.llm.On("GenerateTextStream", mock.Anything, mock.Anything).
		Return(iter.Seq2[string, error](func(yield func(string, error) bool) {
			narrating <- struct{}{}
			<-release
			yield("Tapas.", nil)
		})).Twice()

	start := func() *TurnStream {
		stream, err := f.service.StartTurn(context.Background(), types.TurnRequest{
			SessionID: &id,
			Intent:    types.IntentNewSearch,
			Location:  &lisbon,
			Messages:  userSays("tapas"),
		})
		require.NoError(t, err)
		return stream
	}
	first, second := start(), start()

	<-narrating
	select {
	case <-narrating:
		t.Fatal("second turn of the same session ran while the first was narrating")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	var wg sync.WaitGroup
	for _, stream := range []*TurnStream{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range stream.Events {
			}
		}()
	}
	wg.Wait()
	f.llm.AssertNumberOfCalls(t, "GenerateTextStream", 2)
}

func TestServiceImpl_StartTurnValidation(t *testing.T) {
	f := setupChatTest()
	_, err := f.service.StartTurn(context.Background(), types.TurnRequest{Location: &lisbon})
	require.Error(t, err)
	assert.Equal(t, types.KindValidationFailure, types.KindOf(err))
}

func TestServiceImpl_Sessions(t *testing.T) {
	ctx := context.Background()
	f := setupChatTest()
	id := uuid.New()

	summary, err := f.service.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateNoSearchYet, summary.State)
	assert.Nil(t, summary.CreatedAt)

	_, err = f.service.SessionSnapshot(ctx, id)
	assert.Equal(t, types.KindMissingSnapshot, types.KindOf(err))

	err = f.service.EndSession(ctx, id)
	assert.Equal(t, types.KindMissingSnapshot, types.KindOf(err))

	seedSnapshot(t, f, id, rawPlace("p1", "A", 4.1), rawPlace("p2", "B", 4.2))

	summary, err = f.service.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateHasActiveSearch, summary.State)
	assert.Equal(t, "sushi restaurant", summary.Query)
	assert.Equal(t, 2, summary.CandidateCount)
	assert.NotNil(t, summary.CreatedAt)

	snap, err := f.service.SessionSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Len(t, snap.Candidates, 2)

	require.NoError(t, f.service.EndSession(ctx, id))
	summary, err = f.service.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateNoSearchYet, summary.State)
	assert.Zero(t, f.service.locks.len())
}
