package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-places-chat/app/observability/metrics"
	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	placesService "github.com/FACorreiaa/go-places-chat/internal/api/places"
	"github.com/FACorreiaa/go-places-chat/internal/api/snapshot"
	"github.com/FACorreiaa/go-places-chat/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service runs conversational turns and exposes the session state behind them.
type Service interface {
	// StartTurn validates req and starts the turn in the background. The
	// returned stream's Events channel is closed once the turn is over.
	StartTurn(ctx context.Context, req types.TurnRequest) (*TurnStream, error)
	Session(ctx context.Context, sessionID uuid.UUID) (*types.SessionSummary, error)
	// Sessions lists the sessions holding search results, most recently
	// updated first.
	Sessions(ctx context.Context, limit int) ([]types.SessionSummary, error)
	SessionSnapshot(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error)
	EndSession(ctx context.Context, sessionID uuid.UUID) error
}

// TurnStream is a running turn.
type TurnStream struct {
	SessionID uuid.UUID
	Events    <-chan types.TurnEvent
}

type Options struct {
	// LegacyFreshSearchMaxMessages is the largest message count treated as a
	// fresh search for requests without a session id.
	LegacyFreshSearchMaxMessages int
}

func DefaultOptions() Options {
	return Options{LegacyFreshSearchMaxMessages: 2}
}

type ServiceImpl struct {
	logger    *slog.Logger
	places    placesService.Service
	snapshots snapshot.Repository
	deriver   *QueryDeriver
	ranker    *Ranker
	narrator  *Narrator
	locks     *sessionLocks
	opts      Options
	now       func() time.Time
}

func NewServiceImpl(llm generativeAI.Provider, places placesService.Service, snapshots snapshot.Repository, opts Options, logger *slog.Logger) *ServiceImpl {
	if opts.LegacyFreshSearchMaxMessages < 1 {
		opts.LegacyFreshSearchMaxMessages = DefaultOptions().LegacyFreshSearchMaxMessages
	}
	return &ServiceImpl{
		logger:    logger,
		places:    places,
		snapshots: snapshots,
		deriver:   NewQueryDeriver(llm),
		ranker:    NewRanker(llm),
		narrator:  NewNarrator(llm),
		locks:     newSessionLocks(),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// sessionFor picks the slot a request runs against. Requests without a
// session id share the legacy slot unless they ask for a new search.
func sessionFor(req types.TurnRequest) uuid.UUID {
	switch {
	case req.SessionID != nil:
		return *req.SessionID
	case req.Intent == types.IntentNewSearch:
		return uuid.New()
	default:
		return uuid.Nil
	}
}

func (s *ServiceImpl) StartTurn(ctx context.Context, req types.TurnRequest) (*TurnStream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sessionID := sessionFor(req)
	events := make(chan types.TurnEvent)
	go s.runTurn(ctx, sessionID, req, events)

	return &TurnStream{SessionID: sessionID, Events: events}, nil
}

func (s *ServiceImpl) runTurn(ctx context.Context, sessionID uuid.UUID, req types.TurnRequest, events chan<- types.TurnEvent) {
	defer close(events)

	l := s.logger.With(slog.String("ServiceImpl", "StartTurn"), slog.String("session_id", sessionID.String()))
	ctx, span := otel.Tracer("ChatService").Start(ctx, "Turn", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
		attribute.Int("messages.count", len(req.Messages)),
	))
	defer span.End()

	emit := func(ev types.TurnEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	start := time.Now()
	// Turns on the shared legacy slot only lock around single store calls.
	if sessionID != uuid.Nil {
		if err := s.locks.Lock(ctx, sessionID); err != nil {
			l.WarnContext(ctx, "Turn abandoned while waiting for session", slog.Any("error", err))
			return
		}
		defer s.locks.Unlock(sessionID)
	}

	mode, snap, err := s.resolveMode(ctx, sessionID, req)
	if err == nil {
		span.SetAttributes(attribute.String("turn.mode", string(mode)))
		l.InfoContext(ctx, "Turn started", slog.String("mode", string(mode)))
		switch mode {
		case types.ModeFreshSearch:
			err = s.freshSearch(ctx, sessionID, req, emit)
		default:
			err = s.refine(ctx, sessionID, snap, req, emit)
		}
	}

	outcome := "success"
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = "canceled"
		l.InfoContext(ctx, "Turn canceled", slog.Any("error", err))
	case err != nil:
		outcome = types.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		l.ErrorContext(ctx, "Turn failed", slog.Any("error", err), slog.String("kind", outcome))
		emit(types.TurnEvent{Kind: types.EventError, Err: err})
	default:
		span.SetStatus(codes.Ok, "turn completed")
		l.InfoContext(ctx, "Turn completed", slog.Duration("latency", time.Since(start)))
	}

	attrs := metric.WithAttributes(attribute.String("mode", string(mode)), attribute.String("outcome", outcome))
	metrics.Get().ChatTurnsTotal.Add(context.WithoutCancel(ctx), 1, attrs)
	metrics.Get().ChatTurnDurationSeconds.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("mode", string(mode))))
}

// resolveMode decides the branch of a turn. For keyed sessions it runs under
// the session lock. A snapshot loaded on the way is returned for reuse.
func (s *ServiceImpl) resolveMode(ctx context.Context, sessionID uuid.UUID, req types.TurnRequest) (types.TurnMode, *types.CandidateSnapshot, error) {
	switch req.Intent {
	case types.IntentNewSearch:
		return types.ModeFreshSearch, nil, nil
	case types.IntentRefine:
		return types.ModeRefinement, nil, nil
	}

	if req.SessionID == nil {
		if len(req.Messages) <= s.opts.LegacyFreshSearchMaxMessages {
			return types.ModeFreshSearch, nil, nil
		}
		return types.ModeRefinement, nil, nil
	}

	snap, err := s.loadSnapshot(ctx, sessionID)
	switch {
	case errors.Is(err, types.ErrSnapshotNotFound):
		return types.ModeFreshSearch, nil, nil
	case err != nil:
		return "", nil, types.NewTurnError(types.KindUnknown, "failed to load session", err)
	}
	return types.ModeRefinement, snap, nil
}

func (s *ServiceImpl) freshSearch(ctx context.Context, sessionID uuid.UUID, req types.TurnRequest, emit func(types.TurnEvent) bool) error {
	query, err := s.deriver.Derive(ctx, req.Messages)
	if err != nil {
		return err
	}

	raw, err := s.places.Search(ctx, query, req.Location)
	if err != nil {
		return err
	}

	candidates := make([]types.Place, 0, len(raw))
	for _, p := range raw {
		candidates = append(candidates, placesService.ToCandidate(p, 1))
	}

	now := s.now()
	if err := s.saveSnapshot(ctx, types.CandidateSnapshot{
		SessionID:  sessionID,
		Query:      query,
		Location:   *req.Location,
		Candidates: raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return types.NewTurnError(types.KindUnknown, "failed to save search results", err)
	}

	text, err := s.narrate(ctx, NarrationInput{Candidates: candidates}, emit)
	if err != nil {
		return err
	}

	if !emit(types.TurnEvent{Kind: types.EventResult, Response: types.TurnResponse{Response: text, Places: candidates}}) {
		return ctx.Err()
	}
	if !emit(types.TurnEvent{Kind: types.EventEnd}) {
		return ctx.Err()
	}
	return nil
}

func (s *ServiceImpl) refine(ctx context.Context, sessionID uuid.UUID, snap *types.CandidateSnapshot, req types.TurnRequest, emit func(types.TurnEvent) bool) error {
	if snap == nil {
		var err error
		snap, err = s.loadSnapshot(ctx, sessionID)
		if errors.Is(err, types.ErrSnapshotNotFound) {
			return types.NewTurnError(types.KindMissingSnapshot, "no search has been made in this conversation yet", err)
		}
		if err != nil {
			return types.NewTurnError(types.KindUnknown, "failed to load search results", err)
		}
	}

	assignment, err := s.ranker.Rank(ctx, req.Messages, snap.Candidates)
	if err != nil {
		return err
	}
	ranked := ApplyRelevancies(snap.Candidates, assignment)

	previous := req.ProposedLocationIDs
	if previous == nil {
		previous = make([]types.Relevancy, 0, len(snap.Candidates))
		for _, p := range snap.Candidates {
			previous = append(previous, types.Relevancy{ID: p.ID, Relevancy: 1})
		}
	}

	text, err := s.narrate(ctx, NarrationInput{
		Candidates: ranked,
		Previous:   previous,
		Transcript: types.Transcript(req.Messages),
	}, emit)
	if err != nil {
		return err
	}

	if !emit(types.TurnEvent{Kind: types.EventResult, Response: types.TurnResponse{Response: text, Places: ranked}}) {
		return ctx.Err()
	}
	return nil
}

// saveSnapshot and loadSnapshot lock the legacy slot for the single store
// call. Keyed sessions are already locked for the whole turn.
func (s *ServiceImpl) saveSnapshot(ctx context.Context, snap types.CandidateSnapshot) error {
	if snap.SessionID == uuid.Nil {
		if err := s.locks.Lock(ctx, uuid.Nil); err != nil {
			return err
		}
		defer s.locks.Unlock(uuid.Nil)
	}
	return s.snapshots.Save(ctx, snap)
}

func (s *ServiceImpl) loadSnapshot(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error) {
	if sessionID == uuid.Nil {
		if err := s.locks.Lock(ctx, uuid.Nil); err != nil {
			return nil, err
		}
		defer s.locks.Unlock(uuid.Nil)
	}
	return s.snapshots.Load(ctx, sessionID)
}

// narrate forwards every fragment as the cumulative text so far and returns
// the final text.
func (s *ServiceImpl) narrate(ctx context.Context, in NarrationInput, emit func(types.TurnEvent) bool) (string, error) {
	var b strings.Builder
	for fragment, err := range s.narrator.Narrate(ctx, in) {
		if err != nil {
			return "", err
		}
		if fragment == "" {
			continue
		}
		b.WriteString(fragment)
		if !emit(types.TurnEvent{Kind: types.EventFragment, Response: types.TurnResponse{Response: b.String(), Places: []types.Place{}}}) {
			return "", ctx.Err()
		}
	}
	return b.String(), nil
}

func (s *ServiceImpl) Session(ctx context.Context, sessionID uuid.UUID) (*types.SessionSummary, error) {
	snap, err := s.snapshots.Load(ctx, sessionID)
	if errors.Is(err, types.ErrSnapshotNotFound) {
		return &types.SessionSummary{SessionID: sessionID, State: types.StateNoSearchYet}, nil
	}
	if err != nil {
		return nil, types.NewTurnError(types.KindUnknown, "failed to load session", err)
	}
	return &types.SessionSummary{
		SessionID:      sessionID,
		State:          types.StateHasActiveSearch,
		Query:          snap.Query,
		CandidateCount: len(snap.Candidates),
		CreatedAt:      &snap.CreatedAt,
		UpdatedAt:      &snap.UpdatedAt,
	}, nil
}

func (s *ServiceImpl) Sessions(ctx context.Context, limit int) ([]types.SessionSummary, error) {
	list, err := s.snapshots.List(ctx, limit)
	if err != nil {
		return nil, types.NewTurnError(types.KindUnknown, "failed to list sessions", err)
	}
	return list, nil
}

func (s *ServiceImpl) SessionSnapshot(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error) {
	snap, err := s.snapshots.Load(ctx, sessionID)
	if errors.Is(err, types.ErrSnapshotNotFound) {
		return nil, types.NewTurnError(types.KindMissingSnapshot, "session has no search results", err)
	}
	if err != nil {
		return nil, types.NewTurnError(types.KindUnknown, "failed to load session", err)
	}
	return snap, nil
}

// EndSession drops the session's snapshot once any running turn is done.
func (s *ServiceImpl) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.locks.Lock(ctx, sessionID); err != nil {
		return err
	}
	defer s.locks.Unlock(sessionID)

	err := s.snapshots.Delete(ctx, sessionID)
	if errors.Is(err, types.ErrSnapshotNotFound) {
		return types.NewTurnError(types.KindMissingSnapshot, "session has no search results", err)
	}
	if err != nil {
		return types.NewTurnError(types.KindUnknown, "failed to end session", err)
	}
	s.logger.InfoContext(ctx, "Session ended", slog.String("session_id", sessionID.String()))
	return nil
}
