package snapshot

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-places-chat/app/observability/metrics"
	"github.com/FACorreiaa/go-places-chat/internal/types"
)

// Repository persists the candidate snapshot of each session. Save overwrites
// the session's slot, keeping its original creation time. Load and Delete
// return types.ErrSnapshotNotFound for unknown sessions. List returns the
// most recently updated sessions first, at most limit of them when limit > 0.
type Repository interface {
	Save(ctx context.Context, snapshot types.CandidateSnapshot) error
	Load(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
	List(ctx context.Context, limit int) ([]types.SessionSummary, error)
}

var _ Repository = (*instrumented)(nil)

type instrumented struct {
	next Repository
}

// WithMetrics counts every operation of next by outcome.
func WithMetrics(next Repository) Repository {
	return &instrumented{next: next}
}

func observe(ctx context.Context, op string, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, types.ErrSnapshotNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.Get().SnapshotOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (r *instrumented) Save(ctx context.Context, s types.CandidateSnapshot) error {
	err := r.next.Save(ctx, s)
	observe(ctx, "save", err)
	return err
}

func (r *instrumented) Load(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error) {
	s, err := r.next.Load(ctx, sessionID)
	observe(ctx, "load", err)
	return s, err
}

func (r *instrumented) Delete(ctx context.Context, sessionID uuid.UUID) error {
	err := r.next.Delete(ctx, sessionID)
	observe(ctx, "delete", err)
	return err
}

func (r *instrumented) List(ctx context.Context, limit int) ([]types.SessionSummary, error) {
	list, err := r.next.List(ctx, limit)
	observe(ctx, "list", err)
	return list, err
}

func summarize(s types.CandidateSnapshot) types.SessionSummary {
	return types.SessionSummary{
		SessionID:      s.SessionID,
		State:          types.StateHasActiveSearch,
		Query:          s.Query,
		CandidateCount: len(s.Candidates),
		CreatedAt:      &s.CreatedAt,
		UpdatedAt:      &s.UpdatedAt,
	}
}

// newestFirst orders summaries by update time, then by session id, and
// applies limit.
func newestFirst(list []types.SessionSummary, limit int) []types.SessionSummary {
	slices.SortFunc(list, func(a, b types.SessionSummary) int {
		if c := b.UpdatedAt.Compare(*a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID.String(), b.SessionID.String())
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

func utcNow() time.Time {
	return time.Now().UTC()
}
