package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-places-chat/internal/types"
)

// Pool is the subset of *pgxpool.Pool the repository uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	logger *slog.Logger
	pgpool Pool
	now    func() time.Time
}

func NewPostgresRepository(pgpool Pool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		pgpool: pgpool,
		now:    utcNow,
	}
}

func (r *PostgresRepository) Save(ctx context.Context, s types.CandidateSnapshot) error {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "Save", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "candidate_snapshots"),
		attribute.String("session.id", s.SessionID.String()),
		attribute.Int("candidates.count", len(s.Candidates)),
	))
	defer span.End()

	location, err := json.Marshal(s.Location)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}
	candidates, err := json.Marshal(s.Candidates)
	if err != nil {
		return fmt.Errorf("failed to marshal candidates: %w", err)
	}

	query := `
		INSERT INTO candidate_snapshots (session_id, query, location, candidates, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			query = EXCLUDED.query,
			location = EXCLUDED.location,
			candidates = EXCLUDED.candidates,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.pgpool.Exec(ctx, query, s.SessionID, s.Query, location, candidates, r.now()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save snapshot")
		r.logger.ErrorContext(ctx, "Failed to save candidate snapshot", slog.String("session_id", s.SessionID.String()), slog.Any("error", err))
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	span.SetStatus(codes.Ok, "Snapshot saved")
	return nil
}

func (r *PostgresRepository) Load(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error) {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "Load", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "candidate_snapshots"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	query := `
		SELECT query, location, candidates, created_at, updated_at
		FROM candidate_snapshots
		WHERE session_id = $1`

	s := types.CandidateSnapshot{SessionID: sessionID}
	var location, candidates []byte
	err := r.pgpool.QueryRow(ctx, query, sessionID).Scan(&s.Query, &location, &candidates, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Ok, "Snapshot not found")
		return nil, types.ErrSnapshotNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load snapshot")
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal(location, &s.Location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	if err := json.Unmarshal(candidates, &s.Candidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidates: %w", err)
	}

	span.SetAttributes(attribute.Int("candidates.count", len(s.Candidates)))
	span.SetStatus(codes.Ok, "Snapshot loaded")
	return &s, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "Delete", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "candidate_snapshots"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM candidate_snapshots WHERE session_id = $1`, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete snapshot")
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrSnapshotNotFound
	}
	span.SetStatus(codes.Ok, "Snapshot deleted")
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]types.SessionSummary, error) {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "List", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "candidate_snapshots"),
		attribute.Int("limit", limit),
	))
	defer span.End()

	query := `
		SELECT session_id, query, jsonb_array_length(candidates), created_at, updated_at
		FROM candidate_snapshots
		ORDER BY updated_at DESC, session_id
		LIMIT $1`

	var rowLimit *int
	if limit > 0 {
		rowLimit = &limit
	}
	rows, err := r.pgpool.Query(ctx, query, rowLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list snapshots")
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	list := []types.SessionSummary{}
	for rows.Next() {
		s := types.SessionSummary{State: types.StateHasActiveSearch}
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&s.SessionID, &s.Query, &s.CandidateCount, &createdAt, &updatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		s.CreatedAt, s.UpdatedAt = &createdAt, &updatedAt
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list snapshots")
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	span.SetAttributes(attribute.Int("sessions.count", len(list)))
	span.SetStatus(codes.Ok, "Snapshots listed")
	return list, nil
}
