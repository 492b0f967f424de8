package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/FACorreiaa/go-places-chat/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS candidate_snapshots (
	session_id TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	location   TEXT NOT NULL,
	candidates TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository stores snapshots in a local SQLite file.
type SQLiteRepository struct {
	logger *slog.Logger
	db     *sql.DB
	now    func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at path,
// configures WAL mode and creates the snapshot table.
func NewSQLiteRepository(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("sqlite: exec %q: %w", stmt, err)
		}
	}
	return &SQLiteRepository{logger: logger, db: db, now: utcNow}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Save(ctx context.Context, s types.CandidateSnapshot) error {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "SQLiteSave", trace.WithAttributes(
		semconv.DBSystemSqlite,
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

	now := r.now().Format(time.RFC3339Nano)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO candidate_snapshots (session_id, query, location, candidates, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			query = excluded.query,
			location = excluded.location,
			candidates = excluded.candidates,
			updated_at = excluded.updated_at`,
		s.SessionID.String(), s.Query, string(location), string(candidates), now, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save snapshot")
		r.logger.ErrorContext(ctx, "Failed to save candidate snapshot", slog.String("session_id", s.SessionID.String()), slog.Any("error", err))
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	span.SetStatus(codes.Ok, "Snapshot saved")
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error) {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "SQLiteLoad", trace.WithAttributes(
		semconv.DBSystemSqlite,
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	s := types.CandidateSnapshot{SessionID: sessionID}
	var location, candidates, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT query, location, candidates, created_at, updated_at FROM candidate_snapshots WHERE session_id = ?`,
		sessionID.String(),
	).Scan(&s.Query, &location, &candidates, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrSnapshotNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load snapshot")
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(location), &s.Location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	if err := json.Unmarshal([]byte(candidates), &s.Candidates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidates: %w", err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	span.SetStatus(codes.Ok, "Snapshot loaded")
	return &s, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "SQLiteDelete", trace.WithAttributes(
		semconv.DBSystemSqlite,
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	res, err := r.db.ExecContext(ctx, `DELETE FROM candidate_snapshots WHERE session_id = ?`, sessionID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete snapshot")
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return types.ErrSnapshotNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]types.SessionSummary, error) {
	ctx, span := otel.Tracer("SnapshotRepo").Start(ctx, "SQLiteList", trace.WithAttributes(
		semconv.DBSystemSqlite,
		attribute.Int("limit", limit),
	))
	defer span.End()

	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, query, json_array_length(candidates), created_at, updated_at FROM candidate_snapshots`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list snapshots")
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	list := []types.SessionSummary{}
	for rows.Next() {
		s := types.SessionSummary{State: types.StateHasActiveSearch}
		var id, createdAt, updatedAt string
		if err := rows.Scan(&id, &s.Query, &s.CandidateCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if s.SessionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse session id %q: %w", id, err)
		}
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		updated, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		s.CreatedAt, s.UpdatedAt = &created, &updated
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list snapshots")
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	span.SetStatus(codes.Ok, "Snapshots listed")
	return newestFirst(list, limit), nil
}
