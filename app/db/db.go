package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	uuid "github.com/vgarvardt/pgx-google-uuid/v5"

	"github.com/FACorreiaa/go-places-chat/config"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	readyAttempts = 5
	readyBackoff  = 200 * time.Millisecond
)

// ConnectionURL builds the postgresql:// URL of the snapshot database.
func ConnectionURL(cfg *config.Config) (string, error) {
	if cfg == nil || cfg.Repositories.Postgres.Host == "" {
		return "", errors.New("repositories.postgres.host is required for the postgres snapshot backend")
	}
	pg := cfg.Repositories.Postgres

	sslMode := pg.SSLMODE
	if sslMode == "" {
		sslMode = "disable"
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(pg.Username, pg.Password),
		Host:     pg.Host + ":" + pg.Port,
		Path:     pg.DB,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}

// Open creates the pool and waits until the database answers.
func Open(ctx context.Context, connectionURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot database url: %w", err)
	}
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		uuid.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create snapshot database pool: %w", err)
	}
	if err := waitReady(ctx, pool, readyAttempts, readyBackoff, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "Snapshot database ready",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.String("database", poolCfg.ConnConfig.Database))
	return pool, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// waitReady pings with a linear backoff until the database answers, the
// attempts run out or ctx ends.
func waitReady(ctx context.Context, db pinger, attempts int, backoff time.Duration, logger *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = db.Ping(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		wait := time.Duration(attempt) * backoff
		logger.WarnContext(ctx, "Snapshot database not ready",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for snapshot database: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("snapshot database unreachable after %d attempts: %w", attempts, err)
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, errors.New("invalid database URL scheme for migrate, ensure it starts with postgresql://")
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("initialize migrate: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, logger *slog.Logger) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		logger.Warn("Failed to close migrator", slog.Any("error", err))
	}
}

// RunMigrations brings the candidate_snapshots schema up to date.
func RunMigrations(databaseURL string, logger *slog.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply snapshot migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		logger.Warn("Could not read snapshot schema version", slog.Any("error", err))
	case dirty:
		return fmt.Errorf("snapshot schema is dirty at version %d", version)
	default:
		logger.Info("Snapshot schema ready",
			slog.Uint64("version", uint64(version)),
			slog.Bool("changed", upErr == nil))
	}
	return nil
}

// RollbackMigrations reverts steps migrations of the snapshot schema.
func RollbackMigrations(databaseURL string, steps int, logger *slog.Logger) error {
	if steps < 1 {
		return fmt.Errorf("rollback steps must be at least 1, got %d", steps)
	}
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back %d snapshot migrations: %w", steps, err)
	}
	logger.Info("Snapshot migrations rolled back", slog.Int("steps", steps))
	return nil
}
