package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	database "github.com/FACorreiaa/go-places-chat/app/db"
	"github.com/FACorreiaa/go-places-chat/config"
	"github.com/FACorreiaa/go-places-chat/internal/api/chat"
	generativeAI "github.com/FACorreiaa/go-places-chat/internal/api/generative_ai"
	placesService "github.com/FACorreiaa/go-places-chat/internal/api/places"
	"github.com/FACorreiaa/go-places-chat/internal/api/snapshot"
	"github.com/FACorreiaa/go-places-chat/pkg/anthropic"
	"github.com/FACorreiaa/go-places-chat/pkg/places"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	ChatService *chat.ServiceImpl
	ChatHandler *chat.HandlerImpl

	closers []func()
}

// NewContainer initializes and returns a new dependency container
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	snapshots, err := c.snapshotRepository(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	placesClient, err := newPlacesClient(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	filter := placesService.Filter{
		MinReviewCount: cfg.Filter.MinReviewCount,
		MinRating:      cfg.Filter.MinRating,
		RequireOpenNow: cfg.Filter.RequireOpenNow,
	}
	searchService := placesService.NewServiceImpl(placesClient, filter, cfg.Places.LocationBiasRadiusMeters, logger)

	llm, err := newProvider(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.ChatService = chat.NewServiceImpl(llm, searchService, snapshot.WithMetrics(snapshots), chat.Options{
		LegacyFreshSearchMaxMessages: cfg.Turns.LegacyFreshSearchMaxMessages,
	}, logger)
	c.ChatHandler = chat.NewHandlerImpl(c.ChatService, logger)

	logger.Info("Container initialized",
		slog.String("snapshot_backend", cfg.Snapshot.Backend),
		slog.String("llm_provider", cfg.LLM.Provider))
	return c, nil
}

func (c *Container) snapshotRepository(ctx context.Context) (snapshot.Repository, error) {
	switch c.Config.Snapshot.Backend {
	case "postgres":
		connURL, err := database.ConnectionURL(c.Config)
		if err != nil {
			return nil, err
		}
		pool, err := database.Open(ctx, connURL, c.Logger)
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, pool.Close)
		if err := database.RunMigrations(connURL, c.Logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return snapshot.NewPostgresRepository(pool, c.Logger), nil
	case "sqlite":
		repo, err := snapshot.NewSQLiteRepository(ctx, c.Config.Snapshot.SQLitePath, c.Logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() {
			if err := repo.Close(); err != nil {
				c.Logger.Warn("Failed to close sqlite snapshot store", slog.Any("error", err))
			}
		})
		return repo, nil
	default:
		return snapshot.NewMemoryRepository(c.Config.Snapshot.TTL), nil
	}
}

// newPlacesClient authenticates with an API key, a static bearer token or
// application default credentials, in that order of preference.
func newPlacesClient(ctx context.Context, cfg *config.Config) (places.Client, error) {
	opts := []places.Option{places.WithUserProject(cfg.Places.UserProject)}
	if cfg.Places.BaseURL != "" {
		opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
	}

	var hc *http.Client
	switch {
	case cfg.Places.APIKey != "":
		hc = &http.Client{}
	case cfg.Places.BearerToken != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Places.BearerToken}))
	case cfg.Places.UseADC:
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("application default credentials: %w", err)
		}
		hc = oauth2.NewClient(ctx, ts)
	default:
		return nil, errors.New("places: one of apiKey, bearerToken or useADC must be configured")
	}
	hc.Timeout = cfg.Places.Timeout
	opts = append(opts, places.WithHTTPClient(hc))

	return places.NewClient(cfg.Places.APIKey, opts...), nil
}

func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generativeAI.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		if cfg.LLM.AnthropicAPIKey == "" {
			return nil, errors.New("llm: anthropicApiKey is required for the anthropic provider")
		}
		client := anthropic.NewClient(cfg.LLM.AnthropicAPIKey)
		return generativeAI.NewAnthropicProvider(client, cfg.LLM.AnthropicModel, cfg.LLM.MaxTokens, cfg.LLM.Temperature, logger), nil
	default:
		return generativeAI.NewAIClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Temperature, logger)
	}
}

// Close releases all resources held by the container
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
