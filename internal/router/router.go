package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	appMiddleware "github.com/FACorreiaa/go-places-chat/app/middleware"
	"github.com/FACorreiaa/go-places-chat/internal/api/chat"
)

// Config contains dependencies needed for the router setup
type Config struct {
	ChatHandler    *chat.HandlerImpl
	AllowedOrigins []string
	// RequestTimeout bounds every route except the streaming chat turns,
	// which run until narration finishes or the client goes away.
	RequestTimeout time.Duration
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied before mounting this router.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", chat.SessionIDHeader},
		ExposedHeaders:   []string{chat.SessionIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var bounded []func(http.Handler) http.Handler
	if cfg.RequestTimeout > 0 {
		bounded = append(bounded, middleware.Timeout(cfg.RequestTimeout))
	}

	r.Group(func(r chi.Router) {
		r.Use(bounded...)
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("pong"))
		})
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	})

	// clients of the first release post here
	r.Post("/chat", cfg.ChatHandler.Chat)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", cfg.ChatHandler.Chat)

		r.Group(func(r chi.Router) {
			r.Use(bounded...)
			r.Use(appMiddleware.NoStore)
			r.Get("/sessions", cfg.ChatHandler.ListSessions)
			r.Get("/sessions/{sessionID}", cfg.ChatHandler.GetSession)
			r.Delete("/sessions/{sessionID}", cfg.ChatHandler.EndSession)
			r.Get("/sessions/{sessionID}/places.geojson", cfg.ChatHandler.SessionPlacesGeoJSON)
		})
	})

	return r
}
