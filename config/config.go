package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

// EnvPrefix prefixes every environment override, e.g. PLACESCHAT_SERVER_HTTPPORT.
const EnvPrefix = "PLACESCHAT"

const redacted = "********"

type Config struct {
	Mode     string `mapstructure:"mode" yaml:"mode"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port" yaml:"port"`
		} `mapstructure:"prometheus" yaml:"prometheus"`
	} `mapstructure:"handlers" yaml:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host" yaml:"host"`
			Password          string `mapstructure:"password" yaml:"password"`
			Port              string `mapstructure:"port" yaml:"port"`
			Username          string `mapstructure:"username" yaml:"username"`
			DB                string `mapstructure:"db" yaml:"db"`
			SSLMODE           string `mapstructure:"SSLMODE" yaml:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME" yaml:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres" yaml:"postgres"`
	} `mapstructure:"repositories" yaml:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort" yaml:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout" yaml:"HTTPTimeout"`
	} `mapstructure:"server" yaml:"server"`
	Snapshot struct {
		// Backend is one of memory, postgres, sqlite.
		Backend    string        `mapstructure:"backend" yaml:"backend"`
		SQLitePath string        `mapstructure:"sqlitePath" yaml:"sqlitePath"`
		TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	} `mapstructure:"snapshot" yaml:"snapshot"`
	Places struct {
		BaseURL                  string        `mapstructure:"baseURL" yaml:"baseURL"`
		APIKey                   string        `mapstructure:"apiKey" yaml:"apiKey"`
		BearerToken              string        `mapstructure:"bearerToken" yaml:"bearerToken"`
		UserProject              string        `mapstructure:"userProject" yaml:"userProject"`
		UseADC                   bool          `mapstructure:"useADC" yaml:"useADC"`
		Timeout                  time.Duration `mapstructure:"timeout" yaml:"timeout"`
		LocationBiasRadiusMeters float64       `mapstructure:"locationBiasRadiusMeters" yaml:"locationBiasRadiusMeters"`
	} `mapstructure:"places" yaml:"places"`
	LLM struct {
		// Provider is gemini or anthropic.
		Provider        string  `mapstructure:"provider" yaml:"provider"`
		Model           string  `mapstructure:"model" yaml:"model"`
		Temperature     float32 `mapstructure:"temperature" yaml:"temperature"`
		APIKey          string  `mapstructure:"apiKey" yaml:"apiKey"`
		AnthropicAPIKey string  `mapstructure:"anthropicApiKey" yaml:"anthropicApiKey"`
		AnthropicModel  string  `mapstructure:"anthropicModel" yaml:"anthropicModel"`
		MaxTokens       int64   `mapstructure:"maxTokens" yaml:"maxTokens"`
	} `mapstructure:"llm" yaml:"llm"`
	Filter struct {
		MinReviewCount int     `mapstructure:"minReviewCount" yaml:"minReviewCount"`
		MinRating      float64 `mapstructure:"minRating" yaml:"minRating"`
		RequireOpenNow bool    `mapstructure:"requireOpenNow" yaml:"requireOpenNow"`
	} `mapstructure:"filter" yaml:"filter"`
	Turns struct {
		LegacyFreshSearchMaxMessages int `mapstructure:"legacyFreshSearchMaxMessages" yaml:"legacyFreshSearchMaxMessages"`
	} `mapstructure:"turns" yaml:"turns"`
}

// conventional variable names accepted alongside the prefixed ones
var envAliases = map[string][]string{
	"llm.apiKey":          {"GOOGLE_GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"llm.anthropicApiKey": {"ANTHROPIC_API_KEY"},
	"places.apiKey":       {"GOOGLE_PLACES_API_KEY"},
	"places.bearerToken":  {"GOOGLE_BEARER_TOKEN"},
	"places.userProject":  {"GOOGLE_USER_PROJECT"},
	"mode":                {"APP_ENV"},
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		slog.Warn("Failed to find file-based config, falling back to embedded config", slog.Any("error", err))
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Snapshot.Backend {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("snapshot.backend must be memory, postgres or sqlite, got %q", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend == "sqlite" && c.Snapshot.SQLitePath == "" {
		return fmt.Errorf("snapshot.sqlitePath is required for the sqlite backend")
	}
	switch c.LLM.Provider {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be gemini or anthropic, got %q", c.LLM.Provider)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.HTTPTimeout must be positive")
	}
	if c.Filter.MinReviewCount < 0 {
		return fmt.Errorf("filter.minReviewCount must not be negative")
	}
	if c.Turns.LegacyFreshSearchMaxMessages < 1 {
		return fmt.Errorf("turns.legacyFreshSearchMaxMessages must be at least 1")
	}
	return nil
}

// Redacted returns a copy with every secret masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Repositories.Postgres.Password = mask(c.Repositories.Postgres.Password)
	c.Places.APIKey = mask(c.Places.APIKey)
	c.Places.BearerToken = mask(c.Places.BearerToken)
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.LLM.AnthropicAPIKey = mask(c.LLM.AnthropicAPIKey)
	return c
}
