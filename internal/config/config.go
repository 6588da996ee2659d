package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Grader providers.
const (
	GraderProviderHTTP   = "http"
	GraderProviderOpenAI = "openai"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventsChannel          string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DashboardCacheTTL      time.Duration
	GraderProvider         string
	GraderBaseURL          string
	GraderAPIKey           string
	GraderFileTimeout      time.Duration
	GraderMaxAttempts      int
	GraderRetryDelay       time.Duration
	GraderConcurrency      int
	GraderHTTPRetries      int
	OpenAIAPIKey           string
	OpenAIModel            string
	UploadMaxSizeMB        int
	UploadRateLimit        int
	ShutdownTimeout        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether submission archiving is configured.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AUTOGRADE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Autograde API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "autograde")
	v.SetDefault("cloudinary.folder", "autograde/submissions")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("grader.provider", GraderProviderHTTP)
	v.SetDefault("grader.file_timeout", "45s")
	v.SetDefault("grader.max_attempts", 4)
	v.SetDefault("grader.retry_delay", "1s")
	v.SetDefault("grader.concurrency", 4)
	v.SetDefault("grader.http_retries", 2)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("upload.max_size_mb", 25)
	v.SetDefault("upload.rate_limit", 10)
	v.SetDefault("shutdown_timeout", "30s")

	durations := map[string]time.Duration{}
	for _, key := range []string{"dashboard.cache_ttl", "grader.file_timeout", "grader.retry_delay", "shutdown_timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsChannel:          v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DashboardCacheTTL:      durations["dashboard.cache_ttl"],
		GraderProvider:         strings.ToLower(strings.TrimSpace(v.GetString("grader.provider"))),
		GraderBaseURL:          v.GetString("grader.base_url"),
		GraderAPIKey:           v.GetString("grader.api_key"),
		GraderFileTimeout:      durations["grader.file_timeout"],
		GraderMaxAttempts:      v.GetInt("grader.max_attempts"),
		GraderRetryDelay:       durations["grader.retry_delay"],
		GraderConcurrency:      v.GetInt("grader.concurrency"),
		GraderHTTPRetries:      v.GetInt("grader.http_retries"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIModel:            v.GetString("openai.model"),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		UploadRateLimit:        v.GetInt("upload.rate_limit"),
		ShutdownTimeout:        durations["shutdown_timeout"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	switch cfg.GraderProvider {
	case GraderProviderHTTP:
		if cfg.GraderBaseURL == "" {
			return Config{}, fmt.Errorf("grader base url must be provided for the http provider")
		}
	case GraderProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("openai api key must be provided for the openai provider")
		}
	default:
		return Config{}, fmt.Errorf("unknown grader provider %q", cfg.GraderProvider)
	}

	if cfg.GraderMaxAttempts <= 0 {
		cfg.GraderMaxAttempts = 4
	}
	if cfg.GraderConcurrency <= 0 {
		cfg.GraderConcurrency = 4
	}
	if cfg.GraderHTTPRetries < 0 {
		cfg.GraderHTTPRetries = 0
	}
	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 25
	}
	if cfg.UploadRateLimit <= 0 {
		cfg.UploadRateLimit = 10
	}

	return cfg, nil
}
