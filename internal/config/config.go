package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service.
type Config struct {
	Port               string
	BaseURL            string
	ChaptersFile       string
	SessionSecret      string
	DatabaseURL        string
	S3Endpoint         string
	S3PublicEndpoint   string
	S3Bucket           string
	S3AccessKey        string
	S3SecretKey        string
	S3Region           string
	GeoIPDBPath        string
	OrderWebhookURL    string
	OrderWebhookSecret string
	SlackWebhookURL    string
	ListmonkURL        string
	ListmonkUser       string
	ListmonkPassword   string
	ListmonkTemplateID int
	OrderEmailTo       string
	PollInterval       time.Duration
	EmphasisDuration   time.Duration
	SessionIdleTimeout time.Duration
	AllowedFrameHosts  string
	EnableDocs         bool
}

// StorageEnabled reports whether object storage credentials are present.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// Load reads configuration from environment variables. A .env file in the
// working directory or one of its parents is loaded first; variables already
// set in the environment win.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		ChaptersFile:       os.Getenv("CHAPTERS_FILE"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		S3Endpoint:         getEnv("S3_ENDPOINT", "http://localhost:3900"),
		S3PublicEndpoint:   os.Getenv("S3_PUBLIC_ENDPOINT"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Region:           getEnv("S3_REGION", "eu-central-1"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		OrderWebhookURL:    os.Getenv("ORDER_WEBHOOK_URL"),
		OrderWebhookSecret: os.Getenv("ORDER_WEBHOOK_SECRET"),
		SlackWebhookURL:    os.Getenv("SLACK_WEBHOOK_URL"),
		ListmonkURL:        os.Getenv("LISTMONK_URL"),
		ListmonkUser:       getEnv("LISTMONK_USER", "admin"),
		ListmonkPassword:   os.Getenv("LISTMONK_PASSWORD"),
		OrderEmailTo:       os.Getenv("ORDER_EMAIL_TO"),
		AllowedFrameHosts:  os.Getenv("ALLOWED_FRAME_HOSTS"),
		EnableDocs:         getEnv("API_DOCS_ENABLED", "false") == "true",
	}

	var err error
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.EmphasisDuration, err = getEnvDuration("EMPHASIS_DURATION", time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	if v := os.Getenv("LISTMONK_TEMPLATE_ID"); v != "" {
		if cfg.ListmonkTemplateID, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("LISTMONK_TEMPLATE_ID must be a valid integer: %w", err)
		}
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT must be a valid integer: %w", err)
	}
	if cfg.OrderWebhookURL != "" && cfg.OrderWebhookSecret == "" {
		return nil, fmt.Errorf("ORDER_WEBHOOK_SECRET is required when ORDER_WEBHOOK_URL is set")
	}

	if cfg.ListmonkURL != "" && cfg.OrderEmailTo == "" {
		return nil, fmt.Errorf("ORDER_EMAIL_TO is required when LISTMONK_URL is set")
	}

	return cfg, nil
}

func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 1s or 500ms: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return d, nil
}
