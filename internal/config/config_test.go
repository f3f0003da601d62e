package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvVars = []string{
	"PORT", "BASE_URL", "CHAPTERS_FILE", "SESSION_SECRET", "DATABASE_URL",
	"S3_ENDPOINT", "S3_PUBLIC_ENDPOINT", "S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_REGION",
	"GEOIP_DB_PATH", "ORDER_WEBHOOK_URL", "ORDER_WEBHOOK_SECRET", "SLACK_WEBHOOK_URL",
	"LISTMONK_URL", "LISTMONK_USER", "LISTMONK_PASSWORD", "LISTMONK_TEMPLATE_ID", "ORDER_EMAIL_TO",
	"POLL_INTERVAL", "EMPHASIS_DURATION", "SESSION_IDLE_TIMEOUT", "ALLOWED_FRAME_HOSTS", "API_DOCS_ENABLED",
}

// clearEnv unsets every config variable for the duration of the test and
// runs from an empty directory so no .env file is picked up.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*testing.T, *Config)
	}{
		{
			name: "defaults with required secret",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("Port = %q, want 8080", cfg.Port)
				}
				if cfg.PollInterval != time.Second {
					t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
				}
				if cfg.EmphasisDuration != time.Second {
					t.Errorf("EmphasisDuration = %v, want 1s", cfg.EmphasisDuration)
				}
				if cfg.SessionIdleTimeout != 30*time.Minute {
					t.Errorf("SessionIdleTimeout = %v, want 30m", cfg.SessionIdleTimeout)
				}
				if cfg.StorageEnabled() {
					t.Error("storage should be disabled without credentials")
				}
				if cfg.EnableDocs {
					t.Error("API docs should be off by default")
				}
			},
		},
		{
			name: "docs enabled",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("API_DOCS_ENABLED", "true")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if !cfg.EnableDocs {
					t.Error("EnableDocs = false, want true")
				}
			},
		},
		{
			name:     "missing secret",
			setupEnv: func(t *testing.T) {},
			wantErr:  true,
		},
		{
			name: "invalid port",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("PORT", "http")
			},
			wantErr: true,
		},
		{
			name: "custom durations",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("POLL_INTERVAL", "250ms")
				t.Setenv("EMPHASIS_DURATION", "2s")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if cfg.PollInterval != 250*time.Millisecond {
					t.Errorf("PollInterval = %v", cfg.PollInterval)
				}
				if cfg.EmphasisDuration != 2*time.Second {
					t.Errorf("EmphasisDuration = %v", cfg.EmphasisDuration)
				}
			},
		},
		{
			name: "invalid duration",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("POLL_INTERVAL", "soon")
			},
			wantErr: true,
		},
		{
			name: "non-positive duration",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("SESSION_IDLE_TIMEOUT", "0s")
			},
			wantErr: true,
		},
		{
			name: "listmonk order email",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("LISTMONK_URL", "http://listmonk:9000")
				t.Setenv("LISTMONK_TEMPLATE_ID", "7")
				t.Setenv("ORDER_EMAIL_TO", "orders@example.com")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if cfg.ListmonkUser != "admin" {
					t.Errorf("ListmonkUser = %q, want admin", cfg.ListmonkUser)
				}
				if cfg.ListmonkTemplateID != 7 {
					t.Errorf("ListmonkTemplateID = %d, want 7", cfg.ListmonkTemplateID)
				}
			},
		},
		{
			name: "listmonk without recipient",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("LISTMONK_URL", "http://listmonk:9000")
			},
			wantErr: true,
		},
		{
			name: "invalid listmonk template id",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("LISTMONK_TEMPLATE_ID", "welcome")
			},
			wantErr: true,
		},
		{
			name: "webhook without secret",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("ORDER_WEBHOOK_URL", "https://hooks.example.com/orders")
			},
			wantErr: true,
		},
		{
			name: "storage enabled",
			setupEnv: func(t *testing.T) {
				t.Setenv("SESSION_SECRET", "s3cret")
				t.Setenv("S3_BUCKET", "chapters")
				t.Setenv("S3_ACCESS_KEY", "ak")
				t.Setenv("S3_SECRET_KEY", "sk")
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				if !cfg.StorageEnabled() {
					t.Error("expected storage enabled")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			tt.setupEnv(t)

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkConfig != nil && cfg != nil {
				tt.checkConfig(t, cfg)
			}
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SESSION_SECRET=from-file\nPORT=9090\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionSecret != "from-file" || cfg.Port != "9090" {
		t.Errorf("config not read from .env: %+v", cfg)
	}
	_ = os.Unsetenv("SESSION_SECRET")
	_ = os.Unsetenv("PORT")
}
