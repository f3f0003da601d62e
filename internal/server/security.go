package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sendrec/chaptersync/internal/httputil"
)

// Origins the embedded video player loads from.
const (
	playerScriptSources = "https://www.youtube.com https://s.ytimg.com"
	playerFrameSources  = "https://www.youtube.com https://www.youtube-nocookie.com"
)

type SecurityConfig struct {
	BaseURL         string
	StorageEndpoint string
	// FrameHosts are extra origins chapter frames and catalog images load from.
	FrameHosts []string
}

func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := cfg.BaseURL != "" && hasHTTPS(cfg.BaseURL)

	var extra []string
	if cfg.StorageEndpoint != "" {
		extra = append(extra, cfg.StorageEndpoint)
	}
	for _, host := range cfg.FrameHosts {
		if host = strings.TrimSpace(host); host != "" {
			extra = append(extra, host)
		}
	}
	extraSuffix := ""
	if len(extra) > 0 {
		extraSuffix = " " + strings.Join(extra, " ")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce, err := newNonce()
			if err != nil {
				slog.Error("security: nonce unavailable", "error", err)
				httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			ctx := withNonce(r.Context(), nonce)

			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), autoplay=(self \"https://www.youtube.com\")")

			csp := fmt.Sprintf(
				"default-src 'self'; img-src 'self' data: https://i.ytimg.com%s; script-src 'self' 'nonce-%s' %s; style-src 'self' 'nonce-%s'; frame-src %s%s; connect-src 'self'; frame-ancestors 'self';",
				extraSuffix, nonce, playerScriptSources, nonce, playerFrameSources, extraSuffix,
			)
			w.Header().Set("Content-Security-Policy", csp)

			if strictTransport {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasHTTPS(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://")
}
