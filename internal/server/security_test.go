package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeaders_CSPContainsNonce(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	var capturedNonce string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedNonce = nonceFrom(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "'nonce-"+capturedNonce+"'") {
		t.Errorf("CSP should contain nonce, got: %s", csp)
	}
	if capturedNonce == "" {
		t.Error("expected non-empty nonce in context")
	}
}

func TestSecurityHeaders_CSPOmitsUnsafeInline(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if strings.Contains(csp, "'unsafe-inline'") {
		t.Errorf("CSP should not contain 'unsafe-inline', got: %s", csp)
	}
}

func TestSecurityHeaders_CSPIncludesStorageEndpoint(t *testing.T) {
	handler := securityHeaders(SecurityConfig{
		BaseURL:         "https://app.test",
		StorageEndpoint: "https://storage.example.com",
	})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "img-src 'self' data: https://i.ytimg.com https://storage.example.com;") {
		t.Errorf("CSP img-src should include storage endpoint, got: %s", csp)
	}
	if !strings.Contains(csp, "frame-src https://www.youtube.com https://www.youtube-nocookie.com https://storage.example.com;") {
		t.Errorf("CSP frame-src should include storage endpoint, got: %s", csp)
	}
}

func TestSecurityHeaders_CSPIncludesFrameHosts(t *testing.T) {
	handler := securityHeaders(SecurityConfig{
		BaseURL:    "https://app.test",
		FrameHosts: []string{"https://frames.example.com", " ", "https://cdn.example.com"},
	})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://www.youtube-nocookie.com https://frames.example.com https://cdn.example.com;") {
		t.Errorf("CSP frame-src should include frame hosts, got: %s", csp)
	}
}

func TestSecurityHeaders_CSPOmitsExtrasWhenEmpty(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "img-src 'self' data: https://i.ytimg.com;") {
		t.Errorf("CSP img-src should only allow the player thumbnails, got: %s", csp)
	}
	if !strings.Contains(csp, "connect-src 'self';") {
		t.Errorf("CSP connect-src should be just 'self', got: %s", csp)
	}
}

func TestSecurityHeaders_CSPAllowsPlayerScript(t *testing.T) {
	handler := securityHeaders(SecurityConfig{})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://www.youtube.com https://s.ytimg.com;") {
		t.Errorf("CSP script-src should allow the player API, got: %s", csp)
	}
}

func TestSecurityHeaders_NonceInContext(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	var nonce string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = nonceFrom(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	if nonce == "" {
		t.Error("expected non-empty nonce in request context")
	}
}

func TestSecurityHeaders_UniqueNoncePerRequest(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	var nonces []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonces = append(nonces, nonceFrom(r.Context()))
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		handler(inner).ServeHTTP(rec, req)
	}

	if nonces[0] == nonces[1] || nonces[1] == nonces[2] {
		t.Errorf("expected unique nonces per request, got %v", nonces)
	}
}

func TestSecurityHeaders_PermissionsPolicyDeniesCapture(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	pp := rec.Header().Get("Permissions-Policy")
	if !strings.Contains(pp, "microphone=()") || !strings.Contains(pp, "camera=()") {
		t.Errorf("Permissions-Policy should deny capture devices, got: %s", pp)
	}
}

func TestSecurityHeaders_HSTSOnHTTPS(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	hsts := rec.Header().Get("Strict-Transport-Security")
	if hsts == "" {
		t.Error("expected HSTS header for HTTPS base URL")
	}
}

func TestSecurityHeaders_NoHSTSOnHTTP(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "http://localhost:8080"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	hsts := rec.Header().Get("Strict-Transport-Security")
	if hsts != "" {
		t.Errorf("expected no HSTS for HTTP base URL, got: %s", hsts)
	}
}

func TestSecurityHeaders_FrameAncestorsDefault(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-ancestors 'self'") {
		t.Errorf("CSP should contain frame-ancestors 'self', got: %s", csp)
	}
}
