package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inercia/scanblock/internal/scanblock"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T) *scanblock.Engine {
	t.Helper()
	cfg := scanblock.DefaultConfig()
	cfg.AllowListing = scanblock.Always()
	cfg.SkipScoring = scanblock.Never()
	cfg.PermanentlyAllowedHosts = nil
	cfg.SweepInterval = 0
	cfg.Logger = quietLogger()
	e, err := scanblock.New(cfg)
	if err != nil {
		t.Fatalf("scanblock.New failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newTestServer(t *testing.T, cfg Config) (*Server, *scanblock.Engine) {
	t.Helper()
	e := newTestEngine(t)
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	s, err := NewServer(cfg, e)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, e
}

func do(h http.Handler, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthCheck(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := do(s.Handler(), "/healthz", "192.0.2.1:1234")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !s.IsShutdown() {
		t.Error("IsShutdown() should be true")
	}
	rec = do(s.Handler(), "/healthz", "192.0.2.1:1234")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", rec.Code)
	}
}

func TestServer_NoUpstream(t *testing.T) {
	s, e := newTestServer(t, Config{})

	if rec := do(s.Handler(), "/index.html", "192.0.2.1:1234"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(s.Handler(), "/.env", "192.0.2.1:1234"); rec.Code != http.StatusNotFound {
		t.Errorf("first scan status = %d, want 404", rec.Code)
	}
	if got := e.Score("192.0.2.1"); got != 10 {
		t.Errorf("Score = %d, want 10 (scored once per request)", got)
	}
	if rec := do(s.Handler(), "/.env", "192.0.2.1:1234"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("second scan status = %d, want 503", rec.Code)
	}
	if rec := do(s.Handler(), "/healthz", "192.0.2.1:1234"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("blocked host reaching /healthz = %d, want 503", rec.Code)
	}
}

func TestServer_Upstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream:"+r.URL.RequestURI())
	}))
	defer upstream.Close()

	s, _ := newTestServer(t, Config{Upstream: upstream.URL})

	rec := do(s.Handler(), "/hello?x=1", "192.0.2.1:1234")
	if rec.Code != http.StatusOK || rec.Body.String() != "upstream:/hello?x=1" {
		t.Errorf("proxied response = %d %q", rec.Code, rec.Body.String())
	}

	do(s.Handler(), "/wp-login.php", "192.0.2.1:1234")
	rec = do(s.Handler(), "/wp-login.php", "192.0.2.1:1234")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "upstream:") {
		t.Error("blocked request must not reach the upstream")
	}
}

func TestServer_UpstreamUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	s, _ := newTestServer(t, Config{Upstream: addr})

	rec := do(s.Handler(), "/hello", "192.0.2.1:1234")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["error"] != "BadGateway" {
		t.Errorf("error = %q, want BadGateway", body["error"])
	}
}

func TestNewServer_InvalidUpstream(t *testing.T) {
	e := newTestEngine(t)
	for _, upstream := range []string{"not a url", "/relative", "http://"} {
		if _, err := NewServer(Config{Upstream: upstream, Logger: quietLogger()}, e); err == nil {
			t.Errorf("NewServer(%q) should fail", upstream)
		}
	}
}

func TestServer_Listing(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	do(s.Handler(), "/.git/config", "192.0.2.7:1234")

	rec := do(s.Handler(), "/scanblock/hosts", "192.0.2.8:1234")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	if !strings.Contains(rec.Body.String(), "192.0.2.7") {
		t.Errorf("listing missing host:\n%s", rec.Body.String())
	}
}

func TestServer_AccessLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	s, _ := newTestServer(t, Config{AccessLog: AccessLogConfig{Path: path}})

	do(s.Handler(), "/index.html", "192.0.2.1:1234")
	do(s.Handler(), "/.env", "192.0.2.1:1234")
	do(s.Handler(), "/.env", "192.0.2.1:1234")
	do(s.Handler(), "/scanblock/hosts", "192.0.2.2:1234")

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read access log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (clean request not logged):\n%s", len(lines), data)
	}

	checks := []struct {
		line int
		want []string
	}{
		{0, []string{"192.0.2.1", `"GET /.env"`, " 404 ", "pass evaluated score=10", `reason="Forbidden path: /.env"`}},
		{1, []string{"192.0.2.1", " 503 ", "block evaluated score=20", "reached block threshold 20"}},
		{2, []string{"192.0.2.2", " 200 ", "list listing score=0"}},
	}
	for _, c := range checks {
		for _, want := range c.want {
			if !strings.Contains(lines[c.line], want) {
				t.Errorf("line %d missing %q: %s", c.line, want, lines[c.line])
			}
		}
		if !strings.Contains(lines[c.line], " id=") {
			t.Errorf("line %d missing request id: %s", c.line, lines[c.line])
		}
	}
}

func TestServer_Run(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(Config{Listen: "127.0.0.1:0", Logger: quietLogger()}, e)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !s.IsShutdown() {
		t.Error("server should be shut down")
	}
}

func TestServer_RunListenError(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(Config{Listen: "127.0.0.1:-1", Logger: quietLogger()}, e)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("Run should fail on an invalid address")
	}
}
