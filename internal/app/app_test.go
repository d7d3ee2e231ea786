package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/totegamma/nostrconnect/internal/config"
)

func testConfig() config.Config {
	conf, _ := config.LoadOrDefault("")
	conf.Store.Driver = "memory"
	conf.Server.EnableMetrics = true
	return conf
}

func TestNewAndServe(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	defer a.Close()

	e := a.Server()

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), a.Session.Identity().PublicKey) {
		t.Fatalf("status does not carry the session key: %s", res.Body.String())
	}

	// BeginHandshake emits an event the metrics count
	a.Session.BeginHandshake(context.Background())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res = httptest.NewRecorder()
	e.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "nostrconnect_session_events_total") {
		t.Fatalf("expected session metrics")
	}
}

func TestTokenProtectsServer(t *testing.T) {
	conf := testConfig()
	conf.Server.Token = "secret"

	a, err := New(context.Background(), conf)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	defer a.Close()

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	res := httptest.NewRecorder()
	a.Server().ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func TestUnknownStoreDriver(t *testing.T) {
	conf := testConfig()
	conf.Store.Driver = "floppy"
	if _, err := New(context.Background(), conf); err == nil {
		t.Fatalf("expected an error for an unknown driver")
	}
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	SetupLogger(&buf, config.Log{Level: "warn", Format: "json"})

	slog.Info("hidden")
	slog.Warn("shown", slog.String("module", "test"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected json output, got %q", out)
	}
}
