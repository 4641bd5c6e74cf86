package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/pkg/config"
	"github.com/goliatone/go-catalog-cache/pkg/di"
	"github.com/goliatone/go-catalog-cache/pkg/testsupport"
	"github.com/goliatone/go-catalog-cache/querycache"
)

// testEnv points the configuration at a temp sqlite file and a stand-in
// ffmpeg binary.
func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	ffmpeg := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(ffmpeg, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("failed to write ffmpeg stub: %v", err)
	}
	t.Setenv("CATALOG_STORE__DSN", filepath.Join(dir, "catalog.db"))
	t.Setenv("CATALOG_MEDIA__FFMPEG_PATH", ffmpeg)
	t.Setenv("CATALOG_LOGGING__LEVEL", "error")
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"warm", []string{"warm"}, ""},
		{"flush", []string{"flush"}, ""},
		{"check", []string{"check"}, ""},
		{"unknown", []string{"rebuild"}, `unknown command "rebuild"`},
		{"reprocess without ids", []string{"reprocess"}, "at least one music id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)
			err := run("", tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("run(%v) failed: %v", tt.args, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run(%v) = %v, want error containing %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	testEnv(t)
	if err := run(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestMetricsService_Healthz(t *testing.T) {
	cfg := config.Default()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "catalog.db")
	c, err := di.NewContainer(context.Background(), cfg,
		di.WithLogger(zerolog.Nop()),
		di.WithMedia(&testsupport.FakeProber{}, &testsupport.FakeTranscoder{}),
	)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer c.Close()

	svc := newMetricsService("127.0.0.1:0", c)
	if svc.String() != "metrics-server" {
		t.Errorf("unexpected service name %q", svc.String())
	}

	rec := httptest.NewRecorder()
	svc.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var status querycache.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if !status.Healthy {
		t.Errorf("Expected healthy status, got %+v", status)
	}

	rec = httptest.NewRecorder()
	svc.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestMetricsService_StopsOnCancel(t *testing.T) {
	svc := &metricsService{server: &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
