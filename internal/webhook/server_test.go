package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	ipmocks "github.com/mattjoyce/reviewsheet/internal/ipallow/mocks"
	sinkmocks "github.com/mattjoyce/reviewsheet/internal/sink/mocks"
)

func newTestServer(t *testing.T, rows *sinkmocks.MockRowSink, ips *ipmocks.MockChecker, path string) *Server {
	t.Helper()
	cfg := testConfig(t)
	cfg.Path = path
	return newTestServerWithConfig(t, cfg, rows, ips)
}

func newTestServerWithConfig(t *testing.T, cfg Config, rows *sinkmocks.MockRowSink, ips *ipmocks.MockChecker) *Server {
	t.Helper()
	cfg.Listen = "127.0.0.1:0"

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	var handler *Handler
	if ips != nil {
		handler = NewHandler(cfg, rows, ips, logger)
	} else {
		handler = NewHandler(cfg, rows, nil, logger)
	}
	return New(cfg, handler, logger)
}

func TestServer_ApprovedReview(t *testing.T) {
	ctrl := gomock.NewController(t)
	rows := sinkmocks.NewMockRowSink(ctrl)
	rows.EXPECT().AppendRow(gomock.Any(), []string{"2024-01-01T00:00:00Z", "repo1/Fix bug", "alice"}).
		Return(json.RawMessage(sheetsAck), nil)

	server := newTestServer(t, rows, nil, "/github")

	req := newSignedRequest(approvedPayload, "pull_request_review")
	req.URL.Path = "/github"
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Body.String(); got != sheetsAck {
		t.Errorf("body = %s, want %s", got, sheetsAck)
	}
}

func TestServer_Routes(t *testing.T) {
	ctrl := gomock.NewController(t)
	server := newTestServer(t, sinkmocks.NewMockRowSink(ctrl), nil, "/")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/", http.StatusMethodNotAllowed},
		{http.MethodPost, "/elsewhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q, want ok", health.Status)
	}
}

func TestServer_ProxyHeadersIgnoredByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	ips := ipmocks.NewMockChecker(ctrl)
	// The forged header names a hooks address; the socket address must be checked.
	ips.EXPECT().Allowed(gomock.Any(), "203.0.113.7:443").
		Return(false, netip.MustParseAddr("203.0.113.7"), nil)

	server := newTestServer(t, sinkmocks.NewMockRowSink(ctrl), ips, "/")

	req := newSignedRequest(approvedPayload, "pull_request_review")
	req.RemoteAddr = "203.0.113.7:443"
	req.Header.Set("X-Real-IP", "192.30.252.10")
	req.Header.Set("X-Forwarded-For", "192.30.252.10")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "IP 203.0.113.7 is invalid" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestServer_TrustedProxyHeadersReachAllowlist(t *testing.T) {
	ctrl := gomock.NewController(t)
	ips := ipmocks.NewMockChecker(ctrl)
	ips.EXPECT().Allowed(gomock.Any(), "203.0.113.7").
		Return(false, netip.MustParseAddr("203.0.113.7"), nil)

	cfg := testConfig(t)
	cfg.Path = "/"
	cfg.TrustProxyHeaders = true
	server := newTestServerWithConfig(t, cfg, sinkmocks.NewMockRowSink(ctrl), ips)

	req := newSignedRequest(approvedPayload, "pull_request_review")
	req.Header.Set("X-Real-IP", "203.0.113.7")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != "IP 203.0.113.7 is invalid" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	server := newTestServer(t, sinkmocks.NewMockRowSink(ctrl), nil, "/")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestServer_StartListenError(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := testConfig(t)
	cfg.Listen = "256.0.0.1:bad"

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	server := New(cfg, NewHandler(cfg, sinkmocks.NewMockRowSink(ctrl), nil, logger), logger)

	if err := server.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail on an invalid listen address")
	}
}
