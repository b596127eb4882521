package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	healthcheck "github.com/vladislavdragonenkov/barflow/internal/health"
	"github.com/vladislavdragonenkov/barflow/internal/transport/wsfeed"
	"github.com/vladislavdragonenkov/barflow/internal/version"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHTTPMux_Routes(t *testing.T) {
	healthHandler := healthcheck.NewHandler(version.Current().Version)
	healthHandler.RegisterChecker("storage", healthcheck.Func("storage", func(context.Context) error { return nil }))
	feed := wsfeed.NewHandler(changefeed.NewHub(), log.WithField("test", t.Name()), nil)
	defer feed.Close()

	srv := httptest.NewServer(newHTTPMux(healthHandler, feed))
	defer srv.Close()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/metrics", wantStatus: http.StatusOK},
		{path: "/healthz", wantStatus: http.StatusOK},
		{path: "/livez", wantStatus: http.StatusOK, wantBody: "ok"},
		{path: "/readyz", wantStatus: http.StatusOK, wantBody: "ready"},
		{path: "/feed?tables=users", wantStatus: http.StatusBadRequest},
		{path: "/orders", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := get(t, srv.URL+tt.path)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, body)
			}
		})
	}

	resp, err := http.Post(srv.URL+"/livez", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPMux_FeedIsOptional(t *testing.T) {
	srv := httptest.NewServer(newHTTPMux(healthcheck.NewHandler("dev"), nil))
	defer srv.Close()

	status, _ := get(t, srv.URL+"/feed")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHTTPMux_UnhealthyStorageFailsReadiness(t *testing.T) {
	healthHandler := healthcheck.NewHandler("dev")
	healthHandler.RegisterChecker("storage", healthcheck.Func("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))
	srv := httptest.NewServer(newHTTPMux(healthHandler, nil))
	defer srv.Close()

	status, body := get(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", body)

	status, body = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "connection refused")
}

func TestStartHTTPServer_StopsOnCancel(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	startHTTPServer(ctx, addr, log.WithField("test", t.Name()), healthcheck.NewHandler("dev"), nil)

	url := "http://" + addr + "/livez"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return true
		}
		resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHelpers(t *testing.T) {
	logger := log.WithField("test", t.Name())
	shutdownHTTP(nil, logger)

	var canceled bool
	done := make(chan struct{})
	close(done)
	shutdownOutboxWorker(func() { canceled = true }, done, logger)
	assert.True(t, canceled)

	shutdownOutboxWorker(nil, nil, logger)
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}
