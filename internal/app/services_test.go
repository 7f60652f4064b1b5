package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sitelight/internal/api"
	"github.com/dokzlo13/sitelight/internal/config"
)

func parseConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestNewServices_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "lights.sqlite")
	cfg := parseConfig(t, "database:\n  path: "+path+"\n")

	s, err := NewServices(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NotNil(t, s.DB)
	assert.Nil(t, s.Docs)

	status, err := s.Light.Toggle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "on", status.State)

	rec := httptest.NewRecorder()
	s.Health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s.DB.Close()
	rec = httptest.NewRecorder()
	s.Health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestNewServices_Redis(t *testing.T) {
	m := miniredis.RunT(t)
	require.NoError(t, m.Set("device:ESP32_A", `{"_id":"ESP32_A","legacyId":1,"lightState":"on","brightness":40}`))
	_, err := m.SetAdd("devices", "ESP32_A")
	require.NoError(t, err)

	cfg := parseConfig(t, "redis:\n  address: "+m.Addr()+"\n")
	require.Equal(t, config.BackendRedis, cfg.Backend)

	s, err := NewServices(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NotNil(t, s.Docs)
	assert.Nil(t, s.DB)

	status, err := s.Light.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "on", status.State)
	assert.Equal(t, 40, status.Brightness)

	require.NoError(t, s.ready(context.Background()))
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHealthService(&config.Config{}, nil)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestAPIServiceWait(t *testing.T) {
	cfg := &config.Config{ShutdownTimeout: config.Duration(time.Second)}
	svc := &APIService{cfg: cfg, server: api.NewServer("127.0.0.1:0", http.NotFoundHandler())}

	// Never started
	svc.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx, func(err error) { t.Errorf("unexpected server error: %v", err) })
	cancel()

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after shutdown")
	}
}

func TestAppStopWithoutStart(t *testing.T) {
	cfg := parseConfig(t, "database:\n  path: "+filepath.Join(t.TempDir(), "lights.sqlite")+"\n")

	a, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Services().Light)

	a.Wait()
	require.NoError(t, a.Stop())
}
