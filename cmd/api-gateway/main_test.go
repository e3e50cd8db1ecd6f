package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/chat-gateway/app"
	"github.com/upb/chat-gateway/config"
	"github.com/upb/chat-gateway/routes"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 2 * time.Second,
		},
		Chat: config.ChatConfig{
			Temperature:   0.7,
			MaxTokens:     256,
			ProviderOrder: []string{config.ProviderScripted},
		},
		Providers:     config.ProvidersConfig{Timeout: time.Second},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"},
		Sessions: config.SessionsConfig{
			IdleTTL:        time.Minute,
			SweepInterval:  time.Second,
			AllowedOrigins: []string{"*"},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json logger", "info", "json", false},
		{"console logger", "debug", "console", false},
		{"invalid log level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Observability.LogLevel = tt.level
			cfg.Observability.LogFormat = tt.format

			logger, err := initLogger(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	srv := newServer(cfg, http.NotFoundHandler())

	assert.Equal(t, "127.0.0.1:8080", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
	assert.NotZero(t, srv.ReadHeaderTimeout)
}

func TestServe(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	deps, err := app.NewDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer deps.Close(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, newServer(cfg, routes.SetupRoutes(deps)), ln, cfg, logger)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CHAT_TEMPERATURE", "5")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
