package handler_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vehiclereid/revid/internal/analyzer/mock"
	"github.com/vehiclereid/revid/internal/api/handler"
	"github.com/vehiclereid/revid/internal/config"
	"github.com/vehiclereid/revid/internal/live"
	"github.com/vehiclereid/revid/pkg/models"
)

func dialLive(t *testing.T, analyzer models.FrameAnalyzer, cfg config.LiveConfig) (*websocket.Conn, *live.Manager) {
	t.Helper()
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = 1 << 20
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := live.NewManager(analyzer, cfg, logger)

	srv := httptest.NewServer(handler.NewLiveHandler(m, logger))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, m
}

func sendFrame(t *testing.T, conn *websocket.Conn, payload string, ts float64) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"frame":     base64.StdEncoding.EncodeToString([]byte(payload)),
		"timestamp": ts,
	}))
}

func TestLive_AnalyzesFrame(t *testing.T) {
	conn, _ := dialLive(t, mock.NewProvider(), config.LiveConfig{MinFrameInterval: time.Millisecond})

	sendFrame(t, conn, "frame-1", 1.25)

	var result struct {
		Timestamp float64            `json:"timestamp"`
		Vehicles  []models.Detection `json:"vehicles"`
	}
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, 1.25, result.Timestamp)
	require.Len(t, result.Vehicles, 1)
	assert.Equal(t, "mock-vehicle-1", result.Vehicles[0].VehicleID)
}

func TestLive_DropsFramesInsideRateWindow(t *testing.T) {
	// Count analyzer calls: only the first of three rapid frames goes through.
	calls := 0
	analyzer := &mock.Provider{
		Name_: "counting",
		DetectFunc: func(_ context.Context, _ []byte) ([]models.Detection, error) {
			calls++
			return []models.Detection{}, nil
		},
	}
	conn, _ := dialLive(t, analyzer, config.LiveConfig{MinFrameInterval: 500 * time.Millisecond})

	sendFrame(t, conn, "f1", 0.0)
	sendFrame(t, conn, "f2", 0.03)
	sendFrame(t, conn, "f3", 0.06)

	// Exactly one reply arrives; the dropped frames stay silent.
	var result map[string]any
	require.NoError(t, conn.ReadJSON(&result))
	assert.Contains(t, result, "vehicles")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var extra map[string]any
	err := conn.ReadJSON(&extra)
	require.Error(t, err)

	assert.Equal(t, 1, calls)
}

func TestLive_RejectsInvalidBase64(t *testing.T) {
	conn, _ := dialLive(t, mock.NewProvider(), config.LiveConfig{MinFrameInterval: time.Millisecond})

	require.NoError(t, conn.WriteJSON(map[string]any{"frame": "!!! not base64 !!!", "timestamp": 0.0}))

	var result map[string]any
	require.NoError(t, conn.ReadJSON(&result))
	errBody := result["error"].(map[string]any)
	assert.Equal(t, "INVALID_FRAME", errBody["code"])
}

func TestLive_RejectsOversizedFrame(t *testing.T) {
	conn, _ := dialLive(t, mock.NewProvider(), config.LiveConfig{
		MinFrameInterval: time.Millisecond,
		MaxFrameBytes:    16,
	})

	sendFrame(t, conn, strings.Repeat("x", 64), 0.0)

	var result map[string]any
	require.NoError(t, conn.ReadJSON(&result))
	errBody := result["error"].(map[string]any)
	assert.Equal(t, "FRAME_TOO_LARGE", errBody["code"])
}

func TestLive_SessionClosesWithConnection(t *testing.T) {
	conn, m := dialLive(t, mock.NewProvider(), config.LiveConfig{MinFrameInterval: time.Millisecond})

	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 10*time.Millisecond)
}
