package handler

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vehiclereid/revid/internal/live"
	"github.com/vehiclereid/revid/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8 << 10,
	WriteBufferSize: 8 << 10,
	// The API carries no browser credentials; origin checks add nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// liveFrame is one inbound message on a live session.
type liveFrame struct {
	Frame     string  `json:"frame"` // base64-encoded JPEG
	Timestamp float64 `json:"timestamp"`
}

// liveResult is the reply to an analyzed frame. Dropped frames get no reply.
type liveResult struct {
	Timestamp float64            `json:"timestamp"`
	Vehicles  []models.Detection `json:"vehicles"`
}

type liveError struct {
	Error liveErrorBody `json:"error"`
}

type liveErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewLiveHandler returns the handler for GET /api/v1/live/ws. Each
// connection is one analysis session; it ends when the client disconnects.
func NewLiveHandler(m *live.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		session := m.Open()
		defer m.Close(session.ID)
		logger = logger.With("session_id", session.ID)

		for {
			var msg liveFrame
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("live connection closed unexpectedly", "error", err)
				}
				return
			}

			frame, err := base64.StdEncoding.DecodeString(msg.Frame)
			if err != nil {
				writeLiveError(conn, "INVALID_FRAME", "frame must be base64-encoded")
				continue
			}

			detections, err := session.Analyze(r.Context(), frame)
			switch {
			case err == nil:
				if detections == nil {
					detections = []models.Detection{}
				}
				if err := conn.WriteJSON(liveResult{Timestamp: msg.Timestamp, Vehicles: detections}); err != nil {
					return
				}
			case errors.Is(err, live.ErrFrameDropped):
				// Rate-limited frames are discarded silently.
			case errors.Is(err, live.ErrFrameTooLarge):
				writeLiveError(conn, "FRAME_TOO_LARGE", "frame exceeds the size limit")
			case errors.Is(err, live.ErrSessionClosed):
				return
			default:
				logger.Warn("live analysis failed", "error", err)
				writeLiveError(conn, "ANALYZER_ERROR", "could not analyze frame")
			}
		}
	}
}

func writeLiveError(conn *websocket.Conn, code, message string) {
	_ = conn.WriteJSON(liveError{Error: liveErrorBody{Code: code, Message: message}})
}
