package relay

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/casefileai/case-gateway/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect cross-origin in development
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsConn serializes writes to one websocket connection. The event loop, the
// analysis goroutine and the read loop all send server messages.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Handler returns the websocket endpoint for recording sessions. One
// connection carries at most one active session; a dropped connection is
// treated as an explicit stop.
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		correlationID := observability.NewCorrelationID()
		logger := observability.WithCorrelationID(correlationID)
		logger.Info().Msg("Client connected")

		sender := &wsConn{conn: conn}
		var session *Session

		defer func() {
			// Disconnect is an implicit stop_recording
			if session != nil {
				session.Stop(context.Background())
			}
			logger.Info().Msg("Client disconnected")
		}()

		expectedFrame := m.cfg.FrameBytes()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("WebSocket read error")
				}
				return
			}

			msg, err := ParseClientMessage(data)
			if err != nil {
				logger.Warn().Err(err).Msg("Rejected client message")
				_ = sender.Send(newError(err.Error()))
				continue
			}

			switch msg := msg.(type) {
			case StartRecording:
				if session != nil && !session.Terminal() {
					logger.Warn().Msg("Duplicate start_recording rejected")
					_ = sender.Send(newError("a recording is already in progress"))
					continue
				}
				s, err := m.Start(r.Context(), sender, msg, logger)
				if err != nil {
					logger.Error().Err(err).Msg("Failed to start recording session")
					_ = sender.Send(newError(err.Error()))
					continue
				}
				session = s

			case AudioChunk:
				if session == nil {
					_ = sender.Send(newError("no active recording"))
					continue
				}
				if len(msg.Frame) != expectedFrame {
					logger.Warn().
						Int("frame_bytes", len(msg.Frame)).
						Int("expected_bytes", expectedFrame).
						Msg("Rejected audio chunk with unexpected frame size")
					_ = sender.Send(newError("audio chunk has unexpected frame size"))
					continue
				}
				session.HandleChunk(msg.Frame)

			case StopRecording:
				if session != nil {
					session.Stop(r.Context())
				}
			}
		}
	}
}
