package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trading-dashboard/internal/view"
)

// Message is one frame pushed to websocket clients
type Message struct {
	Type string          `json:"type"`
	Data *view.Dashboard `json:"data"`
}

const messageSnapshotUpdate = "snapshot_update"

// handleWebSocket streams the dashboard: once on connect and again after
// every committed snapshot. A slow client only receives the latest state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	logger := s.logger.WithField("remote", r.RemoteAddr)
	logger.Debug("WebSocket client connected")
	defer logger.Debug("WebSocket client disconnected")

	// Subscribe before the first send so no commit is missed in between
	updates, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.sendDashboard(conn); err != nil {
		logger.WithError(err).Debug("WebSocket write failed")
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-s.done:
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := s.sendDashboard(conn); err != nil {
				logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		}
	}
}

func (s *Server) sendDashboard(conn *websocket.Conn) error {
	msg := Message{
		Type: messageSnapshotUpdate,
		Data: s.dashboard(s.store.View()),
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WSWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
