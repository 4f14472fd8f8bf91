package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The operator UI is served from the same host, but phones on the
	// local network hit us by IP, so we can't be strict about Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// GET /api/ws
// Push channel for leaderboard and clock updates. We never expect the
// client to send anything meaningful; its read loop exists to detect the
// connection closing.
func (s *Server) httpWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	sub := s.hub.Subscribe()
	s.Log.Infof("WebSocket client connected (%v live)", s.hub.NumSubscribers())

	// Reader: discard everything, detect close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unsubscribe(sub)
				return
			}
		}
	}()

	// Writer: pump the subscription onto the wire. The hub closes the
	// channel when we're unsubscribed or dropped.
	go func() {
		defer conn.Close()
		for msg := range sub.Messages() {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.Unsubscribe(sub)
				// Drain so the hub never sees us as a stalled consumer.
				for range sub.Messages() {
				}
				break
			}
		}
		s.Log.Infof("WebSocket client disconnected (%v live)", s.hub.NumSubscribers())
	}()
}
