package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"meshchat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the gateway already enforces origin policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsRooms streams the visible room list; the current snapshot is delivered
// on connect, then every change.
func (s *Server) wsRooms(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.svc.VisibleRooms().Subscribe()
	defer cancel()
	serveFeed(w, r, ch)
}

// wsUsers streams the known-user list.
func (s *Server) wsUsers(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.svc.AllUsers().Subscribe()
	defer cancel()
	serveFeed(w, r, ch)
}

// wsMessages streams the room's message list, normalized and ordered.
func (s *Server) wsMessages(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	ch, cancel := s.svc.Messages(room)
	defer cancel()
	serveFeed(w, r, ch)
}

func serveFeed[T any](w http.ResponseWriter, r *http.Request, ch <-chan T) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close()

	// reader goroutine: surfaces client disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(v); err != nil {
				logger.Debug("ws_write_failed", "path", r.URL.Path, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
