package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
}

// handleStream pushes a snapshot on connect, every StreamInterval and
// whenever Wake fires. Clients only send control frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readPump(conn, cancel)

	var wake <-chan struct{}
	if s.opts.Wake != nil {
		ch, unsubscribe := s.opts.Wake.Subscribe()
		defer unsubscribe()
		wake = ch
	}

	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	s.log.Debug("status stream opened", "remote", r.RemoteAddr)
	defer s.log.Debug("status stream closed", "remote", r.RemoteAddr)

	if !s.push(ctx, conn) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if !s.push(ctx, conn) {
				return
			}
		case <-wake:
			if !s.push(ctx, conn) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn) bool {
	snap := s.status.Snapshot(ctx)
	if ctx.Err() != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snap); err != nil {
		s.log.Debug("status stream write failed", "err", err)
		return false
	}
	return true
}

// readPump keeps the read deadline alive on pongs and cancels the stream
// when the client goes away.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("status stream read error", "err", err)
			}
			return
		}
	}
}
