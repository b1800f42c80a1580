package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LuisPassosRamos/IoT-Ecosystem/broadcast"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

const defaultWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn adapts a WebSocket connection to the broadcast transport interface.
// Data writes come only from the subscriber's writer goroutine; the mutex
// serializes them against the close handshake's control frame. Close itself
// never takes the write mutex: it must be able to interrupt a write that is
// parked on a dead peer, and the underlying Close is safe concurrently with
// a writer and unblocks it.
type wsConn struct {
	writeMu      sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// handleWebSocket upgrades the request and registers the client for the
// live feed. The connection gets a greeting and an initial snapshot, then
// receives every fanned-out event until it disconnects or falls behind.
func (s *Server) handleWebSocket(writeTimeout time.Duration) http.HandlerFunc {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		sub := s.deps.Broadcast.NewSubscriber(&wsConn{conn: conn, writeTimeout: writeTimeout})
		if err := s.deps.Broadcast.Register(sub); err != nil {
			s.logger.Warn("websocket registration failed", "error", err)
			_ = conn.Close()
			return
		}
		s.logger.Info("websocket client connected", "subscriber_id", sub.ID(), "remote", r.RemoteAddr)

		s.deps.Broadcast.Send(sub, telemetry.Event{
			Type:      telemetry.EventConnection,
			Data:      map[string]any{"status": "connected", "client_id": sub.ID()},
			Timestamp: time.Now().UTC(),
		})
		s.deps.Broadcast.Send(sub, telemetry.Event{
			Type:      telemetry.EventSnapshot,
			Data:      s.deps.Cache.Snapshot(),
			Timestamp: time.Now().UTC(),
		})

		go s.readLoop(conn, sub)
	}
}

// readLoop consumes client protocol messages until the connection drops,
// then tears down the registration.
func (s *Server) readLoop(conn *websocket.Conn, sub *broadcast.Subscriber) {
	defer func() {
		s.deps.Broadcast.Unregister(sub.ID())
		s.logger.Info("websocket client disconnected", "subscriber_id", sub.ID())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.deps.Broadcast.HandleClientMessage(sub, data)
	}
}
