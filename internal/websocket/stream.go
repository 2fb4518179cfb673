// Package websocket bridges live queries onto WebSocket connections: one
// connection, one subscription, full result set per frame.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/coder/websocket"

	"planbook/internal/store"
)

const pingInterval = 30 * time.Second

// stream pumps one subscription's emissions to one connection.
type stream struct {
	conn   *ws.Conn
	sub    *store.Subscription
	logger *slog.Logger
}

func newStream(conn *ws.Conn, sub *store.Subscription, logger *slog.Logger) *stream {
	return &stream{conn: conn, sub: sub, logger: logger}
}

// run blocks until the connection or subscription ends.
func (s *stream) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.sub.Close()

	go s.readPump(ctx, cancel)
	s.writePump(ctx)

	s.conn.Close(ws.StatusNormalClosure, "")
}

// readPump discards incoming messages and cancels the stream when the peer
// closes the connection.
func (s *stream) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump forwards result sets as JSON text frames and pings to detect
// stale connections.
func (s *stream) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case result, ok := <-s.sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(result)
			if err != nil {
				s.logger.Error("marshal live result", "error", err)
				continue
			}
			if err := s.conn.Write(ctx, ws.MessageText, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
