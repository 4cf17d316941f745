package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/bus"
)

// wsWriteTimeout bounds each client frame write; a stalled client must not
// block the publishing goroutine that feeds it.
const wsWriteTimeout = 5 * time.Second

// wsMaxPendingFrames is the per-connection outbound buffer cap. The bus's
// Emit is synchronous on the publisher's goroutine, so the subscribe
// callback here must never block on a slow client's socket write: it hands
// the frame to a bounded channel drained by a dedicated writer goroutine
// and drops the connection outright if that channel is already full,
// rather than queuing unbounded work on the publisher.
const wsMaxPendingFrames = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// frame is the wire shape pushed to every subscribed client.
type frame struct {
	Type      bus.EventType `json:"type"`
	Data      interface{}   `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
}

// SignalsSubscribe serves GET /api/signals/subscribe: upgrades to a
// WebSocket, forwards every SIGNAL_GENERATED event (plus any type named in
// ?types=) as a JSON frame until the client disconnects, and disposes its
// bus subscription on exit.
func SignalsSubscribe(b *bus.Bus, metrics *Metrics, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		if metrics != nil {
			metrics.WSConnections.Inc()
			defer metrics.WSConnections.Dec()
		}

		wantedTypes := parseSubscribeTypes(r)

		pending := make(chan bus.Event, wsMaxPendingFrames)
		closed := make(chan struct{})
		var closeOnce sync.Once
		dropConn := func(reason string) {
			closeOnce.Do(func() {
				logger.Debug().Str("reason", reason).Msg("websocket connection dropped")
				close(closed)
				conn.Close()
			})
		}

		disposers := make([]bus.Disposer, 0, len(wantedTypes))
		for _, t := range wantedTypes {
			disposers = append(disposers, b.Subscribe(t, func(_ context.Context, ev bus.Event) {
				select {
				case pending <- ev:
				default:
					// Buffer already at wsMaxPendingFrames: this subscriber is
					// too slow. Drop the connection instead of blocking the
					// publisher or growing the buffer unbounded.
					dropConn("buffer overflow")
				}
			}))
		}
		defer func() {
			for _, dispose := range disposers {
				dispose()
			}
		}()

		go func() {
			for {
				select {
				case <-closed:
					return
				case ev := <-pending:
					conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					if err := conn.WriteJSON(frame{Type: ev.Type, Data: ev.Payload, Timestamp: ev.Timestamp}); err != nil {
						dropConn("write error")
						return
					}
				}
			}
		}()

		// Block until the client disconnects; any read error (including a
		// close frame) ends the subscription.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		dropConn("client disconnect")
	}
}

func parseSubscribeTypes(r *http.Request) []bus.EventType {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return []bus.EventType{bus.EventSignalGenerated}
	}
	types := []bus.EventType{bus.EventSignalGenerated}
	for _, part := range splitComma(raw) {
		if t := bus.EventType(part); t != bus.EventSignalGenerated {
			types = append(types, t)
		}
	}
	return types
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
