package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHeartbeat is the keep-alive interval used when none is configured
const DefaultHeartbeat = 30 * time.Second

const wsWriteTimeout = 10 * time.Second

// StreamHandler serves the event stream over plain HTTP. Clients asking for
// text/event-stream get Server-Sent Events; everyone else gets newline-delimited JSON.
func StreamHandler(hub *Hub, heartbeat time.Duration) http.Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
		rc := http.NewResponseController(w)

		if sse {
			w.Header().Set("Content-Type", "text/event-stream")
		} else {
			w.Header().Set("Content-Type", "application/x-ndjson")
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		sub := hub.Subscribe()
		defer sub.Close()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := writeStreamEvent(w, ev, sse); err != nil {
					slog.DebugContext(ctx, "Event stream write failed", "error", err)
					return
				}
			case <-ticker.C:
				keepAlive := "\n"
				if sse {
					keepAlive = ": keep-alive\n\n"
				}
				if _, err := fmt.Fprint(w, keepAlive); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				slog.DebugContext(ctx, "Event stream flush failed", "error", err)
				return
			}
		}
	})
}

func writeStreamEvent(w http.ResponseWriter, ev Event, sse bool) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if sse {
		_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", payload)
	return err
}

// WebSocketHandler serves the event stream over a WebSocket connection, one JSON
// text message per event, with ping frames as heartbeat.
func WebSocketHandler(hub *Hub, heartbeat time.Duration) http.Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sub := hub.Subscribe()
		defer sub.Close()

		// Subscribers never send data; reading only detects the peer going away.
		gone := make(chan struct{})
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
		})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-gone:
				return
			case ev, ok := <-sub.Events():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber dropped"),
						time.Now().Add(wsWriteTimeout))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	})
}
