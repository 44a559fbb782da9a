// WebSocket bridge for pubsub: forwards every Intent matching a client's
// requested actions out over a WebSocket connection, the same upgrade +
// push-loop shape used throughout this codebase's transport layer, adapted
// from polling a queue to forwarding a live subscription.
package pubsub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	gorillaws "github.com/gorilla/websocket"
)

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin upgrade requests; requests without an
	// Origin header (native clients, curl) are always allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return u.Host == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wireIntent is the JSON frame pushed to a WebSocket client for each
// delivered Intent.
type wireIntent struct {
	Action string         `json:"action"`
	What   int32          `json:"what"`
	Extras map[string]any `json:"extras,omitempty"`
}

// WebSocketBridge upgrades incoming requests to WebSocket connections and
// streams every Intent matching the query string's "action" parameters
// (repeatable: ?action=a&action=b) until the client disconnects.
type WebSocketBridge struct {
	Registry *Registry
}

func (b *WebSocketBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actions := r.URL.Query()["action"]
	if len(actions) == 0 {
		http.Error(w, "at least one action query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("pubsub: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	out := make(chan *Intent, 64)
	id, err := b.Registry.Subscribe(func(in *Intent) {
		select {
		case out <- in:
		default:
			slog.Warn("pubsub: websocket client too slow, dropping intent", "action", in.Action)
		}
	}, actions...)
	if err != nil {
		slog.Warn("pubsub: websocket subscribe failed", "err", err)
		return
	}
	defer b.Registry.Unsubscribe(id)

	// Drain (and discard) client frames so a closed connection is detected
	// promptly; this bridge is push-only and ignores their content.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case in := <-out:
			frame := wireIntent{Action: in.Action, What: in.What, Extras: in.Extras}
			data, err := json.Marshal(frame)
			if err != nil {
				slog.Warn("pubsub: marshal intent failed", "err", err)
				continue
			}
			if err := conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
				return
			}
		}
	}
}
