package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/coachchat/pkg/sem"
)

// Client request types.
const (
	RequestPing         = "ws.ping"
	RequestLoadEarlier  = "chat.load_earlier"
	RequestWebViewEvent = "webview.event"
)

// Commands is the session surface reachable from a websocket client.
type Commands interface {
	LoadEarlier(ctx context.Context) error
	HandleWebViewEvent(ctx context.Context, data string) error
}

// Request is a client-to-server websocket message.
type Request struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// NewHandler upgrades the request, replays buffered frames and serves client
// requests until the connection closes.
func NewHandler(sessionID string, b *Broadcaster, cmds Commands, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if b == nil || cmds == nil {
			http.Error(w, "session not initialized", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		wsLog := log.With().Str("component", "ws").Str("session_id", sessionID).Str("remote", req.RemoteAddr).Logger()
		wsLog.Info().Msg("ws connected")

		b.Attach(conn)
		if hello, err := sem.Control("ws.hello", map[string]any{
			"sessionId":  sessionID,
			"serverTime": time.Now().UnixMilli(),
		}); err == nil {
			b.Pool().SendToOne(conn, hello)
		}

		defer wsLog.Info().Msg("ws disconnected")
		defer b.Pool().Remove(conn)
		ctx := req.Context()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if msgType != websocket.TextMessage || len(data) == 0 {
				continue
			}
			if reply := Dispatch(ctx, cmds, data); reply != nil {
				b.Pool().SendToOne(conn, reply)
			}
		}
	}
}

// Dispatch executes one client request. It returns a frame to send back to
// that client only, or nil.
func Dispatch(ctx context.Context, cmds Commands, data []byte) []byte {
	var r Request
	if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
		r.Type = RequestPing
	} else if err := json.Unmarshal(data, &r); err != nil {
		log.Warn().Str("component", "ws").Err(err).Msg("ignoring malformed ws request")
		return nil
	}

	var err error
	switch r.Type {
	case RequestPing:
		pong, perr := sem.Control("ws.pong", map[string]any{"serverTime": time.Now().UnixMilli()})
		if perr != nil {
			return nil
		}
		return pong
	case RequestLoadEarlier:
		err = cmds.LoadEarlier(ctx)
	case RequestWebViewEvent:
		err = cmds.HandleWebViewEvent(ctx, r.Data)
	default:
		log.Warn().Str("component", "ws").Str("type", r.Type).Msg("ignoring unknown ws request")
		return nil
	}
	if err != nil {
		log.Warn().Str("component", "ws").Str("type", r.Type).Err(err).Msg("ws request failed")
		reply, cerr := sem.Control("ws.error", map[string]any{"request": r.Type, "error": err.Error()})
		if cerr != nil {
			return nil
		}
		return reply
	}
	return nil
}
