package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers load the page from any origin during development.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades GET /ws to a WebSocket and streams stream_update messages
// until the client goes away.
func ServeWS(b *Broadcaster, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		sub := b.Subscribe()
		done := make(chan struct{})

		go func() {
			readPump(conn, log)
			close(done)
		}()
		writePump(conn, sub, done)

		b.Unsubscribe(sub)
		conn.Close()
	}
}

// readPump discards client frames and keeps the read deadline fresh via pongs.
// It returns once the connection fails or is closed.
func readPump(conn *websocket.Conn, log *slog.Logger) {
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump forwards subscriber messages and pings until the subscriber is
// dropped, a write fails, or the read side finishes.
func writePump(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Messages():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
