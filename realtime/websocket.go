package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 64 * 1024

// NewUpgrader accepts browser origins that match allowedOrigin; "*" or an
// empty value allows any origin.
func NewUpgrader(allowedOrigin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
				return true
			}
			return origin == allowedOrigin
		},
	}
}

type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

// NewWebsocketTransport adapts a gorilla connection. The read deadline is
// pushed forward by pongWait on every pong.
func NewWebsocketTransport(conn *websocket.Conn, pongWait, writeWait time.Duration) Transport {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &wsTransport{conn: conn, writeWait: writeWait}
}

func (t *wsTransport) ReadJSON(v interface{}) error {
	return t.conn.ReadJSON(v)
}

func (t *wsTransport) WriteJSON(v interface{}) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.writeWait))
	return t.conn.Close()
}
