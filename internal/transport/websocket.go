package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roast_monitor/internal/models"
)

const wsWriteWait = 5 * time.Second

// WebSocket reads telemetry pushed by a networked roaster. Messages are
// JSON objects ({"temp1": .., "temp2": ..}) or plain text lines.
type WebSocket struct {
	url    string
	opts   Options
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	task    *task
}

func NewWebSocket(url string, opts Options) *WebSocket {
	return &WebSocket{
		url:    url,
		opts:   opts.withDefaults(),
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

func (w *WebSocket) Connect(ctx context.Context, onReading func(models.Reading), onDisconnect func()) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return "", fmt.Errorf("%w: %s already open", ErrHandshake, w.url)
	}
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrHandshake, w.url, err)
	}
	t, ctx := startTask(ctx)
	w.conn, w.task = conn, t

	st := newStream(KindWebSocket, w.opts, onReading)
	t.Go(func() { w.readLoop(ctx, conn, st, onDisconnect) })
	t.Go(func() {
		poll(ctx, w.opts.PollInterval, func() error {
			return w.write(conn, websocket.TextMessage, []byte(websocketPollCommand))
		}, w.opts.Log)
	})
	w.opts.Log.Infow("transport_connected", "kind", KindWebSocket, "url", w.url)
	return w.url, nil
}

func (w *WebSocket) write(conn *websocket.Conn, kind int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(kind, data)
}

func (w *WebSocket) readLoop(ctx context.Context, conn *websocket.Conn, st *stream, onDisconnect func()) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.opts.Log.Warnw("transport_read_failed", "kind", KindWebSocket, "url", w.url, "error", err)
			}
			w.shutdown(false)
			if onDisconnect != nil {
				onDisconnect()
			}
			return
		}
		st.message(msg)
	}
}

// Close sends a close frame and closes the connection. Safe to call more
// than once.
func (w *WebSocket) Close() error {
	return w.shutdown(true)
}

func (w *WebSocket) shutdown(sendClose bool) error {
	w.mu.Lock()
	conn, t := w.conn, w.task
	w.conn, w.task = nil, nil
	w.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Stop()
	if sendClose {
		_ = w.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	return conn.Close()
}
