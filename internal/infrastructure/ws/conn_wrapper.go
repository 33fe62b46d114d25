package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	// Time allowed to hear from the service before the link counts as dead.
	// Pings go out at nine tenths of it unless configured otherwise.
	pongWait = 60 * time.Second
)

// connWrapper serializes writes; gorilla connections allow one concurrent
// writer and one concurrent reader.
type connWrapper struct {
	conn     *websocket.Conn
	socketID string
	pongWait time.Duration
	mutex    sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// newConnWrapper arms the read deadline; every pong or inbound frame pushes
// it back by pongWait.
func newConnWrapper(c *websocket.Conn, socketID string, pongWait time.Duration) *connWrapper {
	w := &connWrapper{conn: c, socketID: socketID, pongWait: pongWait, done: make(chan struct{})}
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(w.pongWait))
	})
	return w
}

func (w *connWrapper) WriteFrame(f Frame) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(f)
}

func (w *connWrapper) Ping() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ReadMessage is called from the read loop only.
func (w *connWrapper) ReadMessage() ([]byte, error) {
	_, raw, err := w.conn.ReadMessage()
	if err == nil {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
	}
	return raw, err
}

// Done is closed once the connection is closed.
func (w *connWrapper) Done() <-chan struct{} {
	return w.done
}

func (w *connWrapper) Close() error {
	w.closeOnce.Do(func() { close(w.done) })

	w.mutex.Lock()
	defer w.mutex.Unlock()
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.conn.Close()
}
