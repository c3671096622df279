package realtime

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// WebSocketTransport talks to the event bus over a websocket carrying JSON
// frames of the form {"event": ..., "data": ...}.
type WebSocketTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewWebSocketTransport returns a transport for the given ws:// or wss:// URL.
func NewWebSocketTransport(rawURL string) *WebSocketTransport {
	return &WebSocketTransport{
		URL: rawURL,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial connects and authenticates with token, sent both as a bearer header and
// as the token query parameter for servers that only read the handshake URL.
func (t *WebSocketTransport) Dial(ctx context.Context, token string) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := t.Dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	c := &wsConn{
		ws:     ws,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	go c.read()
	return c, nil
}

type wsConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	frames  chan Frame
	done    chan struct{}
	err     error
	once    sync.Once
}

func (c *wsConn) read() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		var f Frame
		if err := sonic.Unmarshal(data, &f); err != nil || f.Event == "" {
			continue
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Emit(ctx context.Context, event string, payload any) error {
	f, err := NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-c.frames:
		if !ok {
			if c.err != nil {
				return Frame{}, c.err
			}
			return Frame{}, ErrConnClosed
		}
		return f, nil
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
