package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bytedance/sonic"
)

// Frame is one named message on the event bus.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload as the frame data.
func NewFrame(event string, payload any) (Frame, error) {
	f := Frame{Event: event}
	if payload == nil {
		return f, nil
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Data = data
	return f, nil
}

// Transport opens connections to the event bus.
type Transport interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// Conn is a live connection. Emit may be called concurrently with Receive.
type Conn interface {
	Emit(ctx context.Context, event string, payload any) error
	// Receive blocks until a frame arrives, the context ends or the
	// connection drops.
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

// CredentialSource supplies the bearer token attached when dialing.
type CredentialSource interface {
	Token() string
}

var (
	ErrConnClosed       = errors.New("realtime: connection closed")
	ErrUnsupportedEvent = errors.New("realtime: event not supported by transport")
)
