package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"board-sync/internal/domain"
)

// DefaultRoomPrefix namespaces project room channels.
const DefaultRoomPrefix = "project:"

// RedisTransport reads the event bus from Redis pub/sub. Each project room is
// the channel <prefix><projectID>; joining and leaving a room map to
// SUBSCRIBE and UNSUBSCRIBE. Messages carry the same JSON frame as the
// websocket transport.
type RedisTransport struct {
	client *redis.Client
	prefix string
}

// NewRedisTransport builds a transport on an existing client.
func NewRedisTransport(client *redis.Client, prefix string) *RedisTransport {
	if prefix == "" {
		prefix = DefaultRoomPrefix
	}
	return &RedisTransport{client: client, prefix: prefix}
}

// NewRedisTransportFromURL parses a redis:// connection string.
func NewRedisTransportFromURL(connStr, prefix string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisTransport(redis.NewClient(opts), prefix), nil
}

// Room returns the channel name for a project.
func (t *RedisTransport) Room(projectID string) string {
	return t.prefix + projectID
}

// Publish sends a frame to a project room.
func (t *RedisTransport) Publish(ctx context.Context, projectID, event string, payload any) error {
	f, err := NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.Room(projectID), data).Err()
}

// Dial checks the server is reachable and opens a subscription with no rooms.
// The token is not used; access to Redis is governed by the connection string.
func (t *RedisTransport) Dial(ctx context.Context, _ string) (Conn, error) {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	c := &redisConn{
		t:      t,
		sub:    t.client.Subscribe(ctx),
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	go c.read()
	return c, nil
}

type redisConn struct {
	t   *RedisTransport
	sub *redis.PubSub

	frames chan Frame
	done   chan struct{}
	err    error
	once   sync.Once
}

func (c *redisConn) read() {
	defer close(c.frames)
	for {
		msg, err := c.sub.ReceiveMessage(context.Background())
		if err != nil {
			c.err = err
			return
		}
		var f Frame
		if err := sonic.UnmarshalString(msg.Payload, &f); err != nil || f.Event == "" {
			continue
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *redisConn) Emit(ctx context.Context, event string, payload any) error {
	room, ok := payload.(string)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, event)
	}
	switch event {
	case domain.JoinProject:
		return c.sub.Subscribe(ctx, c.t.Room(room))
	case domain.LeaveProject:
		return c.sub.Unsubscribe(ctx, c.t.Room(room))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, event)
	}
}

func (c *redisConn) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-c.frames:
		if !ok {
			if c.err != nil && !errors.Is(c.err, redis.ErrClosed) {
				return Frame{}, c.err
			}
			return Frame{}, ErrConnClosed
		}
		return f, nil
	}
}

func (c *redisConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.sub.Close()
	})
	return err
}
