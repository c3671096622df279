// Package app wires the clients together from a loaded config.
package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"board-sync/internal/board"
	"board-sync/internal/config"
	"board-sync/internal/gateway"
	"board-sync/internal/realtime"
	"board-sync/internal/session"
)

// Clients holds the long lived pieces shared by every board a process opens.
type Clients struct {
	Config   *config.Config
	Session  *session.Store
	Gateway  *gateway.Client
	Realtime *realtime.Manager
	Logger   *log.Logger
}

// New builds the gateway and realtime clients. Nothing is dialed yet.
func New(cfg *config.Config, logger *log.Logger) (*Clients, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	transport, err := NewTransport(cfg.Realtime)
	if err != nil {
		return nil, err
	}
	return &Clients{
		Config:  cfg,
		Session: store,
		Gateway: gateway.New(cfg.API.URL, store, logger),
		Realtime: realtime.NewManager(transport, store, logger, realtime.Options{
			ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
			ReconnectDelay:    cfg.Realtime.ReconnectDelay,
		}),
		Logger: logger,
	}, nil
}

// NewTransport picks the event bus transport named by the config.
func NewTransport(cfg config.RealtimeConfig) (realtime.Transport, error) {
	switch cfg.Transport {
	case config.TransportRedis:
		t, err := realtime.NewRedisTransportFromURL(cfg.Redis, cfg.RoomPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return t, nil
	case config.TransportWebSocket:
		return realtime.NewWebSocketTransport(cfg.URL), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// OpenBoard attaches a board for projectID to the event bus and then loads
// it, so no event published after the load is missed. A failed first load
// leaves the board in the failed phase for the caller to show and retry.
// The returned func detaches the board and releases the connection. A bus
// that cannot be reached is not an error: the manager keeps retrying and the
// board works through the gateway meanwhile.
func (c *Clients) OpenBoard(ctx context.Context, projectID string) (*board.Board, func()) {
	b := board.New(projectID, c.Gateway, board.Options{Logger: c.Logger})
	detach := b.Attach(c.Realtime)
	lease, err := c.Realtime.Acquire(ctx)
	if err != nil {
		c.Logger.WithError(err).Warn("realtime unavailable, retrying in the background")
	}
	if err := b.Load(ctx); err != nil {
		c.Logger.WithError(err).WithField("project", projectID).Warn("initial board load failed")
	}
	return b, func() {
		detach()
		lease.Release()
		b.Close()
	}
}
