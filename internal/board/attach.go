package board

import (
	"sync"

	"board-sync/internal/domain"
	"board-sync/internal/realtime"
)

// EventSource is the part of the realtime manager a board listens to.
type EventSource interface {
	JoinProject(projectID string)
	LeaveProject(projectID string)
	On(kind domain.EventKind, h realtime.TaskHandler) realtime.Subscription
	OnConnect(fn func()) realtime.Subscription
	Off(s realtime.Subscription)
}

// Attach joins the project room and feeds task events into the board. After
// every reconnect the board reloads from the gateway to pick up events sent
// while it was offline. The returned function undoes the attachment; Close
// calls it too.
func (b *Board) Attach(src EventSource) func() {
	subs := make([]realtime.Subscription, 0, len(domain.TaskEvents)+1)
	for _, kind := range domain.TaskEvents {
		subs = append(subs, src.On(kind, b.ApplyEvent))
	}
	subs = append(subs, src.OnConnect(b.resync))
	src.JoinProject(b.projectID)

	var once sync.Once
	detach := func() {
		once.Do(func() {
			for _, s := range subs {
				src.Off(s)
			}
			src.LeaveProject(b.projectID)
		})
	}

	b.mu.Lock()
	closed := b.closed
	if !closed {
		b.detach = append(b.detach, detach)
	}
	b.mu.Unlock()
	if closed {
		detach()
	}
	return detach
}

// resync reloads a board that has already been loaded once.
func (b *Board) resync() {
	b.mu.Lock()
	phase := b.phase
	closed := b.closed
	b.mu.Unlock()
	if closed || (phase != PhaseReady && phase != PhaseFailed) {
		return
	}
	go func() {
		if err := b.Load(b.ctx); err != nil {
			b.logger.WithError(err).WithField("project", b.projectID).Warn("board resync failed")
		}
	}()
}
