package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"board-sync/internal/domain"
)

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
)

// Options tunes the reconnect policy.
type Options struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// TaskHandler receives canonical task events.
type TaskHandler func(domain.TaskEvent)

// Subscription identifies a registered handler.
type Subscription struct {
	kind domain.EventKind
	id   int
}

// Manager owns the single connection to the event bus. The connection is
// shared by reference: it is opened by the first Acquire and torn down when
// the last Lease is released. Project rooms are reference counted as well, so
// two views joining the same room produce one join on the wire and the room is
// left only when the last of them leaves.
//
// Channel failures are logged and retried, never returned as fatal: the board
// stays usable through the gateway when no events arrive.
type Manager struct {
	transport Transport
	creds     CredentialSource
	logger    *log.Logger
	opts      Options

	mu        sync.Mutex
	conn      Conn
	running   bool
	cancel    context.CancelFunc
	loopDone  chan struct{}
	closing   chan struct{}
	leases    map[string]struct{}
	rooms     map[string]int
	handlers  map[domain.EventKind]map[int]TaskHandler
	onConnect map[int]func()
	nextID    int
}

// NewManager creates a manager. Zero options fall back to five attempts one
// second apart.
func NewManager(t Transport, creds CredentialSource, logger *log.Logger, opts Options) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = DefaultReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Manager{
		transport: t,
		creds:     creds,
		logger:    logger,
		opts:      opts,
		leases:    make(map[string]struct{}),
		rooms:     make(map[string]int),
		handlers:  make(map[domain.EventKind]map[int]TaskHandler),
		onConnect: make(map[int]func()),
	}
}

// Lease is one holder's interest in the shared connection.
type Lease struct {
	m    *Manager
	id   string
	once sync.Once
}

// Release gives the lease back. The transport is closed when no lease remains.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.release(l.id) })
}

// Acquire registers interest in the connection and connects if needed. A
// connect failure is returned for information only; the lease is valid and
// the manager keeps retrying.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	l := &Lease{m: m, id: uuid.NewString()}
	m.mu.Lock()
	m.leases[l.id] = struct{}{}
	m.mu.Unlock()
	return l, m.Connect(ctx)
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.leases, id)
	var finish func()
	if len(m.leases) == 0 {
		finish = m.stopLocked()
	}
	m.mu.Unlock()
	if finish != nil {
		finish()
	}
}

// Connect opens the connection unless one is already open or being
// re-established.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	for m.closing != nil {
		closing := m.closing
		m.mu.Unlock()
		<-closing
		m.mu.Lock()
		if m.closing == closing {
			m.closing = nil
		}
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	done := m.loopDone
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.logger.WithError(err).Error("realtime connect failed")
		go func() {
			defer close(done)
			m.reconnect(loopCtx)
		}()
		return err
	}
	go func() {
		defer close(done)
		m.serve(loopCtx, conn)
	}()
	return nil
}

// Connected reports whether a live connection exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Close tears the connection down and stops reconnecting. Rooms and handlers
// are kept so a later Connect restores them.
func (m *Manager) Close() {
	m.mu.Lock()
	finish := m.stopLocked()
	m.mu.Unlock()
	if finish != nil {
		finish()
	}
}

// stopLocked detaches the running loop and returns the rest of the teardown,
// to be run without the lock, or nil when no loop is running. Until that
// finishes, Connect waits instead of trusting the old loop.
func (m *Manager) stopLocked() func() {
	cancel, done, conn := m.cancel, m.loopDone, m.conn
	m.conn = nil
	m.cancel = nil
	m.running = false
	if cancel == nil {
		return nil
	}
	m.closing = done
	return func() {
		cancel()
		if conn != nil {
			_ = conn.Close()
		}
		<-done
		m.mu.Lock()
		if m.closing == done {
			m.closing = nil
		}
		m.mu.Unlock()
	}
}

// JoinProject registers interest in a project room.
func (m *Manager) JoinProject(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[projectID]++
	if m.rooms[projectID] > 1 || m.conn == nil {
		return
	}
	m.emitLocked(domain.JoinProject, projectID)
}

// LeaveProject drops one registration; the room is left with the last one.
func (m *Manager) LeaveProject(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rooms[projectID]
	if !ok {
		return
	}
	if n > 1 {
		m.rooms[projectID] = n - 1
		return
	}
	delete(m.rooms, projectID)
	if m.conn != nil {
		m.emitLocked(domain.LeaveProject, projectID)
	}
}

// RoomCount returns the number of registrations for a room.
func (m *Manager) RoomCount(projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[projectID]
}

// On subscribes to a task event kind.
func (m *Manager) On(kind domain.EventKind, h TaskHandler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if m.handlers[kind] == nil {
		m.handlers[kind] = make(map[int]TaskHandler)
	}
	m.handlers[kind][m.nextID] = h
	return Subscription{kind: kind, id: m.nextID}
}

// OnConnect registers fn to run after every successful (re)connect, once the
// rooms have been re-joined.
func (m *Manager) OnConnect(fn func()) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.onConnect[m.nextID] = fn
	return Subscription{id: m.nextID}
}

// Off removes a handler registered with On or OnConnect.
func (m *Manager) Off(s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.kind == "" {
		delete(m.onConnect, s.id)
		return
	}
	delete(m.handlers[s.kind], s.id)
}

func (m *Manager) emitLocked(event, projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.conn.Emit(ctx, event, projectID); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{"event": event, "project": projectID}).Warn("realtime emit failed")
		return
	}
	m.logger.WithFields(log.Fields{"event": event, "project": projectID}).Debug("realtime emit")
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	token := ""
	if m.creds != nil {
		token = m.creds.Token()
	}
	return m.transport.Dial(ctx, token)
}

// serve installs conn, re-joins rooms and pumps frames until the connection
// drops, then hands over to reconnect.
func (m *Manager) serve(ctx context.Context, conn Conn) {
	for {
		if ctx.Err() != nil {
			_ = conn.Close()
			return
		}
		m.install(conn)
		err := m.pump(ctx, conn)
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		m.logger.WithError(err).Warn("realtime disconnected")
		var ok bool
		conn, ok = m.redial(ctx)
		if !ok {
			return
		}
	}
}

func (m *Manager) reconnect(ctx context.Context) {
	conn, ok := m.redial(ctx)
	if !ok {
		return
	}
	m.serve(ctx, conn)
}

// redial tries the configured number of attempts with a fixed delay.
func (m *Manager) redial(ctx context.Context) (Conn, bool) {
	for attempt := 1; attempt <= m.opts.ReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(m.opts.ReconnectDelay):
		}
		conn, err := m.dial(ctx)
		if err == nil {
			m.logger.WithField("attempt", attempt).Info("realtime reconnected")
			return conn, true
		}
		m.logger.WithError(err).WithField("attempt", attempt).Warn("realtime reconnect failed")
	}
	m.logger.WithField("attempts", m.opts.ReconnectAttempts).Error("realtime reconnect attempts exhausted")
	m.mu.Lock()
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil, false
}

func (m *Manager) install(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	for room := range m.rooms {
		m.emitLocked(domain.JoinProject, room)
	}
	hooks := make([]func(), 0, len(m.onConnect))
	for _, fn := range m.onConnect {
		hooks = append(hooks, fn)
	}
	m.mu.Unlock()

	m.logger.Info("realtime connected")
	for _, fn := range hooks {
		fn()
	}
}

func (m *Manager) pump(ctx context.Context, conn Conn) error {
	for {
		f, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		m.dispatch(f)
	}
}

func (m *Manager) dispatch(f Frame) {
	kind := domain.EventKind(f.Event)
	if !kind.IsTaskEvent() {
		switch kind {
		case domain.MemberAdded, domain.MemberRemoved, domain.ProjectUpdated, domain.ProjectDeleted:
			m.logger.WithFields(log.Fields{"event": f.Event, "data": string(f.Data)}).Info("realtime event")
		default:
			m.logger.WithField("event", f.Event).Debug("realtime event ignored")
		}
		return
	}
	task, err := domain.DecodeTaskPayload(f.Data)
	if err != nil {
		m.logger.WithError(err).WithField("event", f.Event).Warn("realtime payload rejected")
		return
	}

	m.mu.Lock()
	hs := make([]TaskHandler, 0, len(m.handlers[kind]))
	for _, h := range m.handlers[kind] {
		hs = append(hs, h)
	}
	m.mu.Unlock()

	ev := domain.TaskEvent{Kind: kind, Task: task}
	for _, h := range hs {
		h(ev)
	}
}
