package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"board-sync/internal/domain"
)

type emitted struct {
	event   string
	payload any
}

type fakeConn struct {
	frames chan Frame
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	emits []emitted
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Emit(_ context.Context, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{event, payload})
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.closed:
		return Frame{}, ErrConnClosed
	case f := <-c.frames:
		return f, nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) emitted() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.emits...)
}

// fakeTransport hands out queued conns; a nil entry fails the dial.
type fakeTransport struct {
	mu     sync.Mutex
	queue  []*fakeConn
	dials  int
	tokens []string
}

func (t *fakeTransport) push(c *fakeConn) {
	t.mu.Lock()
	t.queue = append(t.queue, c)
	t.mu.Unlock()
}

func (t *fakeTransport) Dial(_ context.Context, token string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	t.tokens = append(t.tokens, token)
	if len(t.queue) == 0 {
		return nil, errors.New("dial refused")
	}
	c := t.queue[0]
	t.queue = t.queue[1:]
	if c == nil {
		return nil, errors.New("dial refused")
	}
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

type tokenFunc func() string

func (f tokenFunc) Token() string { return f() }

func newTestManager(t *testing.T, tr Transport) (*Manager, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	m := NewManager(tr, tokenFunc(func() string { return "tok" }), logger, Options{
		ReconnectAttempts: 3,
		ReconnectDelay:    5 * time.Millisecond,
	})
	t.Cleanup(m.Close)
	return m, hook
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectIsIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	tr.push(newFakeConn())
	m, _ := newTestManager(t, tr)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	waitFor(t, "connection", m.Connected)
	if tr.dialCount() != 1 {
		t.Fatalf("expected one dial, got %d", tr.dialCount())
	}
	if tr.tokens[0] != "tok" {
		t.Fatalf("expected token to be sent, got %q", tr.tokens[0])
	}
}

func TestRoomsAreReferenceCounted(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{}
	tr.push(conn)
	m, _ := newTestManager(t, tr)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "connection", m.Connected)

	m.JoinProject("p1")
	m.JoinProject("p1")
	if got := m.RoomCount("p1"); got != 2 {
		t.Fatalf("expected two registrations, got %d", got)
	}
	m.LeaveProject("p1")
	if got := len(conn.emitted()); got != 1 {
		t.Fatalf("expected only the first join on the wire, got %d emits", got)
	}
	m.LeaveProject("p1")
	m.LeaveProject("p1")

	want := []emitted{{domain.JoinProject, "p1"}, {domain.LeaveProject, "p1"}}
	got := conn.emitted()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emit %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestJoinBeforeConnectIsSentOnConnect(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{}
	tr.push(conn)
	m, _ := newTestManager(t, tr)

	m.JoinProject("p1")
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "join", func() bool { return len(conn.emitted()) == 1 })
	if e := conn.emitted()[0]; e.event != domain.JoinProject || e.payload != "p1" {
		t.Fatalf("unexpected emit %v", e)
	}
}

func TestReconnectRejoinsRoomsAndRunsHooks(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	tr := &fakeTransport{}
	tr.push(first)
	tr.push(nil)
	tr.push(second)
	m, _ := newTestManager(t, tr)

	var mu sync.Mutex
	connects := 0
	m.OnConnect(func() {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	m.JoinProject("p1")
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "first join", func() bool { return len(first.emitted()) == 1 })

	first.Close()
	waitFor(t, "rejoin", func() bool { return len(second.emitted()) == 1 })
	if e := second.emitted()[0]; e.event != domain.JoinProject || e.payload != "p1" {
		t.Fatalf("unexpected rejoin %v", e)
	}
	waitFor(t, "hooks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects == 2
	})
	if tr.dialCount() != 3 {
		t.Fatalf("expected three dials, got %d", tr.dialCount())
	}
}

func TestReconnectGivesUpAfterAttempts(t *testing.T) {
	tr := &fakeTransport{}
	m, hook := newTestManager(t, tr)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected initial connect error")
	}
	waitFor(t, "give up", func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "realtime reconnect attempts exhausted" {
				return true
			}
		}
		return false
	})
	if got := tr.dialCount(); got != 4 {
		t.Fatalf("expected initial dial plus three retries, got %d", got)
	}

	conn := newFakeConn()
	tr.push(conn)
	waitFor(t, "connect after give up", func() bool {
		return m.Connect(context.Background()) == nil && m.Connected()
	})
}

func TestDispatchUnwrapsTaskPayloads(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{}
	tr.push(conn)
	m, hook := newTestManager(t, tr)

	got := make(chan domain.TaskEvent, 4)
	m.On(domain.TaskCreated, func(ev domain.TaskEvent) { got <- ev })
	sub := m.On(domain.TaskDeleted, func(ev domain.TaskEvent) { got <- ev })
	m.Off(sub)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	conn.frames <- Frame{Event: string(domain.TaskCreated), Data: []byte(`{"task":{"id":"t1","title":"A","status":"todo"}}`)}
	conn.frames <- Frame{Event: string(domain.TaskDeleted), Data: []byte(`{"id":"t1"}`)}
	conn.frames <- Frame{Event: string(domain.TaskCreated), Data: []byte(`{"id":"t2","title":"B","status":"done"}`)}
	conn.frames <- Frame{Event: string(domain.TaskCreated), Data: []byte(`{"title":"no id"}`)}
	conn.frames <- Frame{Event: string(domain.MemberAdded), Data: []byte(`{"userId":"u1"}`)}

	for _, want := range []string{"t1", "t2"} {
		select {
		case ev := <-got:
			if ev.Kind != domain.TaskCreated || ev.Task.ID != want {
				t.Fatalf("expected created %s, got %+v", want, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("no event for %s", want)
		}
	}
	waitFor(t, "member event log", func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "realtime event" && e.Data["event"] == string(domain.MemberAdded) {
				return true
			}
		}
		return false
	})
	select {
	case ev := <-got:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestLastLeaseClosesConnection(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{}
	tr.push(conn)
	m, _ := newTestManager(t, tr)

	a, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	waitFor(t, "connection", m.Connected)

	a.Release()
	a.Release()
	if conn.isClosed() {
		t.Fatal("connection closed while a lease is held")
	}
	b.Release()
	if !conn.isClosed() || m.Connected() {
		t.Fatal("expected connection to close with the last lease")
	}
	if tr.dialCount() != 1 {
		t.Fatalf("expected one dial, got %d", tr.dialCount())
	}
}

func TestAcquireDuringTeardownStartsFreshConnection(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	tr := &fakeTransport{}
	tr.push(first)
	tr.push(second)
	m, _ := newTestManager(t, tr)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	m.OnConnect(func() {
		once.Do(func() {
			close(entered)
			<-unblock
		})
	})

	lease, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	<-entered

	released := make(chan struct{})
	go func() {
		lease.Release()
		close(released)
	}()
	waitFor(t, "teardown to start", func() bool { return !m.Connected() })

	acquired := make(chan *Lease, 1)
	go func() {
		l, err := m.Acquire(context.Background())
		if err != nil {
			t.Errorf("second acquire: %v", err)
		}
		acquired <- l
	}()

	close(unblock)
	<-released
	next := <-acquired
	defer next.Release()

	waitFor(t, "fresh connection", m.Connected)
	if !first.isClosed() {
		t.Fatal("expected the released connection to be closed")
	}
	if second.isClosed() || tr.dialCount() != 2 {
		t.Fatalf("expected a second live dial, got dials=%d", tr.dialCount())
	}
}
