package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"board-sync/internal/domain"
	"board-sync/internal/gateway"
)

var (
	ErrClosed           = errors.New("board: closed")
	ErrNotLoaded        = errors.New("board: not loaded")
	ErrUnknownTask      = errors.New("board: unknown task")
	ErrMutationInFlight = errors.New("board: a change to this task is already in flight")
)

// Gateway is the part of the remote gateway the board uses.
type Gateway interface {
	GetProject(ctx context.Context, projectID string) (domain.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, projectID string, in domain.TaskInput) (domain.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID string, in domain.TaskInput) (domain.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID string) error
}

// Notice reports a failed operation to the user.
type Notice struct {
	Op     string
	TaskID string
	Err    error
}

func (n Notice) Error() string {
	return fmt.Sprintf("%s failed: %v", n.Op, n.Err)
}

// Notifier surfaces failures. It is called without the board lock held.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Options configures a Board.
type Options struct {
	Logger   *log.Logger
	Notifier Notifier
}

type entry struct {
	task  domain.Task
	state State
	// rev changes whenever the task is replaced. A failed move only rolls
	// back when nothing replaced the task after the optimistic apply.
	rev uint64
}

type draft struct {
	id    string
	state PendingCreate
}

// Board is the reducer over the tasks of one project. Local intents, gateway
// results and inbound events all go through it and it derives the board view.
// Gateway calls are made without holding the lock.
type Board struct {
	projectID string
	gw        Gateway
	logger    *log.Logger
	notifier  Notifier
	changes   *changeBroker

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	phase   Phase
	loadErr error
	loadGen uint64
	project *domain.Project
	entries map[string]*entry
	columns map[domain.Status][]string
	drafts  []draft
	version uint64
	detach  []func()
}

// New creates an empty board for projectID. Call Load to populate it.
func New(projectID string, gw Gateway, opts Options) *Board {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Board{
		projectID: projectID,
		gw:        gw,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		changes:   newChangeBroker(),
		ctx:       ctx,
		cancel:    cancel,
		phase:     PhaseIdle,
		entries:   make(map[string]*entry),
		columns:   make(map[domain.Status][]string),
	}
}

// ProjectID returns the project the board shows.
func (b *Board) ProjectID() string { return b.projectID }

// Load fetches the project and its tasks. A failed first load puts the board
// in the failed phase instead of showing an empty board; a failed reload keeps
// the current tasks.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.loadGen++
	gen := b.loadGen
	if b.phase != PhaseReady {
		b.phase = PhaseLoading
		b.touchLocked()
	}
	b.mu.Unlock()

	var (
		project domain.Project
		tasks   []domain.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := b.gw.GetProject(gctx, b.projectID)
		project = p
		return err
	})
	g.Go(func() error {
		t, err := b.gw.ListTasks(gctx, b.projectID)
		tasks = t
		return err
	})
	err := g.Wait()
	if err == nil {
		if verr := project.Validate(); verr != nil {
			err = fmt.Errorf("project %s: %w", b.projectID, verr)
		}
	}

	b.mu.Lock()
	if b.closed || gen != b.loadGen {
		b.mu.Unlock()
		return err
	}
	if err != nil {
		if b.phase != PhaseReady {
			b.phase = PhaseFailed
			b.loadErr = err
			b.touchLocked()
		}
		b.mu.Unlock()
		b.report("load", "", err)
		return err
	}
	b.resetLocked(project, tasks)
	b.mu.Unlock()
	b.logger.WithFields(log.Fields{"project": b.projectID, "tasks": len(tasks)}).Debug("board loaded")
	return nil
}

// resetLocked replaces the task set with the server's. Tasks already shown in
// the same column keep their local order; new ones follow in server order.
// In-flight states survive so a pending call still holds its task, and a task
// with an unconfirmed move keeps its local column and position.
func (b *Board) resetLocked(project domain.Project, tasks []domain.Task) {
	next := make(map[string]*entry, len(tasks))
	byStatus := make(map[domain.Status][]string)
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, dup := next[t.ID]; dup {
			continue
		}
		t = b.normalize(t, domain.StatusTodo)
		e := &entry{task: t, state: Stable{}}
		if old, ok := b.entries[t.ID]; ok {
			e.state = old.state
			e.rev = old.rev + 1
			if pm, moving := old.state.(PendingMove); moving {
				// The server has not confirmed the move yet: the task stays
				// where it was dropped and a failure rolls back to this copy.
				pm.Prior = t
				e.state = pm
				e.task.Status = old.task.Status
				e.rev = old.rev
			}
		}
		next[t.ID] = e
		byStatus[e.task.Status] = append(byStatus[e.task.Status], t.ID)
	}

	columns := make(map[domain.Status][]string)
	for _, status := range domain.Statuses {
		seen := make(map[string]bool)
		var col []string
		for _, id := range b.columns[status] {
			if e, ok := next[id]; ok && e.task.Status == status {
				col = append(col, id)
				seen[id] = true
			}
		}
		for _, id := range byStatus[status] {
			if !seen[id] {
				col = append(col, id)
			}
		}
		columns[status] = col
	}

	b.project = &project
	b.entries = next
	b.columns = columns
	b.phase = PhaseReady
	b.loadErr = nil
	b.touchLocked()
}

// Move relocates a task to status at index. Moving within a column only
// reorders the board and makes no remote call. Moving across columns is
// applied at once and confirmed by a status update; if the update fails the
// task goes back to the column and index it came from.
func (b *Board) Move(ctx context.Context, taskID string, to domain.Status, index int) error {
	if !to.Valid() {
		return &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", to)}
	}
	b.mu.Lock()
	e, err := b.lookupLocked(taskID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	from := e.task.Status
	fromIdx := b.indexLocked(from, taskID)
	index = clampIndex(index, len(b.columns[to]), from == to)
	if from == to && index == fromIdx {
		b.mu.Unlock()
		return nil
	}
	if !IsStable(e.state) {
		b.mu.Unlock()
		return ErrMutationInFlight
	}

	b.removeLocked(taskID)
	b.insertLocked(to, index, taskID)
	if from == to {
		b.touchLocked()
		b.mu.Unlock()
		return nil
	}

	prior := e.task
	e.task.Status = to
	e.state = PendingMove{From: from, Index: fromIdx, Prior: prior}
	e.rev++
	rev := e.rev
	in := domain.InputFromTask(e.task)
	b.touchLocked()
	b.mu.Unlock()

	updated, err := b.gw.UpdateTask(ctx, b.projectID, taskID, in)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return err
	}
	cur := b.entries[taskID]
	if err != nil {
		if cur != nil {
			if cur.rev == rev {
				if pm, ok := cur.state.(PendingMove); ok {
					prior = pm.Prior
				}
				b.removeLocked(taskID)
				b.insertLocked(from, fromIdx, taskID)
				cur.task = prior
				cur.rev++
			}
			cur.state = Stable{}
			b.touchLocked()
		}
		b.mu.Unlock()
		b.report("move", taskID, err)
		return err
	}
	if cur != nil {
		if updated.ID == "" {
			updated = cur.task
		}
		b.replaceLocked(cur, updated)
		cur.state = Stable{}
		b.touchLocked()
	}
	b.mu.Unlock()
	return nil
}

// Create submits a new task. The task appears on the board only once the
// server has returned it with its id.
func (b *Board) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	b.mu.Lock()
	if err := b.readyLocked(); err != nil {
		b.mu.Unlock()
		return domain.Task{}, err
	}
	d := draft{id: uuid.NewString(), state: PendingCreate{Input: in}}
	b.drafts = append(b.drafts, d)
	b.touchLocked()
	b.mu.Unlock()

	created, err := b.gw.CreateTask(ctx, b.projectID, in)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return created, err
	}
	b.dropDraftLocked(d.id)
	if err != nil {
		b.touchLocked()
		b.mu.Unlock()
		b.report("create", "", err)
		return domain.Task{}, err
	}
	if created.ProjectID == "" {
		created.ProjectID = b.projectID
	}
	def := in.Status
	if def == "" {
		def = domain.StatusTodo
	}
	created = b.normalize(created, def)
	if e, ok := b.entries[created.ID]; ok {
		// The created event was echoed back before the confirmation.
		b.replaceLocked(e, created)
	} else {
		b.addLocked(created)
	}
	b.touchLocked()
	b.mu.Unlock()
	return created, nil
}

// Update submits a full replacement of the task's fields. Nothing changes on
// the board until the server confirms.
func (b *Board) Update(ctx context.Context, taskID string, in domain.TaskInput) (domain.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	b.mu.Lock()
	e, err := b.lookupLocked(taskID)
	if err != nil {
		b.mu.Unlock()
		return domain.Task{}, err
	}
	if !IsStable(e.state) {
		b.mu.Unlock()
		return domain.Task{}, ErrMutationInFlight
	}
	if in.Status == "" {
		in.Status = e.task.Status
	}
	e.state = PendingUpdate{}
	b.touchLocked()
	b.mu.Unlock()

	updated, err := b.gw.UpdateTask(ctx, b.projectID, taskID, in)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return updated, err
	}
	cur := b.entries[taskID]
	if err != nil {
		if cur != nil {
			cur.state = Stable{}
			b.touchLocked()
		}
		b.mu.Unlock()
		b.report("update", taskID, err)
		return domain.Task{}, err
	}
	if cur != nil {
		if updated.ID == "" {
			updated.ID = taskID
		}
		b.replaceLocked(cur, updated)
		cur.state = Stable{}
		updated = cur.task
		b.touchLocked()
	}
	b.mu.Unlock()
	return updated, nil
}

// Delete removes a task once the server confirms. A not-found answer counts
// as confirmation.
func (b *Board) Delete(ctx context.Context, taskID string) error {
	b.mu.Lock()
	e, err := b.lookupLocked(taskID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !IsStable(e.state) {
		b.mu.Unlock()
		return ErrMutationInFlight
	}
	e.state = PendingDelete{}
	b.touchLocked()
	b.mu.Unlock()

	err = b.gw.DeleteTask(ctx, b.projectID, taskID)
	if errors.Is(err, gateway.ErrNotFound) {
		err = nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return err
	}
	cur := b.entries[taskID]
	if err != nil {
		if cur != nil {
			cur.state = Stable{}
			b.touchLocked()
		}
		b.mu.Unlock()
		b.report("delete", taskID, err)
		return err
	}
	if cur != nil {
		b.removeLocked(taskID)
		delete(b.entries, taskID)
		b.touchLocked()
	}
	b.mu.Unlock()
	return nil
}

// ApplyEvent merges an inbound task event. Events for other projects, events
// before the first load and update or delete events for unknown tasks are
// ignored. Updates replace the whole task; the last write wins.
func (b *Board) ApplyEvent(ev domain.TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fields := log.Fields{"project": b.projectID, "event": ev.Kind, "task": ev.Task.ID}
	if b.closed || b.phase != PhaseReady {
		b.logger.WithFields(fields).Debug("board event dropped before load")
		return
	}
	t := ev.Task
	if t.ID == "" {
		return
	}
	if t.ProjectID != "" && t.ProjectID != b.projectID {
		b.logger.WithFields(fields).Debug("board event for another project")
		return
	}

	switch ev.Kind {
	case domain.TaskCreated:
		if t.ProjectID != b.projectID {
			return
		}
		if _, ok := b.entries[t.ID]; ok {
			return
		}
		b.addLocked(b.normalize(t, domain.StatusTodo))
	case domain.TaskUpdated, domain.TaskStatusChanged:
		e, ok := b.entries[t.ID]
		if !ok {
			return
		}
		b.replaceLocked(e, t)
	case domain.TaskDeleted:
		if _, ok := b.entries[t.ID]; !ok {
			return
		}
		b.removeLocked(t.ID)
		delete(b.entries, t.ID)
	default:
		return
	}
	b.logger.WithFields(fields).Debug("board event applied")
	b.touchLocked()
}

// View returns a snapshot of the board.
func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{
		ProjectID: b.projectID,
		Phase:     b.phase,
		Version:   b.version,
		Columns:   make([]Column, 0, len(domain.Statuses)),
	}
	if b.project != nil {
		p := *b.project
		v.Project = &p
	}
	if b.loadErr != nil {
		v.LoadError = b.loadErr.Error()
	}
	for _, status := range domain.Statuses {
		col := Column{Status: status, Label: status.Label(), Tasks: make([]Card, 0, len(b.columns[status]))}
		for _, id := range b.columns[status] {
			e := b.entries[id]
			col.Tasks = append(col.Tasks, Card{Task: e.task, State: e.state.Name()})
		}
		v.Columns = append(v.Columns, col)
	}
	for _, d := range b.drafts {
		v.Creating = append(v.Creating, d.state.Input)
	}
	return v
}

// State returns the synchronization state of a task.
func (b *Board) State(taskID string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[taskID]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// Snapshot returns the tasks on the board in column order.
func (b *Board) Snapshot() []domain.Task {
	return b.View().Tasks()
}

// Stats counts the tasks on the board per status.
func (b *Board) Stats() domain.ProjectStats {
	return domain.CountTasks(b.Snapshot())
}

// Export returns the project with its tasks and the download file name.
func (b *Board) Export() (domain.ExportDocument, string, error) {
	v := b.View()
	if v.Project == nil {
		return domain.ExportDocument{}, "", ErrNotLoaded
	}
	return domain.NewExportDocument(*v.Project, v.Tasks()), domain.ExportFileName(v.Project.Name), nil
}

// Subscription delivers a signal on C whenever the board changes. C is
// closed by Unsubscribe or Close.
type Subscription struct {
	C  <-chan struct{}
	ch chan struct{}
}

// Subscribe registers for change signals.
func (b *Board) Subscribe() *Subscription {
	ch := b.changes.subscribe()
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		b.changes.unsubscribe(ch)
	}
	return &Subscription{C: ch, ch: ch}
}

// Unsubscribe stops change signals for s.
func (b *Board) Unsubscribe(s *Subscription) {
	b.changes.unsubscribe(s.ch)
}

// Close detaches from the event source and stops applying the results of
// calls still in flight.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	detach := b.detach
	b.detach = nil
	b.mu.Unlock()

	b.cancel()
	for _, fn := range detach {
		fn()
	}
	b.changes.closeAll()
}

func (b *Board) readyLocked() error {
	if b.closed {
		return ErrClosed
	}
	if b.phase != PhaseReady {
		return ErrNotLoaded
	}
	return nil
}

func (b *Board) lookupLocked(taskID string) (*entry, error) {
	if err := b.readyLocked(); err != nil {
		return nil, err
	}
	e, ok := b.entries[taskID]
	if !ok {
		return nil, ErrUnknownTask
	}
	return e, nil
}

// normalize fills the fields a payload may omit.
func (b *Board) normalize(t domain.Task, def domain.Status) domain.Task {
	if !t.Status.Valid() {
		t.Status = def
	}
	if t.ProjectID == "" {
		t.ProjectID = b.projectID
	}
	return t
}

// replaceLocked swaps in t for e's task, moving it to the end of its new
// column when the status changed. The state is left to the caller.
func (b *Board) replaceLocked(e *entry, t domain.Task) {
	t = b.normalize(t, e.task.Status)
	if t.Status != e.task.Status {
		b.removeLocked(t.ID)
		b.columns[t.Status] = append(b.columns[t.Status], t.ID)
	}
	e.task = t
	e.rev++
}

func (b *Board) addLocked(t domain.Task) {
	b.entries[t.ID] = &entry{task: t, state: Stable{}}
	b.columns[t.Status] = append(b.columns[t.Status], t.ID)
}

func (b *Board) indexLocked(status domain.Status, taskID string) int {
	for i, id := range b.columns[status] {
		if id == taskID {
			return i
		}
	}
	return -1
}

// removeLocked takes taskID out of whichever column holds it.
func (b *Board) removeLocked(taskID string) {
	for status, col := range b.columns {
		for i, id := range col {
			if id == taskID {
				b.columns[status] = append(col[:i:i], col[i+1:]...)
				return
			}
		}
	}
}

func (b *Board) insertLocked(status domain.Status, index int, taskID string) {
	col := b.columns[status]
	if index < 0 || index > len(col) {
		index = len(col)
	}
	next := make([]string, 0, len(col)+1)
	next = append(next, col[:index]...)
	next = append(next, taskID)
	next = append(next, col[index:]...)
	b.columns[status] = next
}

func (b *Board) dropDraftLocked(id string) {
	for i, d := range b.drafts {
		if d.id == id {
			b.drafts = append(b.drafts[:i:i], b.drafts[i+1:]...)
			return
		}
	}
}

func (b *Board) touchLocked() {
	b.version++
	b.changes.notify()
}

func (b *Board) report(op, taskID string, err error) {
	b.logger.WithError(err).WithFields(log.Fields{"project": b.projectID, "op": op, "task": taskID}).Warn("board operation failed")
	if b.notifier != nil {
		b.notifier.Notify(Notice{Op: op, TaskID: taskID, Err: err})
	}
}

// clampIndex bounds a drop index. Within the same column the task is removed
// first, so the last valid index is one less.
func clampIndex(index, n int, sameColumn bool) int {
	last := n
	if sameColumn {
		last = n - 1
	}
	if index < 0 {
		return 0
	}
	if index > last {
		return last
	}
	return index
}
