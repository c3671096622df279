package board

import "board-sync/internal/domain"

// State is the synchronization state of one task. Exactly one variant is held
// per task, so a task cannot be both moving and deleting.
type State interface {
	// Name is the wire name of the state.
	Name() string
	isState()
}

// Stable means the task matches the last known server state.
type Stable struct{}

// PendingMove means the task was moved to another column locally and the
// status update has not been confirmed yet. From and Index locate the task
// before the move so a failure can put it back.
type PendingMove struct {
	From  domain.Status
	Index int
	Prior domain.Task
}

// PendingCreate is held by a draft that the gateway has not confirmed. Drafts
// are not part of any column until the server returns the created task.
type PendingCreate struct {
	Input domain.TaskInput
}

// PendingDelete means a delete has been submitted for the task.
type PendingDelete struct{}

// PendingUpdate means a field edit has been submitted. The task keeps its
// prior fields until the server confirms.
type PendingUpdate struct{}

func (Stable) Name() string        { return "stable" }
func (PendingMove) Name() string   { return "pending-move" }
func (PendingCreate) Name() string { return "pending-create" }
func (PendingDelete) Name() string { return "pending-delete" }
func (PendingUpdate) Name() string { return "pending-update" }

func (Stable) isState()        {}
func (PendingMove) isState()   {}
func (PendingCreate) isState() {}
func (PendingDelete) isState() {}
func (PendingUpdate) isState() {}

// IsStable reports whether no mutation is in flight for s.
func IsStable(s State) bool {
	_, ok := s.(Stable)
	return ok
}
