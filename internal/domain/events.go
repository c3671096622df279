package domain

import (
	"errors"

	"github.com/bytedance/sonic"
)

// EventKind names a real-time channel event.
type EventKind string

const (
	TaskCreated       EventKind = "task-created"
	TaskUpdated       EventKind = "task-updated"
	TaskStatusChanged EventKind = "task-status-changed"
	TaskDeleted       EventKind = "task-deleted"
	MemberAdded       EventKind = "member-added"
	MemberRemoved     EventKind = "member-removed"
	ProjectUpdated    EventKind = "project-updated"
	ProjectDeleted    EventKind = "project-deleted"

	JoinProject  = "join-project"
	LeaveProject = "leave-project"
)

// TaskEvents are the events consumed by the board.
var TaskEvents = [...]EventKind{TaskCreated, TaskUpdated, TaskStatusChanged, TaskDeleted}

// IsTaskEvent reports whether the event carries a task payload.
func (k EventKind) IsTaskEvent() bool {
	switch k {
	case TaskCreated, TaskUpdated, TaskStatusChanged, TaskDeleted:
		return true
	}
	return false
}

// TaskEvent is an inbound task lifecycle event in canonical shape.
type TaskEvent struct {
	Kind EventKind
	Task Task
}

var ErrMissingTaskID = errors.New("task payload has no id")

// DecodeTaskPayload accepts either a task object or an object wrapping the
// task under a "task" field and returns the task.
func DecodeTaskPayload(raw []byte) (Task, error) {
	var wrapped struct {
		Task *Task `json:"task"`
	}
	if err := sonic.Unmarshal(raw, &wrapped); err != nil {
		return Task{}, err
	}
	if wrapped.Task != nil {
		if wrapped.Task.ID == "" {
			return Task{}, ErrMissingTaskID
		}
		return *wrapped.Task, nil
	}
	var t Task
	if err := sonic.Unmarshal(raw, &t); err != nil {
		return Task{}, err
	}
	if t.ID == "" {
		return Task{}, ErrMissingTaskID
	}
	return t, nil
}
