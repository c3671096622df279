package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the board column a task belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = [...]Status{StatusTodo, StatusInProgress, StatusDone}

// Label returns the column heading for the status.
func (s Status) Label() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// Valid reports whether s is one of the board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("invalid task status %q", raw)
	}
	return s, nil
}

// UnmarshalJSON rejects unknown statuses. An empty status is accepted so that
// partial payloads such as delete notifications can be decoded.
func (s *Status) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*s = ""
		return nil
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Task represents a single board card.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	AssigneeID  string    `json:"assigneeId,omitempty"`
	Assignee    *User     `json:"assignee,omitempty"`
	ProjectID   string    `json:"projectId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskInput is the body of create and update requests.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status,omitempty"`
	AssigneeID  string `json:"assigneeId,omitempty"`
}

// Normalize trims all text fields.
func (in TaskInput) Normalize() TaskInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)
	in.Status = Status(strings.TrimSpace(string(in.Status)))
	return in
}

// Validate checks a normalized input. An empty status is allowed and means
// the server default (todo) on create or "unchanged" on update.
func (in TaskInput) Validate() error {
	if in.Title == "" {
		return &ValidationError{Field: "title", Message: "Task title is required"}
	}
	if in.Status != "" && !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	return nil
}

// InputFromTask builds a full replacement body from an existing task.
func InputFromTask(t Task) TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		AssigneeID:  t.AssigneeID,
	}
}
