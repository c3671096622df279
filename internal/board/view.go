package board

import "board-sync/internal/domain"

// Card is a task as rendered on the board.
type Card struct {
	domain.Task
	State string `json:"state"`
}

// Column is one status lane.
type Column struct {
	Status domain.Status `json:"status"`
	Label  string        `json:"label"`
	Tasks  []Card        `json:"tasks"`
}

// View is an immutable snapshot of the board.
type View struct {
	ProjectID string             `json:"projectId"`
	Project   *domain.Project    `json:"project,omitempty"`
	Phase     Phase              `json:"phase"`
	LoadError string             `json:"loadError,omitempty"`
	Columns   []Column           `json:"columns"`
	Creating  []domain.TaskInput `json:"creating,omitempty"`
	Version   uint64             `json:"version"`
}

// Column returns the lane for status.
func (v View) Column(status domain.Status) Column {
	for _, c := range v.Columns {
		if c.Status == status {
			return c
		}
	}
	return Column{Status: status, Label: status.Label()}
}

// IDs lists the task ids of a lane in order.
func (v View) IDs(status domain.Status) []string {
	col := v.Column(status)
	ids := make([]string, len(col.Tasks))
	for i, c := range col.Tasks {
		ids[i] = c.ID
	}
	return ids
}

// Find returns the card with id and its position.
func (v View) Find(id string) (Card, domain.Status, int, bool) {
	for _, col := range v.Columns {
		for i, c := range col.Tasks {
			if c.ID == id {
				return c, col.Status, i, true
			}
		}
	}
	return Card{}, "", -1, false
}

// Tasks returns every task in column order.
func (v View) Tasks() []domain.Task {
	var out []domain.Task
	for _, col := range v.Columns {
		for _, c := range col.Tasks {
			out = append(out, c.Task)
		}
	}
	return out
}

// Phase is the load state of a board.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)
