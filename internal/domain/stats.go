package domain

import "math"

// ProjectStats counts tasks per column.
type ProjectStats struct {
	Todo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Done       int `json:"done"`
	Total      int `json:"total"`
}

// CountTasks builds stats from a task list. Tasks with an unknown status are
// not counted.
func CountTasks(tasks []Task) ProjectStats {
	var s ProjectStats
	for _, t := range tasks {
		switch t.Status {
		case StatusTodo:
			s.Todo++
		case StatusInProgress:
			s.InProgress++
		case StatusDone:
			s.Done++
		default:
			continue
		}
		s.Total++
	}
	return s
}

// Count returns the number of tasks in the given column.
func (s ProjectStats) Count(status Status) int {
	switch status {
	case StatusTodo:
		return s.Todo
	case StatusInProgress:
		return s.InProgress
	case StatusDone:
		return s.Done
	}
	return 0
}

// Percent returns the share of the column rounded to the nearest integer.
func (s ProjectStats) Percent(status Status) int {
	if s.Total == 0 {
		return 0
	}
	return int(math.Round(float64(s.Count(status)) * 100 / float64(s.Total)))
}
