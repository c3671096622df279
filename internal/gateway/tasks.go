package gateway

import (
	"context"
	"net/http"
	"net/url"

	"board-sync/internal/domain"
)

var (
	opListTasks  = operation{"list_tasks", "Failed to fetch tasks"}
	opCreateTask = operation{"create_task", "Failed to create task"}
	opGetTask    = operation{"get_task", "Failed to fetch task"}
	opUpdateTask = operation{"update_task", "Failed to update task"}
	opDeleteTask = operation{"delete_task", "Failed to delete task"}
)

func tasksPath(projectID string) string {
	return "/api/projects/" + url.PathEscape(projectID) + "/tasks"
}

func taskPath(projectID, taskID string) string {
	return tasksPath(projectID) + "/" + url.PathEscape(taskID)
}

// ListTasks fetches every task of a project.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	if err := c.call(ctx, opListTasks, http.MethodGet, tasksPath(projectID), nil, "tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task and returns it with its server-assigned id.
func (c *Client) CreateTask(ctx context.Context, projectID string, in domain.TaskInput) (domain.Task, error) {
	var t domain.Task
	err := c.call(ctx, opCreateTask, http.MethodPost, tasksPath(projectID), in, "task", &t)
	return t, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	var t domain.Task
	err := c.call(ctx, opGetTask, http.MethodGet, taskPath(projectID, taskID), nil, "task", &t)
	return t, err
}

// UpdateTask replaces the task with in. Updates are full-object replacements.
func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, in domain.TaskInput) (domain.Task, error) {
	var t domain.Task
	err := c.call(ctx, opUpdateTask, http.MethodPut, taskPath(projectID, taskID), in, "task", &t)
	return t, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) error {
	return c.call(ctx, opDeleteTask, http.MethodDelete, taskPath(projectID, taskID), nil, "", nil)
}
