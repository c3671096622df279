package gateway

import (
	"context"
	"net/http"
	"net/url"

	"board-sync/internal/domain"
)

var (
	opListProjects  = operation{"list_projects", "Failed to fetch projects"}
	opCreateProject = operation{"create_project", "Failed to create project"}
	opGetProject    = operation{"get_project", "Failed to fetch project"}
	opUpdateProject = operation{"update_project", "Failed to update project"}
	opDeleteProject = operation{"delete_project", "Failed to delete project"}
	opProjectStats  = operation{"project_stats", "Failed to fetch project stats"}
	opListMembers   = operation{"list_members", "Failed to fetch project members"}
	opInviteMember  = operation{"invite_member", "Failed to invite member"}
	opRemoveMember  = operation{"remove_member", "Failed to remove member"}
)

func projectPath(projectID string) string {
	return "/api/projects/" + url.PathEscape(projectID)
}

// ListProjects fetches the projects visible to the current user.
func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	projects := []domain.Project{}
	if err := c.call(ctx, opListProjects, http.MethodGet, "/api/projects", nil, "projects", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject creates a project owned by the current user.
func (c *Client) CreateProject(ctx context.Context, in domain.ProjectInput) (domain.Project, error) {
	var p domain.Project
	err := c.call(ctx, opCreateProject, http.MethodPost, "/api/projects", in, "project", &p)
	return p, err
}

// GetProject fetches a project with its members.
func (c *Client) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var p domain.Project
	err := c.call(ctx, opGetProject, http.MethodGet, projectPath(projectID), nil, "project", &p)
	return p, err
}

// UpdateProject renames or re-describes a project.
func (c *Client) UpdateProject(ctx context.Context, projectID string, in domain.ProjectInput) (domain.Project, error) {
	var p domain.Project
	err := c.call(ctx, opUpdateProject, http.MethodPut, projectPath(projectID), in, "project", &p)
	return p, err
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.call(ctx, opDeleteProject, http.MethodDelete, projectPath(projectID), nil, "", nil)
}

// ProjectStats fetches the server-side task counts of a project.
func (c *Client) ProjectStats(ctx context.Context, projectID string) (domain.ProjectStats, error) {
	var s domain.ProjectStats
	err := c.call(ctx, opProjectStats, http.MethodGet, projectPath(projectID)+"/stats", nil, "stats", &s)
	return s, err
}

// ListMembers fetches the memberships of a project.
func (c *Client) ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	members := []domain.Membership{}
	if err := c.call(ctx, opListMembers, http.MethodGet, projectPath(projectID)+"/members", nil, "members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

// InviteMember adds a user to a project.
func (c *Client) InviteMember(ctx context.Context, projectID, userID string) (domain.Membership, error) {
	var m domain.Membership
	body := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	err := c.call(ctx, opInviteMember, http.MethodPost, projectPath(projectID)+"/members", body, "membership", &m)
	return m, err
}

// RemoveMember deletes a membership. membershipID is not the user id.
func (c *Client) RemoveMember(ctx context.Context, projectID, membershipID string) error {
	path := projectPath(projectID) + "/members/" + url.PathEscape(membershipID)
	return c.call(ctx, opRemoveMember, http.MethodDelete, path, nil, "", nil)
}
