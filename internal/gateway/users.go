package gateway

import (
	"context"
	"net/http"
	"net/url"

	"board-sync/internal/domain"
)

var (
	opRegister      = operation{"register", "An error occurred during registration"}
	opLogin         = operation{"login", "An error occurred during login"}
	opProfile       = operation{"get_profile", "Failed to fetch user profile"}
	opUpdateProfile = operation{"update_profile", "Failed to update user profile"}
	opSearchUsers   = operation{"search_users", "Failed to search users"}
)

// Register creates an account and returns its session token.
func (c *Client) Register(ctx context.Context, in domain.Registration) (domain.AuthResult, error) {
	var res domain.AuthResult
	err := c.call(ctx, opRegister, http.MethodPost, "/api/auth/register", in, "", &res)
	return res, err
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, in domain.Credentials) (domain.AuthResult, error) {
	var res domain.AuthResult
	err := c.call(ctx, opLogin, http.MethodPost, "/api/auth/login", in, "", &res)
	return res, err
}

// Profile fetches the current user.
func (c *Client) Profile(ctx context.Context) (domain.User, error) {
	var u domain.User
	err := c.call(ctx, opProfile, http.MethodGet, "/api/users/profile", nil, "user", &u)
	return u, err
}

// UpdateProfile changes the current user's profile.
func (c *Client) UpdateProfile(ctx context.Context, in domain.ProfileInput) (domain.User, error) {
	var u domain.User
	err := c.call(ctx, opUpdateProfile, http.MethodPut, "/api/users/profile", in, "user", &u)
	return u, err
}

// SearchUsers looks users up by email.
func (c *Client) SearchUsers(ctx context.Context, email string) ([]domain.User, error) {
	users := []domain.User{}
	path := "/api/users/search?email=" + url.QueryEscape(email)
	if err := c.call(ctx, opSearchUsers, http.MethodGet, path, nil, "users", &users); err != nil {
		return nil, err
	}
	return users, nil
}
