package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role distinguishes the owner of a project from invited members.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// User is the public profile of an account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Membership links a user to a project. Its ID is distinct from the user ID.
type Membership struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId,omitempty"`
	Role      Role   `json:"role"`
	User      *User  `json:"user,omitempty"`
}

// Project groups tasks and members.
type Project struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	OwnerID     string       `json:"ownerId"`
	Owner       *User        `json:"owner,omitempty"`
	Members     []Membership `json:"members,omitempty"`
	Archived    bool         `json:"archived"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ProjectInput is the body of project create and update requests.
type ProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Normalize trims all text fields.
func (in ProjectInput) Normalize() ProjectInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// Validate checks a normalized input.
func (in ProjectInput) Validate() error {
	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "Project name is required"}
	}
	return nil
}

var (
	ErrOwnerNotMember   = errors.New("project owner is not a member")
	ErrDuplicateMember  = errors.New("duplicate project member")
	ErrEmptyProjectName = errors.New("project name is empty")
)

// Validate checks the project invariants: the owner is a member and members
// are unique by user id. Projects returned without a member list are accepted.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyProjectName
	}
	if len(p.Members) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(p.Members))
	ownerFound := p.OwnerID == ""
	for _, m := range p.Members {
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, m.UserID)
		}
		seen[m.UserID] = struct{}{}
		if m.UserID == p.OwnerID {
			ownerFound = true
		}
	}
	if !ownerFound {
		return ErrOwnerNotMember
	}
	return nil
}

// MemberByUser returns the membership of the given user, if any.
func (p Project) MemberByUser(userID string) (Membership, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register body.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileInput is the body of a profile update.
type ProfileInput struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}
