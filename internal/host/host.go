// Package host abstracts the platform that owns the authoritative role and
// user records. Core logic never touches a concrete backend directly; the
// bundled KV-backed provider doubles as the standalone store and the test
// fixture.
package host

import (
	"context"
	"errors"
)

var (
	// ErrRoleNotFound indicates the role slug does not exist.
	ErrRoleNotFound = errors.New("host: role not found")
	// ErrRoleExists indicates a create collided with an existing slug.
	ErrRoleExists = errors.New("host: role already exists")
	// ErrUserNotFound indicates the user id does not exist.
	ErrUserNotFound = errors.New("host: user not found")
)

// Role is a named bundle of capability grants. The capability map is
// tri-state: present-true grants, present-false explicitly denies, absent
// is unset.
type Role struct {
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Capabilities map[string]bool `json:"capabilities"`
}

// Clone returns a deep copy so callers can mutate freely.
func (r Role) Clone() Role {
	caps := make(map[string]bool, len(r.Capabilities))
	for k, v := range r.Capabilities {
		caps[k] = v
	}
	return Role{Slug: r.Slug, Name: r.Name, Capabilities: caps}
}

// User is a platform account with assigned roles and optional per-user
// capability overrides outside any role.
type User struct {
	ID           int64           `json:"id"`
	Login        string          `json:"login"`
	Roles        []string        `json:"roles"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

// Provider exposes the host platform's role and user primitives.
type Provider interface {
	GetRole(ctx context.Context, slug string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, slug string) error
	// SetCapability writes a grant or an explicit deny into the role map.
	SetCapability(ctx context.Context, slug, capability string, grant bool) error
	// UnsetCapability removes the capability entry entirely.
	UnsetCapability(ctx context.Context, slug, capability string) error

	GetUser(ctx context.Context, id int64) (User, error)
	ListUsersByRole(ctx context.Context, slug string) ([]User, error)
	SetUserRoles(ctx context.Context, id int64, roles []string) error
}
