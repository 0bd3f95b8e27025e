package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rolewarden/rolewarden/internal/platform/kv"
)

const (
	rolesKey = "host:roles"
	usersKey = "host:users"
)

// KVProvider persists roles and users in the option store. It is the
// standalone backend; deployments embedded in a real platform supply their
// own Provider instead.
type KVProvider struct {
	store kv.Store
}

// NewKVProvider constructs a provider over the given store.
func NewKVProvider(store kv.Store) *KVProvider {
	return &KVProvider{store: store}
}

func (p *KVProvider) loadRoles(ctx context.Context) (map[string]Role, error) {
	roles := make(map[string]Role)
	if _, err := p.store.Get(ctx, rolesKey, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole implements Provider.
func (p *KVProvider) GetRole(ctx context.Context, slug string) (Role, error) {
	roles, err := p.loadRoles(ctx)
	if err != nil {
		return Role{}, err
	}
	role, ok := roles[slug]
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, slug)
	}
	return role.Clone(), nil
}

// ListRoles implements Provider. Roles are returned sorted by slug.
func (p *KVProvider) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := p.loadRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, role.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (p *KVProvider) updateRoles(ctx context.Context, fn func(roles map[string]Role) error) error {
	return p.store.Update(ctx, rolesKey, func(raw []byte) ([]byte, error) {
		roles := make(map[string]Role)
		if raw != nil {
			if err := json.Unmarshal(raw, &roles); err != nil {
				return nil, err
			}
		}
		if err := fn(roles); err != nil {
			return nil, err
		}
		return json.Marshal(roles)
	})
}

// CreateRole implements Provider.
func (p *KVProvider) CreateRole(ctx context.Context, role Role) error {
	return p.updateRoles(ctx, func(roles map[string]Role) error {
		if _, ok := roles[role.Slug]; ok {
			return fmt.Errorf("%w: %s", ErrRoleExists, role.Slug)
		}
		if role.Capabilities == nil {
			role.Capabilities = make(map[string]bool)
		}
		roles[role.Slug] = role.Clone()
		return nil
	})
}

// DeleteRole implements Provider.
func (p *KVProvider) DeleteRole(ctx context.Context, slug string) error {
	return p.updateRoles(ctx, func(roles map[string]Role) error {
		if _, ok := roles[slug]; !ok {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, slug)
		}
		delete(roles, slug)
		return nil
	})
}

// SetCapability implements Provider.
func (p *KVProvider) SetCapability(ctx context.Context, slug, capability string, grant bool) error {
	return p.updateRoles(ctx, func(roles map[string]Role) error {
		role, ok := roles[slug]
		if !ok {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, slug)
		}
		if role.Capabilities == nil {
			role.Capabilities = make(map[string]bool)
		}
		role.Capabilities[capability] = grant
		roles[slug] = role
		return nil
	})
}

// UnsetCapability implements Provider.
func (p *KVProvider) UnsetCapability(ctx context.Context, slug, capability string) error {
	return p.updateRoles(ctx, func(roles map[string]Role) error {
		role, ok := roles[slug]
		if !ok {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, slug)
		}
		delete(role.Capabilities, capability)
		roles[slug] = role
		return nil
	})
}

// GetUser implements Provider.
func (p *KVProvider) GetUser(ctx context.Context, id int64) (User, error) {
	users := make(map[string]User)
	if _, err := p.store.Get(ctx, usersKey, &users); err != nil {
		return User{}, err
	}
	user, ok := users[strconv.FormatInt(id, 10)]
	if !ok {
		return User{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return user, nil
}

// ListUsersByRole implements Provider.
func (p *KVProvider) ListUsersByRole(ctx context.Context, slug string) ([]User, error) {
	users := make(map[string]User)
	if _, err := p.store.Get(ctx, usersKey, &users); err != nil {
		return nil, err
	}
	var out []User
	for _, user := range users {
		for _, role := range user.Roles {
			if role == slug {
				out = append(out, user)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetUserRoles implements Provider.
func (p *KVProvider) SetUserRoles(ctx context.Context, id int64, newRoles []string) error {
	return p.store.Update(ctx, usersKey, func(raw []byte) ([]byte, error) {
		users := make(map[string]User)
		if raw != nil {
			if err := json.Unmarshal(raw, &users); err != nil {
				return nil, err
			}
		}
		key := strconv.FormatInt(id, 10)
		user, ok := users[key]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, id)
		}
		user.Roles = append([]string(nil), newRoles...)
		users[key] = user
		return json.Marshal(users)
	})
}

// PutUser upserts a user record. Used by seeding and tests; a real host
// platform owns user lifecycle itself.
func (p *KVProvider) PutUser(ctx context.Context, user User) error {
	return p.store.Update(ctx, usersKey, func(raw []byte) ([]byte, error) {
		users := make(map[string]User)
		if raw != nil {
			if err := json.Unmarshal(raw, &users); err != nil {
				return nil, err
			}
		}
		users[strconv.FormatInt(user.ID, 10)] = user
		return json.Marshal(users)
	})
}

var _ Provider = (*KVProvider)(nil)
