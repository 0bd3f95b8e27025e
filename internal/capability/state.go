package capability

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rolewarden/rolewarden/internal/platform/kv"
)

const (
	managedGrantsKey = "caps:managed"
	createdRolesKey  = "roles:created"
	disabledRolesKey = "disable:roles"
	disabledCapsKey  = "disable:caps"
)

// State persists this system's tracking metadata and the disablement
// overlay in the option store. It never stores role capability maps; those
// stay with the host.
type State struct {
	store kv.Store
}

// NewState constructs a State over the given store.
func NewState(store kv.Store) *State {
	return &State{store: store}
}

func (s *State) stringSet(ctx context.Context, key string) (map[string]struct{}, error) {
	var list []string
	if _, err := s.store.Get(ctx, key, &list); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set, nil
}

func (s *State) updateStringSet(ctx context.Context, key string, fn func(set map[string]struct{})) error {
	return s.store.Update(ctx, key, func(raw []byte) ([]byte, error) {
		var list []string
		if raw != nil {
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, err
			}
		}
		set := make(map[string]struct{}, len(list))
		for _, v := range list {
			set[v] = struct{}{}
		}
		fn(set)
		out := make([]string, 0, len(set))
		for v := range set {
			out = append(out, v)
		}
		sort.Strings(out)
		return json.Marshal(out)
	})
}

// ManagedGrants returns the full managed relation.
func (s *State) ManagedGrants(ctx context.Context) ([]ManagedGrant, error) {
	var grants []ManagedGrant
	if _, err := s.store.Get(ctx, managedGrantsKey, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// IsManaged reports whether the (role, capability) pair was written by
// this system.
func (s *State) IsManaged(ctx context.Context, role, capability string) (bool, error) {
	grants, err := s.ManagedGrants(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Role == role && g.Capability == capability {
			return true, nil
		}
	}
	return false, nil
}

// IsCreatedCapability reports whether the capability is plugin-created:
// still referenced by at least one managed grant and not core. The
// created set is derived from the relation, so garbage collection of
// tracking metadata falls out of grant removal.
func (s *State) IsCreatedCapability(ctx context.Context, capability string) (bool, error) {
	if IsCoreCapability(capability) {
		return false, nil
	}
	grants, err := s.ManagedGrants(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Capability == capability {
			return true, nil
		}
	}
	return false, nil
}

func (s *State) updateGrants(ctx context.Context, fn func(grants []ManagedGrant) []ManagedGrant) error {
	return s.store.Update(ctx, managedGrantsKey, func(raw []byte) ([]byte, error) {
		var grants []ManagedGrant
		if raw != nil {
			if err := json.Unmarshal(raw, &grants); err != nil {
				return nil, err
			}
		}
		return json.Marshal(fn(grants))
	})
}

// AddManagedGrant records the pair in the relation (idempotent).
func (s *State) AddManagedGrant(ctx context.Context, role, capability string) error {
	return s.updateGrants(ctx, func(grants []ManagedGrant) []ManagedGrant {
		for _, g := range grants {
			if g.Role == role && g.Capability == capability {
				return grants
			}
		}
		return append(grants, ManagedGrant{Role: role, Capability: capability})
	})
}

// RemoveManagedGrant drops the pair from the relation.
func (s *State) RemoveManagedGrant(ctx context.Context, role, capability string) error {
	return s.updateGrants(ctx, func(grants []ManagedGrant) []ManagedGrant {
		out := grants[:0]
		for _, g := range grants {
			if g.Role == role && g.Capability == capability {
				continue
			}
			out = append(out, g)
		}
		return out
	})
}

// RemoveRoleGrants drops every managed grant referencing the role.
func (s *State) RemoveRoleGrants(ctx context.Context, role string) error {
	return s.updateGrants(ctx, func(grants []ManagedGrant) []ManagedGrant {
		out := grants[:0]
		for _, g := range grants {
			if g.Role == role {
				continue
			}
			out = append(out, g)
		}
		return out
	})
}

// CreatedRoles returns the slugs of roles created by this system.
func (s *State) CreatedRoles(ctx context.Context) (map[string]struct{}, error) {
	return s.stringSet(ctx, createdRolesKey)
}

// IsCreatedRole reports whether this system created the role.
func (s *State) IsCreatedRole(ctx context.Context, slug string) (bool, error) {
	set, err := s.CreatedRoles(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[slug]
	return ok, nil
}

// AddCreatedRole marks the role as plugin-created.
func (s *State) AddCreatedRole(ctx context.Context, slug string) error {
	return s.updateStringSet(ctx, createdRolesKey, func(set map[string]struct{}) {
		set[slug] = struct{}{}
	})
}

// RemoveCreatedRole unmarks the role.
func (s *State) RemoveCreatedRole(ctx context.Context, slug string) error {
	return s.updateStringSet(ctx, createdRolesKey, func(set map[string]struct{}) {
		delete(set, slug)
	})
}

// DisabledRoles returns the disabled-role overlay.
func (s *State) DisabledRoles(ctx context.Context) (map[string]struct{}, error) {
	return s.stringSet(ctx, disabledRolesKey)
}

// SetRoleDisabled toggles a role in the overlay (idempotent).
func (s *State) SetRoleDisabled(ctx context.Context, slug string, disabled bool) error {
	return s.updateStringSet(ctx, disabledRolesKey, func(set map[string]struct{}) {
		if disabled {
			set[slug] = struct{}{}
		} else {
			delete(set, slug)
		}
	})
}

// DisabledCaps returns the role→disabled-capability overlay.
func (s *State) DisabledCaps(ctx context.Context) (map[string][]string, error) {
	caps := make(map[string][]string)
	if _, err := s.store.Get(ctx, disabledCapsKey, &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

// SetCapDisabled toggles a capability in the role's disabled set (idempotent).
func (s *State) SetCapDisabled(ctx context.Context, role, capability string, disabled bool) error {
	return s.store.Update(ctx, disabledCapsKey, func(raw []byte) ([]byte, error) {
		caps := make(map[string][]string)
		if raw != nil {
			if err := json.Unmarshal(raw, &caps); err != nil {
				return nil, err
			}
		}
		set := make(map[string]struct{}, len(caps[role]))
		for _, c := range caps[role] {
			set[c] = struct{}{}
		}
		if disabled {
			set[capability] = struct{}{}
		} else {
			delete(set, capability)
		}
		if len(set) == 0 {
			delete(caps, role)
		} else {
			out := make([]string, 0, len(set))
			for c := range set {
				out = append(out, c)
			}
			sort.Strings(out)
			caps[role] = out
		}
		return json.Marshal(caps)
	})
}

// RemoveRoleOverlay clears all overlay entries for the role.
func (s *State) RemoveRoleOverlay(ctx context.Context, slug string) error {
	if err := s.SetRoleDisabled(ctx, slug, false); err != nil {
		return err
	}
	return s.store.Update(ctx, disabledCapsKey, func(raw []byte) ([]byte, error) {
		caps := make(map[string][]string)
		if raw != nil {
			if err := json.Unmarshal(raw, &caps); err != nil {
				return nil, err
			}
		}
		delete(caps, slug)
		return json.Marshal(caps)
	})
}

// Restore replaces all tracking metadata and overlay state from a snapshot.
func (s *State) Restore(ctx context.Context, snap Snapshot) error {
	if err := s.store.Put(ctx, managedGrantsKey, snap.ManagedGrants); err != nil {
		return err
	}
	if err := s.store.Put(ctx, createdRolesKey, snap.CreatedRoles); err != nil {
		return err
	}
	if err := s.store.Put(ctx, disabledRolesKey, snap.DisabledRoles); err != nil {
		return err
	}
	disabled := snap.DisabledCaps
	if disabled == nil {
		disabled = map[string][]string{}
	}
	return s.store.Put(ctx, disabledCapsKey, disabled)
}
