package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/shared"
)

// Store owns role/capability mutations. Both the REST surface and the
// incoming command endpoint route through it, so the protection rules
// (core roles, core capabilities, managed-deletion guard, the one-role
// invariant) live in exactly one place.
type Store struct {
	hostp    host.Provider
	state    *State
	notifier Notifier
	saver    Saver
	logger   *slog.Logger
}

// NewStore constructs a Store. notifier and saver may be nil in tests.
func NewStore(hostp host.Provider, state *State, notifier Notifier, saver Saver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{hostp: hostp, state: state, notifier: notifier, saver: saver, logger: logger}
}

// State exposes the tracking metadata for collaborating services.
func (s *Store) State() *State {
	return s.state
}

func (s *Store) notify(ctx context.Context, event string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event, data)
}

func (s *Store) snapshotBefore(ctx context.Context, typ, action, note string) {
	if s.saver == nil {
		return
	}
	snap, err := s.SnapshotState(ctx)
	if err != nil {
		s.logger.Warn("snapshot before mutation", slog.String("action", action), slog.Any("error", err))
		return
	}
	if _, err := s.saver.Save(ctx, typ, action, note, snap); err != nil {
		s.logger.Warn("save revision", slog.String("action", action), slog.Any("error", err))
	}
}

// RoleOrigin classifies a role slug.
func (s *Store) RoleOrigin(ctx context.Context, slug string) (Origin, error) {
	if IsCoreRole(slug) {
		return OriginCore, nil
	}
	created, err := s.state.IsCreatedRole(ctx, slug)
	if err != nil {
		return "", err
	}
	if created {
		return OriginPlugin, nil
	}
	return OriginExternal, nil
}

// IsExternalCapability classifies by exclusion: not core and not managed
// anywhere.
func (s *Store) IsExternalCapability(ctx context.Context, name string) (bool, error) {
	if IsCoreCapability(name) {
		return false, nil
	}
	created, err := s.state.IsCreatedCapability(ctx, name)
	if err != nil {
		return false, err
	}
	return !created, nil
}

// ListRoles returns all roles with classification and disablement.
func (s *Store) ListRoles(ctx context.Context) ([]RoleInfo, error) {
	roles, err := s.hostp.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	disabled, err := s.state.DisabledRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleInfo, 0, len(roles))
	for _, role := range roles {
		origin, err := s.RoleOrigin(ctx, role.Slug)
		if err != nil {
			return nil, err
		}
		_, isDisabled := disabled[role.Slug]
		out = append(out, RoleInfo{Role: role, Origin: origin, Disabled: isDisabled})
	}
	return out, nil
}

// CreateRole creates a plugin-owned role. An empty name is derived from
// the slug.
func (s *Store) CreateRole(ctx context.Context, slug, name string) (RoleInfo, error) {
	slug = strings.TrimSpace(slug)
	if !ValidSlug(slug) {
		return RoleInfo{}, fmt.Errorf("%w: role slug must match [a-z0-9_]+", httpx.ErrValidation)
	}
	if name == "" {
		name = DisplayName(slug)
	}
	s.snapshotBefore(ctx, "role", "create_role", "create role "+slug)
	role := host.Role{Slug: slug, Name: name, Capabilities: map[string]bool{}}
	if err := s.hostp.CreateRole(ctx, role); err != nil {
		if errors.Is(err, host.ErrRoleExists) {
			return RoleInfo{}, fmt.Errorf("%w: role %s", httpx.ErrDuplicate, slug)
		}
		return RoleInfo{}, err
	}
	if err := s.state.AddCreatedRole(ctx, slug); err != nil {
		return RoleInfo{}, err
	}
	s.notify(ctx, shared.EventRoleCreated, map[string]any{"role": slug, "name": name})
	return RoleInfo{Role: role, Origin: OriginPlugin}, nil
}

// DeleteRole removes a non-core role. Users holding it are reassigned so
// nobody is left without a role.
func (s *Store) DeleteRole(ctx context.Context, slug string) error {
	if IsCoreRole(slug) {
		return fmt.Errorf("%w: core role %s cannot be deleted", httpx.ErrForbidden, slug)
	}
	if _, err := s.hostp.GetRole(ctx, slug); err != nil {
		if errors.Is(err, host.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", httpx.ErrNotFound, slug)
		}
		return err
	}
	s.snapshotBefore(ctx, "role", "delete_role", "delete role "+slug)

	users, err := s.hostp.ListUsersByRole(ctx, slug)
	if err != nil {
		return err
	}
	for _, user := range users {
		remaining := make([]string, 0, len(user.Roles))
		for _, r := range user.Roles {
			if r != slug {
				remaining = append(remaining, r)
			}
		}
		if len(remaining) == 0 {
			remaining = []string{"subscriber"}
		}
		if err := s.hostp.SetUserRoles(ctx, user.ID, remaining); err != nil {
			return err
		}
	}

	if err := s.hostp.DeleteRole(ctx, slug); err != nil {
		return err
	}
	if err := s.state.RemoveRoleGrants(ctx, slug); err != nil {
		return err
	}
	if err := s.state.RemoveCreatedRole(ctx, slug); err != nil {
		return err
	}
	if err := s.state.RemoveRoleOverlay(ctx, slug); err != nil {
		return err
	}
	s.notify(ctx, shared.EventRoleDeleted, map[string]any{"role": slug})
	return nil
}

// AddCapability writes a grant (or explicit deny) into a role and records
// it as plugin-managed. Core roles accept non-dangerous managed entries
// only; dangerous capabilities never land on a core role through this
// system.
func (s *Store) AddCapability(ctx context.Context, slug, capability string, grant bool) error {
	if !ValidSlug(capability) {
		return fmt.Errorf("%w: capability name must match [a-z0-9_]+", httpx.ErrValidation)
	}
	if _, err := s.hostp.GetRole(ctx, slug); err != nil {
		if errors.Is(err, host.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", httpx.ErrNotFound, slug)
		}
		return err
	}
	if IsCoreRole(slug) && IsDangerousCapability(capability) {
		return fmt.Errorf("%w: dangerous capability %s cannot be granted to core role %s", httpx.ErrForbidden, capability, slug)
	}
	s.snapshotBefore(ctx, "capability", "add_capability", fmt.Sprintf("add %s to %s", capability, slug))
	if err := s.hostp.SetCapability(ctx, slug, capability, grant); err != nil {
		return err
	}
	if err := s.state.AddManagedGrant(ctx, slug, capability); err != nil {
		return err
	}
	s.notify(ctx, shared.EventCapabilityAdded, map[string]any{
		"role": slug, "capability": capability, "grant": grant,
	})
	return nil
}

// RemoveCapability deletes a capability entry from a role. It only ever
// deletes what this system added; core- and externally-defined grants are
// out of reach.
func (s *Store) RemoveCapability(ctx context.Context, slug, capability string) error {
	managed, err := s.state.IsManaged(ctx, slug, capability)
	if err != nil {
		return err
	}
	if !managed {
		return fmt.Errorf("%w: capability %s on role %s is not managed by this system", httpx.ErrForbidden, capability, slug)
	}
	s.snapshotBefore(ctx, "capability", "remove_capability", fmt.Sprintf("remove %s from %s", capability, slug))
	if err := s.hostp.UnsetCapability(ctx, slug, capability); err != nil {
		if errors.Is(err, host.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", httpx.ErrNotFound, slug)
		}
		return err
	}
	if err := s.state.RemoveManagedGrant(ctx, slug, capability); err != nil {
		return err
	}
	s.notify(ctx, shared.EventCapabilityRemoved, map[string]any{
		"role": slug, "capability": capability,
	})
	return nil
}

// UpdateUserRoles replaces a user's role set wholesale. Every referenced
// role must exist and the new set must not be empty.
func (s *Store) UpdateUserRoles(ctx context.Context, userID int64, roles []string) error {
	if len(roles) == 0 {
		return fmt.Errorf("%w: a user must retain at least one role", httpx.ErrValidation)
	}
	seen := make(map[string]struct{}, len(roles))
	deduped := make([]string, 0, len(roles))
	for _, slug := range roles {
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		if _, err := s.hostp.GetRole(ctx, slug); err != nil {
			if errors.Is(err, host.ErrRoleNotFound) {
				return fmt.Errorf("%w: role %s", httpx.ErrNotFound, slug)
			}
			return err
		}
		deduped = append(deduped, slug)
	}
	user, err := s.hostp.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, host.ErrUserNotFound) {
			return fmt.Errorf("%w: user %d", httpx.ErrNotFound, userID)
		}
		return err
	}
	if s.saver != nil {
		prior := append([]string(nil), user.Roles...)
		sort.Strings(prior)
		if _, err := s.saver.Save(ctx, "user_roles", "update_user_roles",
			fmt.Sprintf("update roles for user %d", userID),
			UserRolesSnapshot{UserID: userID, Roles: prior}); err != nil {
			s.logger.Warn("save revision", slog.String("action", "update_user_roles"), slog.Any("error", err))
		}
	}
	if err := s.hostp.SetUserRoles(ctx, userID, deduped); err != nil {
		return err
	}
	s.notify(ctx, shared.EventUserRolesUpdated, map[string]any{
		"user_id": userID, "roles": deduped,
	})
	return nil
}

// UserRolesSnapshot captures one user's role set before a change.
type UserRolesSnapshot struct {
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

// SnapshotState captures the complete role state: every role plus all
// tracking metadata and the overlay.
func (s *Store) SnapshotState(ctx context.Context) (Snapshot, error) {
	roles, err := s.hostp.ListRoles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	grants, err := s.state.ManagedGrants(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	created, err := s.state.CreatedRoles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	disabledRoles, err := s.state.DisabledRoles(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	disabledCaps, err := s.state.DisabledCaps(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Roles:         roles,
		CreatedRoles:  sortedKeys(created),
		ManagedGrants: grants,
		DisabledRoles: sortedKeys(disabledRoles),
		DisabledCaps:  disabledCaps,
	}
	return snap, nil
}

// ApplySnapshot restores role state wholesale: for each snapshotted role
// the current capability map is replaced entirely, and tracking metadata
// plus overlay are reset to the snapshot. Failures are collected per role;
// already-applied changes remain.
func (s *Store) ApplySnapshot(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, want := range snap.Roles {
		if err := s.applyRole(ctx, want); err != nil {
			errs = append(errs, fmt.Errorf("role %s: %w", want.Slug, err))
		}
	}
	if err := s.state.Restore(ctx, snap); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Store) applyRole(ctx context.Context, want host.Role) error {
	current, err := s.hostp.GetRole(ctx, want.Slug)
	if errors.Is(err, host.ErrRoleNotFound) {
		return s.hostp.CreateRole(ctx, want)
	}
	if err != nil {
		return err
	}
	for capName := range current.Capabilities {
		if _, ok := want.Capabilities[capName]; !ok {
			if err := s.hostp.UnsetCapability(ctx, want.Slug, capName); err != nil {
				return err
			}
		}
	}
	for capName, grant := range want.Capabilities {
		if cur, ok := current.Capabilities[capName]; !ok || cur != grant {
			if err := s.hostp.SetCapability(ctx, want.Slug, capName, grant); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
