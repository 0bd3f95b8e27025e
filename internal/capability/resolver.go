package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
)

// Resolver computes effective capability sets. Semantics are union over
// the user's non-disabled roles: a capability granted by any assigned role
// is effective even if another assigned role carries an explicit deny.
type Resolver struct {
	hostp host.Provider
	state *State
}

// NewResolver constructs a Resolver.
func NewResolver(hostp host.Provider, state *State) *Resolver {
	return &Resolver{hostp: hostp, state: state}
}

// EffectiveForRoles resolves the effective set for an explicit role list,
// applying the disablement overlay but no user-level overrides.
func (r *Resolver) EffectiveForRoles(ctx context.Context, roles []string) (map[string]struct{}, error) {
	disabledRoles, err := r.state.DisabledRoles(ctx)
	if err != nil {
		return nil, err
	}
	disabledCaps, err := r.state.DisabledCaps(ctx)
	if err != nil {
		return nil, err
	}
	effective := make(map[string]struct{})
	for _, slug := range roles {
		if _, off := disabledRoles[slug]; off {
			continue
		}
		role, err := r.hostp.GetRole(ctx, slug)
		if err != nil {
			if errors.Is(err, host.ErrRoleNotFound) {
				continue
			}
			return nil, err
		}
		suppressed := make(map[string]struct{}, len(disabledCaps[slug]))
		for _, c := range disabledCaps[slug] {
			suppressed[c] = struct{}{}
		}
		for capName, grant := range role.Capabilities {
			if !grant {
				continue
			}
			if _, off := suppressed[capName]; off {
				continue
			}
			effective[capName] = struct{}{}
		}
	}
	return effective, nil
}

// Resolve returns the user's effective capabilities, sorted. User-level
// overrides are unioned in after role resolution, independent of the
// disablement overlay.
func (r *Resolver) Resolve(ctx context.Context, userID int64) ([]string, error) {
	user, err := r.hostp.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, host.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d", httpx.ErrNotFound, userID)
		}
		return nil, err
	}
	effective, err := r.EffectiveForRoles(ctx, user.Roles)
	if err != nil {
		return nil, err
	}
	for capName, grant := range user.Capabilities {
		if grant {
			effective[capName] = struct{}{}
		}
	}
	out := make([]string, 0, len(effective))
	for capName := range effective {
		out = append(out, capName)
	}
	sort.Strings(out)
	return out, nil
}

// UserCan reports whether the capability is in the user's effective set.
func (r *Resolver) UserCan(ctx context.Context, userID int64, capability string) (bool, error) {
	caps, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range caps {
		if c == capability {
			return true, nil
		}
	}
	return false, nil
}

// TestUserCapability distinguishes an explicit deny from plain absence:
// Denied is reported only when resolution failed and some assigned role's
// raw map carries capability=false.
func (r *Resolver) TestUserCapability(ctx context.Context, userID int64, capability string) (TriState, error) {
	granted, err := r.UserCan(ctx, userID, capability)
	if err != nil {
		return "", err
	}
	if granted {
		return Granted, nil
	}
	user, err := r.hostp.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, slug := range user.Roles {
		role, err := r.hostp.GetRole(ctx, slug)
		if err != nil {
			if errors.Is(err, host.ErrRoleNotFound) {
				continue
			}
			return "", err
		}
		if grant, ok := role.Capabilities[capability]; ok && !grant {
			return Denied, nil
		}
	}
	return NotSet, nil
}
