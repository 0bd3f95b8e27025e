package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/shared"
)

// Disablement is the non-destructive overlay suppressing roles or
// individual role capabilities at resolution time. It never touches the
// underlying role data.
type Disablement struct {
	hostp    host.Provider
	state    *State
	notifier Notifier
}

// NewDisablement constructs the overlay service.
func NewDisablement(hostp host.Provider, state *State, notifier Notifier) *Disablement {
	return &Disablement{hostp: hostp, state: state, notifier: notifier}
}

func (d *Disablement) notify(ctx context.Context, event string, data map[string]any) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(ctx, event, data)
}

// SetRoleDisabled toggles a role in the disabled overlay. Core roles can
// never be disabled; roles this system did not create belong to a third
// party and cannot be silently neutralized either.
func (d *Disablement) SetRoleDisabled(ctx context.Context, slug string, disabled bool) error {
	if IsCoreRole(slug) {
		return fmt.Errorf("%w: core role %s cannot be disabled", httpx.ErrForbidden, slug)
	}
	if _, err := d.hostp.GetRole(ctx, slug); err != nil {
		if errors.Is(err, host.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", httpx.ErrNotFound, slug)
		}
		return err
	}
	created, err := d.state.IsCreatedRole(ctx, slug)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: role %s was not created by this system", httpx.ErrForbidden, slug)
	}
	if err := d.state.SetRoleDisabled(ctx, slug, disabled); err != nil {
		return err
	}
	event := shared.EventRoleEnabled
	if disabled {
		event = shared.EventRoleDisabled
	}
	d.notify(ctx, event, map[string]any{"role": slug})
	return nil
}

// DisableCapability adds a capability to a role's disabled set. Core
// capabilities can never be disabled, regardless of role.
func (d *Disablement) DisableCapability(ctx context.Context, slug, capability string) error {
	return d.setCapDisabled(ctx, slug, capability, true)
}

// EnableCapability removes a capability from a role's disabled set.
func (d *Disablement) EnableCapability(ctx context.Context, slug, capability string) error {
	return d.setCapDisabled(ctx, slug, capability, false)
}

func (d *Disablement) setCapDisabled(ctx context.Context, slug, capability string, disabled bool) error {
	if IsCoreCapability(capability) {
		return fmt.Errorf("%w: core capability %s cannot be disabled", httpx.ErrForbidden, capability)
	}
	if !ValidSlug(capability) {
		return fmt.Errorf("%w: capability name must match [a-z0-9_]+", httpx.ErrValidation)
	}
	if _, err := d.hostp.GetRole(ctx, slug); err != nil {
		if errors.Is(err, host.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", httpx.ErrNotFound, slug)
		}
		return err
	}
	if err := d.state.SetCapDisabled(ctx, slug, capability, disabled); err != nil {
		return err
	}
	d.notify(ctx, shared.EventCapabilityToggled, map[string]any{
		"role": slug, "capability": capability, "disabled": disabled,
	})
	return nil
}

// IsRoleDisabled reports overlay state for a role.
func (d *Disablement) IsRoleDisabled(ctx context.Context, slug string) (bool, error) {
	set, err := d.state.DisabledRoles(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[slug]
	return ok, nil
}

// DisabledCapabilities returns the disabled set for one role.
func (d *Disablement) DisabledCapabilities(ctx context.Context, slug string) (map[string]struct{}, error) {
	all, err := d.state.DisabledCaps(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(all[slug]))
	for _, c := range all[slug] {
		set[c] = struct{}{}
	}
	return set, nil
}
