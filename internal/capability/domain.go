// Package capability implements the role/capability authorization core:
// the managed-grant store, the disablement overlay, and effective-access
// resolution over the host platform's role primitives.
package capability

import (
	"context"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rolewarden/rolewarden/internal/host"
)

// Origin classifies who defined a role.
type Origin string

const (
	OriginCore     Origin = "core"
	OriginPlugin   Origin = "plugin"
	OriginExternal Origin = "external"
)

// TriState is the resolved standing of a capability for a user.
type TriState string

const (
	Granted TriState = "granted"
	Denied  TriState = "denied"
	NotSet  TriState = "not_set"
)

// ManagedGrant records that this system wrote a capability entry into a
// role. Only managed entries may be removed again; everything else is
// treated as owned by the host or a third party.
type ManagedGrant struct {
	Role       string `json:"role"`
	Capability string `json:"capability"`
}

// RoleInfo is a role decorated with this system's classification.
type RoleInfo struct {
	host.Role
	Origin   Origin `json:"origin"`
	Disabled bool   `json:"disabled"`
}

// Snapshot is a complete, self-sufficient capture of role state: every
// role's slug/name/capability map plus all tracking metadata and the
// disablement overlay. Restoring never needs external context.
type Snapshot struct {
	Roles         []host.Role         `json:"roles"`
	CreatedRoles  []string            `json:"created_roles"`
	ManagedGrants []ManagedGrant      `json:"managed_grants"`
	DisabledRoles []string            `json:"disabled_roles"`
	DisabledCaps  map[string][]string `json:"disabled_caps"`
}

// Notifier receives domain events emitted after successful mutations.
// Implementations must not block on network I/O.
type Notifier interface {
	Notify(ctx context.Context, event string, data map[string]any)
}

// Saver persists a pre-change snapshot. Implemented by the revision store.
type Saver interface {
	Save(ctx context.Context, typ, action, note string, snapshot any) (string, error)
}

var slugPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidSlug reports whether s satisfies the capability/role slug pattern.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

var titleCaser = cases.Title(language.English)

// DisplayName derives a human name from a slug ("shop_manager" → "Shop Manager").
func DisplayName(slug string) string {
	out := make([]byte, len(slug))
	copy(out, slug)
	for i := range out {
		if out[i] == '_' {
			out[i] = ' '
		}
	}
	return titleCaser.String(string(out))
}
