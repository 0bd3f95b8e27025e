package capability

import (
	"context"
	"sort"
)

// CellState is the raw tri-state of a capability within one role's map.
type CellState string

const (
	CellGranted CellState = "granted"
	CellDenied  CellState = "denied"
	CellUnset   CellState = "unset"
)

// MatrixCell reports one (capability, role) intersection.
type MatrixCell struct {
	State    CellState `json:"state"`
	Disabled bool      `json:"disabled,omitempty"`
	Managed  bool      `json:"managed,omitempty"`
}

// Matrix is the cross product of every capability observed across all
// roles against all roles.
type Matrix struct {
	Roles        []string                         `json:"roles"`
	Capabilities []string                         `json:"capabilities"`
	Cells        map[string]map[string]MatrixCell `json:"cells"` // capability → role → cell
}

// BuildMatrix assembles the capability matrix from current role state.
func (s *Store) BuildMatrix(ctx context.Context) (Matrix, error) {
	roles, err := s.hostp.ListRoles(ctx)
	if err != nil {
		return Matrix{}, err
	}
	grants, err := s.state.ManagedGrants(ctx)
	if err != nil {
		return Matrix{}, err
	}
	disabledCaps, err := s.state.DisabledCaps(ctx)
	if err != nil {
		return Matrix{}, err
	}

	managed := make(map[ManagedGrant]struct{}, len(grants))
	for _, g := range grants {
		managed[g] = struct{}{}
	}
	suppressed := make(map[ManagedGrant]struct{})
	for slug, caps := range disabledCaps {
		for _, c := range caps {
			suppressed[ManagedGrant{Role: slug, Capability: c}] = struct{}{}
		}
	}

	capSet := make(map[string]struct{})
	for _, role := range roles {
		for capName := range role.Capabilities {
			capSet[capName] = struct{}{}
		}
	}
	for _, g := range grants {
		capSet[g.Capability] = struct{}{}
	}

	m := Matrix{
		Roles:        make([]string, 0, len(roles)),
		Capabilities: sortedKeys(capSet),
		Cells:        make(map[string]map[string]MatrixCell, len(capSet)),
	}
	for _, role := range roles {
		m.Roles = append(m.Roles, role.Slug)
	}
	sort.Strings(m.Roles)

	for _, capName := range m.Capabilities {
		row := make(map[string]MatrixCell, len(roles))
		for _, role := range roles {
			cell := MatrixCell{State: CellUnset}
			if grant, ok := role.Capabilities[capName]; ok {
				if grant {
					cell.State = CellGranted
				} else {
					cell.State = CellDenied
				}
			}
			key := ManagedGrant{Role: role.Slug, Capability: capName}
			_, cell.Disabled = suppressed[key]
			_, cell.Managed = managed[key]
			row[role.Slug] = cell
		}
		m.Cells[capName] = row
	}
	return m, nil
}
