// Package revision implements the append-only snapshot/restore log for
// role state changes.
package revision

import (
	"encoding/json"
	"time"
)

// Revision types. Role and capability revisions both carry a full role
// state snapshot; user_roles revisions carry a single user's role set.
const (
	TypeRole       = "role"
	TypeCapability = "capability"
	TypeUserRoles  = "user_roles"
)

// Revision is one immutable snapshot record. The snapshot is the complete
// state *before* the change it annotates.
type Revision struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	Note      string          `json:"note"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Actor     string          `json:"actor"`
	CreatedAt time.Time       `json:"created_at"`
}

// Meta is the index entry kept per revision for listing and retention.
type Meta struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Note      string    `json:"note"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}
