// Package command implements the authenticated remote command endpoint:
// a closed set of role mutations executed through the same primitives as
// the REST surface, rate limited per caller IP and always audit logged.
package command

import "encoding/json"

// Supported actions. Anything else is rejected before execution.
const (
	ActionCreateRole       = "create_role"
	ActionDeleteRole       = "delete_role"
	ActionEnableRole       = "enable_role"
	ActionDisableRole      = "disable_role"
	ActionAddCapability    = "add_capability"
	ActionRemoveCapability = "remove_capability"
	ActionUpdateUserRoles  = "update_user_roles"
)

var knownActions = map[string]struct{}{
	ActionCreateRole:       {},
	ActionDeleteRole:       {},
	ActionEnableRole:       {},
	ActionDisableRole:      {},
	ActionAddCapability:    {},
	ActionRemoveCapability: {},
	ActionUpdateUserRoles:  {},
}

// KnownAction reports whether action is part of the command set.
func KnownAction(action string) bool {
	_, ok := knownActions[action]
	return ok
}

// Request is the command envelope.
type Request struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// Result is what a successful command returns to the caller.
type Result struct {
	Action string `json:"action"`
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}
