package shared

// Domain event names. This is the complete vocabulary webhook
// subscriptions may filter on; dispatching an unknown event is a
// programming error, not a runtime condition.
const (
	EventRoleCreated       = "role:created"
	EventRoleUpdated       = "role:updated"
	EventRoleDeleted       = "role:deleted"
	EventRoleEnabled       = "role:enabled"
	EventRoleDisabled      = "role:disabled"
	EventCapabilityAdded   = "capability:added"
	EventCapabilityRemoved = "capability:removed"
	EventCapabilityToggled = "capability:toggled"
	EventUserRolesUpdated  = "user:roles_updated"
	EventImportCompleted   = "import:completed"
	EventSettingsUpdated   = "settings:updated"
)

// EventVocabulary lists every dispatchable event name.
func EventVocabulary() []string {
	return []string{
		EventRoleCreated,
		EventRoleUpdated,
		EventRoleDeleted,
		EventRoleEnabled,
		EventRoleDisabled,
		EventCapabilityAdded,
		EventCapabilityRemoved,
		EventCapabilityToggled,
		EventUserRolesUpdated,
		EventImportCompleted,
		EventSettingsUpdated,
	}
}

// KnownEvent reports whether name is part of the vocabulary.
func KnownEvent(name string) bool {
	for _, ev := range EventVocabulary() {
		if ev == name {
			return true
		}
	}
	return false
}
