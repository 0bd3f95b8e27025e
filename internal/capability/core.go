package capability

// The five built-in roles. They cannot be deleted, disabled, or have
// dangerous capabilities written into them.
var coreRoles = map[string]struct{}{
	"administrator": {},
	"editor":        {},
	"author":        {},
	"contributor":   {},
	"subscriber":    {},
}

// IsCoreRole reports whether slug names a built-in role.
func IsCoreRole(slug string) bool {
	_, ok := coreRoles[slug]
	return ok
}

// CoreRoles returns the built-in role slugs.
func CoreRoles() []string {
	return []string{"administrator", "editor", "author", "contributor", "subscriber"}
}

// coreCapabilities is the fixed allowlist of standard platform
// capabilities. Classification is by exclusion: not core and not managed
// anywhere means external.
var coreCapabilities = map[string]struct{}{
	"read": {}, "edit_posts": {}, "edit_others_posts": {}, "edit_published_posts": {},
	"publish_posts": {}, "delete_posts": {}, "delete_others_posts": {},
	"delete_published_posts": {}, "delete_private_posts": {}, "edit_private_posts": {},
	"read_private_posts": {}, "edit_pages": {}, "edit_others_pages": {},
	"edit_published_pages": {}, "publish_pages": {}, "delete_pages": {},
	"delete_others_pages": {}, "delete_published_pages": {}, "delete_private_pages": {},
	"edit_private_pages": {}, "read_private_pages": {}, "manage_categories": {},
	"manage_links": {}, "moderate_comments": {}, "upload_files": {},
	"unfiltered_html": {}, "edit_theme_options": {}, "switch_themes": {},
	"edit_themes": {}, "edit_plugins": {}, "edit_files": {}, "edit_users": {},
	"create_users": {}, "delete_users": {}, "promote_users": {}, "list_users": {},
	"remove_users": {}, "activate_plugins": {}, "install_plugins": {},
	"delete_plugins": {}, "install_themes": {}, "delete_themes": {},
	"update_core": {}, "update_plugins": {}, "update_themes": {},
	"manage_options": {}, "import": {}, "export": {}, "unfiltered_upload": {},
	"edit_dashboard": {},
}

// IsCoreCapability reports whether name is on the fixed core allowlist.
func IsCoreCapability(name string) bool {
	_, ok := coreCapabilities[name]
	return ok
}

// dangerousCapabilities are grants implying broad system compromise (code
// execution or user/privilege management). They are subject to extra
// gating at mutation time.
var dangerousCapabilities = map[string]struct{}{
	"unfiltered_html": {}, "edit_files": {}, "edit_plugins": {}, "edit_themes": {},
	"update_core": {}, "activate_plugins": {}, "install_plugins": {},
	"install_themes": {}, "manage_options": {}, "edit_users": {},
	"create_users": {}, "delete_users": {}, "promote_users": {},
	"import": {}, "unfiltered_upload": {},
}

// IsDangerousCapability reports whether name is subject to extra gating.
func IsDangerousCapability(name string) bool {
	_, ok := dangerousCapabilities[name]
	return ok
}
