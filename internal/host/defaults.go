package host

import "context"

// DefaultRoles returns the five built-in roles with their standard grants.
// These are the roles the disablement and deletion guards treat as core.
func DefaultRoles() []Role {
	return []Role{
		{
			Slug: "administrator",
			Name: "Administrator",
			Capabilities: grantAll(
				"read", "edit_posts", "edit_others_posts", "edit_published_posts",
				"publish_posts", "delete_posts", "delete_others_posts",
				"delete_published_posts", "delete_private_posts", "edit_private_posts",
				"read_private_posts", "edit_pages", "edit_others_pages",
				"edit_published_pages", "publish_pages", "delete_pages",
				"delete_others_pages", "delete_published_pages", "delete_private_pages",
				"edit_private_pages", "read_private_pages", "manage_categories",
				"manage_links", "moderate_comments", "upload_files", "unfiltered_html",
				"edit_theme_options", "switch_themes", "edit_themes", "edit_plugins",
				"edit_files", "edit_users", "create_users", "delete_users",
				"promote_users", "list_users", "remove_users", "activate_plugins",
				"install_plugins", "delete_plugins", "install_themes", "delete_themes",
				"update_core", "update_plugins", "update_themes", "manage_options",
				"import", "export", "unfiltered_upload",
			),
		},
		{
			Slug: "editor",
			Name: "Editor",
			Capabilities: grantAll(
				"read", "edit_posts", "edit_others_posts", "edit_published_posts",
				"publish_posts", "delete_posts", "delete_others_posts",
				"delete_published_posts", "delete_private_posts", "edit_private_posts",
				"read_private_posts", "edit_pages", "edit_others_pages",
				"edit_published_pages", "publish_pages", "delete_pages",
				"delete_others_pages", "delete_published_pages", "delete_private_pages",
				"edit_private_pages", "read_private_pages", "manage_categories",
				"manage_links", "moderate_comments", "upload_files", "unfiltered_html",
			),
		},
		{
			Slug: "author",
			Name: "Author",
			Capabilities: grantAll(
				"read", "edit_posts", "edit_published_posts", "publish_posts",
				"delete_posts", "delete_published_posts", "upload_files",
			),
		},
		{
			Slug: "contributor",
			Name: "Contributor",
			Capabilities: grantAll(
				"read", "edit_posts", "delete_posts",
			),
		},
		{
			Slug:         "subscriber",
			Name:         "Subscriber",
			Capabilities: grantAll("read"),
		},
	}
}

// EnsureDefaults creates any missing built-in role. Existing roles are left
// untouched.
func (p *KVProvider) EnsureDefaults(ctx context.Context) error {
	existing, err := p.loadRoles(ctx)
	if err != nil {
		return err
	}
	for _, role := range DefaultRoles() {
		if _, ok := existing[role.Slug]; ok {
			continue
		}
		if err := p.CreateRole(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

func grantAll(caps ...string) map[string]bool {
	m := make(map[string]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}
