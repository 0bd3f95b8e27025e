package revision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rolewarden/rolewarden/internal/capability"
	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/shared"
)

func newRevisionFixture(t *testing.T, retention int) (*Service, *capability.Store, *host.KVProvider) {
	t.Helper()
	ctx := context.Background()
	mem := kv.NewMemory()
	provider := host.NewKVProvider(mem)
	require.NoError(t, provider.EnsureDefaults(ctx))
	capStore := capability.NewStore(provider, capability.NewState(mem), nil, nil, nil)
	service := NewService(mem, capStore, provider, retention, nil)
	return service, capStore, provider
}

func TestSaveListGetRecordsActor(t *testing.T) {
	service, _, _ := newRevisionFixture(t, 0)
	ctx := shared.ContextWithActor(context.Background(), "casey")

	id, err := service.Save(ctx, TypeRole, "create_role", "create role ops", map[string]any{"roles": []string{}})
	require.NoError(t, err)

	rev, err := service.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "casey", rev.Actor)
	require.Equal(t, TypeRole, rev.Type)

	_, err = service.Get(ctx, "missing")
	require.ErrorIs(t, err, httpx.ErrNotFound)

	id2, err := service.Save(ctx, TypeCapability, "add_capability", "", map[string]any{})
	require.NoError(t, err)

	metas, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, id2, metas[0].ID)
	require.Equal(t, id, metas[1].ID)
}

func TestRetentionTrimsOldest(t *testing.T) {
	service, _, _ := newRevisionFixture(t, 3)
	ctx := context.Background()

	var ids []string
	for range 5 {
		id, err := service.Save(ctx, TypeRole, "create_role", "", map[string]any{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	metas, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 3)

	_, err = service.Get(ctx, ids[0])
	require.ErrorIs(t, err, httpx.ErrNotFound)
	_, err = service.Get(ctx, ids[4])
	require.NoError(t, err)
}

func TestRestoreRoleSnapshot(t *testing.T) {
	service, capStore, provider := newRevisionFixture(t, 0)
	ctx := context.Background()

	_, err := capStore.CreateRole(ctx, "ops", "")
	require.NoError(t, err)
	require.NoError(t, capStore.AddCapability(ctx, "ops", "run_exports", true))

	snap, err := capStore.SnapshotState(ctx)
	require.NoError(t, err)
	id, err := service.Save(ctx, TypeRole, "delete_role", "delete role ops", snap)
	require.NoError(t, err)

	require.NoError(t, capStore.DeleteRole(ctx, "ops"))
	_, err = provider.GetRole(ctx, "ops")
	require.ErrorIs(t, err, host.ErrRoleNotFound)

	require.NoError(t, service.Restore(ctx, id, false))

	role, err := provider.GetRole(ctx, "ops")
	require.NoError(t, err)
	require.True(t, role.Capabilities["run_exports"])

	created, err := capStore.State().IsCreatedRole(ctx, "ops")
	require.NoError(t, err)
	require.True(t, created)
}

func TestRestoreUserRolesRejectsEmptySnapshot(t *testing.T) {
	service, _, provider := newRevisionFixture(t, 0)
	ctx := context.Background()
	require.NoError(t, provider.PutUser(ctx, host.User{ID: 1, Login: "alex", Roles: []string{"editor"}}))

	id, err := service.Save(ctx, TypeUserRoles, "update_user_roles", "",
		capability.UserRolesSnapshot{UserID: 1, Roles: nil})
	require.NoError(t, err)
	err = service.Restore(ctx, id, false)
	require.ErrorIs(t, err, httpx.ErrValidation)

	id, err = service.Save(ctx, TypeUserRoles, "update_user_roles", "",
		capability.UserRolesSnapshot{UserID: 1, Roles: []string{"author"}})
	require.NoError(t, err)
	require.NoError(t, service.Restore(ctx, id, false))

	user, err := provider.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"author"}, user.Roles)
}

type flakyRestorer struct {
	pre      capability.Snapshot
	applied  []capability.Snapshot
	failOnce bool
}

func (f *flakyRestorer) SnapshotState(context.Context) (capability.Snapshot, error) {
	return f.pre, nil
}

func (f *flakyRestorer) ApplySnapshot(_ context.Context, snap capability.Snapshot) error {
	f.applied = append(f.applied, snap)
	if f.failOnce {
		f.failOnce = false
		return errors.New("partial apply")
	}
	return nil
}

func TestStrictRestoreReappliesPreImageOnFailure(t *testing.T) {
	mem := kv.NewMemory()
	restorer := &flakyRestorer{
		pre:      capability.Snapshot{CreatedRoles: []string{"keep_me"}},
		failOnce: true,
	}
	service := NewService(mem, restorer, nil, 0, nil)
	ctx := context.Background()

	id, err := service.Save(ctx, TypeRole, "delete_role", "",
		capability.Snapshot{CreatedRoles: []string{"target"}})
	require.NoError(t, err)

	err = service.Restore(ctx, id, true)
	require.Error(t, err)

	// First apply is the failed snapshot, second the pre-image rollback.
	require.Len(t, restorer.applied, 2)
	require.Equal(t, []string{"target"}, restorer.applied[0].CreatedRoles)
	require.Equal(t, []string{"keep_me"}, restorer.applied[1].CreatedRoles)
}
