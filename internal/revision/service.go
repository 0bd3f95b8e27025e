package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rolewarden/rolewarden/internal/capability"
	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/shared"
)

const indexKey = "revisions:index"

func recordKey(id string) string { return "revision:" + id }

// RoleRestorer applies and captures full role-state snapshots. Implemented
// by the capability store.
type RoleRestorer interface {
	SnapshotState(ctx context.Context) (capability.Snapshot, error)
	ApplySnapshot(ctx context.Context, snap capability.Snapshot) error
}

// Service persists revisions and replays them. Saves are append-only;
// retention trims the oldest records after each insert.
type Service struct {
	store     kv.Store
	restorer  RoleRestorer
	hostp     host.Provider
	retention int
	logger    *slog.Logger
}

// NewService constructs the revision service. retention <= 0 disables
// trimming.
func NewService(store kv.Store, restorer RoleRestorer, hostp host.Provider, retention int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, restorer: restorer, hostp: hostp, retention: retention, logger: logger}
}

// Save appends a revision and enforces retention. It implements
// capability.Saver. The snapshot must be self-sufficient; Restore never
// consults anything else.
func (s *Service) Save(ctx context.Context, typ, action, note string, snapshot any) (string, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("revision: encode snapshot: %w", err)
	}
	rev := Revision{
		ID:        uuid.NewString(),
		Type:      typ,
		Action:    action,
		Note:      note,
		Snapshot:  raw,
		Actor:     shared.ActorFromContext(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, recordKey(rev.ID), rev); err != nil {
		return "", fmt.Errorf("revision: insert %s: %w", rev.ID, err)
	}
	if err := s.appendIndex(ctx, rev); err != nil {
		return "", err
	}
	s.enforceLimit(ctx)
	return rev.ID, nil
}

func (s *Service) appendIndex(ctx context.Context, rev Revision) error {
	return s.store.Update(ctx, indexKey, func(raw []byte) ([]byte, error) {
		var index []Meta
		if raw != nil {
			if err := json.Unmarshal(raw, &index); err != nil {
				return nil, err
			}
		}
		index = append(index, Meta{
			ID: rev.ID, Type: rev.Type, Action: rev.Action,
			Note: rev.Note, Actor: rev.Actor, CreatedAt: rev.CreatedAt,
		})
		return json.Marshal(index)
	})
}

// enforceLimit trims the oldest revisions past the retention cap. Runs
// after every save; approximate under concurrent inserts, which is
// acceptable.
func (s *Service) enforceLimit(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	var evicted []string
	err := s.store.Update(ctx, indexKey, func(raw []byte) ([]byte, error) {
		var index []Meta
		if raw != nil {
			if err := json.Unmarshal(raw, &index); err != nil {
				return nil, err
			}
		}
		if len(index) <= s.retention {
			return json.Marshal(index)
		}
		cut := len(index) - s.retention
		for _, m := range index[:cut] {
			evicted = append(evicted, m.ID)
		}
		return json.Marshal(index[cut:])
	})
	if err != nil {
		s.logger.Warn("revision retention", slog.Any("error", err))
		return
	}
	for _, id := range evicted {
		if err := s.store.Delete(ctx, recordKey(id)); err != nil {
			s.logger.Warn("revision evict", slog.String("id", id), slog.Any("error", err))
		}
	}
}

// List returns revision metadata, newest first.
func (s *Service) List(ctx context.Context) ([]Meta, error) {
	var index []Meta
	if _, err := s.store.Get(ctx, indexKey, &index); err != nil {
		return nil, err
	}
	out := make([]Meta, len(index))
	for i, m := range index {
		out[len(index)-1-i] = m
	}
	return out, nil
}

// Get fetches one revision with its snapshot.
func (s *Service) Get(ctx context.Context, id string) (Revision, error) {
	var rev Revision
	ok, err := s.store.Get(ctx, recordKey(id), &rev)
	if err != nil {
		return Revision{}, err
	}
	if !ok {
		return Revision{}, fmt.Errorf("%w: revision %s", httpx.ErrNotFound, id)
	}
	return rev, nil
}

// Restore replays a revision's snapshot wholesale. For role/capability
// revisions each role's capability map is replaced entirely; for
// user_roles the user's role set is replaced. Failures inside a role
// snapshot are collected per role and already-applied changes remain,
// unless strict is set, in which case the pre-restore state is reapplied
// before returning the error.
func (s *Service) Restore(ctx context.Context, id string, strict bool) error {
	rev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch rev.Type {
	case TypeRole, TypeCapability:
		return s.restoreRoles(ctx, rev, strict)
	case TypeUserRoles:
		return s.restoreUserRoles(ctx, rev)
	default:
		return fmt.Errorf("%w: unknown revision type %q", httpx.ErrValidation, rev.Type)
	}
}

func (s *Service) restoreRoles(ctx context.Context, rev Revision, strict bool) error {
	var snap capability.Snapshot
	if err := json.Unmarshal(rev.Snapshot, &snap); err != nil {
		return fmt.Errorf("revision: decode snapshot %s: %w", rev.ID, err)
	}
	var preimage *capability.Snapshot
	if strict {
		pre, err := s.restorer.SnapshotState(ctx)
		if err != nil {
			return fmt.Errorf("revision: capture pre-image: %w", err)
		}
		preimage = &pre
	}
	if err := s.restorer.ApplySnapshot(ctx, snap); err != nil {
		if preimage != nil {
			if rbErr := s.restorer.ApplySnapshot(ctx, *preimage); rbErr != nil {
				s.logger.Error("strict restore rollback", slog.String("id", rev.ID), slog.Any("error", rbErr))
			}
		}
		s.logger.Error("restore revision", slog.String("id", rev.ID), slog.Any("error", err))
		return fmt.Errorf("revision: restore %s: %w", rev.ID, err)
	}
	return nil
}

func (s *Service) restoreUserRoles(ctx context.Context, rev Revision) error {
	var snap capability.UserRolesSnapshot
	if err := json.Unmarshal(rev.Snapshot, &snap); err != nil {
		return fmt.Errorf("revision: decode snapshot %s: %w", rev.ID, err)
	}
	if len(snap.Roles) == 0 {
		return fmt.Errorf("%w: snapshot would leave user %d without roles", httpx.ErrValidation, snap.UserID)
	}
	if err := s.hostp.SetUserRoles(ctx, snap.UserID, snap.Roles); err != nil {
		s.logger.Error("restore user roles", slog.String("id", rev.ID), slog.Any("error", err))
		return fmt.Errorf("revision: restore %s: %w", rev.ID, err)
	}
	return nil
}

var _ capability.Saver = (*Service)(nil)
