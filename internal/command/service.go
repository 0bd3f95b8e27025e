package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/rolewarden/rolewarden/internal/capability"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
)

// Service executes commands against the capability layer. Every action
// goes through the same store and disablement paths the REST handlers
// use, so guards and revision captures apply identically.
type Service struct {
	store       *capability.Store
	disablement *capability.Disablement
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(store *capability.Store, disablement *capability.Disablement, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		disablement: disablement,
		validate:    validator.New(),
		logger:      logger,
	}
}

type createRoleParams struct {
	Slug string `json:"slug" validate:"required"`
	Name string `json:"name"`
}

type roleParams struct {
	Slug string `json:"slug" validate:"required"`
}

type capabilityParams struct {
	Role       string `json:"role" validate:"required"`
	Capability string `json:"capability" validate:"required"`
	Grant      *bool  `json:"grant"`
}

type userRolesParams struct {
	UserID int64    `json:"user_id" validate:"required"`
	Roles  []string `json:"roles" validate:"required,min=1"`
}

func (s *Service) decode(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: params required", httpx.ErrValidation)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: malformed params", httpx.ErrValidation)
	}
	if err := s.validate.Struct(dest); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

// Execute runs one command and returns its result.
func (s *Service) Execute(ctx context.Context, req Request) (Result, error) {
	if !KnownAction(req.Action) {
		return Result{}, fmt.Errorf("%w: unknown action %q", httpx.ErrValidation, req.Action)
	}
	result := Result{Action: req.Action, Status: "ok"}
	switch req.Action {
	case ActionCreateRole:
		var params createRoleParams
		if err := s.decode(req.Params, &params); err != nil {
			return Result{}, err
		}
		info, err := s.store.CreateRole(ctx, params.Slug, params.Name)
		if err != nil {
			return Result{}, err
		}
		result.Data = info
	case ActionDeleteRole:
		var params roleParams
		if err := s.decode(req.Params, &params); err != nil {
			return Result{}, err
		}
		if err := s.store.DeleteRole(ctx, params.Slug); err != nil {
			return Result{}, err
		}
	case ActionEnableRole, ActionDisableRole:
		var params roleParams
		if err := s.decode(req.Params, &params); err != nil {
			return Result{}, err
		}
		disabled := req.Action == ActionDisableRole
		if err := s.disablement.SetRoleDisabled(ctx, params.Slug, disabled); err != nil {
			return Result{}, err
		}
	case ActionAddCapability:
		var params capabilityParams
		if err := s.decode(req.Params, &params); err != nil {
			return Result{}, err
		}
		grant := true
		if params.Grant != nil {
			grant = *params.Grant
		}
		if err := s.store.AddCapability(ctx, params.Role, params.Capability, grant); err != nil {
			return Result{}, err
		}
	case ActionRemoveCapability:
		var params capabilityParams
		if err := s.decode(req.Params, &params); err != nil {
			return Result{}, err
		}
		if err := s.store.RemoveCapability(ctx, params.Role, params.Capability); err != nil {
			return Result{}, err
		}
	case ActionUpdateUserRoles:
		var params userRolesParams
		if err := s.decode(req.Params, &params); err != nil {
			return Result{}, err
		}
		if err := s.store.UpdateUserRoles(ctx, params.UserID, params.Roles); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}
