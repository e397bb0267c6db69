// Package workspace manages context-scoped workspaces and their member sets.
// Membership is consulted by the release machine; this package owns it.
package workspace

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

var (
	// ErrEmptyName indicates a workspace name that is empty after trimming.
	ErrEmptyName = apperrors.New(apperrors.CodeWorkspaceEmptyName, "workspace name is required")
	// ErrExists indicates the context already has a workspace.
	ErrExists = apperrors.New(apperrors.CodeWorkspaceExists, "workspace already exists for context")
	// ErrNotExecutor indicates an actor other than the governance executor
	// attempting a membership mutation.
	ErrNotExecutor = apperrors.New(apperrors.CodeDelegationUnauthorized, "only the governance executor may change membership")
)

// Workspace is the membership scope bound to one context.
type Workspace struct {
	Context            identity.Context
	Name               string
	GovernanceExecutor identity.Identity
	CreatedAt          time.Time
}

// Service owns workspace creation and membership.
type Service struct {
	store storage.WorkspaceStore
	clock func() time.Time
}

// NewService creates a workspace service.
func NewService(store storage.WorkspaceStore) *Service {
	return NewServiceWithClock(store, time.Now)
}

// NewServiceWithClock creates a workspace service with an injected clock.
func NewServiceWithClock(store storage.WorkspaceStore, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, clock: clock}
}

// CreateInput carries a workspace creation request. When Executor is zero the
// creator becomes the governance executor.
type CreateInput struct {
	Context  identity.Context
	Name     string
	Creator  identity.Identity
	Executor identity.Identity
}

// Create stores a new workspace and enrolls the creator as its first member.
func (s *Service) Create(ctx context.Context, input CreateInput) (Workspace, error) {
	if input.Context.Zero() {
		return Workspace{}, apperrors.New(apperrors.CodeDelegationInvalidContext, "context is required")
	}
	if input.Creator.Zero() {
		return Workspace{}, apperrors.New(apperrors.CodeDelegationInvalidIdentity, "creator is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Workspace{}, ErrEmptyName
	}
	executor := input.Executor
	if executor.Zero() {
		executor = input.Creator
	}

	now := s.clock().UTC()
	record := storage.WorkspaceRecord{
		Context:            input.Context.String(),
		Name:               name,
		GovernanceExecutor: executor.String(),
		CreatedAt:          now,
	}
	if err := s.store.CreateWorkspace(ctx, record); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Workspace{}, ErrExists
		}
		return Workspace{}, apperrors.Wrap(apperrors.CodeInternal, "create workspace", err)
	}
	if err := s.store.AddMember(ctx, record.Context, input.Creator.String(), now); err != nil {
		return Workspace{}, apperrors.Wrap(apperrors.CodeInternal, "enroll creator", err)
	}
	return Workspace{
		Context:            input.Context,
		Name:               name,
		GovernanceExecutor: executor,
		CreatedAt:          now,
	}, nil
}

// Get returns the workspace for a context.
func (s *Service) Get(ctx context.Context, scope identity.Context) (Workspace, error) {
	record, err := s.store.GetWorkspace(ctx, scope.String())
	if errors.Is(err, storage.ErrNotFound) {
		return Workspace{}, apperrors.New(apperrors.CodeNotFound, "workspace not found")
	}
	if err != nil {
		return Workspace{}, apperrors.Wrap(apperrors.CodeInternal, "load workspace", err)
	}
	executor, err := identity.ParseIdentity(record.GovernanceExecutor)
	if err != nil {
		return Workspace{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored executor", err)
	}
	parsed, err := identity.ParseContext(record.Context)
	if err != nil {
		return Workspace{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored context", err)
	}
	return Workspace{
		Context:            parsed,
		Name:               record.Name,
		GovernanceExecutor: executor,
		CreatedAt:          record.CreatedAt,
	}, nil
}

// AddMember enrolls a member. Only the governance executor may do this.
func (s *Service) AddMember(ctx context.Context, actor, member identity.Identity, scope identity.Context) error {
	if member.Zero() {
		return apperrors.New(apperrors.CodeDelegationInvalidIdentity, "member is required")
	}
	workspace, err := s.Get(ctx, scope)
	if err != nil {
		return err
	}
	if actor != workspace.GovernanceExecutor {
		return ErrNotExecutor
	}
	if err := s.store.AddMember(ctx, scope.String(), member.String(), s.clock().UTC()); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "add member", err)
	}
	return nil
}

// RemoveMember removes a member. Only the governance executor may do this;
// removing an absent member succeeds.
func (s *Service) RemoveMember(ctx context.Context, actor, member identity.Identity, scope identity.Context) error {
	workspace, err := s.Get(ctx, scope)
	if err != nil {
		return err
	}
	if actor != workspace.GovernanceExecutor {
		return ErrNotExecutor
	}
	if err := s.store.RemoveMember(ctx, scope.String(), member.String()); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "remove member", err)
	}
	return nil
}

// IsMember reports whether the identity belongs to the context's workspace.
func (s *Service) IsMember(ctx context.Context, scope identity.Context, member identity.Identity) (bool, error) {
	ok, err := s.store.IsMember(ctx, scope.String(), member.String())
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "query membership", err)
	}
	return ok, nil
}
