package release

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/audit"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// Authorizer answers delegation queries. Satisfied by the delegation engine.
type Authorizer interface {
	IsAuthorized(ctx context.Context, principal, relayer identity.Identity, cap capability.Scope, scope identity.Context) (bool, error)
}

// Membership answers workspace membership queries.
type Membership interface {
	IsMember(ctx context.Context, scope identity.Context, member identity.Identity) (bool, error)
	Get(ctx context.Context, scope identity.Context) (WorkspaceView, error)
}

// WorkspaceView is the slice of workspace state governance consults.
type WorkspaceView struct {
	GovernanceExecutor identity.Identity
}

// SnapshotIndex resolves anchored snapshots. Satisfied by the registry store.
type SnapshotIndex interface {
	SnapshotExists(ctx context.Context, repoRef, rootRef string) (bool, error)
}

// Service runs the release governance state machine.
type Service struct {
	releases   storage.ReleaseStore
	snapshots  SnapshotIndex
	membership Membership
	authorizer Authorizer
	emitter    *audit.Emitter
	clock      func() time.Time
	tracer     trace.Tracer
}

// NewService creates a release service. The emitter may be nil.
func NewService(releases storage.ReleaseStore, snapshots SnapshotIndex, membership Membership, authorizer Authorizer, emitter *audit.Emitter) *Service {
	return NewServiceWithClock(releases, snapshots, membership, authorizer, emitter, time.Now)
}

// NewServiceWithClock creates a release service with an injected clock.
func NewServiceWithClock(releases storage.ReleaseStore, snapshots SnapshotIndex, membership Membership, authorizer Authorizer, emitter *audit.Emitter, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		releases:   releases,
		snapshots:  snapshots,
		membership: membership,
		authorizer: authorizer,
		emitter:    emitter,
		clock:      clock,
		tracer:     otel.Tracer("anchor/release"),
	}
}

// actsFor reports whether actor may act as principal within the context:
// either directly or through a live RELEASE grant.
func (s *Service) actsFor(ctx context.Context, principal, actor identity.Identity, scope identity.Context) (bool, error) {
	if actor == principal {
		return true, nil
	}
	return s.authorizer.IsAuthorized(ctx, principal, actor, capability.Release, scope)
}

// AnchorInput carries a release anchoring request. Actor is the caller;
// Author is the principal the release is anchored for.
type AnchorInput struct {
	ID                  string
	ProjectID           string
	Context             identity.Context
	ManifestRef         string
	Name                string
	Author              identity.Identity
	GovernanceAuthority identity.Identity
	SnapshotRefs        []storage.SnapshotRef
	Actor               identity.Identity
}

// Anchor creates a release in PENDING. Every snapshot ref must already be
// anchored and both the author and the governance authority must belong to
// the context's workspace.
func (s *Service) Anchor(ctx context.Context, input AnchorInput) (Release, error) {
	ctx, span := s.tracer.Start(ctx, "release.Anchor")
	defer span.End()

	if strings.TrimSpace(input.ID) == "" {
		return Release{}, ErrEmptyID
	}
	if strings.TrimSpace(input.ManifestRef) == "" {
		return Release{}, ErrEmptyManifest
	}
	if len(input.SnapshotRefs) == 0 {
		return Release{}, ErrNoSnapshots
	}
	if input.Context.Zero() {
		return Release{}, apperrors.New(apperrors.CodeDelegationInvalidContext, "context is required")
	}
	if input.Author.Zero() || input.GovernanceAuthority.Zero() {
		return Release{}, apperrors.New(apperrors.CodeDelegationInvalidIdentity, "author and governance authority are required")
	}

	ok, err := s.actsFor(ctx, input.Author, input.Actor, input.Context)
	if err != nil {
		return Release{}, err
	}
	if !ok {
		return Release{}, ErrUnauthorized
	}

	for _, who := range []identity.Identity{input.Author, input.GovernanceAuthority} {
		member, err := s.membership.IsMember(ctx, input.Context, who)
		if err != nil {
			return Release{}, err
		}
		if !member {
			return Release{}, apperrors.WithMetadata(apperrors.CodeWorkspaceNotAMember,
				"identity is not a workspace member", map[string]string{"Identity": who.String()})
		}
	}

	for _, ref := range input.SnapshotRefs {
		exists, err := s.snapshots.SnapshotExists(ctx, ref.RepoRef, ref.RootRef)
		if err != nil {
			return Release{}, apperrors.Wrap(apperrors.CodeInternal, "resolve snapshot ref", err)
		}
		if !exists {
			return Release{}, apperrors.WithMetadata(apperrors.CodeSnapshotMissing,
				"snapshot ref does not resolve", map[string]string{"RootRef": ref.RootRef})
		}
	}

	now := s.clock().UTC()
	record := storage.ReleaseRecord{
		ID:                  input.ID,
		ProjectID:           input.ProjectID,
		Context:             input.Context.String(),
		ManifestRef:         input.ManifestRef,
		Name:                input.Name,
		Author:              input.Author.String(),
		GovernanceAuthority: input.GovernanceAuthority.String(),
		SnapshotRefs:        input.SnapshotRefs,
		Status:              StatusPending,
		CreatedAt:           now,
	}
	if err := s.releases.CreateRelease(ctx, record); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Release{}, apperrors.WithMetadata(apperrors.CodeReleaseIDTaken,
				"release id already anchored", map[string]string{"ReleaseID": input.ID})
		}
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "create release", err)
	}

	if err := s.emitter.Emit(ctx, audit.Fact{
		Kind:      audit.KindReleaseAnchored,
		Context:   input.Context.String(),
		Actor:     input.Actor.String(),
		Principal: input.Author.String(),
		Details: map[string]string{
			"release_id": input.ID,
			"project_id": input.ProjectID,
			"manifest":   input.ManifestRef,
		},
	}); err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
	}
	return fromRecord(record)
}

// Get returns a release by id.
func (s *Service) Get(ctx context.Context, id string) (Release, error) {
	record, err := s.releases.GetRelease(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Release{}, ErrNotFound
	}
	if err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "load release", err)
	}
	return fromRecord(record)
}

// ListByProject returns every release anchored for a project.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]Release, error) {
	records, err := s.releases.ListReleasesByProject(ctx, projectID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list releases", err)
	}
	releases := make([]Release, 0, len(records))
	for _, record := range records {
		release, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		releases = append(releases, release)
	}
	return releases, nil
}

// SetStatus moves a PENDING release to ACCEPTED or REJECTED. Standing is held
// by the release's governance authority, the workspace's governance executor,
// or a RELEASE delegate of the authority. The transition is terminal.
func (s *Service) SetStatus(ctx context.Context, id, status string, actor identity.Identity) (Release, error) {
	ctx, span := s.tracer.Start(ctx, "release.SetStatus")
	defer span.End()

	if !ValidStatus(status) {
		return Release{}, ErrInvalidStatus
	}
	release, err := s.Get(ctx, id)
	if err != nil {
		return Release{}, err
	}

	ok, err := s.actsFor(ctx, release.GovernanceAuthority, actor, release.Context)
	if err != nil {
		return Release{}, err
	}
	if !ok {
		workspace, err := s.membership.Get(ctx, release.Context)
		if err != nil {
			return Release{}, err
		}
		ok = actor == workspace.GovernanceExecutor
	}
	if !ok {
		return Release{}, ErrUnauthorized
	}

	if release.Revoked {
		return Release{}, apperrors.WithMetadata(apperrors.CodeReleaseRevoked,
			"release is revoked", map[string]string{"ReleaseID": id})
	}
	if release.Decided() {
		return Release{}, apperrors.WithMetadata(apperrors.CodeReleaseStatusFinal,
			"release governance status is final", map[string]string{"ReleaseID": id})
	}

	now := s.clock().UTC()
	if err := s.releases.SetReleaseStatus(ctx, id, status, actor.String(), now); err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "set release status", err)
	}

	if err := s.emitter.Emit(ctx, audit.Fact{
		Kind:      audit.KindReleaseStatusSet,
		Context:   release.Context.String(),
		Actor:     actor.String(),
		Principal: release.GovernanceAuthority.String(),
		Details:   map[string]string{"release_id": id, "status": status},
	}); err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
	}

	release.Status = status
	release.StatusTimestamp = &now
	release.StatusAuthor = actor
	return release, nil
}

// Revoke sets the release's revoked flag. There is no status precondition: a
// release may be retired after acceptance. Revoking twice is a no-op.
func (s *Service) Revoke(ctx context.Context, id string, author, actor identity.Identity) (Release, error) {
	ctx, span := s.tracer.Start(ctx, "release.Revoke")
	defer span.End()

	release, err := s.Get(ctx, id)
	if err != nil {
		return Release{}, err
	}
	if author != release.Author {
		return Release{}, ErrAuthorMismatch
	}
	ok, err := s.actsFor(ctx, release.Author, actor, release.Context)
	if err != nil {
		return Release{}, err
	}
	if !ok {
		return Release{}, ErrUnauthorized
	}

	if !release.Revoked {
		if err := s.releases.MarkReleaseRevoked(ctx, id, s.clock().UTC()); err != nil {
			return Release{}, apperrors.Wrap(apperrors.CodeInternal, "mark release revoked", err)
		}
		if err := s.emitter.Emit(ctx, audit.Fact{
			Kind:      audit.KindReleaseRevoked,
			Context:   release.Context.String(),
			Actor:     actor.String(),
			Principal: release.Author.String(),
			Details:   map[string]string{"release_id": id},
		}); err != nil {
			return Release{}, apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
		}
	}
	release.Revoked = true
	return release, nil
}

// Supersede points a revoked release at its successor. The pointer is set at
// most once and only within the same project, building forward-only chains.
func (s *Service) Supersede(ctx context.Context, oldID, newID string, author, actor identity.Identity) (Release, error) {
	ctx, span := s.tracer.Start(ctx, "release.Supersede")
	defer span.End()

	old, err := s.Get(ctx, oldID)
	if err != nil {
		return Release{}, err
	}
	successor, err := s.Get(ctx, newID)
	if err != nil {
		return Release{}, err
	}

	if author != old.Author {
		return Release{}, ErrAuthorMismatch
	}
	ok, err := s.actsFor(ctx, old.Author, actor, old.Context)
	if err != nil {
		return Release{}, err
	}
	if !ok {
		return Release{}, ErrUnauthorized
	}

	if !old.Revoked {
		return Release{}, apperrors.WithMetadata(apperrors.CodeReleaseNotRevoked,
			"release must be revoked before supersession", map[string]string{"ReleaseID": oldID})
	}
	if old.SupersededBy != "" {
		return Release{}, apperrors.WithMetadata(apperrors.CodeReleaseAlreadySuperseded,
			"release already superseded", map[string]string{"ReleaseID": oldID})
	}
	if successor.ProjectID != old.ProjectID {
		return Release{}, ErrProjectMismatch
	}

	if err := s.releases.SetReleaseSuperseded(ctx, oldID, newID, s.clock().UTC()); err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "set release superseded", err)
	}

	if err := s.emitter.Emit(ctx, audit.Fact{
		Kind:      audit.KindReleaseSuperseded,
		Context:   old.Context.String(),
		Actor:     actor.String(),
		Principal: old.Author.String(),
		Details:   map[string]string{"release_id": oldID, "superseded_by": newID},
	}); err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
	}

	old.SupersededBy = newID
	return old, nil
}
