// Package registry implements the thin provenance registries guarded by the
// delegation engine: repository claims, source snapshots, attestations, and
// backup locations. Each mutation is allowed for the owner directly or for a
// relayer holding the matching capability grant.
package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/platform/id"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/audit"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

var (
	// ErrInvalidRef indicates an empty content or repository reference.
	ErrInvalidRef = apperrors.New(apperrors.CodeRegistryInvalidRef, "a content reference is required")
	// ErrUnauthorized indicates an actor without a covering grant.
	ErrUnauthorized = apperrors.New(apperrors.CodeRegistryUnauthorized, "actor is not authorized for this owner")
	// ErrClaimTaken indicates the repository is already claimed in the context.
	ErrClaimTaken = apperrors.New(apperrors.CodeRepositoryClaimTaken, "repository already claimed")
	// ErrDigestMismatch indicates a snapshot root that is not the manifest digest.
	ErrDigestMismatch = apperrors.New(apperrors.CodeSnapshotDigestMismatch, "snapshot root does not match manifest digest")
	// ErrEmptyDigest indicates an attestation without a digest.
	ErrEmptyDigest = apperrors.New(apperrors.CodeAttestationDigestInvalid, "an attestation digest is required")
	// ErrNotFound indicates a missing registry record.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "registry record not found")
)

// DigestPrefix tags blake3 content refs.
const DigestPrefix = "blake3:"

// ManifestDigest returns the canonical content ref for a snapshot manifest.
func ManifestDigest(manifest []byte) string {
	sum := blake3.Sum256(manifest)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// Authorizer answers delegation queries. Satisfied by the delegation engine.
type Authorizer interface {
	IsAuthorized(ctx context.Context, principal, relayer identity.Identity, cap capability.Scope, scope identity.Context) (bool, error)
}

// Service runs the provenance registries.
type Service struct {
	store      storage.RegistryStore
	authorizer Authorizer
	emitter    *audit.Emitter
	clock      func() time.Time
	newID      func() (string, error)
	tracer     trace.Tracer
}

// NewService creates a registry service. The emitter may be nil.
func NewService(store storage.RegistryStore, authorizer Authorizer, emitter *audit.Emitter) *Service {
	return NewServiceWithClock(store, authorizer, emitter, time.Now, id.NewID)
}

// NewServiceWithClock creates a registry service with injected clock and id
// generation.
func NewServiceWithClock(store storage.RegistryStore, authorizer Authorizer, emitter *audit.Emitter, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:      store,
		authorizer: authorizer,
		emitter:    emitter,
		clock:      clock,
		newID:      newID,
		tracer:     otel.Tracer("anchor/registry"),
	}
}

// authorize checks that actor may exercise the capability for owner within
// the context.
func (s *Service) authorize(ctx context.Context, owner, actor identity.Identity, cap capability.Scope, scope identity.Context) error {
	if owner.Zero() || actor.Zero() {
		return apperrors.New(apperrors.CodeDelegationInvalidIdentity, "owner and actor are required")
	}
	if scope.Zero() {
		return apperrors.New(apperrors.CodeDelegationInvalidContext, "context is required")
	}
	if actor == owner {
		return nil
	}
	ok, err := s.authorizer.IsAuthorized(ctx, owner, actor, cap, scope)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// ClaimInput carries a repository claim request.
type ClaimInput struct {
	Owner   identity.Identity
	Context identity.Context
	RepoRef string
	Actor   identity.Identity
}

// ClaimRepository records ownership of a repository ref within the context.
// One claim per (context, repo ref).
func (s *Service) ClaimRepository(ctx context.Context, input ClaimInput) error {
	ctx, span := s.tracer.Start(ctx, "registry.ClaimRepository")
	defer span.End()

	if strings.TrimSpace(input.RepoRef) == "" {
		return ErrInvalidRef
	}
	if err := s.authorize(ctx, input.Owner, input.Actor, capability.Claim, input.Context); err != nil {
		return err
	}
	err := s.store.CreateRepositoryClaim(ctx, storage.RepositoryClaimRecord{
		Context:   input.Context.String(),
		RepoRef:   input.RepoRef,
		Owner:     input.Owner.String(),
		CreatedAt: s.clock().UTC(),
	})
	if errors.Is(err, storage.ErrConflict) {
		return apperrors.WithMetadata(apperrors.CodeRepositoryClaimTaken,
			"repository already claimed", map[string]string{"RepoRef": input.RepoRef})
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "create repository claim", err)
	}
	return s.emit(ctx, audit.KindRepositoryClaimed, input.Context, input.Actor, input.Owner,
		map[string]string{"repo_ref": input.RepoRef})
}

// ReleaseClaim drops a repository claim. Only the claim's owner or a CLAIM
// delegate may drop it.
func (s *Service) ReleaseClaim(ctx context.Context, scope identity.Context, repoRef string, actor identity.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.ReleaseClaim")
	defer span.End()

	claim, err := s.store.GetRepositoryClaim(ctx, scope.String(), repoRef)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "load repository claim", err)
	}
	owner, err := identity.ParseIdentity(claim.Owner)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "parse stored owner", err)
	}
	if err := s.authorize(ctx, owner, actor, capability.Claim, scope); err != nil {
		return err
	}
	if err := s.store.DeleteRepositoryClaim(ctx, scope.String(), repoRef); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete repository claim", err)
	}
	return s.emit(ctx, audit.KindRepositoryClaimDropped, scope, actor, owner,
		map[string]string{"repo_ref": repoRef})
}

// GetRepositoryClaim returns the claim for (context, repo ref).
func (s *Service) GetRepositoryClaim(ctx context.Context, scope identity.Context, repoRef string) (storage.RepositoryClaimRecord, error) {
	claim, err := s.store.GetRepositoryClaim(ctx, scope.String(), repoRef)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.RepositoryClaimRecord{}, ErrNotFound
	}
	if err != nil {
		return storage.RepositoryClaimRecord{}, apperrors.Wrap(apperrors.CodeInternal, "load repository claim", err)
	}
	return claim, nil
}

// SnapshotInput carries a snapshot anchoring request. RootRef must be the
// blake3 digest of Manifest.
type SnapshotInput struct {
	Owner    identity.Identity
	Context  identity.Context
	RepoRef  string
	RootRef  string
	Manifest []byte
	Actor    identity.Identity
}

// AnchorSnapshot records a source snapshot root for a repository ref.
func (s *Service) AnchorSnapshot(ctx context.Context, input SnapshotInput) error {
	ctx, span := s.tracer.Start(ctx, "registry.AnchorSnapshot")
	defer span.End()

	if strings.TrimSpace(input.RepoRef) == "" || strings.TrimSpace(input.RootRef) == "" {
		return ErrInvalidRef
	}
	if input.RootRef != ManifestDigest(input.Manifest) {
		return ErrDigestMismatch
	}
	if err := s.authorize(ctx, input.Owner, input.Actor, capability.Snapshot, input.Context); err != nil {
		return err
	}
	err := s.store.PutSnapshot(ctx, storage.SnapshotRecord{
		Context:   input.Context.String(),
		RepoRef:   input.RepoRef,
		RootRef:   input.RootRef,
		Owner:     input.Owner.String(),
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "store snapshot", err)
	}
	return s.emit(ctx, audit.KindSnapshotAnchored, input.Context, input.Actor, input.Owner,
		map[string]string{"repo_ref": input.RepoRef, "root_ref": input.RootRef})
}

// SnapshotExists reports whether a snapshot root is anchored for the repo.
// This is the pure query the release machine consumes.
func (s *Service) SnapshotExists(ctx context.Context, repoRef, rootRef string) (bool, error) {
	return s.store.SnapshotExists(ctx, repoRef, rootRef)
}

// AttestationInput carries an attestation record request.
type AttestationInput struct {
	Owner      identity.Identity
	Context    identity.Context
	SubjectRef string
	Digest     string
	Actor      identity.Identity
}

// RecordAttestation stores an attestation digest for a subject ref.
func (s *Service) RecordAttestation(ctx context.Context, input AttestationInput) (storage.AttestationRecord, error) {
	ctx, span := s.tracer.Start(ctx, "registry.RecordAttestation")
	defer span.End()

	if strings.TrimSpace(input.SubjectRef) == "" {
		return storage.AttestationRecord{}, ErrInvalidRef
	}
	if strings.TrimSpace(input.Digest) == "" {
		return storage.AttestationRecord{}, ErrEmptyDigest
	}
	if err := s.authorize(ctx, input.Owner, input.Actor, capability.Attest, input.Context); err != nil {
		return storage.AttestationRecord{}, err
	}
	attestationID, err := s.newID()
	if err != nil {
		return storage.AttestationRecord{}, apperrors.Wrap(apperrors.CodeInternal, "generate id", err)
	}
	record := storage.AttestationRecord{
		ID:         attestationID,
		Context:    input.Context.String(),
		Owner:      input.Owner.String(),
		SubjectRef: input.SubjectRef,
		Digest:     input.Digest,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.store.PutAttestation(ctx, record); err != nil {
		return storage.AttestationRecord{}, apperrors.Wrap(apperrors.CodeInternal, "store attestation", err)
	}
	if err := s.emit(ctx, audit.KindAttestationRecorded, input.Context, input.Actor, input.Owner,
		map[string]string{"subject_ref": input.SubjectRef, "digest": input.Digest}); err != nil {
		return storage.AttestationRecord{}, err
	}
	return record, nil
}

// ListAttestationsBySubject returns attestations recorded for a subject ref.
func (s *Service) ListAttestationsBySubject(ctx context.Context, scope identity.Context, subjectRef string) ([]storage.AttestationRecord, error) {
	records, err := s.store.ListAttestationsBySubject(ctx, scope.String(), subjectRef)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list attestations", err)
	}
	return records, nil
}

// BackupInput carries a backup location record request.
type BackupInput struct {
	Owner       identity.Identity
	Context     identity.Context
	RepoRef     string
	LocationRef string
	Actor       identity.Identity
}

// RecordBackup stores an off-site backup location for a repository ref.
func (s *Service) RecordBackup(ctx context.Context, input BackupInput) (storage.BackupRecord, error) {
	ctx, span := s.tracer.Start(ctx, "registry.RecordBackup")
	defer span.End()

	if strings.TrimSpace(input.RepoRef) == "" || strings.TrimSpace(input.LocationRef) == "" {
		return storage.BackupRecord{}, ErrInvalidRef
	}
	if err := s.authorize(ctx, input.Owner, input.Actor, capability.Backup, input.Context); err != nil {
		return storage.BackupRecord{}, err
	}
	backupID, err := s.newID()
	if err != nil {
		return storage.BackupRecord{}, apperrors.Wrap(apperrors.CodeInternal, "generate id", err)
	}
	record := storage.BackupRecord{
		ID:          backupID,
		Context:     input.Context.String(),
		Owner:       input.Owner.String(),
		RepoRef:     input.RepoRef,
		LocationRef: input.LocationRef,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.store.PutBackup(ctx, record); err != nil {
		return storage.BackupRecord{}, apperrors.Wrap(apperrors.CodeInternal, "store backup", err)
	}
	if err := s.emit(ctx, audit.KindBackupRecorded, input.Context, input.Actor, input.Owner,
		map[string]string{"repo_ref": input.RepoRef, "location_ref": input.LocationRef}); err != nil {
		return storage.BackupRecord{}, err
	}
	return record, nil
}

// ListBackupsByRepo returns backup locations recorded for a repository ref.
func (s *Service) ListBackupsByRepo(ctx context.Context, scope identity.Context, repoRef string) ([]storage.BackupRecord, error) {
	records, err := s.store.ListBackupsByRepo(ctx, scope.String(), repoRef)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list backups", err)
	}
	return records, nil
}

func (s *Service) emit(ctx context.Context, kind string, scope identity.Context, actor, principal identity.Identity, details map[string]string) error {
	err := s.emitter.Emit(ctx, audit.Fact{
		Kind:      kind,
		Context:   scope.String(),
		Actor:     actor.String(),
		Principal: principal.String(),
		Details:   details,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
	}
	return nil
}
