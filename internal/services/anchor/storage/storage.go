// Package storage defines the persistence contracts for the anchor service.
// Identities and contexts are stored in their canonical 0x-hex string form;
// grant and signature times are unix seconds to match the wire contract.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a uniqueness or state conflict.
var ErrConflict = errors.New("record conflict")

// GrantRecord persists one capability grant, keyed by
// (principal, relayer, context). A zero Expiry marks a voided grant.
type GrantRecord struct {
	Principal string
	Relayer   string
	Context   string
	ScopeMask uint64
	Expiry    int64
	UpdatedAt time.Time
}

// DelegationStore persists grants and per-principal nonce counters.
// Mutations that consume a nonce must advance it in the same transaction as
// the grant write, preserving the single-writer atomicity contract.
type DelegationStore interface {
	GetGrant(ctx context.Context, principal, relayer, scope string) (GrantRecord, error)
	// GetNonce returns the principal's next expected nonce; missing
	// principals start at zero.
	GetNonce(ctx context.Context, principal string) (uint64, error)
	// ApplyGrant stores the grant and sets the principal's nonce counter
	// atomically.
	ApplyGrant(ctx context.Context, record GrantRecord, nextNonce uint64) error
	// VoidGrant zeroes the grant's scope and expiry. It succeeds when no
	// grant exists. When nextNonce is non-nil the principal's counter is
	// advanced in the same transaction.
	VoidGrant(ctx context.Context, principal, relayer, scope string, updatedAt time.Time, nextNonce *uint64) error
}

// WorkspaceRecord persists workspace metadata for one context.
type WorkspaceRecord struct {
	Context            string
	Name               string
	GovernanceExecutor string
	CreatedAt          time.Time
}

// WorkspaceStore persists workspaces and their member sets.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, record WorkspaceRecord) error
	GetWorkspace(ctx context.Context, scope string) (WorkspaceRecord, error)
	AddMember(ctx context.Context, scope, member string, addedAt time.Time) error
	RemoveMember(ctx context.Context, scope, member string) error
	IsMember(ctx context.Context, scope, member string) (bool, error)
}

// SnapshotRef pairs a repository reference with an anchored snapshot root.
type SnapshotRef struct {
	RepoRef string `json:"repo_ref"`
	RootRef string `json:"root_ref"`
}

// ReleaseRecord persists one release and its governance state.
type ReleaseRecord struct {
	ID                  string
	ProjectID           string
	Context             string
	ManifestRef         string
	Name                string
	Author              string
	GovernanceAuthority string
	SnapshotRefs        []SnapshotRef
	Status              string
	Revoked             bool
	SupersededBy        string
	CreatedAt           time.Time
	StatusTimestamp     *time.Time
	StatusAuthor        string
}

// ReleaseStore persists release records. Create fails with ErrConflict when
// the id is taken; the targeted updates below touch only the governed fields.
type ReleaseStore interface {
	CreateRelease(ctx context.Context, record ReleaseRecord) error
	GetRelease(ctx context.Context, id string) (ReleaseRecord, error)
	SetReleaseStatus(ctx context.Context, id, status, author string, at time.Time) error
	MarkReleaseRevoked(ctx context.Context, id string, at time.Time) error
	SetReleaseSuperseded(ctx context.Context, id, successorID string, at time.Time) error
	ListReleasesByProject(ctx context.Context, projectID string) ([]ReleaseRecord, error)
}

// RepositoryClaimRecord persists a repository ownership claim, unique per
// (context, repo ref).
type RepositoryClaimRecord struct {
	Context   string
	RepoRef   string
	Owner     string
	CreatedAt time.Time
}

// SnapshotRecord persists an anchored source snapshot.
type SnapshotRecord struct {
	Context   string
	RepoRef   string
	RootRef   string
	Owner     string
	CreatedAt time.Time
}

// AttestationRecord persists an attestation digest for a subject.
type AttestationRecord struct {
	ID         string
	Context    string
	Owner      string
	SubjectRef string
	Digest     string
	CreatedAt  time.Time
}

// BackupRecord persists an off-site backup location for a repository.
type BackupRecord struct {
	ID          string
	Context     string
	Owner       string
	RepoRef     string
	LocationRef string
	CreatedAt   time.Time
}

// RegistryStore persists the thin provenance registries guarded by the
// delegation engine.
type RegistryStore interface {
	CreateRepositoryClaim(ctx context.Context, record RepositoryClaimRecord) error
	GetRepositoryClaim(ctx context.Context, scope, repoRef string) (RepositoryClaimRecord, error)
	DeleteRepositoryClaim(ctx context.Context, scope, repoRef string) error

	PutSnapshot(ctx context.Context, record SnapshotRecord) error
	SnapshotExists(ctx context.Context, repoRef, rootRef string) (bool, error)

	PutAttestation(ctx context.Context, record AttestationRecord) error
	ListAttestationsBySubject(ctx context.Context, scope, subjectRef string) ([]AttestationRecord, error)

	PutBackup(ctx context.Context, record BackupRecord) error
	ListBackupsByRepo(ctx context.Context, scope, repoRef string) ([]BackupRecord, error)
}

// AuditEvent is one append-only provenance fact. Seq is assigned by the
// store and increases monotonically.
type AuditEvent struct {
	Seq       int64
	Kind      string
	Context   string
	Actor     string
	Principal string
	Payload   string
	Timestamp time.Time
}

// AuditEventQuery selects audit events. Clause and Params hold an optional
// SQL condition produced by the filter package.
type AuditEventQuery struct {
	Clause    string
	Params    []any
	PageSize  int
	PageToken string
}

// AuditEventPage is a paged set of audit events.
type AuditEventPage struct {
	Events        []AuditEvent
	NextPageToken string
}

// AuditEventStore appends and lists provenance facts.
type AuditEventStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
	ListAuditEvents(ctx context.Context, query AuditEventQuery) (AuditEventPage, error)
}

// Store aggregates every persistence contract the anchor service needs.
type Store interface {
	DelegationStore
	WorkspaceStore
	ReleaseStore
	RegistryStore
	AuditEventStore
	Close() error
}
