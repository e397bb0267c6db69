// Package release implements the release governance state machine: releases
// are anchored PENDING, moved once to ACCEPTED or REJECTED, and may be
// retired through the orthogonal revoked flag and a one-shot supersession
// pointer.
package release

import (
	"time"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// Governance statuses. PENDING is the only non-terminal status.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

var (
	// ErrEmptyID indicates a release anchored without an id.
	ErrEmptyID = apperrors.New(apperrors.CodeReleaseEmptyID, "release id is required")
	// ErrEmptyManifest indicates a release anchored without a manifest ref.
	ErrEmptyManifest = apperrors.New(apperrors.CodeReleaseEmptyManifest, "manifest ref is required")
	// ErrNoSnapshots indicates a release anchored with no snapshot refs.
	ErrNoSnapshots = apperrors.New(apperrors.CodeReleaseNoSnapshots, "at least one snapshot ref is required")
	// ErrIDTaken indicates the release id is already anchored.
	ErrIDTaken = apperrors.New(apperrors.CodeReleaseIDTaken, "release id already anchored")
	// ErrInvalidStatus indicates a governance status outside the machine.
	ErrInvalidStatus = apperrors.New(apperrors.CodeReleaseInvalidStatus, "governance status must be ACCEPTED or REJECTED")
	// ErrStatusFinal indicates a governance decision on a decided release.
	ErrStatusFinal = apperrors.New(apperrors.CodeReleaseStatusFinal, "release governance status is final")
	// ErrRevoked indicates a governance decision on a revoked release.
	ErrRevoked = apperrors.New(apperrors.CodeReleaseRevoked, "release is revoked")
	// ErrNotRevoked indicates supersession of a release that is still live.
	ErrNotRevoked = apperrors.New(apperrors.CodeReleaseNotRevoked, "release must be revoked before supersession")
	// ErrAlreadySuperseded indicates a second supersession attempt.
	ErrAlreadySuperseded = apperrors.New(apperrors.CodeReleaseAlreadySuperseded, "release already superseded")
	// ErrProjectMismatch indicates supersession across projects.
	ErrProjectMismatch = apperrors.New(apperrors.CodeReleaseProjectMismatch, "releases belong to different projects")
	// ErrAuthorMismatch indicates a supplied author that is not the stored one.
	ErrAuthorMismatch = apperrors.New(apperrors.CodeReleaseAuthorMismatch, "author does not match the anchored release")
	// ErrUnauthorized indicates an actor without standing for the operation.
	ErrUnauthorized = apperrors.New(apperrors.CodeReleaseUnauthorized, "actor lacks standing for this release")
	// ErrNotAMember indicates an author or authority outside the workspace.
	ErrNotAMember = apperrors.New(apperrors.CodeWorkspaceNotAMember, "identity is not a workspace member")
	// ErrSnapshotMissing indicates a snapshot ref with no anchored snapshot.
	ErrSnapshotMissing = apperrors.New(apperrors.CodeSnapshotMissing, "snapshot ref does not resolve")
	// ErrNotFound indicates a missing release.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "release not found")
)

// ValidStatus reports whether status is a terminal governance status.
func ValidStatus(status string) bool {
	return status == StatusAccepted || status == StatusRejected
}

// Release is one anchored release and its governance state.
type Release struct {
	ID                  string
	ProjectID           string
	Context             identity.Context
	ManifestRef         string
	Name                string
	Author              identity.Identity
	GovernanceAuthority identity.Identity
	SnapshotRefs        []storage.SnapshotRef
	Status              string
	Revoked             bool
	SupersededBy        string
	CreatedAt           time.Time
	StatusTimestamp     *time.Time
	StatusAuthor        identity.Identity
}

// Decided reports whether governance has reached a terminal status.
func (r Release) Decided() bool {
	return r.Status != StatusPending
}

func fromRecord(record storage.ReleaseRecord) (Release, error) {
	scope, err := identity.ParseContext(record.Context)
	if err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored context", err)
	}
	author, err := identity.ParseIdentity(record.Author)
	if err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored author", err)
	}
	authority, err := identity.ParseIdentity(record.GovernanceAuthority)
	if err != nil {
		return Release{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored authority", err)
	}
	release := Release{
		ID:                  record.ID,
		ProjectID:           record.ProjectID,
		Context:             scope,
		ManifestRef:         record.ManifestRef,
		Name:                record.Name,
		Author:              author,
		GovernanceAuthority: authority,
		SnapshotRefs:        record.SnapshotRefs,
		Status:              record.Status,
		Revoked:             record.Revoked,
		SupersededBy:        record.SupersededBy,
		CreatedAt:           record.CreatedAt,
		StatusTimestamp:     record.StatusTimestamp,
	}
	if record.StatusAuthor != "" {
		statusAuthor, err := identity.ParseIdentity(record.StatusAuthor)
		if err != nil {
			return Release{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored status author", err)
		}
		release.StatusAuthor = statusAuthor
	}
	return release, nil
}
