// Package errors provides structured error handling with stable
// machine-readable codes for relayer and client software.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Delegation errors
	CodeDelegationInvalidIdentity  Code = "DELEGATION_INVALID_IDENTITY"
	CodeDelegationInvalidContext   Code = "DELEGATION_INVALID_CONTEXT"
	CodeDelegationBadExpiry        Code = "DELEGATION_BAD_EXPIRY"
	CodeDelegationSignatureInvalid Code = "DELEGATION_SIGNATURE_INVALID"
	CodeDelegationSignatureExpired Code = "DELEGATION_SIGNATURE_EXPIRED"
	CodeDelegationUnauthorized     Code = "DELEGATION_UNAUTHORIZED"

	// Workspace errors
	CodeWorkspaceEmptyName  Code = "WORKSPACE_EMPTY_NAME"
	CodeWorkspaceExists     Code = "WORKSPACE_EXISTS"
	CodeWorkspaceNotAMember Code = "WORKSPACE_NOT_A_MEMBER"

	// Release errors
	CodeReleaseEmptyID           Code = "RELEASE_EMPTY_ID"
	CodeReleaseEmptyManifest     Code = "RELEASE_EMPTY_MANIFEST"
	CodeReleaseNoSnapshots       Code = "RELEASE_NO_SNAPSHOTS"
	CodeReleaseIDTaken           Code = "RELEASE_ID_TAKEN"
	CodeReleaseInvalidStatus     Code = "RELEASE_INVALID_STATUS"
	CodeReleaseStatusFinal       Code = "RELEASE_STATUS_FINAL"
	CodeReleaseRevoked           Code = "RELEASE_REVOKED"
	CodeReleaseNotRevoked        Code = "RELEASE_NOT_REVOKED"
	CodeReleaseAlreadySuperseded Code = "RELEASE_ALREADY_SUPERSEDED"
	CodeReleaseProjectMismatch   Code = "RELEASE_PROJECT_MISMATCH"
	CodeReleaseAuthorMismatch    Code = "RELEASE_AUTHOR_MISMATCH"
	CodeReleaseUnauthorized      Code = "RELEASE_UNAUTHORIZED"

	// Registry errors
	CodeRegistryInvalidRef       Code = "REGISTRY_INVALID_REF"
	CodeRegistryUnauthorized     Code = "REGISTRY_UNAUTHORIZED"
	CodeRepositoryClaimTaken     Code = "REPOSITORY_CLAIM_TAKEN"
	CodeSnapshotMissing          Code = "SNAPSHOT_MISSING"
	CodeSnapshotDigestMismatch   Code = "SNAPSHOT_DIGEST_MISMATCH"
	CodeAttestationDigestInvalid Code = "ATTESTATION_DIGEST_INVALID"

	// Actor token errors
	CodeActorTokenInvalid  Code = "ACTOR_TOKEN_INVALID"
	CodeActorTokenExpired  Code = "ACTOR_TOKEN_EXPIRED"
	CodeActorTokenMismatch Code = "ACTOR_TOKEN_MISMATCH"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeDelegationInvalidIdentity,
		CodeDelegationInvalidContext,
		CodeDelegationBadExpiry,
		CodeWorkspaceEmptyName,
		CodeReleaseEmptyID,
		CodeReleaseEmptyManifest,
		CodeReleaseNoSnapshots,
		CodeReleaseInvalidStatus,
		CodeRegistryInvalidRef,
		CodeAttestationDigestInvalid:
		return codes.InvalidArgument

	// Unauthenticated - a presented credential failed verification
	case CodeDelegationSignatureInvalid,
		CodeActorTokenInvalid,
		CodeActorTokenExpired,
		CodeActorTokenMismatch:
		return codes.Unauthenticated

	// DeadlineExceeded - the signed request missed its deadline
	case CodeDelegationSignatureExpired:
		return codes.DeadlineExceeded

	// PermissionDenied - caller lacks standing for the operation
	case CodeDelegationUnauthorized,
		CodeReleaseUnauthorized,
		CodeRegistryUnauthorized:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow the operation
	case CodeWorkspaceExists,
		CodeWorkspaceNotAMember,
		CodeReleaseIDTaken,
		CodeReleaseStatusFinal,
		CodeReleaseRevoked,
		CodeReleaseNotRevoked,
		CodeReleaseAlreadySuperseded,
		CodeReleaseProjectMismatch,
		CodeReleaseAuthorMismatch,
		CodeRepositoryClaimTaken,
		CodeSnapshotMissing,
		CodeSnapshotDigestMismatch:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
