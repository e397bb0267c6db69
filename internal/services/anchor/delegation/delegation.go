// Package delegation owns the capability-grant ledger: signed grant
// registration, revocation, and the authorization query every provenance
// registry consults before accepting a relayed mutation.
package delegation

import (
	"time"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
)

var (
	// ErrInvalidIdentity indicates a zero principal or relayer.
	ErrInvalidIdentity = apperrors.New(apperrors.CodeDelegationInvalidIdentity, "principal and relayer are required")
	// ErrInvalidContext indicates a zero context.
	ErrInvalidContext = apperrors.New(apperrors.CodeDelegationInvalidContext, "context is required")
	// ErrBadExpiry indicates a grant expiry at or before the current time.
	ErrBadExpiry = apperrors.New(apperrors.CodeDelegationBadExpiry, "grant expiry must be in the future")
	// ErrSignatureExpired indicates a signed request past its deadline.
	ErrSignatureExpired = apperrors.New(apperrors.CodeDelegationSignatureExpired, "signed request missed its deadline")
	// ErrSignatureInvalid indicates a signer that is not the principal. The
	// same code covers replayed signatures: once the nonce has moved on the
	// reconstructed payload no longer matches what was signed.
	ErrSignatureInvalid = apperrors.New(apperrors.CodeDelegationSignatureInvalid, "signature does not match principal")
)

// Grant is one capability delegation from a principal to a relayer within a
// context. Expiry is unix seconds; zero means the grant is voided or absent.
type Grant struct {
	Principal identity.Identity
	Relayer   identity.Identity
	Context   identity.Context
	ScopeMask capability.Scope
	Expiry    int64
	UpdatedAt time.Time
}

// Live reports whether the grant authorizes anything at the given time.
func (g Grant) Live(now time.Time) bool {
	return g.Expiry != 0 && now.Unix() < g.Expiry
}

// RegisterGrantInput carries a signed grant registration request.
type RegisterGrantInput struct {
	Principal identity.Identity
	Relayer   identity.Identity
	Context   identity.Context
	ScopeMask capability.Scope
	Expiry    int64 // unix seconds
	Deadline  int64 // unix seconds
	Signature []byte
}

// RevokeWithSigInput carries a signed, relayer-submittable revocation.
type RevokeWithSigInput struct {
	Principal identity.Identity
	Relayer   identity.Identity
	Context   identity.Context
	Deadline  int64 // unix seconds
	Signature []byte
}
