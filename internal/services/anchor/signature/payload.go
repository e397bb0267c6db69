// Package signature defines the canonical signed-request payloads and the
// signer-recovery trust boundary for the delegation engine.
package signature

import (
	"encoding/binary"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
)

// Domain tags prevent a payload signed for one operation kind from being
// replayed as another. They are part of the wire contract and must be
// reproduced bit-for-bit by external signers.
const (
	grantDomainTag  = "codequill/delegation/grant/v1"
	revokeDomainTag = "codequill/delegation/revoke/v1"
)

// GrantPayload is the canonical signing payload for grant registration.
type GrantPayload struct {
	Principal identity.Identity
	Relayer   identity.Identity
	Context   identity.Context
	ScopeMask capability.Scope
	Nonce     uint64
	Expiry    int64 // unix seconds
	Deadline  int64 // unix seconds
}

// Encode renders the payload in its canonical binary form: the ASCII domain
// tag followed by fixed-width big-endian fields, no separators.
func (p GrantPayload) Encode() []byte {
	buf := make([]byte, 0, len(grantDomainTag)+20+20+32+8*4)
	buf = append(buf, grantDomainTag...)
	buf = append(buf, p.Principal[:]...)
	buf = append(buf, p.Relayer[:]...)
	buf = append(buf, p.Context[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.ScopeMask))
	buf = binary.BigEndian.AppendUint64(buf, p.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Expiry))
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Deadline))
	return buf
}

// RevokePayload is the canonical signing payload for relayed revocation.
type RevokePayload struct {
	Principal identity.Identity
	Relayer   identity.Identity
	Context   identity.Context
	Nonce     uint64
	Deadline  int64 // unix seconds
}

// Encode renders the payload in its canonical binary form.
func (p RevokePayload) Encode() []byte {
	buf := make([]byte, 0, len(revokeDomainTag)+20+20+32+8*2)
	buf = append(buf, revokeDomainTag...)
	buf = append(buf, p.Principal[:]...)
	buf = append(buf, p.Relayer[:]...)
	buf = append(buf, p.Context[:]...)
	buf = binary.BigEndian.AppendUint64(buf, p.Nonce)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Deadline))
	return buf
}
