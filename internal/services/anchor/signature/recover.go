package signature

import (
	"crypto/ed25519"
	"errors"

	"golang.org/x/crypto/sha3"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
)

// ErrMalformedSignature indicates an envelope that cannot be decoded.
var ErrMalformedSignature = errors.New("malformed signature envelope")

// ErrVerificationFailed indicates a well-formed envelope whose signature
// does not verify against its embedded public key.
var ErrVerificationFailed = errors.New("signature verification failed")

// Recoverer recovers the signer identity from a canonical payload and a
// signature envelope. It is the delegation engine's trust boundary: the
// production implementation wraps the host ledger's primitive, and tests may
// inject a stub.
type Recoverer interface {
	Recover(payload []byte, sig []byte) (identity.Identity, error)
}

// envelopeSize is the Ed25519 envelope layout: publicKey(32) ‖ signature(64).
const envelopeSize = ed25519.PublicKeySize + ed25519.SignatureSize

// Ed25519Recoverer verifies Ed25519 envelope signatures and derives the
// signer identity from the embedded public key.
type Ed25519Recoverer struct{}

// Recover implements Recoverer.
func (Ed25519Recoverer) Recover(payload []byte, sig []byte) (identity.Identity, error) {
	if len(sig) != envelopeSize {
		return identity.Identity{}, ErrMalformedSignature
	}
	pub := ed25519.PublicKey(sig[:ed25519.PublicKeySize])
	if !ed25519.Verify(pub, payload, sig[ed25519.PublicKeySize:]) {
		return identity.Identity{}, ErrVerificationFailed
	}
	return IdentityFromPublicKey(pub), nil
}

// IdentityFromPublicKey derives the 20-byte address for an Ed25519 public
// key: the trailing 20 bytes of SHA3-256(publicKey).
func IdentityFromPublicKey(pub ed25519.PublicKey) identity.Identity {
	digest := sha3.Sum256(pub)
	var id identity.Identity
	copy(id[:], digest[len(digest)-len(id):])
	return id
}

// Envelope signs a canonical payload and returns the wire envelope accepted
// by Ed25519Recoverer. Used by signer tooling and tests.
func Envelope(priv ed25519.PrivateKey, payload []byte) []byte {
	sig := ed25519.Sign(priv, payload)
	envelope := make([]byte, 0, envelopeSize)
	envelope = append(envelope, priv.Public().(ed25519.PublicKey)...)
	envelope = append(envelope, sig...)
	return envelope
}
