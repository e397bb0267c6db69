package delegation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/signature"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

type fakeDelegationStore struct {
	grants map[string]storage.GrantRecord
	nonces map[string]uint64
}

func newFakeDelegationStore() *fakeDelegationStore {
	return &fakeDelegationStore{
		grants: map[string]storage.GrantRecord{},
		nonces: map[string]uint64{},
	}
}

func grantKey(principal, relayer, scope string) string {
	return principal + "|" + relayer + "|" + scope
}

func (s *fakeDelegationStore) GetGrant(_ context.Context, principal, relayer, scope string) (storage.GrantRecord, error) {
	record, ok := s.grants[grantKey(principal, relayer, scope)]
	if !ok {
		return storage.GrantRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeDelegationStore) GetNonce(_ context.Context, principal string) (uint64, error) {
	return s.nonces[principal], nil
}

func (s *fakeDelegationStore) ApplyGrant(_ context.Context, record storage.GrantRecord, nextNonce uint64) error {
	s.grants[grantKey(record.Principal, record.Relayer, record.Context)] = record
	s.nonces[record.Principal] = nextNonce
	return nil
}

func (s *fakeDelegationStore) VoidGrant(_ context.Context, principal, relayer, scope string, updatedAt time.Time, nextNonce *uint64) error {
	key := grantKey(principal, relayer, scope)
	if record, ok := s.grants[key]; ok {
		record.ScopeMask = 0
		record.Expiry = 0
		record.UpdatedAt = updatedAt
		s.grants[key] = record
	}
	if nextNonce != nil {
		s.nonces[principal] = *nextNonce
	}
	return nil
}

type signer struct {
	priv ed25519.PrivateKey
	id   identity.Identity
}

func newSigner(t *testing.T) signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return signer{priv: priv, id: signature.IdentityFromPublicKey(pub)}
}

func (s signer) signGrant(p signature.GrantPayload) []byte {
	return signature.Envelope(s.priv, p.Encode())
}

func (s signer) signRevoke(p signature.RevokePayload) []byte {
	return signature.Envelope(s.priv, p.Encode())
}

func fillIdentity(fill byte) identity.Identity {
	var id identity.Identity
	for i := range id {
		id[i] = fill
	}
	return id
}

func fillContext(fill byte) identity.Context {
	var c identity.Context
	for i := range c {
		c[i] = fill
	}
	return c
}

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *fakeDelegationStore) {
	t.Helper()
	store := newFakeDelegationStore()
	engine := NewEngineWithClock(store, signature.Ed25519Recoverer{}, nil, func() time.Time { return testNow })
	return engine, store
}

func registerGrant(t *testing.T, engine *Engine, principal signer, relayer identity.Identity, scope identity.Context, mask capability.Scope, nonce uint64) {
	t.Helper()
	expiry := testNow.Add(time.Hour).Unix()
	deadline := testNow.Add(time.Minute).Unix()
	sig := principal.signGrant(signature.GrantPayload{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: mask,
		Nonce:     nonce,
		Expiry:    expiry,
		Deadline:  deadline,
	})
	_, err := engine.RegisterGrant(context.Background(), RegisterGrantInput{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: mask,
		Expiry:    expiry,
		Deadline:  deadline,
		Signature: sig,
	})
	if err != nil {
		t.Fatalf("register grant: %v", err)
	}
}

func TestRegisterGrantAuthorizesGrantedScopes(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.Snapshot|capability.Attest, 0)

	cases := []struct {
		cap  capability.Scope
		want bool
	}{
		{capability.Snapshot, true},
		{capability.Attest, true},
		{capability.Snapshot | capability.Attest, true},
		{capability.Claim, false},
		{capability.Release, false},
		{capability.Snapshot | capability.Release, false},
	}
	for _, tc := range cases {
		got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, tc.cap, scope)
		if err != nil {
			t.Fatalf("IsAuthorized(%d): %v", tc.cap, err)
		}
		if got != tc.want {
			t.Fatalf("IsAuthorized(%d) = %v, want %v", tc.cap, got, tc.want)
		}
	}
}

func TestWildcardGrantCoversArbitraryScopes(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.All, 0)

	for _, cap := range []capability.Scope{
		capability.Claim,
		capability.Release,
		capability.Scope(1) << 40,
		capability.Scope(1) << 63,
	} {
		got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, cap, scope)
		if err != nil {
			t.Fatalf("IsAuthorized(%d): %v", cap, err)
		}
		if !got {
			t.Fatalf("wildcard grant must cover capability %d", cap)
		}
	}
}

func TestNearWildcardMaskIsNotWildcard(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	almost := capability.All &^ (capability.Scope(1) << 63)
	registerGrant(t, engine, principal, relayer, scope, almost, 0)

	got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Scope(1)<<63, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("near-full mask must not behave as the wildcard")
	}
}

func TestIsAuthorizedExpiryBoundary(t *testing.T) {
	store := newFakeDelegationStore()
	now := testNow
	engine := NewEngineWithClock(store, signature.Ed25519Recoverer{}, nil, func() time.Time { return now })
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.Snapshot, 0)
	expiry := testNow.Add(time.Hour)

	now = expiry.Add(-time.Second)
	got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Snapshot, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !got {
		t.Fatal("grant must authorize strictly before expiry")
	}

	now = expiry
	got, err = engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Snapshot, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("grant must not authorize at its expiry instant")
	}
}

func TestIsAuthorizedZeroContext(t *testing.T) {
	engine, _ := newTestEngine(t)
	got, err := engine.IsAuthorized(context.Background(), fillIdentity(0x01), fillIdentity(0x02), capability.Snapshot, identity.Context{})
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("zero context must never authorize")
	}
}

func TestGrantsAreContextIsolated(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)

	registerGrant(t, engine, principal, relayer, fillContext(0x01), capability.All, 0)

	got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Snapshot, fillContext(0x02))
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("a grant in one context must not authorize another context")
	}
}

func TestRegisterGrantValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	base := RegisterGrantInput{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: capability.Snapshot,
		Expiry:    testNow.Add(time.Hour).Unix(),
		Deadline:  testNow.Add(time.Minute).Unix(),
	}

	cases := []struct {
		name   string
		mutate func(*RegisterGrantInput)
		want   error
	}{
		{"zero principal", func(in *RegisterGrantInput) { in.Principal = identity.Identity{} }, ErrInvalidIdentity},
		{"zero relayer", func(in *RegisterGrantInput) { in.Relayer = identity.Identity{} }, ErrInvalidIdentity},
		{"zero context", func(in *RegisterGrantInput) { in.Context = identity.Context{} }, ErrInvalidContext},
		{"missed deadline", func(in *RegisterGrantInput) { in.Deadline = testNow.Add(-time.Second).Unix() }, ErrSignatureExpired},
		{"expiry in the past", func(in *RegisterGrantInput) { in.Expiry = testNow.Add(-time.Hour).Unix() }, ErrBadExpiry},
		{"expiry at now", func(in *RegisterGrantInput) { in.Expiry = testNow.Unix() }, ErrBadExpiry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := base
			tc.mutate(&input)
			input.Signature = principal.signGrant(signature.GrantPayload{
				Principal: input.Principal,
				Relayer:   input.Relayer,
				Context:   input.Context,
				ScopeMask: input.ScopeMask,
				Nonce:     0,
				Expiry:    input.Expiry,
				Deadline:  input.Deadline,
			})
			if _, err := engine.RegisterGrant(context.Background(), input); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRegisterGrantRejectsWrongSigner(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	imposter := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	payload := signature.GrantPayload{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: capability.Snapshot,
		Nonce:     0,
		Expiry:    testNow.Add(time.Hour).Unix(),
		Deadline:  testNow.Add(time.Minute).Unix(),
	}
	_, err := engine.RegisterGrant(context.Background(), RegisterGrantInput{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: payload.ScopeMask,
		Expiry:    payload.Expiry,
		Deadline:  payload.Deadline,
		Signature: imposter.signGrant(payload),
	})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestRegisterGrantRejectsReplay(t *testing.T) {
	engine, store := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	expiry := testNow.Add(time.Hour).Unix()
	deadline := testNow.Add(time.Minute).Unix()
	sig := principal.signGrant(signature.GrantPayload{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: capability.Snapshot,
		Nonce:     0,
		Expiry:    expiry,
		Deadline:  deadline,
	})
	input := RegisterGrantInput{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: capability.Snapshot,
		Expiry:    expiry,
		Deadline:  deadline,
		Signature: sig,
	}
	if _, err := engine.RegisterGrant(context.Background(), input); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if store.nonces[principal.id.String()] != 1 {
		t.Fatalf("nonce = %d, want 1", store.nonces[principal.id.String()])
	}
	if _, err := engine.RegisterGrant(context.Background(), input); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("replay err = %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestRegisterGrantOverwritesPreviousGrant(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.Snapshot, 0)
	registerGrant(t, engine, principal, relayer, scope, capability.Attest, 1)

	got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Snapshot, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("re-registration must replace the prior scope mask, not merge it")
	}
	got, err = engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Attest, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !got {
		t.Fatal("latest registration must authorize its scope")
	}
}

func TestRevokeVoidsGrantAndIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.All, 0)

	if err := engine.Revoke(context.Background(), principal.id, relayer, scope); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Snapshot, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("revoked grant must not authorize")
	}

	// Second revoke, and revoke of a pair that never existed.
	if err := engine.Revoke(context.Background(), principal.id, relayer, scope); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := engine.Revoke(context.Background(), principal.id, fillIdentity(0xbb), scope); err != nil {
		t.Fatalf("revoke of absent grant: %v", err)
	}
}

func TestRevokeDoesNotConsumeNonce(t *testing.T) {
	engine, store := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.All, 0)
	if err := engine.Revoke(context.Background(), principal.id, relayer, scope); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if store.nonces[principal.id.String()] != 1 {
		t.Fatalf("nonce = %d, want 1", store.nonces[principal.id.String()])
	}
}

func TestRevokeWithSig(t *testing.T) {
	engine, store := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	registerGrant(t, engine, principal, relayer, scope, capability.All, 0)

	deadline := testNow.Add(time.Minute).Unix()
	sig := principal.signRevoke(signature.RevokePayload{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		Nonce:     1,
		Deadline:  deadline,
	})
	input := RevokeWithSigInput{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		Deadline:  deadline,
		Signature: sig,
	}
	if err := engine.RevokeWithSig(context.Background(), input); err != nil {
		t.Fatalf("revoke with sig: %v", err)
	}

	got, err := engine.IsAuthorized(context.Background(), principal.id, relayer, capability.Snapshot, scope)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if got {
		t.Fatal("revoked grant must not authorize")
	}
	if store.nonces[principal.id.String()] != 2 {
		t.Fatalf("nonce = %d, want 2", store.nonces[principal.id.String()])
	}

	// The consumed signature must not void a freshly registered grant.
	registerGrant(t, engine, principal, relayer, scope, capability.All, 2)
	if err := engine.RevokeWithSig(context.Background(), input); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("replay err = %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestRevokeWithSigRejectsMissedDeadline(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)

	deadline := testNow.Add(-time.Second).Unix()
	err := engine.RevokeWithSig(context.Background(), RevokeWithSigInput{
		Principal: principal.id,
		Relayer:   fillIdentity(0xaa),
		Context:   fillContext(0x01),
		Deadline:  deadline,
		Signature: principal.signRevoke(signature.RevokePayload{
			Principal: principal.id,
			Relayer:   fillIdentity(0xaa),
			Context:   fillContext(0x01),
			Nonce:     0,
			Deadline:  deadline,
		}),
	})
	if !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("err = %v, want %v", err, ErrSignatureExpired)
	}
}

func TestNonceIsSharedAcrossOperationKinds(t *testing.T) {
	engine, _ := newTestEngine(t)
	principal := newSigner(t)
	relayer := fillIdentity(0xaa)
	scope := fillContext(0x01)

	// Register consumes nonce 0, so a revocation signed with nonce 0 is stale.
	registerGrant(t, engine, principal, relayer, scope, capability.All, 0)

	deadline := testNow.Add(time.Minute).Unix()
	err := engine.RevokeWithSig(context.Background(), RevokeWithSigInput{
		Principal: principal.id,
		Relayer:   relayer,
		Context:   scope,
		Deadline:  deadline,
		Signature: principal.signRevoke(signature.RevokePayload{
			Principal: principal.id,
			Relayer:   relayer,
			Context:   scope,
			Nonce:     0,
			Deadline:  deadline,
		}),
	})
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestGetGrantNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.GetGrant(context.Background(), fillIdentity(0x01), fillIdentity(0x02), fillContext(0x03))
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("err = %v, want code %s", err, apperrors.CodeNotFound)
	}
}

func TestGrantLive(t *testing.T) {
	grant := Grant{Expiry: testNow.Add(time.Hour).Unix()}
	if !grant.Live(testNow) {
		t.Fatal("grant with future expiry must be live")
	}
	if grant.Live(testNow.Add(time.Hour)) {
		t.Fatal("grant must not be live at its expiry instant")
	}
	if (Grant{}).Live(testNow) {
		t.Fatal("zero grant must not be live")
	}
}
