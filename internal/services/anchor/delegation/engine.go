package delegation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ophelios-studio/codequill-contracts/internal/platform/errors"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/audit"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/signature"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// Engine serializes all grant mutations and answers authorization queries.
// Callers must route every mutation through a single Engine instance; the
// nonce contract assumes writes are not interleaved per principal.
type Engine struct {
	store     storage.DelegationStore
	recoverer signature.Recoverer
	emitter   *audit.Emitter
	clock     func() time.Time
	tracer    trace.Tracer
}

// NewEngine creates a delegation engine. The emitter may be nil.
func NewEngine(store storage.DelegationStore, recoverer signature.Recoverer, emitter *audit.Emitter) *Engine {
	return NewEngineWithClock(store, recoverer, emitter, time.Now)
}

// NewEngineWithClock creates an engine with an injected clock.
func NewEngineWithClock(store storage.DelegationStore, recoverer signature.Recoverer, emitter *audit.Emitter, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:     store,
		recoverer: recoverer,
		emitter:   emitter,
		clock:     clock,
		tracer:    otel.Tracer("anchor/delegation"),
	}
}

// IsAuthorized reports whether relayer currently holds the capability on
// behalf of principal within the context. It never mutates state and returns
// false, not an error, for absent or expired grants and for the zero context.
func (e *Engine) IsAuthorized(ctx context.Context, principal, relayer identity.Identity, cap capability.Scope, scope identity.Context) (bool, error) {
	if principal.Zero() || relayer.Zero() || scope.Zero() {
		return false, nil
	}
	record, err := e.store.GetGrant(ctx, principal.String(), relayer.String(), scope.String())
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "load grant", err)
	}
	if record.Expiry == 0 || e.clock().Unix() >= record.Expiry {
		return false, nil
	}
	return capability.Scope(record.ScopeMask).Covers(cap), nil
}

// GetGrant returns the stored grant for (principal, relayer, context).
func (e *Engine) GetGrant(ctx context.Context, principal, relayer identity.Identity, scope identity.Context) (Grant, error) {
	record, err := e.store.GetGrant(ctx, principal.String(), relayer.String(), scope.String())
	if errors.Is(err, storage.ErrNotFound) {
		return Grant{}, apperrors.New(apperrors.CodeNotFound, "grant not found")
	}
	if err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "load grant", err)
	}
	return grantFromRecord(record)
}

// Nonce returns the principal's next expected signing nonce.
func (e *Engine) Nonce(ctx context.Context, principal identity.Identity) (uint64, error) {
	if principal.Zero() {
		return 0, ErrInvalidIdentity
	}
	nonce, err := e.store.GetNonce(ctx, principal.String())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "load nonce", err)
	}
	return nonce, nil
}

// RegisterGrant verifies a signed registration request and stores the grant,
// overwriting any previous grant for the same (principal, relayer, context).
// The principal's nonce advances with the grant write, so a replayed
// signature fails verification against the reconstructed payload.
func (e *Engine) RegisterGrant(ctx context.Context, input RegisterGrantInput) (Grant, error) {
	ctx, span := e.tracer.Start(ctx, "delegation.RegisterGrant")
	defer span.End()

	if input.Principal.Zero() || input.Relayer.Zero() {
		return Grant{}, ErrInvalidIdentity
	}
	if input.Context.Zero() {
		return Grant{}, ErrInvalidContext
	}
	now := e.clock()
	if now.Unix() > input.Deadline {
		return Grant{}, ErrSignatureExpired
	}
	if input.Expiry <= now.Unix() {
		return Grant{}, ErrBadExpiry
	}

	nonce, err := e.store.GetNonce(ctx, input.Principal.String())
	if err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "load nonce", err)
	}
	payload := signature.GrantPayload{
		Principal: input.Principal,
		Relayer:   input.Relayer,
		Context:   input.Context,
		ScopeMask: input.ScopeMask,
		Nonce:     nonce,
		Expiry:    input.Expiry,
		Deadline:  input.Deadline,
	}
	signer, err := e.recoverer.Recover(payload.Encode(), input.Signature)
	if err != nil || signer != input.Principal {
		return Grant{}, ErrSignatureInvalid
	}

	record := storage.GrantRecord{
		Principal: input.Principal.String(),
		Relayer:   input.Relayer.String(),
		Context:   input.Context.String(),
		ScopeMask: uint64(input.ScopeMask),
		Expiry:    input.Expiry,
		UpdatedAt: now.UTC(),
	}
	if err := e.store.ApplyGrant(ctx, record, nonce+1); err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "store grant", err)
	}

	if err := e.emitter.Emit(ctx, audit.Fact{
		Kind:      audit.KindDelegated,
		Context:   input.Context.String(),
		Actor:     input.Relayer.String(),
		Principal: input.Principal.String(),
		Details: map[string]string{
			"relayer":    input.Relayer.String(),
			"scope_mask": strconv.FormatUint(uint64(input.ScopeMask), 10),
			"expiry":     strconv.FormatInt(input.Expiry, 10),
		},
	}); err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
	}

	return Grant{
		Principal: input.Principal,
		Relayer:   input.Relayer,
		Context:   input.Context,
		ScopeMask: input.ScopeMask,
		Expiry:    input.Expiry,
		UpdatedAt: now.UTC(),
	}, nil
}

// Revoke voids the actor's own grant to relayer within the context. Revoking
// an absent or already-voided grant succeeds; revocation needs no deadline or
// signature because the actor is the principal.
func (e *Engine) Revoke(ctx context.Context, actor, relayer identity.Identity, scope identity.Context) error {
	ctx, span := e.tracer.Start(ctx, "delegation.Revoke")
	defer span.End()

	if actor.Zero() || relayer.Zero() {
		return ErrInvalidIdentity
	}
	if scope.Zero() {
		return ErrInvalidContext
	}
	now := e.clock()
	if err := e.store.VoidGrant(ctx, actor.String(), relayer.String(), scope.String(), now.UTC(), nil); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "void grant", err)
	}
	return e.emitRevoked(ctx, scope, actor, actor, relayer)
}

// RevokeWithSig voids a grant on behalf of a principal who signed the
// revocation offline. Any party may submit it before the deadline. The nonce
// advances with the void so the signature cannot be replayed.
func (e *Engine) RevokeWithSig(ctx context.Context, input RevokeWithSigInput) error {
	ctx, span := e.tracer.Start(ctx, "delegation.RevokeWithSig")
	defer span.End()

	if input.Principal.Zero() || input.Relayer.Zero() {
		return ErrInvalidIdentity
	}
	if input.Context.Zero() {
		return ErrInvalidContext
	}
	now := e.clock()
	if now.Unix() > input.Deadline {
		return ErrSignatureExpired
	}

	nonce, err := e.store.GetNonce(ctx, input.Principal.String())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "load nonce", err)
	}
	payload := signature.RevokePayload{
		Principal: input.Principal,
		Relayer:   input.Relayer,
		Context:   input.Context,
		Nonce:     nonce,
		Deadline:  input.Deadline,
	}
	signer, err := e.recoverer.Recover(payload.Encode(), input.Signature)
	if err != nil || signer != input.Principal {
		return ErrSignatureInvalid
	}

	next := nonce + 1
	if err := e.store.VoidGrant(ctx, input.Principal.String(), input.Relayer.String(), input.Context.String(), now.UTC(), &next); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "void grant", err)
	}
	return e.emitRevoked(ctx, input.Context, input.Relayer, input.Principal, input.Relayer)
}

func (e *Engine) emitRevoked(ctx context.Context, scope identity.Context, actor, principal, relayer identity.Identity) error {
	err := e.emitter.Emit(ctx, audit.Fact{
		Kind:      audit.KindRevoked,
		Context:   scope.String(),
		Actor:     actor.String(),
		Principal: principal.String(),
		Details:   map[string]string{"relayer": relayer.String()},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "emit audit fact", err)
	}
	return nil
}

func grantFromRecord(record storage.GrantRecord) (Grant, error) {
	principal, err := identity.ParseIdentity(record.Principal)
	if err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored principal", err)
	}
	relayer, err := identity.ParseIdentity(record.Relayer)
	if err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored relayer", err)
	}
	scope, err := identity.ParseContext(record.Context)
	if err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInternal, "parse stored context", err)
	}
	return Grant{
		Principal: principal,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: capability.Scope(record.ScopeMask),
		Expiry:    record.Expiry,
		UpdatedAt: record.UpdatedAt,
	}, nil
}
