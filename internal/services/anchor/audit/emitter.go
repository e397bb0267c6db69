// Package audit records append-only provenance facts for every mutation the
// anchor service commits.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// Fact kinds. Stable strings: relayer software and indexers key off them.
const (
	KindDelegated              = "DELEGATED"
	KindRevoked                = "REVOKED"
	KindRepositoryClaimed      = "REPOSITORY_CLAIMED"
	KindRepositoryClaimDropped = "REPOSITORY_CLAIM_RELEASED"
	KindSnapshotAnchored       = "SNAPSHOT_ANCHORED"
	KindAttestationRecorded    = "ATTESTATION_RECORDED"
	KindBackupRecorded         = "BACKUP_RECORDED"
	KindReleaseAnchored        = "RELEASE_ANCHORED"
	KindReleaseStatusSet       = "RELEASE_STATUS_SET"
	KindReleaseRevoked         = "RELEASE_REVOKED"
	KindReleaseSuperseded      = "RELEASE_SUPERSEDED"
)

// Emitter appends provenance facts. It is a no-op when the store is nil so
// domain services stay testable without an audit backend.
type Emitter struct {
	store storage.AuditEventStore
	clock func() time.Time
}

// NewEmitter creates an audit fact emitter.
func NewEmitter(store storage.AuditEventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// NewEmitterWithClock creates an emitter with an injected clock.
func NewEmitterWithClock(store storage.AuditEventStore, clock func() time.Time) *Emitter {
	if clock == nil {
		clock = time.Now
	}
	return &Emitter{store: store, clock: clock}
}

// Fact describes one provenance fact before it is assigned a sequence.
type Fact struct {
	Kind      string
	Context   string
	Actor     string
	Principal string
	// Details is marshalled to JSON for the persisted payload.
	Details map[string]string
}

// Emit appends a fact to the audit ledger.
func (e *Emitter) Emit(ctx context.Context, fact Fact) error {
	if e == nil || e.store == nil {
		return nil
	}
	payload := "{}"
	if len(fact.Details) > 0 {
		encoded, err := json.Marshal(fact.Details)
		if err != nil {
			return err
		}
		payload = string(encoded)
	}
	return e.store.AppendAuditEvent(ctx, storage.AuditEvent{
		Kind:      fact.Kind,
		Context:   fact.Context,
		Actor:     fact.Actor,
		Principal: fact.Principal,
		Payload:   payload,
		Timestamp: e.clock().UTC(),
	})
}
