package domain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/audit"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/delegation"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/registry"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/release"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/signature"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/workspace"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// fakeAnchorStore is an in-memory implementation of the anchor persistence
// contracts, enough for exercising the MCP handlers end to end.
type fakeAnchorStore struct {
	grants   map[string]storage.GrantRecord
	nonces   map[string]uint64
	spaces   map[string]storage.WorkspaceRecord
	members  map[string]bool
	releases map[string]storage.ReleaseRecord
	claims   map[string]storage.RepositoryClaimRecord
	snaps    map[string]bool
	attests  []storage.AttestationRecord
	backups  []storage.BackupRecord
	events   []storage.AuditEvent
}

func newFakeAnchorStore() *fakeAnchorStore {
	return &fakeAnchorStore{
		grants:   map[string]storage.GrantRecord{},
		nonces:   map[string]uint64{},
		spaces:   map[string]storage.WorkspaceRecord{},
		members:  map[string]bool{},
		releases: map[string]storage.ReleaseRecord{},
		claims:   map[string]storage.RepositoryClaimRecord{},
		snaps:    map[string]bool{},
	}
}

func grantKey(principal, relayer, scope string) string {
	return principal + "|" + relayer + "|" + scope
}

func (s *fakeAnchorStore) GetGrant(_ context.Context, principal, relayer, scope string) (storage.GrantRecord, error) {
	record, ok := s.grants[grantKey(principal, relayer, scope)]
	if !ok {
		return storage.GrantRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeAnchorStore) GetNonce(_ context.Context, principal string) (uint64, error) {
	return s.nonces[principal], nil
}

func (s *fakeAnchorStore) ApplyGrant(_ context.Context, record storage.GrantRecord, nextNonce uint64) error {
	s.grants[grantKey(record.Principal, record.Relayer, record.Context)] = record
	s.nonces[record.Principal] = nextNonce
	return nil
}

func (s *fakeAnchorStore) VoidGrant(_ context.Context, principal, relayer, scope string, updatedAt time.Time, nextNonce *uint64) error {
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

func (s *fakeAnchorStore) CreateWorkspace(_ context.Context, record storage.WorkspaceRecord) error {
	if _, ok := s.spaces[record.Context]; ok {
		return storage.ErrConflict
	}
	s.spaces[record.Context] = record
	return nil
}

func (s *fakeAnchorStore) GetWorkspace(_ context.Context, scope string) (storage.WorkspaceRecord, error) {
	record, ok := s.spaces[scope]
	if !ok {
		return storage.WorkspaceRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeAnchorStore) AddMember(_ context.Context, scope, member string, _ time.Time) error {
	s.members[scope+"|"+member] = true
	return nil
}

func (s *fakeAnchorStore) RemoveMember(_ context.Context, scope, member string) error {
	delete(s.members, scope+"|"+member)
	return nil
}

func (s *fakeAnchorStore) IsMember(_ context.Context, scope, member string) (bool, error) {
	return s.members[scope+"|"+member], nil
}

func (s *fakeAnchorStore) CreateRelease(_ context.Context, record storage.ReleaseRecord) error {
	if _, ok := s.releases[record.ID]; ok {
		return storage.ErrConflict
	}
	s.releases[record.ID] = record
	return nil
}

func (s *fakeAnchorStore) GetRelease(_ context.Context, id string) (storage.ReleaseRecord, error) {
	record, ok := s.releases[id]
	if !ok {
		return storage.ReleaseRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeAnchorStore) SetReleaseStatus(_ context.Context, id, status, author string, at time.Time) error {
	record := s.releases[id]
	record.Status = status
	record.StatusAuthor = author
	record.StatusTimestamp = &at
	s.releases[id] = record
	return nil
}

func (s *fakeAnchorStore) MarkReleaseRevoked(_ context.Context, id string, _ time.Time) error {
	record := s.releases[id]
	record.Revoked = true
	s.releases[id] = record
	return nil
}

func (s *fakeAnchorStore) SetReleaseSuperseded(_ context.Context, id, successorID string, _ time.Time) error {
	record := s.releases[id]
	record.SupersededBy = successorID
	s.releases[id] = record
	return nil
}

func (s *fakeAnchorStore) ListReleasesByProject(_ context.Context, projectID string) ([]storage.ReleaseRecord, error) {
	var records []storage.ReleaseRecord
	for _, record := range s.releases {
		if record.ProjectID == projectID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *fakeAnchorStore) CreateRepositoryClaim(_ context.Context, record storage.RepositoryClaimRecord) error {
	key := record.Context + "|" + record.RepoRef
	if _, ok := s.claims[key]; ok {
		return storage.ErrConflict
	}
	s.claims[key] = record
	return nil
}

func (s *fakeAnchorStore) GetRepositoryClaim(_ context.Context, scope, repoRef string) (storage.RepositoryClaimRecord, error) {
	record, ok := s.claims[scope+"|"+repoRef]
	if !ok {
		return storage.RepositoryClaimRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeAnchorStore) DeleteRepositoryClaim(_ context.Context, scope, repoRef string) error {
	delete(s.claims, scope+"|"+repoRef)
	return nil
}

func (s *fakeAnchorStore) PutSnapshot(_ context.Context, record storage.SnapshotRecord) error {
	s.snaps[record.RepoRef+"|"+record.RootRef] = true
	return nil
}

func (s *fakeAnchorStore) SnapshotExists(_ context.Context, repoRef, rootRef string) (bool, error) {
	return s.snaps[repoRef+"|"+rootRef], nil
}

func (s *fakeAnchorStore) PutAttestation(_ context.Context, record storage.AttestationRecord) error {
	s.attests = append(s.attests, record)
	return nil
}

func (s *fakeAnchorStore) ListAttestationsBySubject(_ context.Context, scope, subjectRef string) ([]storage.AttestationRecord, error) {
	var records []storage.AttestationRecord
	for _, record := range s.attests {
		if record.Context == scope && record.SubjectRef == subjectRef {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *fakeAnchorStore) PutBackup(_ context.Context, record storage.BackupRecord) error {
	s.backups = append(s.backups, record)
	return nil
}

func (s *fakeAnchorStore) ListBackupsByRepo(_ context.Context, scope, repoRef string) ([]storage.BackupRecord, error) {
	var records []storage.BackupRecord
	for _, record := range s.backups {
		if record.Context == scope && record.RepoRef == repoRef {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *fakeAnchorStore) AppendAuditEvent(_ context.Context, event storage.AuditEvent) error {
	event.Seq = int64(len(s.events) + 1)
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAnchorStore) ListAuditEvents(_ context.Context, query storage.AuditEventQuery) (storage.AuditEventPage, error) {
	var events []storage.AuditEvent
	for _, event := range s.events {
		if query.Clause != "" && len(query.Params) > 0 {
			// The fake only understands the single kind = ? clause the
			// tests use.
			if want, ok := query.Params[0].(string); ok && strings.Contains(query.Clause, "kind") && event.Kind != want {
				continue
			}
		}
		events = append(events, event)
	}
	return storage.AuditEventPage{Events: events}, nil
}

type handlerEnv struct {
	store      *fakeAnchorStore
	engine     *delegation.Engine
	workspaces *workspace.Service
	releases   *release.Service
	registries *registry.Service
}

type membershipAdapter struct {
	workspaces *workspace.Service
}

func (m membershipAdapter) IsMember(ctx context.Context, scope identity.Context, member identity.Identity) (bool, error) {
	return m.workspaces.IsMember(ctx, scope, member)
}

func (m membershipAdapter) Get(ctx context.Context, scope identity.Context) (release.WorkspaceView, error) {
	ws, err := m.workspaces.Get(ctx, scope)
	if err != nil {
		return release.WorkspaceView{}, err
	}
	return release.WorkspaceView{GovernanceExecutor: ws.GovernanceExecutor}, nil
}

func newHandlerEnv() handlerEnv {
	store := newFakeAnchorStore()
	clock := func() time.Time { return testNow }
	emitter := audit.NewEmitterWithClock(store, clock)
	engine := delegation.NewEngineWithClock(store, signature.Ed25519Recoverer{}, emitter, clock)
	workspaces := workspace.NewServiceWithClock(store, clock)
	registries := registry.NewServiceWithClock(store, engine, emitter, clock, func() (string, error) { return "fixed-id", nil })
	releases := release.NewServiceWithClock(store, store, membershipAdapter{workspaces: workspaces}, engine, emitter, clock)
	return handlerEnv{
		store:      store,
		engine:     engine,
		workspaces: workspaces,
		releases:   releases,
		registries: registries,
	}
}

type signer struct {
	priv ed25519.PrivateKey
	id   identity.Identity
}

func newSigner(t *testing.T) signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return signer{priv: priv, id: signature.IdentityFromPublicKey(pub)}
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

func signedGrantInput(t *testing.T, who signer, relayer identity.Identity, scope identity.Context, nonce uint64) DelegationRegisterInput {
	t.Helper()
	expiry := testNow.Add(time.Hour).Unix()
	deadline := testNow.Add(time.Minute).Unix()
	payload := signature.GrantPayload{
		Principal: who.id,
		Relayer:   relayer,
		Context:   scope,
		ScopeMask: capability.Release,
		Nonce:     nonce,
		Expiry:    expiry,
		Deadline:  deadline,
	}
	return DelegationRegisterInput{
		Principal:    who.id.String(),
		Relayer:      relayer.String(),
		Context:      scope.String(),
		Capabilities: []string{"RELEASE"},
		Expiry:       expiry,
		Deadline:     deadline,
		Signature:    base64.StdEncoding.EncodeToString(signature.Envelope(who.priv, payload.Encode())),
	}
}

func TestDelegationRegisterHandler(t *testing.T) {
	env := newHandlerEnv()
	principal := newSigner(t)
	relayer := fillIdentity(0x22)
	scope := fillContext(0x33)

	handler := DelegationRegisterHandler(env.engine)
	_, result, err := handler(context.Background(), nil, signedGrantInput(t, principal, relayer, scope, 0))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.Grant.Principal != principal.id.String() {
		t.Fatalf("principal = %q, want %q", result.Grant.Principal, principal.id.String())
	}
	if len(result.Grant.Capabilities) != 1 || result.Grant.Capabilities[0] != "RELEASE" {
		t.Fatalf("capabilities = %v, want [RELEASE]", result.Grant.Capabilities)
	}

	check := DelegationCheckHandler(env.engine)
	_, decision, err := check(context.Background(), nil, DelegationCheckInput{
		Principal:  principal.id.String(),
		Relayer:    relayer.String(),
		Context:    scope.String(),
		Capability: "RELEASE",
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Authorized {
		t.Fatal("relayer should be authorized after registration")
	}

	// A replayed envelope fails against the advanced nonce.
	if _, _, err := handler(context.Background(), nil, signedGrantInput(t, principal, relayer, scope, 0)); err == nil {
		t.Fatal("expected replay to fail")
	}
}

func TestDelegationRegisterHandlerRejectsBadInput(t *testing.T) {
	env := newHandlerEnv()
	handler := DelegationRegisterHandler(env.engine)

	tests := []struct {
		name  string
		input DelegationRegisterInput
	}{
		{name: "bad principal", input: DelegationRegisterInput{Principal: "nope"}},
		{name: "missing capabilities", input: DelegationRegisterInput{
			Principal: fillIdentity(1).String(),
			Relayer:   fillIdentity(2).String(),
			Context:   fillContext(3).String(),
		}},
		{name: "bad signature encoding", input: DelegationRegisterInput{
			Principal:    fillIdentity(1).String(),
			Relayer:      fillIdentity(2).String(),
			Context:      fillContext(3).String(),
			Capabilities: []string{"CLAIM"},
			Signature:    "%%not-base64%%",
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := handler(context.Background(), nil, tc.input); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDelegationRevokeHandler(t *testing.T) {
	env := newHandlerEnv()
	principal := newSigner(t)
	relayer := fillIdentity(0x22)
	scope := fillContext(0x33)

	register := DelegationRegisterHandler(env.engine)
	if _, _, err := register(context.Background(), nil, signedGrantInput(t, principal, relayer, scope, 0)); err != nil {
		t.Fatalf("register: %v", err)
	}

	revoke := DelegationRevokeHandler(env.engine, PlainActorResolver())
	_, result, err := revoke(context.Background(), nil, DelegationRevokeInput{
		Actor:   principal.id.String(),
		Relayer: relayer.String(),
		Context: scope.String(),
	})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !result.Revoked {
		t.Fatal("expected revoked result")
	}

	check := DelegationCheckHandler(env.engine)
	_, decision, err := check(context.Background(), nil, DelegationCheckInput{
		Principal:  principal.id.String(),
		Relayer:    relayer.String(),
		Context:    scope.String(),
		Capability: "RELEASE",
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Authorized {
		t.Fatal("grant should be void after revocation")
	}
}

func TestDelegationNonceHandler(t *testing.T) {
	env := newHandlerEnv()
	principal := newSigner(t)
	relayer := fillIdentity(0x22)
	scope := fillContext(0x33)

	nonceHandler := DelegationNonceHandler(env.engine)
	_, before, err := nonceHandler(context.Background(), nil, DelegationNonceInput{Principal: principal.id.String()})
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if before.Nonce != "0" {
		t.Fatalf("nonce = %q, want %q", before.Nonce, "0")
	}

	register := DelegationRegisterHandler(env.engine)
	if _, _, err := register(context.Background(), nil, signedGrantInput(t, principal, relayer, scope, 0)); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, after, err := nonceHandler(context.Background(), nil, DelegationNonceInput{Principal: principal.id.String()})
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if after.Nonce != "1" {
		t.Fatalf("nonce = %q, want %q", after.Nonce, "1")
	}
}

func TestWorkspaceCreateHandlerGeneratesContext(t *testing.T) {
	env := newHandlerEnv()
	creator := fillIdentity(0x11)

	handler := WorkspaceCreateHandler(env.workspaces, PlainActorResolver())
	_, result, err := handler(context.Background(), nil, WorkspaceCreateInput{
		Actor: creator.String(),
		Name:  "quill studio",
	})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	if result.Context == "" || result.Context == (identity.Context{}).String() {
		t.Fatalf("expected a generated non-zero context, got %q", result.Context)
	}
	if result.GovernanceExecutor != creator.String() {
		t.Fatalf("executor = %q, want creator %q", result.GovernanceExecutor, creator.String())
	}
}

func TestWorkspaceMemberHandlersGateOnExecutor(t *testing.T) {
	env := newHandlerEnv()
	executor := fillIdentity(0x11)
	member := fillIdentity(0x22)
	stranger := fillIdentity(0x33)
	scope := fillContext(0x44)

	create := WorkspaceCreateHandler(env.workspaces, PlainActorResolver())
	if _, _, err := create(context.Background(), nil, WorkspaceCreateInput{
		Actor:   executor.String(),
		Context: scope.String(),
		Name:    "gated",
	}); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	add := WorkspaceMemberAddHandler(env.workspaces, PlainActorResolver())
	if _, _, err := add(context.Background(), nil, WorkspaceMemberInput{
		Actor:   stranger.String(),
		Context: scope.String(),
		Member:  member.String(),
	}); err == nil {
		t.Fatal("expected non-executor enrollment to fail")
	}
	if _, _, err := add(context.Background(), nil, WorkspaceMemberInput{
		Actor:   executor.String(),
		Context: scope.String(),
		Member:  member.String(),
	}); err != nil {
		t.Fatalf("executor enrollment failed: %v", err)
	}

	remove := WorkspaceMemberRemoveHandler(env.workspaces, PlainActorResolver())
	if _, _, err := remove(context.Background(), nil, WorkspaceMemberInput{
		Actor:   executor.String(),
		Context: scope.String(),
		Member:  member.String(),
	}); err != nil {
		t.Fatalf("executor removal failed: %v", err)
	}
}

func TestSnapshotAnchorHandlerVerifiesDigest(t *testing.T) {
	env := newHandlerEnv()
	owner := fillIdentity(0x11)
	scope := fillContext(0x44)
	manifest := []byte("manifest-v1")

	handler := SnapshotAnchorHandler(env.registries, PlainActorResolver())
	_, _, err := handler(context.Background(), nil, SnapshotAnchorInput{
		Actor:    owner.String(),
		Owner:    owner.String(),
		Context:  scope.String(),
		RepoRef:  "repo-a",
		RootRef:  "blake3:deadbeef",
		Manifest: base64.StdEncoding.EncodeToString(manifest),
	})
	if !errors.Is(err, registry.ErrDigestMismatch) {
		t.Fatalf("err = %v, want ErrDigestMismatch", err)
	}

	_, result, err := handler(context.Background(), nil, SnapshotAnchorInput{
		Actor:    owner.String(),
		Owner:    owner.String(),
		Context:  scope.String(),
		RepoRef:  "repo-a",
		RootRef:  registry.ManifestDigest(manifest),
		Manifest: base64.StdEncoding.EncodeToString(manifest),
	})
	if err != nil {
		t.Fatalf("anchor snapshot: %v", err)
	}
	if result.RootRef != registry.ManifestDigest(manifest) {
		t.Fatalf("root ref = %q, want manifest digest", result.RootRef)
	}
}

func TestReleaseHandlersLifecycle(t *testing.T) {
	env := newHandlerEnv()
	author := fillIdentity(0x11)
	scope := fillContext(0x44)
	manifest := []byte("release-manifest")
	rootRef := registry.ManifestDigest(manifest)
	resolve := PlainActorResolver()

	create := WorkspaceCreateHandler(env.workspaces, resolve)
	if _, _, err := create(context.Background(), nil, WorkspaceCreateInput{
		Actor:   author.String(),
		Context: scope.String(),
		Name:    "studio",
	}); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	snapshot := SnapshotAnchorHandler(env.registries, resolve)
	if _, _, err := snapshot(context.Background(), nil, SnapshotAnchorInput{
		Actor:    author.String(),
		Owner:    author.String(),
		Context:  scope.String(),
		RepoRef:  "repo-a",
		RootRef:  rootRef,
		Manifest: base64.StdEncoding.EncodeToString(manifest),
	}); err != nil {
		t.Fatalf("anchor snapshot: %v", err)
	}

	anchor := ReleaseAnchorHandler(env.releases, resolve)
	_, anchored, err := anchor(context.Background(), nil, ReleaseAnchorInput{
		Actor:               author.String(),
		ID:                  "rel-1",
		ProjectID:           "proj-a",
		Context:             scope.String(),
		ManifestRef:         rootRef,
		Name:                "v1",
		Author:              author.String(),
		GovernanceAuthority: author.String(),
		SnapshotRefs:        []SnapshotRefInput{{RepoRef: "repo-a", RootRef: rootRef}},
	})
	if err != nil {
		t.Fatalf("anchor release: %v", err)
	}
	if anchored.Release.Status != release.StatusPending {
		t.Fatalf("status = %q, want %q", anchored.Release.Status, release.StatusPending)
	}

	setStatus := ReleaseSetStatusHandler(env.releases, resolve)
	_, decided, err := setStatus(context.Background(), nil, ReleaseSetStatusInput{
		Actor:  author.String(),
		ID:     "rel-1",
		Status: "accepted",
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if decided.Release.Status != release.StatusAccepted {
		t.Fatalf("status = %q, want %q", decided.Release.Status, release.StatusAccepted)
	}
	if decided.Release.StatusAuthor != author.String() {
		t.Fatalf("status author = %q, want %q", decided.Release.StatusAuthor, author.String())
	}

	revoke := ReleaseRevokeHandler(env.releases, resolve)
	_, revoked, err := revoke(context.Background(), nil, ReleaseRevokeInput{
		Actor:  author.String(),
		ID:     "rel-1",
		Author: author.String(),
	})
	if err != nil {
		t.Fatalf("revoke release: %v", err)
	}
	if !revoked.Release.Revoked {
		t.Fatal("release should be revoked")
	}

	if _, _, err := anchor(context.Background(), nil, ReleaseAnchorInput{
		Actor:               author.String(),
		ID:                  "rel-2",
		ProjectID:           "proj-a",
		Context:             scope.String(),
		ManifestRef:         rootRef,
		Name:                "v2",
		Author:              author.String(),
		GovernanceAuthority: author.String(),
		SnapshotRefs:        []SnapshotRefInput{{RepoRef: "repo-a", RootRef: rootRef}},
	}); err != nil {
		t.Fatalf("anchor successor: %v", err)
	}

	supersede := ReleaseSupersedeHandler(env.releases, resolve)
	_, superseded, err := supersede(context.Background(), nil, ReleaseSupersedeInput{
		Actor:       author.String(),
		ID:          "rel-1",
		SuccessorID: "rel-2",
		Author:      author.String(),
	})
	if err != nil {
		t.Fatalf("supersede release: %v", err)
	}
	if superseded.Release.SupersededBy != "rel-2" {
		t.Fatalf("superseded_by = %q, want %q", superseded.Release.SupersededBy, "rel-2")
	}
}

func TestAuditListHandlerFiltersByKind(t *testing.T) {
	env := newHandlerEnv()
	scope := fillContext(0x44)
	owner := fillIdentity(0x11)

	claim := RepositoryClaimHandler(env.registries, PlainActorResolver())
	if _, _, err := claim(context.Background(), nil, RepositoryClaimInput{
		Actor:   owner.String(),
		Owner:   owner.String(),
		Context: scope.String(),
		RepoRef: "repo-a",
	}); err != nil {
		t.Fatalf("claim repository: %v", err)
	}

	handler := AuditListHandler(env.store)
	_, result, err := handler(context.Background(), nil, AuditListInput{
		Filter: `kind = "REPOSITORY_CLAIMED"`,
	})
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(result.Events))
	}
	if result.Events[0].Kind != audit.KindRepositoryClaimed {
		t.Fatalf("kind = %q, want %q", result.Events[0].Kind, audit.KindRepositoryClaimed)
	}
	if result.Events[0].Actor != owner.String() {
		t.Fatalf("actor = %q, want %q", result.Events[0].Actor, owner.String())
	}
}

func TestAuditListHandlerRejectsBadFilter(t *testing.T) {
	env := newHandlerEnv()
	handler := AuditListHandler(env.store)
	if _, _, err := handler(context.Background(), nil, AuditListInput{Filter: `color = "red"`}); err == nil {
		t.Fatal("expected unknown field to fail")
	}
}

func TestParseGrantURI(t *testing.T) {
	scope := fillContext(0x44)
	principal := fillIdentity(0x11)
	relayer := fillIdentity(0x22)

	uri := "grant://" + scope.String() + "/" + principal.String() + "/" + relayer.String()
	gotScope, gotPrincipal, gotRelayer, err := parseGrantURI(uri)
	if err != nil {
		t.Fatalf("parse grant uri: %v", err)
	}
	if gotScope != scope.String() || gotPrincipal != principal.String() || gotRelayer != relayer.String() {
		t.Fatalf("parsed (%q, %q, %q), want (%q, %q, %q)",
			gotScope, gotPrincipal, gotRelayer, scope.String(), principal.String(), relayer.String())
	}

	for _, bad := range []string{"release://x", "grant://a/b", "grant://a//c"} {
		if _, _, _, err := parseGrantURI(bad); err == nil {
			t.Fatalf("parseGrantURI(%q) should fail", bad)
		}
	}
}

func TestPlainActorResolver(t *testing.T) {
	resolve := PlainActorResolver()
	if _, err := resolve("", ""); err == nil {
		t.Fatal("expected empty identity to fail")
	}
	want := fillIdentity(0x11)
	got, err := resolve("ignored-token", want.String())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != want {
		t.Fatalf("actor = %v, want %v", got, want)
	}
}
