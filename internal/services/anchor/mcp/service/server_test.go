package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/audit"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/delegation"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/registry"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/release"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/signature"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage/sqlite"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/workspace"
)

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

func testDeps(t *testing.T) Deps {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "anchor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	emitter := audit.NewEmitter(store)
	engine := delegation.NewEngine(store, signature.Ed25519Recoverer{}, emitter)
	workspaces := workspace.NewService(store)
	return Deps{
		Delegation: engine,
		Workspaces: workspaces,
		Releases:   release.NewService(store, store, membershipAdapter{workspaces: workspaces}, engine, emitter),
		Registry:   registry.NewService(store, engine, emitter),
		Audit:      store,
	}
}

func TestNewRegistersAllModules(t *testing.T) {
	server, err := New(testDeps(t), Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if server == nil || server.mcpServer == nil {
		t.Fatal("expected a configured server")
	}
}

func TestNewRequiresAllServices(t *testing.T) {
	deps := testDeps(t)
	deps.Releases = nil
	if _, err := New(deps, Config{}); err == nil {
		t.Fatal("expected missing service to fail")
	}
}

func TestAddToolRejectsUnknownHandlerType(t *testing.T) {
	target := serverRegistrationAdapter{}
	err := target.AddTool(nil, func() {})
	if err == nil {
		t.Fatal("expected unsupported handler to fail")
	}
}
