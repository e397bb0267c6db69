package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/actor"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/audit"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/delegation"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	mcpservice "github.com/ophelios-studio/codequill-contracts/internal/services/anchor/mcp/service"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/registry"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/release"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/signature"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage/sqlite"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/workspace"
)

// Server hosts the anchor service: an MCP server over stdio and a gRPC
// health endpoint for supervision.
type Server struct {
	listener  net.Listener
	grpc      *grpc.Server
	health    *health.Server
	store     *sqlite.Store
	mcpServer *mcpservice.Server
}

// Membership adapts the workspace service to the narrow view the release
// machine consumes.
type Membership struct {
	Workspaces *workspace.Service
}

// IsMember reports whether the identity belongs to the context's workspace.
func (m Membership) IsMember(ctx context.Context, scope identity.Context, member identity.Identity) (bool, error) {
	return m.Workspaces.IsMember(ctx, scope, member)
}

// Get returns the governance view of the context's workspace.
func (m Membership) Get(ctx context.Context, scope identity.Context) (release.WorkspaceView, error) {
	ws, err := m.Workspaces.Get(ctx, scope)
	if err != nil {
		return release.WorkspaceView{}, err
	}
	return release.WorkspaceView{GovernanceExecutor: ws.GovernanceExecutor}, nil
}

// New creates a configured anchor server with its health endpoint listening
// on the provided port.
func New(port int, dbPath string) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	store, err := openAnchorStore(dbPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	emitter := audit.NewEmitter(store)
	engine := delegation.NewEngine(store, signature.Ed25519Recoverer{}, emitter)
	workspaces := workspace.NewService(store)
	registries := registry.NewService(store, engine, emitter)
	releases := release.NewService(store, store, Membership{Workspaces: workspaces}, engine, emitter)

	mcpConfig := mcpservice.Config{}
	tokenConfig, configured, err := loadActorTokenConfig()
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}
	if configured {
		mcpConfig.TokenConfig = &tokenConfig
	}

	mcpServer, err := mcpservice.New(mcpservice.Deps{
		Delegation: engine,
		Workspaces: workspaces,
		Releases:   releases,
		Registry:   registries,
		Audit:      store,
	}, mcpConfig)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure mcp server: %w", err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("codequill.anchor", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:  listener,
		grpc:      grpcServer,
		health:    healthServer,
		store:     store,
		mcpServer: mcpServer,
	}, nil
}

// Addr returns the health listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an anchor server until the context ends.
func Run(ctx context.Context, port int, dbPath string) error {
	server, err := New(port, dbPath)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the anchor server and blocks until it stops or the context
// ends. The MCP protocol runs over stdio; the gRPC listener serves health
// checks only.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	log.Printf("anchor health endpoint listening at %v", s.listener.Addr())
	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- s.grpc.Serve(s.listener)
	}()

	mcpErr := make(chan error, 1)
	go func() {
		mcpErr <- s.mcpServer.RunStdio(serveCtx)
	}()

	handleGRPCErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve health endpoint: %w", err)
	}
	shutdownGRPC := func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			s.grpc.Stop()
		}
	}

	select {
	case <-ctx.Done():
		cancel()
		shutdownGRPC()
		<-mcpErr
		return handleGRPCErr(<-grpcErr)
	case err := <-mcpErr:
		shutdownGRPC()
		if handled := handleGRPCErr(<-grpcErr); handled != nil {
			return handled
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serve mcp: %w", err)
		}
		return nil
	case err := <-grpcErr:
		cancel()
		<-mcpErr
		return handleGRPCErr(err)
	}
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close anchor store: %v", err)
		}
	}
}

func openAnchorStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "anchor.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open anchor sqlite store: %w", err)
	}
	return store, nil
}

// loadActorTokenConfig reads actor token verification settings. Token auth is
// optional: it activates only when the public key env var is present.
func loadActorTokenConfig() (actor.Config, bool, error) {
	if strings.TrimSpace(os.Getenv("CODEQUILL_ACTOR_TOKEN_PUBLIC_KEY")) == "" {
		return actor.Config{}, false, nil
	}
	cfg, err := actor.LoadConfigFromEnv(time.Now)
	if err != nil {
		return actor.Config{}, false, fmt.Errorf("load actor token config: %w", err)
	}
	return cfg, true, nil
}
