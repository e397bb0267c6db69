package service

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/mcp/domain"
)

type registrationTarget interface {
	AddTool(*mcp.Tool, any) error
	AddResourceTemplate(*mcp.ResourceTemplate, mcp.ResourceHandler)
	AddResource(*mcp.Resource, mcp.ResourceHandler)
}

type registrationModule struct {
	name     string
	register func(registrationTarget) error
}

func newRegistrationModules(deps Deps, resolve domain.ActorResolver) []registrationModule {
	return []registrationModule{
		{name: "delegation-tools", register: func(target registrationTarget) error {
			return registerDelegationTools(target, deps, resolve)
		}},
		{name: "workspace-tools", register: func(target registrationTarget) error {
			return registerWorkspaceTools(target, deps, resolve)
		}},
		{name: "release-tools", register: func(target registrationTarget) error {
			return registerReleaseTools(target, deps, resolve)
		}},
		{name: "registry-tools", register: func(target registrationTarget) error {
			return registerRegistryTools(target, deps, resolve)
		}},
		{name: "audit-tools", register: func(target registrationTarget) error {
			return registerTool(target, domain.AuditListTool(), domain.AuditListHandler(deps.Audit))
		}},
		{name: "anchor-resources", register: func(target registrationTarget) error {
			registerResources(target, deps)
			return nil
		}},
	}
}

func registerDelegationTools(target registrationTarget, deps Deps, resolve domain.ActorResolver) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.DelegationRegisterTool(), handler: domain.DelegationRegisterHandler(deps.Delegation)},
		{tool: domain.DelegationRevokeTool(), handler: domain.DelegationRevokeHandler(deps.Delegation, resolve)},
		{tool: domain.DelegationRevokeWithSigTool(), handler: domain.DelegationRevokeWithSigHandler(deps.Delegation)},
		{tool: domain.DelegationCheckTool(), handler: domain.DelegationCheckHandler(deps.Delegation)},
		{tool: domain.DelegationNonceTool(), handler: domain.DelegationNonceHandler(deps.Delegation)},
	}
	for _, registration := range registrations {
		if err := registerTool(target, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerWorkspaceTools(target registrationTarget, deps Deps, resolve domain.ActorResolver) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.WorkspaceCreateTool(), handler: domain.WorkspaceCreateHandler(deps.Workspaces, resolve)},
		{tool: domain.WorkspaceMemberAddTool(), handler: domain.WorkspaceMemberAddHandler(deps.Workspaces, resolve)},
		{tool: domain.WorkspaceMemberRemoveTool(), handler: domain.WorkspaceMemberRemoveHandler(deps.Workspaces, resolve)},
	}
	for _, registration := range registrations {
		if err := registerTool(target, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerReleaseTools(target registrationTarget, deps Deps, resolve domain.ActorResolver) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.ReleaseAnchorTool(), handler: domain.ReleaseAnchorHandler(deps.Releases, resolve)},
		{tool: domain.ReleaseSetStatusTool(), handler: domain.ReleaseSetStatusHandler(deps.Releases, resolve)},
		{tool: domain.ReleaseRevokeTool(), handler: domain.ReleaseRevokeHandler(deps.Releases, resolve)},
		{tool: domain.ReleaseSupersedeTool(), handler: domain.ReleaseSupersedeHandler(deps.Releases, resolve)},
	}
	for _, registration := range registrations {
		if err := registerTool(target, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerRegistryTools(target registrationTarget, deps Deps, resolve domain.ActorResolver) error {
	registrations := []struct {
		tool    *mcp.Tool
		handler any
	}{
		{tool: domain.RepositoryClaimTool(), handler: domain.RepositoryClaimHandler(deps.Registry, resolve)},
		{tool: domain.RepositoryClaimReleaseTool(), handler: domain.RepositoryClaimReleaseHandler(deps.Registry, resolve)},
		{tool: domain.SnapshotAnchorTool(), handler: domain.SnapshotAnchorHandler(deps.Registry, resolve)},
		{tool: domain.AttestationRecordTool(), handler: domain.AttestationRecordHandler(deps.Registry, resolve)},
		{tool: domain.BackupRecordTool(), handler: domain.BackupRecordHandler(deps.Registry, resolve)},
	}
	for _, registration := range registrations {
		if err := registerTool(target, registration.tool, registration.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerResources(target registrationTarget, deps Deps) {
	target.AddResourceTemplate(domain.GrantResourceTemplate(), domain.GrantResourceHandler(deps.Delegation))
	target.AddResourceTemplate(domain.ReleaseResourceTemplate(), domain.ReleaseResourceHandler(deps.Releases))
	target.AddResourceTemplate(domain.ReleaseListResourceTemplate(), domain.ReleaseListResourceHandler(deps.Releases))
	target.AddResourceTemplate(domain.AttestationListResourceTemplate(), domain.AttestationListResourceHandler(deps.Registry))
	target.AddResourceTemplate(domain.BackupListResourceTemplate(), domain.BackupListResourceHandler(deps.Registry))
	target.AddResource(domain.AuditResource(), domain.AuditResourceHandler(deps.Audit))
}

func registerTool(target registrationTarget, tool *mcp.Tool, handler any) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	return target.AddTool(tool, handler)
}

type serverRegistrationAdapter struct {
	server *mcp.Server
}

func (a serverRegistrationAdapter) AddTool(tool *mcp.Tool, handler any) error {
	return addTool(a.server, tool, handler)
}

func (a serverRegistrationAdapter) AddResourceTemplate(template *mcp.ResourceTemplate, handler mcp.ResourceHandler) {
	a.server.AddResourceTemplate(template, handler)
}

func (a serverRegistrationAdapter) AddResource(resource *mcp.Resource, handler mcp.ResourceHandler) {
	a.server.AddResource(resource, handler)
}

type toolRegistrar struct {
	matches func(any) bool
	add     func(*mcp.Server, *mcp.Tool, any)
}

func newToolRegistrar[I any, O any]() toolRegistrar {
	return toolRegistrar{
		matches: func(handler any) bool {
			_, ok := handler.(mcp.ToolHandlerFor[I, O])
			return ok
		},
		add: func(server *mcp.Server, tool *mcp.Tool, handler any) {
			mcp.AddTool(server, tool, handler.(mcp.ToolHandlerFor[I, O]))
		},
	}
}

// toolRegistrars routes type-erased handlers back to the generic AddTool
// entrypoint. Every tool input/output pair must appear here.
var toolRegistrars = []toolRegistrar{
	newToolRegistrar[domain.DelegationRegisterInput, domain.DelegationRegisterResult](),
	newToolRegistrar[domain.DelegationRevokeInput, domain.DelegationRevokeResult](),
	newToolRegistrar[domain.DelegationRevokeWithSigInput, domain.DelegationRevokeResult](),
	newToolRegistrar[domain.DelegationCheckInput, domain.DelegationCheckResult](),
	newToolRegistrar[domain.DelegationNonceInput, domain.DelegationNonceResult](),
	newToolRegistrar[domain.WorkspaceCreateInput, domain.WorkspaceCreateResult](),
	newToolRegistrar[domain.WorkspaceMemberInput, domain.WorkspaceMemberResult](),
	newToolRegistrar[domain.ReleaseAnchorInput, domain.ReleaseAnchorResult](),
	newToolRegistrar[domain.ReleaseSetStatusInput, domain.ReleaseResult](),
	newToolRegistrar[domain.ReleaseRevokeInput, domain.ReleaseResult](),
	newToolRegistrar[domain.ReleaseSupersedeInput, domain.ReleaseResult](),
	newToolRegistrar[domain.RepositoryClaimInput, domain.RepositoryClaimResult](),
	newToolRegistrar[domain.RepositoryClaimReleaseInput, domain.RepositoryClaimReleaseResult](),
	newToolRegistrar[domain.SnapshotAnchorInput, domain.SnapshotAnchorResult](),
	newToolRegistrar[domain.AttestationRecordInput, domain.AttestationRecordResult](),
	newToolRegistrar[domain.BackupRecordInput, domain.BackupRecordResult](),
	newToolRegistrar[domain.AuditListInput, domain.AuditListResult](),
}

func addTool(server *mcp.Server, tool *mcp.Tool, handler any) error {
	for _, registrar := range toolRegistrars {
		if registrar.matches(handler) {
			registrar.add(server, tool, handler)
			return nil
		}
	}
	toolName := "<nil>"
	if tool != nil {
		toolName = tool.Name
	}
	return fmt.Errorf("tool %q has an unsupported handler type %T", toolName, handler)
}
