package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/workspace"
)

// WorkspaceCreateInput carries a workspace creation request.
type WorkspaceCreateInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the creator, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"creator identity, 0x-prefixed hex, when token auth is not configured"`
	Context    string `json:"context,omitempty" jsonschema:"context identifier, 0x-prefixed hex; a fresh context is generated when omitted"`
	Name       string `json:"name" jsonschema:"workspace name"`
	Executor   string `json:"executor,omitempty" jsonschema:"governance executor identity; defaults to the creator"`
}

// WorkspaceCreateResult reports the created workspace.
type WorkspaceCreateResult struct {
	Context            string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	Name               string `json:"name" jsonschema:"workspace name"`
	GovernanceExecutor string `json:"governance_executor" jsonschema:"governance executor identity"`
	CreatedAt          string `json:"created_at" jsonschema:"RFC3339 creation timestamp"`
}

// WorkspaceCreateTool defines the MCP tool schema for workspace creation.
func WorkspaceCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "workspace_create",
		Description: "Creates a workspace bound to a context and enrolls the creator as its first member. One workspace per context.",
	}
}

// WorkspaceCreateHandler executes a workspace creation.
func WorkspaceCreateHandler(workspaces *workspace.Service, resolve ActorResolver) mcp.ToolHandlerFor[WorkspaceCreateInput, WorkspaceCreateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WorkspaceCreateInput) (*mcp.CallToolResult, WorkspaceCreateResult, error) {
		creator, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, WorkspaceCreateResult{}, err
		}
		var scope identity.Context
		if input.Context != "" {
			scope, err = parseContextField(input.Context)
		} else {
			scope, err = identity.NewContext()
		}
		if err != nil {
			return nil, WorkspaceCreateResult{}, err
		}
		var executor identity.Identity
		if input.Executor != "" {
			executor, err = parseIdentityField("executor", input.Executor)
			if err != nil {
				return nil, WorkspaceCreateResult{}, err
			}
		}

		created, err := workspaces.Create(ctx, workspace.CreateInput{
			Context:  scope,
			Name:     input.Name,
			Creator:  creator,
			Executor: executor,
		})
		if err != nil {
			return nil, WorkspaceCreateResult{}, fmt.Errorf("create workspace: %w", err)
		}
		return nil, WorkspaceCreateResult{
			Context:            created.Context.String(),
			Name:               created.Name,
			GovernanceExecutor: created.GovernanceExecutor.String(),
			CreatedAt:          formatTime(created.CreatedAt),
		}, nil
	}
}

// WorkspaceMemberInput carries a membership mutation request.
type WorkspaceMemberInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the governance executor, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"governance executor identity, 0x-prefixed hex, when token auth is not configured"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	Member     string `json:"member" jsonschema:"member identity, 0x-prefixed hex"`
}

// WorkspaceMemberResult reports a completed membership mutation.
type WorkspaceMemberResult struct {
	Context string `json:"context" jsonschema:"context identifier"`
	Member  string `json:"member" jsonschema:"member identity"`
}

// WorkspaceMemberAddTool defines the MCP tool schema for member enrollment.
func WorkspaceMemberAddTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "workspace_member_add",
		Description: "Enrolls an identity in a context's workspace. Only the governance executor may do this.",
	}
}

// WorkspaceMemberAddHandler executes a member enrollment.
func WorkspaceMemberAddHandler(workspaces *workspace.Service, resolve ActorResolver) mcp.ToolHandlerFor[WorkspaceMemberInput, WorkspaceMemberResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WorkspaceMemberInput) (*mcp.CallToolResult, WorkspaceMemberResult, error) {
		actor, member, scope, err := parseMemberInput(input, resolve)
		if err != nil {
			return nil, WorkspaceMemberResult{}, err
		}
		if err := workspaces.AddMember(ctx, actor, member, scope); err != nil {
			return nil, WorkspaceMemberResult{}, fmt.Errorf("add member: %w", err)
		}
		return nil, WorkspaceMemberResult{Context: scope.String(), Member: member.String()}, nil
	}
}

// WorkspaceMemberRemoveTool defines the MCP tool schema for member removal.
func WorkspaceMemberRemoveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "workspace_member_remove",
		Description: "Removes an identity from a context's workspace. Only the governance executor may do this; removing an absent member succeeds.",
	}
}

// WorkspaceMemberRemoveHandler executes a member removal.
func WorkspaceMemberRemoveHandler(workspaces *workspace.Service, resolve ActorResolver) mcp.ToolHandlerFor[WorkspaceMemberInput, WorkspaceMemberResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WorkspaceMemberInput) (*mcp.CallToolResult, WorkspaceMemberResult, error) {
		actor, member, scope, err := parseMemberInput(input, resolve)
		if err != nil {
			return nil, WorkspaceMemberResult{}, err
		}
		if err := workspaces.RemoveMember(ctx, actor, member, scope); err != nil {
			return nil, WorkspaceMemberResult{}, fmt.Errorf("remove member: %w", err)
		}
		return nil, WorkspaceMemberResult{Context: scope.String(), Member: member.String()}, nil
	}
}

func parseMemberInput(input WorkspaceMemberInput, resolve ActorResolver) (actor, member identity.Identity, scope identity.Context, err error) {
	actor, err = resolve(input.ActorToken, input.Actor)
	if err != nil {
		return identity.Identity{}, identity.Identity{}, identity.Context{}, err
	}
	member, err = parseIdentityField("member", input.Member)
	if err != nil {
		return identity.Identity{}, identity.Identity{}, identity.Context{}, err
	}
	scope, err = parseContextField(input.Context)
	if err != nil {
		return identity.Identity{}, identity.Identity{}, identity.Context{}, err
	}
	return actor, member, scope, nil
}
