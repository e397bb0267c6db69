package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/release"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// SnapshotRefInput is one repository snapshot reference in a release.
type SnapshotRefInput struct {
	RepoRef string `json:"repo_ref" jsonschema:"repository reference"`
	RootRef string `json:"root_ref" jsonschema:"anchored snapshot root, blake3 content ref"`
}

// ReleaseView is the wire rendering of a release shared by the tools and the
// release resources.
type ReleaseView struct {
	ID                  string             `json:"id" jsonschema:"release identifier"`
	ProjectID           string             `json:"project_id" jsonschema:"project identifier"`
	Context             string             `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	ManifestRef         string             `json:"manifest_ref" jsonschema:"release manifest content ref"`
	Name                string             `json:"name" jsonschema:"release name"`
	Author              string             `json:"author" jsonschema:"author identity"`
	GovernanceAuthority string             `json:"governance_authority" jsonschema:"governance authority identity"`
	SnapshotRefs        []SnapshotRefInput `json:"snapshot_refs" jsonschema:"anchored snapshot references"`
	Status              string             `json:"status" jsonschema:"governance status (PENDING, ACCEPTED, REJECTED)"`
	Revoked             bool               `json:"revoked" jsonschema:"whether the release is revoked"`
	SupersededBy        string             `json:"superseded_by,omitempty" jsonschema:"successor release id, when superseded"`
	CreatedAt           string             `json:"created_at" jsonschema:"RFC3339 anchoring timestamp"`
	StatusTimestamp     string             `json:"status_timestamp,omitempty" jsonschema:"RFC3339 timestamp of the governance decision"`
	StatusAuthor        string             `json:"status_author,omitempty" jsonschema:"identity that set the governance status"`
}

func releaseView(r release.Release) ReleaseView {
	view := ReleaseView{
		ID:                  r.ID,
		ProjectID:           r.ProjectID,
		Context:             r.Context.String(),
		ManifestRef:         r.ManifestRef,
		Name:                r.Name,
		Author:              r.Author.String(),
		GovernanceAuthority: r.GovernanceAuthority.String(),
		Status:              r.Status,
		Revoked:             r.Revoked,
		SupersededBy:        r.SupersededBy,
		CreatedAt:           formatTime(r.CreatedAt),
	}
	for _, ref := range r.SnapshotRefs {
		view.SnapshotRefs = append(view.SnapshotRefs, SnapshotRefInput{RepoRef: ref.RepoRef, RootRef: ref.RootRef})
	}
	if r.StatusTimestamp != nil {
		view.StatusTimestamp = formatTime(*r.StatusTimestamp)
	}
	if !r.StatusAuthor.Zero() {
		view.StatusAuthor = r.StatusAuthor.String()
	}
	return view
}

// ReleaseAnchorInput carries a release anchoring request.
type ReleaseAnchorInput struct {
	ActorToken          string             `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor               string             `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	ID                  string             `json:"id" jsonschema:"release identifier, unique forever"`
	ProjectID           string             `json:"project_id" jsonschema:"project identifier"`
	Context             string             `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	ManifestRef         string             `json:"manifest_ref" jsonschema:"release manifest content ref"`
	Name                string             `json:"name,omitempty" jsonschema:"release name"`
	Author              string             `json:"author" jsonschema:"author identity the release is anchored for"`
	GovernanceAuthority string             `json:"governance_authority" jsonschema:"identity holding governance standing"`
	SnapshotRefs        []SnapshotRefInput `json:"snapshot_refs" jsonschema:"snapshot references; every root must already be anchored"`
}

// ReleaseAnchorResult reports the anchored release.
type ReleaseAnchorResult struct {
	Release ReleaseView `json:"release" jsonschema:"the anchored release, in PENDING"`
}

// ReleaseAnchorTool defines the MCP tool schema for anchoring a release.
func ReleaseAnchorTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "release_anchor",
		Description: "Anchors a release in PENDING. The author and governance authority must belong to the context's workspace and every snapshot ref must already be anchored. The caller must be the author or hold a RELEASE grant from the author.",
	}
}

// ReleaseAnchorHandler executes a release anchoring.
func ReleaseAnchorHandler(releases *release.Service, resolve ActorResolver) mcp.ToolHandlerFor[ReleaseAnchorInput, ReleaseAnchorResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ReleaseAnchorInput) (*mcp.CallToolResult, ReleaseAnchorResult, error) {
		actor, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, ReleaseAnchorResult{}, err
		}
		author, err := parseIdentityField("author", input.Author)
		if err != nil {
			return nil, ReleaseAnchorResult{}, err
		}
		authority, err := parseIdentityField("governance_authority", input.GovernanceAuthority)
		if err != nil {
			return nil, ReleaseAnchorResult{}, err
		}
		scope, err := parseContextField(input.Context)
		if err != nil {
			return nil, ReleaseAnchorResult{}, err
		}
		refs := make([]storage.SnapshotRef, 0, len(input.SnapshotRefs))
		for _, ref := range input.SnapshotRefs {
			refs = append(refs, storage.SnapshotRef{RepoRef: ref.RepoRef, RootRef: ref.RootRef})
		}

		anchored, err := releases.Anchor(ctx, release.AnchorInput{
			ID:                  input.ID,
			ProjectID:           input.ProjectID,
			Context:             scope,
			ManifestRef:         input.ManifestRef,
			Name:                input.Name,
			Author:              author,
			GovernanceAuthority: authority,
			SnapshotRefs:        refs,
			Actor:               actor,
		})
		if err != nil {
			return nil, ReleaseAnchorResult{}, fmt.Errorf("anchor release: %w", err)
		}
		return nil, ReleaseAnchorResult{Release: releaseView(anchored)}, nil
	}
}

// ReleaseSetStatusInput carries a governance decision.
type ReleaseSetStatusInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	ID         string `json:"id" jsonschema:"release identifier"`
	Status     string `json:"status" jsonschema:"terminal status, ACCEPTED or REJECTED"`
}

// ReleaseResult reports a release after a governance mutation.
type ReleaseResult struct {
	Release ReleaseView `json:"release" jsonschema:"the release after the mutation"`
}

// ReleaseSetStatusTool defines the MCP tool schema for governance decisions.
func ReleaseSetStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "release_set_status",
		Description: "Moves a PENDING release to ACCEPTED or REJECTED. The transition is terminal. Standing is held by the governance authority, the workspace's governance executor, or a RELEASE delegate of the authority.",
	}
}

// ReleaseSetStatusHandler executes a governance decision.
func ReleaseSetStatusHandler(releases *release.Service, resolve ActorResolver) mcp.ToolHandlerFor[ReleaseSetStatusInput, ReleaseResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ReleaseSetStatusInput) (*mcp.CallToolResult, ReleaseResult, error) {
		actor, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, ReleaseResult{}, err
		}
		decided, err := releases.SetStatus(ctx, input.ID, strings.ToUpper(strings.TrimSpace(input.Status)), actor)
		if err != nil {
			return nil, ReleaseResult{}, fmt.Errorf("set release status: %w", err)
		}
		return nil, ReleaseResult{Release: releaseView(decided)}, nil
	}
}

// ReleaseRevokeInput carries a release revocation.
type ReleaseRevokeInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	ID         string `json:"id" jsonschema:"release identifier"`
	Author     string `json:"author" jsonschema:"the release's author identity; must match the stored author"`
}

// ReleaseRevokeTool defines the MCP tool schema for release revocation.
func ReleaseRevokeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "release_revoke",
		Description: "Sets a release's one-way revoked flag. Works in any governance status and is idempotent. The caller must be the author or hold a RELEASE grant from the author.",
	}
}

// ReleaseRevokeHandler executes a release revocation.
func ReleaseRevokeHandler(releases *release.Service, resolve ActorResolver) mcp.ToolHandlerFor[ReleaseRevokeInput, ReleaseResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ReleaseRevokeInput) (*mcp.CallToolResult, ReleaseResult, error) {
		actor, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, ReleaseResult{}, err
		}
		author, err := parseIdentityField("author", input.Author)
		if err != nil {
			return nil, ReleaseResult{}, err
		}
		revoked, err := releases.Revoke(ctx, input.ID, author, actor)
		if err != nil {
			return nil, ReleaseResult{}, fmt.Errorf("revoke release: %w", err)
		}
		return nil, ReleaseResult{Release: releaseView(revoked)}, nil
	}
}

// ReleaseSupersedeInput carries a supersession request.
type ReleaseSupersedeInput struct {
	ActorToken  string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor       string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	ID          string `json:"id" jsonschema:"revoked release identifier"`
	SuccessorID string `json:"successor_id" jsonschema:"successor release identifier, same project"`
	Author      string `json:"author" jsonschema:"the release's author identity; must match the stored author"`
}

// ReleaseSupersedeTool defines the MCP tool schema for supersession.
func ReleaseSupersedeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "release_supersede",
		Description: "Points a revoked release at its successor within the same project. The pointer is set at most once, building forward-only succession chains.",
	}
}

// ReleaseSupersedeHandler executes a supersession.
func ReleaseSupersedeHandler(releases *release.Service, resolve ActorResolver) mcp.ToolHandlerFor[ReleaseSupersedeInput, ReleaseResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ReleaseSupersedeInput) (*mcp.CallToolResult, ReleaseResult, error) {
		actor, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, ReleaseResult{}, err
		}
		author, err := parseIdentityField("author", input.Author)
		if err != nil {
			return nil, ReleaseResult{}, err
		}
		superseded, err := releases.Supersede(ctx, input.ID, input.SuccessorID, author, actor)
		if err != nil {
			return nil, ReleaseResult{}, fmt.Errorf("supersede release: %w", err)
		}
		return nil, ReleaseResult{Release: releaseView(superseded)}, nil
	}
}

// ReleaseResourceTemplate describes the readable release resource.
func ReleaseResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "release",
		Title:       "Release",
		Description: "Readable release record. URI format: release://{release_id}",
		MIMEType:    "application/json",
		URITemplate: "release://{release_id}",
	}
}

// ReleaseResourceHandler returns a readable release resource.
func ReleaseResourceHandler(releases *release.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("release URI is required; use release://{release_id}")
		}
		uri := req.Params.URI
		id, ok := strings.CutPrefix(uri, "release://")
		if !ok || id == "" {
			return nil, fmt.Errorf("release URI must be release://{release_id}")
		}
		loaded, err := releases.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load release: %w", err)
		}
		data, err := json.MarshalIndent(releaseView(loaded), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal release: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	}
}

// ReleaseListPayload is the JSON body of the project release listing resource.
type ReleaseListPayload struct {
	Releases []ReleaseView `json:"releases"`
}

// ReleaseListResourceTemplate describes the project release listing resource.
func ReleaseListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "release_list",
		Title:       "Project Releases",
		Description: "Readable listing of releases for a project, oldest first. URI format: project://{project_id}/releases",
		MIMEType:    "application/json",
		URITemplate: "project://{project_id}/releases",
	}
}

// ReleaseListResourceHandler returns a readable project release listing.
func ReleaseListResourceHandler(releases *release.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("project URI is required; use project://{project_id}/releases")
		}
		uri := req.Params.URI
		rest, ok := strings.CutPrefix(uri, "project://")
		if !ok {
			return nil, fmt.Errorf("project URI must start with project://")
		}
		projectID, ok := strings.CutSuffix(rest, "/releases")
		if !ok || projectID == "" {
			return nil, fmt.Errorf("project URI must be project://{project_id}/releases")
		}

		listed, err := releases.ListByProject(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("list releases: %w", err)
		}
		payload := ReleaseListPayload{}
		for _, r := range listed {
			payload.Releases = append(payload.Releases, releaseView(r))
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal release list: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	}
}
