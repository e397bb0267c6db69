package domain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/registry"
)

// RepositoryClaimInput carries a repository claim request.
type RepositoryClaimInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	Owner      string `json:"owner" jsonschema:"owner identity the claim is recorded for"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	RepoRef    string `json:"repo_ref" jsonschema:"repository reference to claim"`
}

// RepositoryClaimResult reports a recorded claim.
type RepositoryClaimResult struct {
	Context string `json:"context" jsonschema:"context identifier"`
	RepoRef string `json:"repo_ref" jsonschema:"claimed repository reference"`
	Owner   string `json:"owner" jsonschema:"owner identity"`
}

// RepositoryClaimTool defines the MCP tool schema for repository claims.
func RepositoryClaimTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "repository_claim",
		Description: "Records ownership of a repository ref within a context, one claim per (context, repo ref). The caller must be the owner or hold a CLAIM grant from the owner.",
	}
}

// RepositoryClaimHandler executes a repository claim.
func RepositoryClaimHandler(registries *registry.Service, resolve ActorResolver) mcp.ToolHandlerFor[RepositoryClaimInput, RepositoryClaimResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RepositoryClaimInput) (*mcp.CallToolResult, RepositoryClaimResult, error) {
		actor, owner, scope, err := parseOwnedInput(input.ActorToken, input.Actor, input.Owner, input.Context, resolve)
		if err != nil {
			return nil, RepositoryClaimResult{}, err
		}
		if err := registries.ClaimRepository(ctx, registry.ClaimInput{
			Owner:   owner,
			Context: scope,
			RepoRef: input.RepoRef,
			Actor:   actor,
		}); err != nil {
			return nil, RepositoryClaimResult{}, fmt.Errorf("claim repository: %w", err)
		}
		return nil, RepositoryClaimResult{
			Context: scope.String(),
			RepoRef: input.RepoRef,
			Owner:   owner.String(),
		}, nil
	}
}

// RepositoryClaimReleaseInput carries a claim release request.
type RepositoryClaimReleaseInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	RepoRef    string `json:"repo_ref" jsonschema:"claimed repository reference to release"`
}

// RepositoryClaimReleaseResult reports a dropped claim.
type RepositoryClaimReleaseResult struct {
	Released bool `json:"released" jsonschema:"always true on success"`
}

// RepositoryClaimReleaseTool defines the MCP tool schema for dropping claims.
func RepositoryClaimReleaseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "repository_claim_release",
		Description: "Drops a repository claim. Only the claim's owner or a CLAIM delegate of the owner may drop it.",
	}
}

// RepositoryClaimReleaseHandler executes a claim release.
func RepositoryClaimReleaseHandler(registries *registry.Service, resolve ActorResolver) mcp.ToolHandlerFor[RepositoryClaimReleaseInput, RepositoryClaimReleaseResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RepositoryClaimReleaseInput) (*mcp.CallToolResult, RepositoryClaimReleaseResult, error) {
		actor, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, RepositoryClaimReleaseResult{}, err
		}
		scope, err := parseContextField(input.Context)
		if err != nil {
			return nil, RepositoryClaimReleaseResult{}, err
		}
		if err := registries.ReleaseClaim(ctx, scope, input.RepoRef, actor); err != nil {
			return nil, RepositoryClaimReleaseResult{}, fmt.Errorf("release claim: %w", err)
		}
		return nil, RepositoryClaimReleaseResult{Released: true}, nil
	}
}

// SnapshotAnchorInput carries a snapshot anchoring request.
type SnapshotAnchorInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	Owner      string `json:"owner" jsonschema:"owner identity the snapshot is anchored for"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	RepoRef    string `json:"repo_ref" jsonschema:"repository reference"`
	RootRef    string `json:"root_ref" jsonschema:"snapshot root; must equal the blake3 content ref of the manifest"`
	Manifest   string `json:"manifest" jsonschema:"base64 snapshot manifest bytes"`
}

// SnapshotAnchorResult reports an anchored snapshot.
type SnapshotAnchorResult struct {
	RepoRef string `json:"repo_ref" jsonschema:"repository reference"`
	RootRef string `json:"root_ref" jsonschema:"anchored snapshot root"`
}

// SnapshotAnchorTool defines the MCP tool schema for snapshot anchoring.
func SnapshotAnchorTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "snapshot_anchor",
		Description: "Anchors a source snapshot root for a repository ref. The root must be the blake3 content ref of the supplied manifest; re-anchoring the same root is a no-op. The caller must be the owner or hold a SNAPSHOT grant from the owner.",
	}
}

// SnapshotAnchorHandler executes a snapshot anchoring.
func SnapshotAnchorHandler(registries *registry.Service, resolve ActorResolver) mcp.ToolHandlerFor[SnapshotAnchorInput, SnapshotAnchorResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SnapshotAnchorInput) (*mcp.CallToolResult, SnapshotAnchorResult, error) {
		actor, owner, scope, err := parseOwnedInput(input.ActorToken, input.Actor, input.Owner, input.Context, resolve)
		if err != nil {
			return nil, SnapshotAnchorResult{}, err
		}
		manifest, err := base64.StdEncoding.DecodeString(input.Manifest)
		if err != nil {
			return nil, SnapshotAnchorResult{}, fmt.Errorf("decode manifest: %w", err)
		}
		if err := registries.AnchorSnapshot(ctx, registry.SnapshotInput{
			Owner:    owner,
			Context:  scope,
			RepoRef:  input.RepoRef,
			RootRef:  input.RootRef,
			Manifest: manifest,
			Actor:    actor,
		}); err != nil {
			return nil, SnapshotAnchorResult{}, fmt.Errorf("anchor snapshot: %w", err)
		}
		return nil, SnapshotAnchorResult{RepoRef: input.RepoRef, RootRef: input.RootRef}, nil
	}
}

// AttestationRecordInput carries an attestation record request.
type AttestationRecordInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	Owner      string `json:"owner" jsonschema:"owner identity the attestation is recorded for"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	SubjectRef string `json:"subject_ref" jsonschema:"subject the attestation covers, e.g. a release or snapshot ref"`
	Digest     string `json:"digest" jsonschema:"attestation content digest"`
}

// AttestationRecordResult reports a recorded attestation.
type AttestationRecordResult struct {
	ID         string `json:"id" jsonschema:"attestation identifier"`
	SubjectRef string `json:"subject_ref" jsonschema:"attested subject"`
	Digest     string `json:"digest" jsonschema:"attestation digest"`
	CreatedAt  string `json:"created_at" jsonschema:"RFC3339 record timestamp"`
}

// AttestationRecordTool defines the MCP tool schema for attestations.
func AttestationRecordTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "attestation_record",
		Description: "Records an attestation digest for a subject ref. The caller must be the owner or hold an ATTEST grant from the owner.",
	}
}

// AttestationRecordHandler executes an attestation record.
func AttestationRecordHandler(registries *registry.Service, resolve ActorResolver) mcp.ToolHandlerFor[AttestationRecordInput, AttestationRecordResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AttestationRecordInput) (*mcp.CallToolResult, AttestationRecordResult, error) {
		actor, owner, scope, err := parseOwnedInput(input.ActorToken, input.Actor, input.Owner, input.Context, resolve)
		if err != nil {
			return nil, AttestationRecordResult{}, err
		}
		record, err := registries.RecordAttestation(ctx, registry.AttestationInput{
			Owner:      owner,
			Context:    scope,
			SubjectRef: input.SubjectRef,
			Digest:     input.Digest,
			Actor:      actor,
		})
		if err != nil {
			return nil, AttestationRecordResult{}, fmt.Errorf("record attestation: %w", err)
		}
		return nil, AttestationRecordResult{
			ID:         record.ID,
			SubjectRef: record.SubjectRef,
			Digest:     record.Digest,
			CreatedAt:  formatTime(record.CreatedAt),
		}, nil
	}
}

// BackupRecordInput carries a backup location record request.
type BackupRecordInput struct {
	ActorToken  string `json:"actor_token,omitempty" jsonschema:"actor token identifying the caller, when token auth is configured"`
	Actor       string `json:"actor,omitempty" jsonschema:"caller identity, 0x-prefixed hex, when token auth is not configured"`
	Owner       string `json:"owner" jsonschema:"owner identity the backup is recorded for"`
	Context     string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	RepoRef     string `json:"repo_ref" jsonschema:"repository reference"`
	LocationRef string `json:"location_ref" jsonschema:"off-site backup location reference"`
}

// BackupRecordResult reports a recorded backup location.
type BackupRecordResult struct {
	ID          string `json:"id" jsonschema:"backup record identifier"`
	RepoRef     string `json:"repo_ref" jsonschema:"repository reference"`
	LocationRef string `json:"location_ref" jsonschema:"backup location reference"`
	CreatedAt   string `json:"created_at" jsonschema:"RFC3339 record timestamp"`
}

// BackupRecordTool defines the MCP tool schema for backup locations.
func BackupRecordTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "backup_record",
		Description: "Records an off-site backup location for a repository ref. The caller must be the owner or hold a BACKUP grant from the owner.",
	}
}

// BackupRecordHandler executes a backup location record.
func BackupRecordHandler(registries *registry.Service, resolve ActorResolver) mcp.ToolHandlerFor[BackupRecordInput, BackupRecordResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input BackupRecordInput) (*mcp.CallToolResult, BackupRecordResult, error) {
		actor, owner, scope, err := parseOwnedInput(input.ActorToken, input.Actor, input.Owner, input.Context, resolve)
		if err != nil {
			return nil, BackupRecordResult{}, err
		}
		record, err := registries.RecordBackup(ctx, registry.BackupInput{
			Owner:       owner,
			Context:     scope,
			RepoRef:     input.RepoRef,
			LocationRef: input.LocationRef,
			Actor:       actor,
		})
		if err != nil {
			return nil, BackupRecordResult{}, fmt.Errorf("record backup: %w", err)
		}
		return nil, BackupRecordResult{
			ID:          record.ID,
			RepoRef:     record.RepoRef,
			LocationRef: record.LocationRef,
			CreatedAt:   formatTime(record.CreatedAt),
		}, nil
	}
}

func parseOwnedInput(token, actorHex, ownerHex, contextHex string, resolve ActorResolver) (actor, owner identity.Identity, scope identity.Context, err error) {
	actor, err = resolve(token, actorHex)
	if err != nil {
		return identity.Identity{}, identity.Identity{}, identity.Context{}, err
	}
	owner, err = parseIdentityField("owner", ownerHex)
	if err != nil {
		return identity.Identity{}, identity.Identity{}, identity.Context{}, err
	}
	scope, err = parseContextField(contextHex)
	if err != nil {
		return identity.Identity{}, identity.Identity{}, identity.Context{}, err
	}
	return actor, owner, scope, nil
}

// AttestationListEntry is one attestation in the listing resource.
type AttestationListEntry struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	SubjectRef string `json:"subject_ref"`
	Digest     string `json:"digest"`
	CreatedAt  string `json:"created_at"`
}

// AttestationListPayload is the JSON body of the attestation listing resource.
type AttestationListPayload struct {
	Attestations []AttestationListEntry `json:"attestations"`
}

// AttestationListResourceTemplate describes the attestation listing resource.
func AttestationListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "attestation_list",
		Title:       "Attestations",
		Description: "Readable attestations for a subject ref, oldest first. URI format: registry://{context}/attestations/{subject_ref}",
		MIMEType:    "application/json",
		URITemplate: "registry://{context}/attestations/{subject_ref}",
	}
}

// AttestationListResourceHandler returns a readable attestation listing.
func AttestationListResourceHandler(registries *registry.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		scope, subjectRef, err := parseRegistryURI(req, "attestations")
		if err != nil {
			return nil, err
		}
		records, err := registries.ListAttestationsBySubject(ctx, scope, subjectRef)
		if err != nil {
			return nil, fmt.Errorf("list attestations: %w", err)
		}
		payload := AttestationListPayload{}
		for _, record := range records {
			payload.Attestations = append(payload.Attestations, AttestationListEntry{
				ID:         record.ID,
				Owner:      record.Owner,
				SubjectRef: record.SubjectRef,
				Digest:     record.Digest,
				CreatedAt:  formatTime(record.CreatedAt),
			})
		}
		return marshalResource(req.Params.URI, payload)
	}
}

// BackupListEntry is one backup location in the listing resource.
type BackupListEntry struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	RepoRef     string `json:"repo_ref"`
	LocationRef string `json:"location_ref"`
	CreatedAt   string `json:"created_at"`
}

// BackupListPayload is the JSON body of the backup listing resource.
type BackupListPayload struct {
	Backups []BackupListEntry `json:"backups"`
}

// BackupListResourceTemplate describes the backup listing resource.
func BackupListResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "backup_list",
		Title:       "Backups",
		Description: "Readable backup locations for a repository ref, oldest first. URI format: registry://{context}/backups/{repo_ref}",
		MIMEType:    "application/json",
		URITemplate: "registry://{context}/backups/{repo_ref}",
	}
}

// BackupListResourceHandler returns a readable backup listing.
func BackupListResourceHandler(registries *registry.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		scope, repoRef, err := parseRegistryURI(req, "backups")
		if err != nil {
			return nil, err
		}
		records, err := registries.ListBackupsByRepo(ctx, scope, repoRef)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		payload := BackupListPayload{}
		for _, record := range records {
			payload.Backups = append(payload.Backups, BackupListEntry{
				ID:          record.ID,
				Owner:       record.Owner,
				RepoRef:     record.RepoRef,
				LocationRef: record.LocationRef,
				CreatedAt:   formatTime(record.CreatedAt),
			})
		}
		return marshalResource(req.Params.URI, payload)
	}
}

func parseRegistryURI(req *mcp.ReadResourceRequest, collection string) (identity.Context, string, error) {
	if req == nil || req.Params == nil || req.Params.URI == "" {
		return identity.Context{}, "", fmt.Errorf("registry URI is required; use registry://{context}/%s/{ref}", collection)
	}
	rest, ok := strings.CutPrefix(req.Params.URI, "registry://")
	if !ok {
		return identity.Context{}, "", fmt.Errorf("registry URI must start with registry://")
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] != collection || parts[2] == "" {
		return identity.Context{}, "", fmt.Errorf("registry URI must be registry://{context}/%s/{ref}", collection)
	}
	scope, err := parseContextField(parts[0])
	if err != nil {
		return identity.Context{}, "", err
	}
	return scope, parts[2], nil
}

func marshalResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource payload: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}
