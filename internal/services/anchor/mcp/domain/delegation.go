package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/delegation"
)

// GrantView is the wire rendering of a stored grant shared by the register
// tool and the grant resource.
type GrantView struct {
	Principal    string   `json:"principal" jsonschema:"principal identity, 0x-prefixed hex"`
	Relayer      string   `json:"relayer" jsonschema:"relayer identity, 0x-prefixed hex"`
	Context      string   `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	Capabilities []string `json:"capabilities" jsonschema:"granted capability labels, or [\"ALL\"] for the wildcard"`
	Expiry       int64    `json:"expiry" jsonschema:"grant expiry as unix seconds; zero means voided"`
	Live         bool     `json:"live" jsonschema:"whether the grant authorizes anything right now"`
	UpdatedAt    string   `json:"updated_at" jsonschema:"RFC3339 timestamp of the last grant write"`
}

func grantView(grant delegation.Grant, live bool) GrantView {
	return GrantView{
		Principal:    grant.Principal.String(),
		Relayer:      grant.Relayer.String(),
		Context:      grant.Context.String(),
		Capabilities: grant.ScopeMask.Labels(),
		Expiry:       grant.Expiry,
		Live:         live,
		UpdatedAt:    formatTime(grant.UpdatedAt),
	}
}

// DelegationRegisterInput carries a signed grant registration.
type DelegationRegisterInput struct {
	Principal    string   `json:"principal" jsonschema:"principal identity, 0x-prefixed hex"`
	Relayer      string   `json:"relayer" jsonschema:"relayer identity, 0x-prefixed hex"`
	Context      string   `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	Capabilities []string `json:"capabilities" jsonschema:"capability labels to grant (CLAIM, SNAPSHOT, ATTEST, BACKUP, RELEASE) or the single label ALL"`
	Expiry       int64    `json:"expiry" jsonschema:"grant expiry as unix seconds, must be in the future"`
	Deadline     int64    `json:"deadline" jsonschema:"submission deadline as unix seconds"`
	Signature    string   `json:"signature" jsonschema:"base64 Ed25519 envelope (public key then signature) over the grant payload"`
}

// DelegationRegisterResult reports the stored grant.
type DelegationRegisterResult struct {
	Grant GrantView `json:"grant" jsonschema:"the registered grant"`
}

// DelegationRegisterTool defines the MCP tool schema for grant registration.
func DelegationRegisterTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "delegation_register",
		Description: "Registers a signed capability grant from a principal to a relayer within a context. Overwrites any previous grant for the same triple and consumes the principal's nonce.",
	}
}

// DelegationRegisterHandler executes a grant registration.
func DelegationRegisterHandler(engine *delegation.Engine) mcp.ToolHandlerFor[DelegationRegisterInput, DelegationRegisterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DelegationRegisterInput) (*mcp.CallToolResult, DelegationRegisterResult, error) {
		principal, err := parseIdentityField("principal", input.Principal)
		if err != nil {
			return nil, DelegationRegisterResult{}, err
		}
		relayer, err := parseIdentityField("relayer", input.Relayer)
		if err != nil {
			return nil, DelegationRegisterResult{}, err
		}
		scope, err := parseContextField(input.Context)
		if err != nil {
			return nil, DelegationRegisterResult{}, err
		}
		mask, err := parseScopeMask(input.Capabilities)
		if err != nil {
			return nil, DelegationRegisterResult{}, err
		}
		sig, err := decodeSignature(input.Signature)
		if err != nil {
			return nil, DelegationRegisterResult{}, err
		}

		grant, err := engine.RegisterGrant(ctx, delegation.RegisterGrantInput{
			Principal: principal,
			Relayer:   relayer,
			Context:   scope,
			ScopeMask: mask,
			Expiry:    input.Expiry,
			Deadline:  input.Deadline,
			Signature: sig,
		})
		if err != nil {
			return nil, DelegationRegisterResult{}, fmt.Errorf("register grant: %w", err)
		}
		return nil, DelegationRegisterResult{Grant: grantView(grant, true)}, nil
	}
}

// DelegationRevokeInput carries a direct revocation by the principal.
type DelegationRevokeInput struct {
	ActorToken string `json:"actor_token,omitempty" jsonschema:"actor token identifying the principal, when token auth is configured"`
	Actor      string `json:"actor,omitempty" jsonschema:"principal identity, 0x-prefixed hex, when token auth is not configured"`
	Relayer    string `json:"relayer" jsonschema:"relayer identity, 0x-prefixed hex"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
}

// DelegationRevokeResult reports a completed revocation.
type DelegationRevokeResult struct {
	Revoked bool `json:"revoked" jsonschema:"always true on success; revoking an absent grant succeeds"`
}

// DelegationRevokeTool defines the MCP tool schema for direct revocation.
func DelegationRevokeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "delegation_revoke",
		Description: "Voids the caller's own grant to a relayer within a context. Idempotent; no signature or deadline is needed because the caller is the principal.",
	}
}

// DelegationRevokeHandler executes a direct revocation.
func DelegationRevokeHandler(engine *delegation.Engine, resolve ActorResolver) mcp.ToolHandlerFor[DelegationRevokeInput, DelegationRevokeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DelegationRevokeInput) (*mcp.CallToolResult, DelegationRevokeResult, error) {
		actor, err := resolve(input.ActorToken, input.Actor)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		relayer, err := parseIdentityField("relayer", input.Relayer)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		scope, err := parseContextField(input.Context)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		if err := engine.Revoke(ctx, actor, relayer, scope); err != nil {
			return nil, DelegationRevokeResult{}, fmt.Errorf("revoke grant: %w", err)
		}
		return nil, DelegationRevokeResult{Revoked: true}, nil
	}
}

// DelegationRevokeWithSigInput carries a signed, relayer-submittable
// revocation.
type DelegationRevokeWithSigInput struct {
	Principal string `json:"principal" jsonschema:"principal identity, 0x-prefixed hex"`
	Relayer   string `json:"relayer" jsonschema:"relayer identity, 0x-prefixed hex"`
	Context   string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	Deadline  int64  `json:"deadline" jsonschema:"submission deadline as unix seconds"`
	Signature string `json:"signature" jsonschema:"base64 Ed25519 envelope over the revocation payload"`
}

// DelegationRevokeWithSigTool defines the MCP tool schema for signed
// revocation.
func DelegationRevokeWithSigTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "delegation_revoke_with_sig",
		Description: "Voids a grant on behalf of a principal who signed the revocation offline. Any party may submit it before the deadline; the signature consumes the principal's nonce.",
	}
}

// DelegationRevokeWithSigHandler executes a signed revocation.
func DelegationRevokeWithSigHandler(engine *delegation.Engine) mcp.ToolHandlerFor[DelegationRevokeWithSigInput, DelegationRevokeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DelegationRevokeWithSigInput) (*mcp.CallToolResult, DelegationRevokeResult, error) {
		principal, err := parseIdentityField("principal", input.Principal)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		relayer, err := parseIdentityField("relayer", input.Relayer)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		scope, err := parseContextField(input.Context)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		sig, err := decodeSignature(input.Signature)
		if err != nil {
			return nil, DelegationRevokeResult{}, err
		}
		if err := engine.RevokeWithSig(ctx, delegation.RevokeWithSigInput{
			Principal: principal,
			Relayer:   relayer,
			Context:   scope,
			Deadline:  input.Deadline,
			Signature: sig,
		}); err != nil {
			return nil, DelegationRevokeResult{}, fmt.Errorf("revoke grant: %w", err)
		}
		return nil, DelegationRevokeResult{Revoked: true}, nil
	}
}

// DelegationCheckInput carries an authorization query.
type DelegationCheckInput struct {
	Principal  string `json:"principal" jsonschema:"principal identity, 0x-prefixed hex"`
	Relayer    string `json:"relayer" jsonschema:"relayer identity, 0x-prefixed hex"`
	Context    string `json:"context" jsonschema:"context identifier, 0x-prefixed hex"`
	Capability string `json:"capability" jsonschema:"capability label to check (CLAIM, SNAPSHOT, ATTEST, BACKUP, RELEASE)"`
}

// DelegationCheckResult reports an authorization decision.
type DelegationCheckResult struct {
	Authorized bool `json:"authorized" jsonschema:"whether the relayer currently holds the capability for the principal"`
}

// DelegationCheckTool defines the MCP tool schema for authorization queries.
func DelegationCheckTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "delegation_check",
		Description: "Reports whether a relayer currently holds a capability on behalf of a principal within a context. Never mutates state; absent and expired grants answer false.",
	}
}

// DelegationCheckHandler executes an authorization query.
func DelegationCheckHandler(engine *delegation.Engine) mcp.ToolHandlerFor[DelegationCheckInput, DelegationCheckResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DelegationCheckInput) (*mcp.CallToolResult, DelegationCheckResult, error) {
		principal, err := parseIdentityField("principal", input.Principal)
		if err != nil {
			return nil, DelegationCheckResult{}, err
		}
		relayer, err := parseIdentityField("relayer", input.Relayer)
		if err != nil {
			return nil, DelegationCheckResult{}, err
		}
		scope, err := parseContextField(input.Context)
		if err != nil {
			return nil, DelegationCheckResult{}, err
		}
		cap, err := capability.Parse(input.Capability)
		if err != nil {
			return nil, DelegationCheckResult{}, err
		}
		ok, err := engine.IsAuthorized(ctx, principal, relayer, cap, scope)
		if err != nil {
			return nil, DelegationCheckResult{}, fmt.Errorf("check authorization: %w", err)
		}
		return nil, DelegationCheckResult{Authorized: ok}, nil
	}
}

// DelegationNonceInput carries a nonce query.
type DelegationNonceInput struct {
	Principal string `json:"principal" jsonschema:"principal identity, 0x-prefixed hex"`
}

// DelegationNonceResult reports the next expected signing nonce. The nonce is
// a decimal string so 64-bit values survive JSON number precision.
type DelegationNonceResult struct {
	Nonce string `json:"nonce" jsonschema:"next expected signing nonce as a decimal string"`
}

// DelegationNonceTool defines the MCP tool schema for nonce queries.
func DelegationNonceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "delegation_nonce",
		Description: "Returns the principal's next expected signing nonce. Signing clients must embed it in grant and revocation payloads; it advances with every signed mutation.",
	}
}

// DelegationNonceHandler executes a nonce query.
func DelegationNonceHandler(engine *delegation.Engine) mcp.ToolHandlerFor[DelegationNonceInput, DelegationNonceResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DelegationNonceInput) (*mcp.CallToolResult, DelegationNonceResult, error) {
		principal, err := parseIdentityField("principal", input.Principal)
		if err != nil {
			return nil, DelegationNonceResult{}, err
		}
		nonce, err := engine.Nonce(ctx, principal)
		if err != nil {
			return nil, DelegationNonceResult{}, fmt.Errorf("load nonce: %w", err)
		}
		return nil, DelegationNonceResult{Nonce: strconv.FormatUint(nonce, 10)}, nil
	}
}

// GrantResourceTemplate describes the readable grant resource.
func GrantResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "grant",
		Title:       "Capability Grant",
		Description: "Readable capability grant. URI format: grant://{context}/{principal}/{relayer}",
		MIMEType:    "application/json",
		URITemplate: "grant://{context}/{principal}/{relayer}",
	}
}

// GrantResourceHandler returns a readable grant resource.
func GrantResourceHandler(engine *delegation.Engine) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("grant URI is required; use grant://{context}/{principal}/{relayer}")
		}
		uri := req.Params.URI
		scopeHex, principalHex, relayerHex, err := parseGrantURI(uri)
		if err != nil {
			return nil, err
		}
		principal, err := parseIdentityField("principal", principalHex)
		if err != nil {
			return nil, err
		}
		relayer, err := parseIdentityField("relayer", relayerHex)
		if err != nil {
			return nil, err
		}
		scope, err := parseContextField(scopeHex)
		if err != nil {
			return nil, err
		}

		grant, err := engine.GetGrant(ctx, principal, relayer, scope)
		if err != nil {
			return nil, fmt.Errorf("load grant: %w", err)
		}

		data, err := json.MarshalIndent(grantView(grant, grant.Live(time.Now())), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal grant: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	}
}

func parseGrantURI(uri string) (scope, principal, relayer string, err error) {
	rest, ok := strings.CutPrefix(uri, "grant://")
	if !ok {
		return "", "", "", fmt.Errorf("grant URI must start with grant://")
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("grant URI must be grant://{context}/{principal}/{relayer}")
	}
	return parts[0], parts[1], parts[2], nil
}
