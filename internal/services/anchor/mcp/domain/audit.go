package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/filter"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// AuditListInput carries an audit ledger query.
type AuditListInput struct {
	Filter    string `json:"filter,omitempty" jsonschema:"AIP-160 filter over kind, context, actor, principal, and ts, e.g. kind = \"DELEGATED\" AND ts >= timestamp(\"2026-01-01T00:00:00Z\")"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"events per page, capped at 500; defaults to 50"`
	PageToken string `json:"page_token,omitempty" jsonschema:"next_page_token from a previous call"`
}

// AuditEventView is one provenance fact on the wire.
type AuditEventView struct {
	Seq       int64           `json:"seq" jsonschema:"monotonic ledger sequence"`
	Kind      string          `json:"kind" jsonschema:"fact kind, e.g. DELEGATED, RELEASE_ANCHORED"`
	Context   string          `json:"context" jsonschema:"context identifier"`
	Actor     string          `json:"actor" jsonschema:"identity that performed the mutation"`
	Principal string          `json:"principal" jsonschema:"identity the mutation was performed for"`
	Details   json.RawMessage `json:"details" jsonschema:"fact-specific detail object"`
	Timestamp string          `json:"timestamp" jsonschema:"RFC3339 fact timestamp"`
}

// AuditListResult is a page of provenance facts.
type AuditListResult struct {
	Events        []AuditEventView `json:"events" jsonschema:"provenance facts in sequence order"`
	NextPageToken string           `json:"next_page_token,omitempty" jsonschema:"token for the next page, empty on the last page"`
}

// AuditListTool defines the MCP tool schema for audit ledger queries.
func AuditListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "audit_list",
		Description: "Lists provenance facts from the append-only audit ledger in sequence order, with optional AIP-160 filtering over kind, context, actor, principal, and ts.",
	}
}

// AuditListHandler executes an audit ledger query.
func AuditListHandler(events storage.AuditEventStore) mcp.ToolHandlerFor[AuditListInput, AuditListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AuditListInput) (*mcp.CallToolResult, AuditListResult, error) {
		condition, err := filter.ParseAuditFilter(input.Filter)
		if err != nil {
			return nil, AuditListResult{}, fmt.Errorf("parse filter: %w", err)
		}
		page, err := events.ListAuditEvents(ctx, storage.AuditEventQuery{
			Clause:    condition.Clause,
			Params:    condition.Params,
			PageSize:  input.PageSize,
			PageToken: input.PageToken,
		})
		if err != nil {
			return nil, AuditListResult{}, fmt.Errorf("list audit events: %w", err)
		}

		result := AuditListResult{NextPageToken: page.NextPageToken}
		for _, event := range page.Events {
			result.Events = append(result.Events, auditEventView(event))
		}
		return nil, result, nil
	}
}

func auditEventView(event storage.AuditEvent) AuditEventView {
	details := json.RawMessage(event.Payload)
	if !json.Valid(details) {
		details = json.RawMessage("{}")
	}
	return AuditEventView{
		Seq:       event.Seq,
		Kind:      event.Kind,
		Context:   event.Context,
		Actor:     event.Actor,
		Principal: event.Principal,
		Details:   details,
		Timestamp: formatTime(event.Timestamp),
	}
}

// AuditResource describes the readable head of the audit ledger.
func AuditResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "audit_head",
		Title:       "Audit Ledger",
		Description: "Readable first page of the append-only audit ledger. Use the audit_list tool for filtering and paging.",
		MIMEType:    "application/json",
		URI:         "audit://events",
	}
}

// AuditResourceHandler returns the first page of the audit ledger.
func AuditResourceHandler(events storage.AuditEventStore) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("audit URI is required; use audit://events")
		}
		page, err := events.ListAuditEvents(ctx, storage.AuditEventQuery{})
		if err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		payload := AuditListResult{NextPageToken: page.NextPageToken}
		for _, event := range page.Events {
			payload.Events = append(payload.Events, auditEventView(event))
		}
		return marshalResource(req.Params.URI, payload)
	}
}
