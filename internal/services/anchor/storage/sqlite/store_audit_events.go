package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// Audit timestamps are stored as RFC3339Nano text so the lexical comparisons
// produced by the filter translator order correctly.

// AppendAuditEvent appends a provenance fact; the sequence is assigned by
// the database.
func (s *Store) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (kind, context, actor, principal, payload, timestamp)
VALUES (?, ?, ?, ?, ?, ?)
`,
		event.Kind,
		event.Context,
		event.Actor,
		event.Principal,
		event.Payload,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns a page of facts in sequence order. The page token
// is the last sequence of the previous page.
func (s *Store) ListAuditEvents(ctx context.Context, query storage.AuditEventQuery) (storage.AuditEventPage, error) {
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}

	afterSeq := int64(0)
	if query.PageToken != "" {
		parsed, err := strconv.ParseInt(query.PageToken, 10, 64)
		if err != nil {
			return storage.AuditEventPage{}, fmt.Errorf("parse page token: %w", err)
		}
		afterSeq = parsed
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT seq, kind, context, actor, principal, payload, timestamp
FROM audit_events
WHERE seq > ?`)
	params := []any{afterSeq}
	if query.Clause != "" {
		sb.WriteString(" AND ")
		sb.WriteString(query.Clause)
		params = append(params, query.Params...)
	}
	sb.WriteString(" ORDER BY seq LIMIT ?")
	params = append(params, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, sb.String(), params...)
	if err != nil {
		return storage.AuditEventPage{}, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var event storage.AuditEvent
		var timestamp string
		if err := rows.Scan(&event.Seq, &event.Kind, &event.Context, &event.Actor, &event.Principal, &event.Payload, &timestamp); err != nil {
			return storage.AuditEventPage{}, fmt.Errorf("scan audit event: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return storage.AuditEventPage{}, fmt.Errorf("parse stored timestamp: %w", err)
		}
		event.Timestamp = parsed.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return storage.AuditEventPage{}, fmt.Errorf("iterate audit events: %w", err)
	}

	page := storage.AuditEventPage{Events: events}
	if len(events) > pageSize {
		page.Events = events[:pageSize]
		page.NextPageToken = strconv.FormatInt(page.Events[pageSize-1].Seq, 10)
	}
	return page, nil
}
