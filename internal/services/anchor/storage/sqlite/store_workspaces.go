package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// CreateWorkspace stores a workspace record, one per context.
func (s *Store) CreateWorkspace(ctx context.Context, record storage.WorkspaceRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO workspaces (context, name, governance_executor, created_at)
VALUES (?, ?, ?, ?)
`, record.Context, record.Name, record.GovernanceExecutor, toMillis(record.CreatedAt))
	if isUniqueConstraintError(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

// GetWorkspace returns the workspace for a context.
func (s *Store) GetWorkspace(ctx context.Context, scope string) (storage.WorkspaceRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT context, name, governance_executor, created_at
FROM workspaces
WHERE context = ?
`, scope)

	var record storage.WorkspaceRecord
	var createdAt int64
	err := row.Scan(&record.Context, &record.Name, &record.GovernanceExecutor, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.WorkspaceRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.WorkspaceRecord{}, fmt.Errorf("scan workspace: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// AddMember enrolls a member; re-adding is a no-op.
func (s *Store) AddMember(ctx context.Context, scope, member string, addedAt time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO workspace_members (context, member, added_at)
VALUES (?, ?, ?)
ON CONFLICT(context, member) DO NOTHING
`, scope, member, toMillis(addedAt))
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember removes a member; removing an absent member succeeds.
func (s *Store) RemoveMember(ctx context.Context, scope, member string) error {
	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM workspace_members WHERE context = ? AND member = ?
`, scope, member)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// IsMember reports whether the identity belongs to the context's workspace.
func (s *Store) IsMember(ctx context.Context, scope, member string) (bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT 1 FROM workspace_members WHERE context = ? AND member = ?
`, scope, member)
	var found int
	err := row.Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan membership: %w", err)
	}
	return true, nil
}
