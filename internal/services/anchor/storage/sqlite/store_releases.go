package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// CreateRelease stores a release record. Fails with ErrConflict when the id
// is taken.
func (s *Store) CreateRelease(ctx context.Context, record storage.ReleaseRecord) error {
	refs, err := json.Marshal(record.SnapshotRefs)
	if err != nil {
		return fmt.Errorf("marshal snapshot refs: %w", err)
	}
	var statusTimestamp sql.NullInt64
	if record.StatusTimestamp != nil {
		statusTimestamp = sql.NullInt64{Int64: toMillis(*record.StatusTimestamp), Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO releases (
    id,
    project_id,
    context,
    manifest_ref,
    name,
    author,
    governance_authority,
    snapshot_refs,
    status,
    revoked,
    superseded_by,
    created_at,
    status_timestamp,
    status_author
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.ProjectID,
		record.Context,
		record.ManifestRef,
		record.Name,
		record.Author,
		record.GovernanceAuthority,
		string(refs),
		record.Status,
		boolToInt(record.Revoked),
		record.SupersededBy,
		toMillis(record.CreatedAt),
		statusTimestamp,
		record.StatusAuthor,
	)
	if isUniqueConstraintError(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

// GetRelease returns a release by id.
func (s *Store) GetRelease(ctx context.Context, id string) (storage.ReleaseRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, project_id, context, manifest_ref, name, author, governance_authority,
       snapshot_refs, status, revoked, superseded_by, created_at, status_timestamp, status_author
FROM releases
WHERE id = ?
`, id)
	return scanRelease(row.Scan)
}

// SetReleaseStatus writes the terminal governance status with its stamp.
func (s *Store) SetReleaseStatus(ctx context.Context, id, status, author string, at time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE releases
SET status = ?, status_author = ?, status_timestamp = ?
WHERE id = ?
`, status, author, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("set release status: %w", err)
	}
	return nil
}

// MarkReleaseRevoked sets the release's one-way revoked flag.
func (s *Store) MarkReleaseRevoked(ctx context.Context, id string, _ time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE releases SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark release revoked: %w", err)
	}
	return nil
}

// SetReleaseSuperseded points the release at its successor.
func (s *Store) SetReleaseSuperseded(ctx context.Context, id, successorID string, _ time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE releases SET superseded_by = ? WHERE id = ?`, successorID, id)
	if err != nil {
		return fmt.Errorf("set release superseded: %w", err)
	}
	return nil
}

// ListReleasesByProject returns every release for a project, oldest first.
func (s *Store) ListReleasesByProject(ctx context.Context, projectID string) ([]storage.ReleaseRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, project_id, context, manifest_ref, name, author, governance_authority,
       snapshot_refs, status, revoked, superseded_by, created_at, status_timestamp, status_author
FROM releases
WHERE project_id = ?
ORDER BY created_at, id
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	var records []storage.ReleaseRecord
	for rows.Next() {
		record, err := scanRelease(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate releases: %w", err)
	}
	return records, nil
}

func scanRelease(scan func(dest ...any) error) (storage.ReleaseRecord, error) {
	var record storage.ReleaseRecord
	var refs string
	var revoked int
	var createdAt int64
	var statusTimestamp sql.NullInt64
	err := scan(
		&record.ID,
		&record.ProjectID,
		&record.Context,
		&record.ManifestRef,
		&record.Name,
		&record.Author,
		&record.GovernanceAuthority,
		&refs,
		&record.Status,
		&revoked,
		&record.SupersededBy,
		&createdAt,
		&statusTimestamp,
		&record.StatusAuthor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ReleaseRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ReleaseRecord{}, fmt.Errorf("scan release: %w", err)
	}
	if err := json.Unmarshal([]byte(refs), &record.SnapshotRefs); err != nil {
		return storage.ReleaseRecord{}, fmt.Errorf("unmarshal snapshot refs: %w", err)
	}
	record.Revoked = revoked != 0
	record.CreatedAt = fromMillis(createdAt)
	if statusTimestamp.Valid {
		value := fromMillis(statusTimestamp.Int64)
		record.StatusTimestamp = &value
	}
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
