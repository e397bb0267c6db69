package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/storage"
)

// CreateRepositoryClaim stores a claim, one per (context, repo ref).
func (s *Store) CreateRepositoryClaim(ctx context.Context, record storage.RepositoryClaimRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO repository_claims (context, repo_ref, owner, created_at)
VALUES (?, ?, ?, ?)
`, record.Context, record.RepoRef, record.Owner, toMillis(record.CreatedAt))
	if isUniqueConstraintError(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert repository claim: %w", err)
	}
	return nil
}

// GetRepositoryClaim returns the claim for (context, repo ref).
func (s *Store) GetRepositoryClaim(ctx context.Context, scope, repoRef string) (storage.RepositoryClaimRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT context, repo_ref, owner, created_at
FROM repository_claims
WHERE context = ? AND repo_ref = ?
`, scope, repoRef)

	var record storage.RepositoryClaimRecord
	var createdAt int64
	err := row.Scan(&record.Context, &record.RepoRef, &record.Owner, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RepositoryClaimRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RepositoryClaimRecord{}, fmt.Errorf("scan repository claim: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// DeleteRepositoryClaim drops the claim for (context, repo ref).
func (s *Store) DeleteRepositoryClaim(ctx context.Context, scope, repoRef string) error {
	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM repository_claims WHERE context = ? AND repo_ref = ?
`, scope, repoRef)
	if err != nil {
		return fmt.Errorf("delete repository claim: %w", err)
	}
	return nil
}

// PutSnapshot stores an anchored snapshot; re-anchoring the same root is a
// no-op.
func (s *Store) PutSnapshot(ctx context.Context, record storage.SnapshotRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (context, repo_ref, root_ref, owner, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(repo_ref, root_ref) DO NOTHING
`, record.Context, record.RepoRef, record.RootRef, record.Owner, toMillis(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// SnapshotExists reports whether a snapshot root is anchored for the repo.
func (s *Store) SnapshotExists(ctx context.Context, repoRef, rootRef string) (bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT 1 FROM snapshots WHERE repo_ref = ? AND root_ref = ?
`, repoRef, rootRef)
	var found int
	err := row.Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan snapshot: %w", err)
	}
	return true, nil
}

// PutAttestation stores an attestation record.
func (s *Store) PutAttestation(ctx context.Context, record storage.AttestationRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO attestations (id, context, owner, subject_ref, digest, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, record.ID, record.Context, record.Owner, record.SubjectRef, record.Digest, toMillis(record.CreatedAt))
	if isUniqueConstraintError(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert attestation: %w", err)
	}
	return nil
}

// ListAttestationsBySubject returns attestations for a subject ref, oldest
// first.
func (s *Store) ListAttestationsBySubject(ctx context.Context, scope, subjectRef string) ([]storage.AttestationRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, context, owner, subject_ref, digest, created_at
FROM attestations
WHERE context = ? AND subject_ref = ?
ORDER BY created_at, id
`, scope, subjectRef)
	if err != nil {
		return nil, fmt.Errorf("query attestations: %w", err)
	}
	defer rows.Close()

	var records []storage.AttestationRecord
	for rows.Next() {
		var record storage.AttestationRecord
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.Context, &record.Owner, &record.SubjectRef, &record.Digest, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attestations: %w", err)
	}
	return records, nil
}

// PutBackup stores a backup location record.
func (s *Store) PutBackup(ctx context.Context, record storage.BackupRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO backups (id, context, owner, repo_ref, location_ref, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, record.ID, record.Context, record.Owner, record.RepoRef, record.LocationRef, toMillis(record.CreatedAt))
	if isUniqueConstraintError(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

// ListBackupsByRepo returns backup locations for a repository ref, oldest
// first.
func (s *Store) ListBackupsByRepo(ctx context.Context, scope, repoRef string) ([]storage.BackupRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, context, owner, repo_ref, location_ref, created_at
FROM backups
WHERE context = ? AND repo_ref = ?
ORDER BY created_at, id
`, scope, repoRef)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	var records []storage.BackupRecord
	for rows.Next() {
		var record storage.BackupRecord
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.Context, &record.Owner, &record.RepoRef, &record.LocationRef, &createdAt); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return records, nil
}
