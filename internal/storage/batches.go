package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// TrackBatch records an upload batch as pending. Tracking an existing batch
// again is a no-op.
func (s *Store) TrackBatch(id string, totalFiles int) error {
	if id == "" {
		return fmt.Errorf("tracking batch: id is required")
	}
	now := s.timestamp()
	_, err := s.db.Exec(`
		INSERT INTO upload_batches (id, total_files, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, totalFiles, BatchPending, now, now,
	)
	return err
}

// CompleteBatch stores the final counts of a tracked batch.
func (s *Store) CompleteBatch(id string, successCount, errorCount int) error {
	res, err := s.db.Exec(`
		UPDATE upload_batches SET status = ?, success_count = ?, error_count = ?, updated_at = ?
		WHERE id = ?`,
		BatchCompleted, successCount, errorCount, s.timestamp(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetBatch(id string) (Batch, error) {
	row := s.db.QueryRow(`
		SELECT id, total_files, status, success_count, error_count, created_at, updated_at
		FROM upload_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	return b, err
}

// PendingBatches returns tracked batches not yet completed, oldest first.
func (s *Store) PendingBatches() ([]Batch, error) {
	rows, err := s.db.Query(`
		SELECT id, total_files, status, success_count, error_count, created_at, updated_at
		FROM upload_batches WHERE status = ? ORDER BY created_at ASC, id ASC`, BatchPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(sc scanner) (Batch, error) {
	var b Batch
	var createdAt, updatedAt string
	if err := sc.Scan(&b.ID, &b.TotalFiles, &b.Status, &b.SuccessCount, &b.ErrorCount, &createdAt, &updatedAt); err != nil {
		return Batch{}, err
	}
	var err error
	if b.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Batch{}, err
	}
	if b.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Batch{}, err
	}
	return b, nil
}
