package storage

import (
	"fmt"
	"time"
)

// maxHistory bounds the search_history table; older rows are pruned on insert.
const maxHistory = 200

func (s *Store) RecordSearch(e SearchEntry) error {
	createdAt := s.timestamp()
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO search_history (created_at, query, date_from, date_to, sort_by, sort_order, logic, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt, e.Query, e.DateFrom, e.DateTo, e.SortBy, e.SortOrder, e.Logic, e.Total,
	); err != nil {
		return fmt.Errorf("inserting search: %w", err)
	}
	if _, err := tx.Exec(`
		DELETE FROM search_history WHERE id NOT IN (
			SELECT id FROM search_history ORDER BY id DESC LIMIT ?
		)`, maxHistory,
	); err != nil {
		return fmt.Errorf("pruning search history: %w", err)
	}
	return tx.Commit()
}

// RecentSearches returns up to limit searches, newest first.
func (s *Store) RecentSearches(limit int) ([]SearchEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, query, date_from, date_to, sort_by, sort_order, logic, total
		FROM search_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchEntry
	for rows.Next() {
		var e SearchEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &createdAt, &e.Query, &e.DateFrom, &e.DateTo, &e.SortBy, &e.SortOrder, &e.Logic, &e.Total); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
