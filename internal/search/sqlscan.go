package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLScan is the fallback Searcher: an ILIKE scan over the stored record
// document. Slower than Meilisearch but always available when the database
// is.
type SQLScan struct {
	db *sql.DB
}

// NewSQLScan wraps an open database handle.
func NewSQLScan(db *sql.DB) *SQLScan {
	return &SQLScan{db: db}
}

// Healthy always reports true; the database is a hard dependency anyway.
func (s *SQLScan) Healthy() bool {
	return true
}

// Search scans customer documents for the query text, newest first.
func (s *SQLScan) Search(q Query) ([]Result, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, left(data::text, 200)
		FROM customers
		WHERE organization_id = $1
		  AND deleted_at IS NULL
		  AND data::text ILIKE '%' || $2 || '%'
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		q.OrganizationID, q.Text, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("scan customers: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Preview); err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM customers
		WHERE organization_id = $1
		  AND deleted_at IS NULL
		  AND data::text ILIKE '%' || $2 || '%'`,
		q.OrganizationID, q.Text).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}
	return results, total, nil
}
