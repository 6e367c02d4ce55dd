package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// SaveUniversity upserts a university and its directory configuration.
func (s *Store) SaveUniversity(ctx context.Context, name string, directory json.RawMessage) error {
	query := `
		INSERT INTO universities (name, directory)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET directory = EXCLUDED.directory;
	`
	if _, err := s.pool.Exec(ctx, query, name, []byte(directory)); err != nil {
		return fmt.Errorf("upsert university %q: %w", name, err)
	}
	return nil
}

// ListUniversities returns every stored university in name order.
func (s *Store) ListUniversities(ctx context.Context) ([]professor.University, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, directory, created_at FROM universities ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("list universities: %w", err)
	}
	defer rows.Close()

	var out []professor.University
	for rows.Next() {
		var u professor.University
		if err := rows.Scan(&u.Name, &u.Directory, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan university row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universities: %w", err)
	}
	return out, nil
}
