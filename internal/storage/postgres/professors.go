package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/professor"
)

var professorColumns = []string{
	"name", "university", "faculty", "department", "website", "email", "research_interests",
}

// SaveProfessors inserts records in batches of the configured size.
func (s *Store) SaveProfessors(ctx context.Context, records []professor.Record) professor.BatchReport {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		interests := r.ResearchInterests
		if interests == nil {
			interests = []string{}
		}
		rows = append(rows, []any{r.Name, r.University, r.Faculty, r.Department, r.Website, r.Email, interests})
	}
	report := s.insertBatches(ctx, "professors", professorColumns, rows)
	s.logger.Info("professors saved",
		zap.Int("records", len(records)),
		zap.Int("batches", report.Batches),
		zap.Int("failed_batches", len(report.Failed)),
	)
	return report
}

// ListProfessors returns stored professors, optionally limited to one university.
func (s *Store) ListProfessors(ctx context.Context, university string) ([]professor.StoredProfessor, error) {
	query := `
		SELECT id, name, university, faculty, department, website, email, research_interests
		FROM professors
		WHERE ($1 = '' OR university = $1)
		ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, query, university)
	if err != nil {
		return nil, fmt.Errorf("list professors: %w", err)
	}
	defer rows.Close()

	var out []professor.StoredProfessor
	for rows.Next() {
		var p professor.StoredProfessor
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.University,
			&p.Faculty,
			&p.Department,
			&p.Website,
			&p.Email,
			&p.ResearchInterests,
		); err != nil {
			return nil, fmt.Errorf("scan professor row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate professors: %w", err)
	}
	return out, nil
}
