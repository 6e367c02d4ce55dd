package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/professor"
)

var interestColumns = []string{"research_interest", "prof_id", "embedding"}

// SaveResearchInterests reads back stored professors (all of them when university
// is empty), embeds each research interest and inserts one row per
// (professor, interest). An interest whose embedding fails is stored with a NULL vector.
func (s *Store) SaveResearchInterests(
	ctx context.Context,
	university string,
	emb professor.Embedder,
) (professor.BatchReport, error) {
	profs, err := s.ListProfessors(ctx, university)
	if err != nil {
		return professor.BatchReport{}, err
	}

	var rows [][]any
	var embedFailures int
	for _, p := range profs {
		for _, rec := range s.interestRecords(ctx, p, emb, &embedFailures) {
			var vec any
			if len(rec.Embedding) > 0 {
				vec = pgvector.NewVector(rec.Embedding)
			}
			rows = append(rows, []any{rec.ResearchInterest, rec.ProfID, vec})
		}
	}
	if err := ctx.Err(); err != nil {
		return professor.BatchReport{}, fmt.Errorf("embed research interests: %w", err)
	}

	report := s.insertBatches(ctx, "research_interests", interestColumns, rows)
	s.logger.Info("research interests saved",
		zap.String("university", university),
		zap.Int("professors", len(profs)),
		zap.Int("interests", len(rows)),
		zap.Int("embed_failures", embedFailures),
		zap.Int("failed_batches", len(report.Failed)),
	)
	return report, nil
}

func (s *Store) interestRecords(
	ctx context.Context,
	p professor.StoredProfessor,
	emb professor.Embedder,
	failures *int,
) []professor.InterestRecord {
	var out []professor.InterestRecord
	for _, interest := range p.ResearchInterests {
		interest = strings.TrimSpace(interest)
		if interest == "" {
			continue
		}
		rec := professor.InterestRecord{ResearchInterest: interest, ProfID: p.ID}
		if emb != nil && ctx.Err() == nil {
			vec, err := emb.Embed(ctx, interest)
			if err != nil {
				*failures++
				s.logger.Warn("embedding failed",
					zap.Int64("prof_id", p.ID),
					zap.String("interest", interest),
					zap.Error(err),
				)
			}
			rec.Embedding = vec
		}
		out = append(out, rec)
	}
	return out
}
