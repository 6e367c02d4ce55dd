package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/professor-crawler/internal/professor"
)

func newMockStore(t *testing.T, batchSize int) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock, batchSize, nil)
	require.NoError(t, err)
	return store, mock
}

func makeRecords(n int) []professor.Record {
	out := make([]professor.Record, n)
	for i := range out {
		out[i] = professor.Record{
			Name:              fmt.Sprintf("Professor %d", i),
			University:        "University of Ottawa",
			ResearchInterests: []string{"Algorithms"},
		}
	}
	return out
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil, 0, nil)
	require.Error(t, err)
}

func TestSaveProfessorsBatchCount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		records int
		batches int
	}{
		{0, 0},
		{1, 1},
		{250, 1},
		{251, 2},
		{600, 3},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d records", tc.records), func(t *testing.T) {
			t.Parallel()
			store, mock := newMockStore(t, 0)
			for range tc.batches {
				mock.ExpectExec("INSERT INTO professors").WillReturnResult(pgxmock.NewResult("INSERT", 250))
			}

			report := store.SaveProfessors(context.Background(), makeRecords(tc.records))

			require.Equal(t, tc.batches, report.Batches)
			require.Equal(t, tc.records, report.Inserted)
			require.True(t, report.OK())
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSaveProfessorsContinuesAfterFailedBatch(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, 2)
	mock.ExpectExec("INSERT INTO professors").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO professors").WillReturnError(errors.New("duplicate key"))
	mock.ExpectExec("INSERT INTO professors").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO professors").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	report := store.SaveProfessors(context.Background(), makeRecords(7))

	require.Equal(t, 4, report.Batches)
	require.Equal(t, []int{2}, report.Failed)
	require.Equal(t, 5, report.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProfessorsArgs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, 0)
	rec := professor.Record{
		Name:       "Ada Lovelace",
		University: "Carleton University",
		Faculty:    "Faculty of Science",
		Department: "Mathematics",
		Website:    "https://carleton.ca/math/people/ada",
		Email:      "ada@carleton.ca",
		ResearchInterests: []string{
			"Analytical engines",
			"Poetical science",
		},
	}
	mock.ExpectExec(`INSERT INTO professors \(name, university, faculty, department, website, email, research_interests\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs(rec.Name, rec.University, rec.Faculty, rec.Department, rec.Website, rec.Email, rec.ResearchInterests).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	report := store.SaveProfessors(context.Background(), []professor.Record{rec})
	require.True(t, report.OK())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertStatementPlaceholders(t *testing.T) {
	t.Parallel()

	query, args := insertStatement("t", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}})
	require.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4)", query)
	require.Equal(t, []any{1, 2, 3, 4}, args)
}

type fakeEmbedder struct {
	fail map[string]bool
}

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail[text] {
		return nil, errors.New("quota exceeded")
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestSaveResearchInterests(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, 0)
	rows := mock.NewRows([]string{
		"id", "name", "university", "faculty", "department", "website", "email", "research_interests",
	}).
		AddRow(int64(7), "Ada", "Carleton University", "Science", "", "https://x", "ada@x.ca",
			[]string{"Robotics", "Optics"})
	mock.ExpectQuery("SELECT id, name, university").
		WithArgs("Carleton University").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO research_interests").
		WithArgs(
			"Robotics", int64(7), pgvector.NewVector([]float32{8, 1}),
			"Optics", int64(7), nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	report, err := store.SaveResearchInterests(context.Background(), "Carleton University",
		fakeEmbedder{fail: map[string]bool{"Optics": true}})

	require.NoError(t, err)
	require.Equal(t, 1, report.Batches)
	require.Equal(t, 2, report.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResearchInterestsQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, 0)
	mock.ExpectQuery("SELECT id, name, university").WithArgs("").WillReturnError(errors.New("connection reset"))

	_, err := store.SaveResearchInterests(context.Background(), "", fakeEmbedder{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUniversity(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, 0)
	dir := []byte(`{"Faculty of Law":"https://www.uottawa.ca/law"}`)
	mock.ExpectExec("INSERT INTO universities").
		WithArgs("University of Ottawa", dir).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveUniversity(context.Background(), "University of Ottawa", dir))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, 0)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
