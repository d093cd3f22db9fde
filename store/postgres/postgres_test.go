package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpras-dashboard/sarpras-sync/store"
)

func setupMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres"), 0, nil), mock
}

func TestSelect(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT "id", "npsn" FROM "schools" WHERE "npsn" IN \(\$1, \$2\) ORDER BY "id" ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "npsn"}).
			AddRow([]byte("10"), "123456").
			AddRow([]byte("11"), "654321"))

	rows, err := s.Select(context.Background(), "schools", store.Query{
		Columns: []string{"id", "npsn"},
		Filters: []store.Filter{store.In("npsn", "123456", "654321")},
		Order:   []string{"id"},
		Limit:   1000,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "10", rows[0]["id"])
	assert.Equal(t, "654321", rows[1]["npsn"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertGroupsByColumnSet(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO "class_conditions" \("good", "school_id"\) VALUES \(\$1, \$2\), \(\$3, \$4\) ON CONFLICT \("school_id"\) DO UPDATE SET "good" = EXCLUDED."good"`).
		WithArgs(5.0, "1", 3.0, "2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "class_conditions" \("heavy_damage", "school_id"\) VALUES \(\$1, \$2\) ON CONFLICT`).
		WithArgs(1.0, "3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Upsert(context.Background(), "class_conditions", []store.Row{
		{"school_id": "1", "good": 5.0},
		{"school_id": "2", "good": 3.0},
		{"school_id": "3", "heavy_damage": 1.0},
	}, "school_id")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertKeyOnlyDoesNothing(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO "schools" \("npsn"\) VALUES \(\$1\) ON CONFLICT \("npsn"\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Upsert(context.Background(), "schools", []store.Row{{"npsn": "1"}}, "npsn"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReturnsRowsAffected(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec(`DELETE FROM "toilets" WHERE "school_id" IN \(\$1, \$2\)`).
		WithArgs("1", "2").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.Delete(context.Background(), "toilets", store.In("school_id", "1", "2"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec(`UPDATE "schools" SET "name" = \$1 WHERE "id" = \$2`).
		WithArgs("SD A", "10").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Update(context.Background(), "schools", store.Row{"name": "SD A"}, store.Eq("id", "10")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecErrorIsWrapped(t *testing.T) {
	s, mock := setupMockDB(t)
	boom := errors.New("connection reset")

	mock.ExpectExec(`INSERT INTO "libraries"`).WillReturnError(boom)

	err := s.Insert(context.Background(), "libraries", []store.Row{{"school_id": "1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestUnfilteredDeleteRefused(t *testing.T) {
	s, _ := setupMockDB(t)
	_, err := s.Delete(context.Background(), "toilets")
	assert.Error(t, err)
}
