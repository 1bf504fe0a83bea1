package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jobhub/apiserver/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categoryRowColumns = []string{"id", "name", "slug", "description", "created_at", "updated_at", "jobs_count"}

func TestCategoryRepositoryGetBySlug(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewCategoryRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM categories c WHERE c.slug = \$1`).
		WithArgs("engineering").
		WillReturnRows(sqlmock.NewRows(categoryRowColumns).AddRow(1, "Engineering", "engineering", "", now, now, 4))
	mock.ExpectQuery(`FROM categories c WHERE c.slug = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(categoryRowColumns))

	category, err := repo.GetBySlug(context.Background(), "engineering")
	require.NoError(t, err)
	assert.Equal(t, 4, category.JobsCount)

	_, err = repo.GetBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryRepositoryListOrderedByName(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewCategoryRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM categories`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`ORDER BY c.name OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 20).
		WillReturnRows(sqlmock.NewRows(categoryRowColumns).
			AddRow(1, "Design", "design", "", now, now, 0).
			AddRow(2, "Engineering", "engineering", "", now, now, 3))

	categories, total, err := repo.List(context.Background(), Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "design", categories[0].Slug)
}

func TestCategoryRepositoryUpdateDuplicateName(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	repo := NewCategoryRepository(db)

	mock.ExpectExec(`UPDATE categories`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "categories_name_key"})

	_, err := repo.Update(context.Background(), types.Category{ID: 1, Name: "Design", Slug: "design"})
	assert.ErrorIs(t, err, ErrConflict)
}
