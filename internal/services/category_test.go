package services

import (
	"errors"
	"testing"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Software Engineering": "software-engineering",
		"  Sales & Marketing ": "sales-marketing",
		"C++/Embedded":         "c-embedded",
		"---":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestCreateCategory(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})

	category := f.category(t, "Data Science")
	assert.Equal(t, "data-science", category.Slug)

	_, err := f.categories.Create(f.ctx, f.alice, CategoryInput{Name: strPtr("Design")})
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = f.categories.Create(f.ctx, policy.Anonymous(), CategoryInput{Name: strPtr("Design")})
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = f.categories.Create(f.ctx, f.admin, CategoryInput{Name: strPtr("Data Science")})
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = f.categories.Create(f.ctx, f.admin, CategoryInput{Name: strPtr("Ops"), Slug: strPtr("Not A Slug")})
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindValidation, svcErr.Kind)
	assert.Contains(t, svcErr.Fields, "slug")
}

func TestUpdateCategory(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	f.category(t, "Engineering")

	updated, err := f.categories.Update(f.ctx, f.admin, "engineering", CategoryInput{Description: strPtr("Build things")}, true)
	require.NoError(t, err)
	assert.Equal(t, "Engineering", updated.Name)
	assert.Equal(t, "Build things", updated.Description)

	_, err = f.categories.Update(f.ctx, f.admin, "engineering", CategoryInput{Description: strPtr("x")}, false)
	assert.True(t, errors.Is(err, ErrValidation), "full update requires a name")

	_, err = f.categories.Update(f.ctx, f.admin, "missing", CategoryInput{}, true)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.categories.Update(f.ctx, f.bob, "engineering", CategoryInput{}, true)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestCategoryJobsCountOnlyCountsActiveJobs(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	f.job(t, category.ID, true)
	f.job(t, category.ID, true)
	f.job(t, category.ID, false)

	got, err := f.categories.Get(f.ctx, category.Slug)
	require.NoError(t, err)
	assert.Equal(t, 2, got.JobsCount)
}

func TestDeleteCategoryCascades(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	doomed := f.category(t, "Engineering")
	kept := f.category(t, "Design")

	first := f.job(t, doomed.ID, true)
	second := f.job(t, doomed.ID, true)
	survivor := f.job(t, kept.ID, true)

	upload, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{
		JobID:       first.ID,
		CoverLetter: "hello",
		Upload:      textUpload("cv.pdf", "resume"),
	})
	require.NoError(t, err)
	f.apply(t, f.bob, second.ID)
	kept1 := f.apply(t, f.bob, survivor.ID)
	require.Contains(t, f.objects.Keys(), upload.Resume)

	_, err = f.categories.Get(f.ctx, "engineering")
	require.NoError(t, err)

	require.NoError(t, f.categories.Delete(f.ctx, f.admin, "engineering"))

	_, err = f.categories.Get(f.ctx, "engineering")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.jobs.Get(f.ctx, f.admin, first.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = f.jobs.Get(f.ctx, f.admin, second.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	apps, total, err := f.apps.List(f.ctx, f.admin, ApplicationQuery{Page: store.Page{}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, apps, 1)
	assert.Equal(t, kept1.ID, apps[0].ID)

	_, _, jobs, applications := f.db.Counts()
	assert.Equal(t, 1, jobs)
	assert.Equal(t, 1, applications)
	assert.Empty(t, f.objects.Keys(), "uploaded resumes of removed applications are deleted")
	assert.Contains(t, f.recorder.Types(), events.CategoryDeleted)
}

func TestDeleteCategoryRequiresAdmin(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	f.category(t, "Engineering")

	err := f.categories.Delete(f.ctx, f.alice, "engineering")
	assert.True(t, errors.Is(err, ErrForbidden))

	err = f.categories.Delete(f.ctx, f.admin, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
