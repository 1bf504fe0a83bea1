package services

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/internal/workflow"
	"github.com/jobhub/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)

	app := f.apply(t, f.alice, job.ID)
	assert.Equal(t, types.StatusPending, app.Status)
	assert.Equal(t, f.alice.ID, app.ApplicantID)
	assert.Equal(t, "Backend Engineer", app.JobTitle)
	assert.Equal(t, "Acme", app.CompanyName)
	assert.Equal(t, "alice@example.com", app.ApplicantEmail)
	assert.Equal(t, []events.Type{events.ApplicationCreated}, filterTypes(f.recorder.Types(), "application."))
}

func TestApplyTwiceConflicts(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	first := f.apply(t, f.alice, job.ID)

	_, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: job.ID, CoverLetter: "again", Resume: "cv.pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	stored, err := f.apps.Get(f.ctx, f.alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CoverLetter, stored.CoverLetter)
	assert.Equal(t, first.UpdatedAt, stored.UpdatedAt)

	_, _, _, count := f.db.Counts()
	assert.Equal(t, 1, count)
}

func TestApplyRequiresOpenJob(t *testing.T) {
	f := newFixture(t, ApplicationOptions{EnforceDeadline: true})
	f.apps.now = func() time.Time { return time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC) }
	category := f.category(t, "Engineering")
	inactive := f.job(t, category.ID, false)

	in := validJobInput(category.ID)
	in.ApplicationDeadline = strPtr("2030-06-14")
	expired, err := f.jobs.Create(f.ctx, f.admin, in)
	require.NoError(t, err)

	in.ApplicationDeadline = strPtr("2030-06-15")
	lastDay, err := f.jobs.Create(f.ctx, f.admin, in)
	require.NoError(t, err)

	cases := map[string]int{"inactive": inactive.ID, "expired": expired.ID, "missing": 9999}
	for name, jobID := range cases {
		_, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: jobID, CoverLetter: "hi", Resume: "cv.pdf"})
		assert.True(t, errors.Is(err, ErrValidation), name)
	}

	_, err = f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: lastDay.ID, CoverLetter: "hi", Resume: "cv.pdf"})
	assert.NoError(t, err, "the deadline day itself is still open")

	_, err = f.apps.Apply(f.ctx, f.admin, ApplyInput{JobID: inactive.ID, CoverLetter: "hi", Resume: "cv.pdf"})
	assert.NoError(t, err, "admins see inactive jobs")
}

func TestExpiredDeadlineAcceptsApplicationsByDefault(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	f.apps.now = func() time.Time { return time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC) }
	category := f.category(t, "Engineering")

	in := validJobInput(category.ID)
	in.ApplicationDeadline = strPtr("2030-06-14")
	expired, err := f.jobs.Create(f.ctx, f.admin, in)
	require.NoError(t, err)

	_, err = f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: expired.ID, CoverLetter: "hi", Resume: "cv.pdf"})
	assert.NoError(t, err)
}

func TestApplyValidation(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})

	_, err := f.apps.Apply(f.ctx, policy.Anonymous(), ApplyInput{})
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, err = f.apps.Apply(f.ctx, f.alice, ApplyInput{})
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindValidation, svcErr.Kind)
	for _, field := range []string{"job_id", "cover_letter", "resume"} {
		assert.Contains(t, svcErr.Fields, field)
	}

	foreign := fmt.Sprintf("resumes/%d/cv.pdf", f.bob.ID)
	_, err = f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: 1, CoverLetter: "hi", Resume: foreign})
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, svcErr.Fields, "resume", "stored keys of other accounts are rejected")
}

func TestApplyWithUploadAndOpenResume(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)

	app, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{
		JobID:       job.ID,
		CoverLetter: "hello",
		Upload:      textUpload("Alice CV.docx", "docx-bytes"),
	})
	require.NoError(t, err)
	assert.Regexp(t, fmt.Sprintf(`^application_resumes/%d/[0-9a-f-]+\.docx$`, f.alice.ID), app.Resume)

	file, err := f.apps.OpenResume(f.ctx, f.alice, app.ID)
	require.NoError(t, err)
	defer file.Body.Close()
	data, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Equal(t, "docx-bytes", string(data))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", file.ContentType)

	_, err = f.apps.OpenResume(f.ctx, f.bob, app.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	external := f.apply(t, f.bob, job.ID)
	_, err = f.apps.OpenResume(f.ctx, f.bob, external.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "external references are not served")
}

func TestApplicationVisibility(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	other := f.job(t, category.ID, true)
	aliceApp := f.apply(t, f.alice, job.ID)
	f.apply(t, f.bob, job.ID)
	f.apply(t, f.bob, other.ID)

	apps, total, err := f.apps.List(f.ctx, f.alice, ApplicationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, apps, 1)
	assert.Equal(t, aliceApp.ID, apps[0].ID)

	apps, total, err = f.apps.List(f.ctx, f.admin, ApplicationQuery{JobID: job.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, apps, 2)

	_, _, err = f.apps.List(f.ctx, policy.Anonymous(), ApplicationQuery{})
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	_, _, err = f.apps.List(f.ctx, f.admin, ApplicationQuery{Status: "hired"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.apps.Get(f.ctx, f.bob, aliceApp.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	mine, total, err := f.apps.Mine(f.ctx, f.bob, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, mine, 2)

	_, _, err = f.apps.ListForJob(f.ctx, f.bob, job.ID, store.Page{})
	assert.True(t, errors.Is(err, ErrForbidden))

	byJob, total, err := f.apps.ListForJob(f.ctx, f.admin, other.ID, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, byJob, 1)
}

func TestNonOwnerCannotModifyApplication(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	app := f.apply(t, f.alice, job.ID)

	_, err := f.apps.Update(f.ctx, f.bob, app.ID, ApplicationInput{CoverLetter: strPtr("mine now")}, true)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = f.apps.Withdraw(f.ctx, f.bob, app.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	stored, err := f.apps.Get(f.ctx, f.alice, app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.CoverLetter, stored.CoverLetter)
}

func TestUpdateApplication(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	app, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{
		JobID:       job.ID,
		CoverLetter: "first",
		Upload:      textUpload("cv.pdf", "v1"),
	})
	require.NoError(t, err)

	updated, err := f.apps.Update(f.ctx, f.alice, app.ID, ApplicationInput{Upload: textUpload("cv.txt", "v2")}, true)
	require.NoError(t, err)
	assert.Equal(t, "first", updated.CoverLetter)
	assert.NotEqual(t, app.Resume, updated.Resume)
	assert.Equal(t, []string{updated.Resume}, f.objects.Keys(), "the replaced upload is deleted")
	assert.True(t, updated.UpdatedAt.After(app.UpdatedAt))

	_, err = f.apps.Update(f.ctx, f.alice, app.ID, ApplicationInput{CoverLetter: strPtr("second")}, false)
	assert.True(t, errors.Is(err, ErrValidation), "full update requires the resume")

	updated, err = f.apps.Update(f.ctx, f.admin, app.ID, ApplicationInput{CoverLetter: strPtr("edited by admin")}, true)
	require.NoError(t, err)
	assert.Equal(t, "edited by admin", updated.CoverLetter)
	assert.Equal(t, types.StatusPending, updated.Status)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)

	account, err := f.users.SetResume(f.ctx, f.alice, *textUpload("cv.pdf", "default"))
	require.NoError(t, err)
	app, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: job.ID, CoverLetter: "hi", Resume: *account.Resume})
	require.NoError(t, err)

	require.NoError(t, f.apps.Withdraw(f.ctx, f.alice, app.ID))
	_, err = f.apps.Get(f.ctx, f.alice, app.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, []string{*account.Resume}, f.objects.Keys(), "the account resume survives")
	assert.Contains(t, f.recorder.Types(), events.ApplicationWithdrawn)
}

func TestSharedResumeOutlivesOneReference(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	first := f.job(t, category.ID, true)
	second := f.job(t, category.ID, true)

	uploaded, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: first.ID, CoverLetter: "hi", Upload: textUpload("cv.pdf", "pdf-bytes")})
	require.NoError(t, err)
	reused, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: second.ID, CoverLetter: "hi", Resume: uploaded.Resume})
	require.NoError(t, err)

	require.NoError(t, f.apps.Withdraw(f.ctx, f.alice, uploaded.ID))
	file, err := f.apps.OpenResume(f.ctx, f.admin, reused.ID)
	require.NoError(t, err)
	file.Body.Close()

	require.NoError(t, f.apps.Withdraw(f.ctx, f.alice, reused.ID))
	assert.Empty(t, f.objects.Keys(), "the last reference takes the object with it")
}

func TestReplacingAccountResumeKeepsAppliedCopy(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)

	account, err := f.users.SetResume(f.ctx, f.alice, *textUpload("cv.pdf", "old"))
	require.NoError(t, err)
	app, err := f.apps.Apply(f.ctx, f.alice, ApplyInput{JobID: job.ID, CoverLetter: "hi", Resume: *account.Resume})
	require.NoError(t, err)

	replaced, err := f.users.SetResume(f.ctx, f.alice, *textUpload("cv.pdf", "new"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{*account.Resume, *replaced.Resume}, f.objects.Keys())

	file, err := f.apps.OpenResume(f.ctx, f.admin, app.ID)
	require.NoError(t, err)
	defer file.Body.Close()
	data, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	app := f.apply(t, f.alice, job.ID)

	_, err := f.apps.UpdateStatus(f.ctx, f.alice, app.ID, StatusInput{Status: strPtr("accepted")})
	assert.True(t, errors.Is(err, ErrForbidden), "applicants cannot review themselves")

	_, err = f.apps.UpdateStatus(f.ctx, f.bob, 9999, StatusInput{Status: strPtr("accepted")})
	assert.True(t, errors.Is(err, ErrForbidden), "role check comes before lookup")

	updated, err := f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("shortlisted"), Notes: strPtr("strong")})
	require.NoError(t, err)
	assert.Equal(t, types.StatusShortlisted, updated.Status)
	assert.Equal(t, "strong", updated.Notes)
	assert.True(t, updated.UpdatedAt.After(app.UpdatedAt))

	_, err = f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("hired")})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.apps.UpdateStatus(f.ctx, f.admin, 9999, StatusInput{Status: strPtr("reviewed")})
	assert.True(t, errors.Is(err, ErrNotFound))

	reverted, err := f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("pending")})
	require.NoError(t, err, "permissive mode allows any move")
	assert.Equal(t, types.StatusPending, reverted.Status)
	assert.Equal(t, "strong", reverted.Notes)

	changes := 0
	for _, event := range f.recorder.Events() {
		if event.Type == events.ApplicationStatusChanged {
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func TestStrictWorkflow(t *testing.T) {
	f := newFixture(t, ApplicationOptions{StatusMode: workflow.ModeStrict})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	app := f.apply(t, f.alice, job.ID)

	_, err := f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("accepted")})
	require.NoError(t, err)

	_, err = f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("pending")})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, KindInvalidTransition, KindOf(err))

	notes, err := f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Notes: strPtr("offer sent")})
	require.NoError(t, err)
	assert.Equal(t, types.StatusAccepted, notes.Status)
	assert.Equal(t, "offer sent", notes.Notes)
}

func TestLockDecided(t *testing.T) {
	f := newFixture(t, ApplicationOptions{LockDecided: true})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	app := f.apply(t, f.alice, job.ID)

	_, err := f.apps.Update(f.ctx, f.alice, app.ID, ApplicationInput{CoverLetter: strPtr("still open")}, true)
	require.NoError(t, err)

	_, err = f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("accepted")})
	require.NoError(t, err)

	_, err = f.apps.Update(f.ctx, f.alice, app.ID, ApplicationInput{CoverLetter: strPtr("too late")}, true)
	assert.True(t, errors.Is(err, ErrForbidden))

	err = f.apps.Withdraw(f.ctx, f.alice, app.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = f.apps.Update(f.ctx, f.admin, app.ID, ApplicationInput{CoverLetter: strPtr("admin fix")}, true)
	assert.NoError(t, err)
}

func TestDecidedApplicationsStayEditableByDefault(t *testing.T) {
	f := newFixture(t, ApplicationOptions{})
	category := f.category(t, "Engineering")
	job := f.job(t, category.ID, true)
	app := f.apply(t, f.alice, job.ID)

	_, err := f.apps.UpdateStatus(f.ctx, f.admin, app.ID, StatusInput{Status: strPtr("rejected")})
	require.NoError(t, err)

	_, err = f.apps.Update(f.ctx, f.alice, app.ID, ApplicationInput{CoverLetter: strPtr("please reconsider")}, true)
	assert.NoError(t, err)
}

func filterTypes(all []events.Type, prefix string) []events.Type {
	var out []events.Type
	for _, t := range all {
		if strings.HasPrefix(string(t), prefix) {
			out = append(out, t)
		}
	}
	return out
}
