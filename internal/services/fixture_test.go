package services

import (
	"context"
	"strings"
	"testing"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/storage"
	"github.com/jobhub/apiserver/internal/store/storetest"
	"github.com/jobhub/apiserver/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	ctx        context.Context
	db         *storetest.Store
	objects    *storage.Memory
	recorder   *events.Recorder
	users      *UserService
	categories *CategoryService
	jobs       *JobService
	apps       *ApplicationService

	admin policy.Actor
	alice policy.Actor
	bob   policy.Actor
}

func newFixture(t *testing.T, opts ApplicationOptions) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()

	f := &fixture{
		ctx:      context.Background(),
		db:       storetest.New(),
		objects:  storage.NewMemory("jobhub-test"),
		recorder: &events.Recorder{},
	}
	users, categories, jobs, apps := f.db.Users(), f.db.Categories(), f.db.Jobs(), f.db.Applications()
	resumes := NewResumeService(storage.NewStorage(f.objects), logger).WithReferences(users, apps)

	f.users = NewUserService(users, resumes, f.recorder).WithHashCost(bcrypt.MinCost)
	f.categories = NewCategoryService(categories, apps, resumes, f.recorder)
	f.jobs = NewJobService(jobs, categories, users, apps, resumes, f.recorder)
	f.apps = NewApplicationService(apps, jobs, resumes, f.recorder, opts)

	f.admin = f.account(t, "admin@example.com", true)
	f.alice = f.account(t, "alice@example.com", false)
	f.bob = f.account(t, "bob@example.com", false)
	return f
}

func (f *fixture) account(t *testing.T, email string, admin bool) policy.Actor {
	t.Helper()
	in := RegisterInput{Email: email, Password: "password123", FirstName: "Test", LastName: "User"}
	var (
		user types.User
		err  error
	)
	if admin {
		user, err = f.users.CreateAdmin(f.ctx, in)
	} else {
		user, err = f.users.Register(f.ctx, in)
	}
	require.NoError(t, err)
	return policy.ActorFor(user)
}

func (f *fixture) category(t *testing.T, name string) types.Category {
	t.Helper()
	category, err := f.categories.Create(f.ctx, f.admin, CategoryInput{Name: &name})
	require.NoError(t, err)
	return category
}

func (f *fixture) job(t *testing.T, categoryID int, active bool) types.Job {
	t.Helper()
	in := validJobInput(categoryID)
	in.IsActive = &active
	job, err := f.jobs.Create(f.ctx, f.admin, in)
	require.NoError(t, err)
	return job
}

func (f *fixture) apply(t *testing.T, actor policy.Actor, jobID int) types.Application {
	t.Helper()
	app, err := f.apps.Apply(f.ctx, actor, ApplyInput{
		JobID:       jobID,
		CoverLetter: "I would like this job.",
		Resume:      "https://example.com/cv.pdf",
	})
	require.NoError(t, err)
	return app
}

func validJobInput(categoryID int) JobInput {
	return JobInput{
		Title:            strPtr("Backend Engineer"),
		Description:      strPtr("Build APIs."),
		Requirements:     strPtr("Go"),
		Responsibilities: strPtr("Ship things"),
		CompanyName:      strPtr("Acme"),
		Location:         strPtr("Berlin"),
		JobType:          strPtr(types.JobTypeFullTime),
		CategoryID:       &categoryID,
	}
}

func textUpload(name, body string) *Upload {
	return &Upload{Filename: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
