// Package storetest provides in-memory repositories that behave like the
// Postgres ones: unique keys, foreign keys, cascading deletes and read
// projections.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/types"
)

const defaultLimit = 20

// Store is the shared in-memory database behind every repository.
type Store struct {
	mu         sync.Mutex
	nextID     int
	lastNow    time.Time
	users      map[int]types.User
	categories map[int]types.Category
	jobs       map[int]types.Job
	apps       map[int]types.Application
}

func New() *Store {
	return &Store{
		users:      make(map[int]types.User),
		categories: make(map[int]types.Category),
		jobs:       make(map[int]types.Job),
		apps:       make(map[int]types.Application),
	}
}

func (s *Store) Users() *Users               { return &Users{s: s} }
func (s *Store) Categories() *Categories     { return &Categories{s: s} }
func (s *Store) Jobs() *Jobs                 { return &Jobs{s: s} }
func (s *Store) Applications() *Applications { return &Applications{s: s} }

// now is strictly increasing so updated_at always advances.
func (s *Store) now() time.Time {
	now := time.Now()
	if !now.After(s.lastNow) {
		now = s.lastNow.Add(time.Microsecond)
	}
	s.lastNow = now
	return now
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func conflict(constraint string) error {
	return fmt.Errorf("%w: %s", store.ErrConflict, constraint)
}

func invalidRef(constraint string) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidReference, constraint)
}

func window[T any](items []T, p store.Page) []T {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Offset >= len(items) {
		return make([]T, 0)
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return append(make([]T, 0, end-p.Offset), items[p.Offset:end]...)
}

// Users implements the account repository.
type Users struct{ s *Store }

func (r *Users) List(_ context.Context, filter store.UserFilter) ([]types.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var users []types.User
	for _, u := range r.s.users {
		if filter.ID != 0 && u.ID != filter.ID {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].DateJoined.Equal(users[j].DateJoined) {
			return users[i].DateJoined.After(users[j].DateJoined)
		}
		return users[i].ID > users[j].ID
	})
	return window(users, filter.Page), len(users), nil
}

func (r *Users) GetByID(_ context.Context, id int) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *Users) CountByResume(_ context.Context, resume string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, u := range r.s.users {
		if u.Resume != nil && *u.Resume == resume {
			count++
		}
	}
	return count, nil
}

func (r *Users) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.emailTaken(user.Email, 0) {
		return types.User{}, conflict("users_email_key")
	}
	now := r.s.now()
	user.ID = r.s.id()
	user.DateJoined = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

func (r *Users) Update(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return types.User{}, conflict("users_email_key")
	}
	user.DateJoined = current.DateJoined
	user.UpdatedAt = r.s.now()
	r.s.users[user.ID] = user
	return user, nil
}

func (r *Users) emailTaken(email string, except int) bool {
	for _, u := range r.s.users {
		if u.ID != except && u.Email == email {
			return true
		}
	}
	return false
}

// Categories implements the category repository.
type Categories struct{ s *Store }

func (r *Categories) project(c types.Category) types.Category {
	c.JobsCount = 0
	for _, j := range r.s.jobs {
		if j.CategoryID == c.ID && j.IsActive {
			c.JobsCount++
		}
	}
	return c
}

func (r *Categories) List(_ context.Context, page store.Page) ([]types.Category, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	categories := make([]types.Category, 0, len(r.s.categories))
	for _, c := range r.s.categories {
		categories = append(categories, r.project(c))
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return window(categories, page), len(categories), nil
}

func (r *Categories) GetByID(_ context.Context, id int) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return r.project(c), nil
}

func (r *Categories) GetBySlug(_ context.Context, slug string) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.categories {
		if c.Slug == slug {
			return r.project(c), nil
		}
	}
	return types.Category{}, store.ErrNotFound
}

func (r *Categories) Create(_ context.Context, category types.Category) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkUnique(category, 0); err != nil {
		return types.Category{}, err
	}
	now := r.s.now()
	category.ID = r.s.id()
	category.CreatedAt = now
	category.UpdatedAt = now
	category.JobsCount = 0
	r.s.categories[category.ID] = category
	return category, nil
}

func (r *Categories) Update(_ context.Context, category types.Category) (types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.categories[category.ID]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	if err := r.checkUnique(category, category.ID); err != nil {
		return types.Category{}, err
	}
	category.CreatedAt = current.CreatedAt
	category.UpdatedAt = r.s.now()
	r.s.categories[category.ID] = category
	return category, nil
}

func (r *Categories) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.categories, id)
	for jobID, j := range r.s.jobs {
		if j.CategoryID == id {
			r.s.deleteJob(jobID)
		}
	}
	return nil
}

func (r *Categories) checkUnique(category types.Category, except int) error {
	for _, c := range r.s.categories {
		if c.ID == except {
			continue
		}
		if c.Name == category.Name {
			return conflict("categories_name_key")
		}
		if c.Slug == category.Slug {
			return conflict("categories_slug_key")
		}
	}
	return nil
}

// deleteJob removes a job and its applications. Callers hold the lock.
func (s *Store) deleteJob(id int) {
	delete(s.jobs, id)
	for appID, a := range s.apps {
		if a.JobID == id {
			delete(s.apps, appID)
		}
	}
}

// Jobs implements the job repository.
type Jobs struct{ s *Store }

func (r *Jobs) project(j types.Job) types.Job {
	j.CategoryName = r.s.categories[j.CategoryID].Name
	j.PostedByName = r.s.users[j.PostedByID].FullName()
	j.Category = nil
	j.PostedBy = nil
	j.ApplicationsCount = nil
	return j
}

func (r *Jobs) List(_ context.Context, filter store.JobFilter) ([]types.Job, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var jobs []types.Job
	for _, j := range r.s.jobs {
		if matchJob(j, filter) {
			jobs = append(jobs, r.project(j))
		}
	}
	sortJobs(jobs, filter.Ordering)
	return window(jobs, filter.Page), len(jobs), nil
}

func matchJob(j types.Job, f store.JobFilter) bool {
	switch {
	case f.ActiveOnly && !j.IsActive:
		return false
	case !f.ActiveOnly && f.IsActive != nil && j.IsActive != *f.IsActive:
		return false
	case f.CategoryID != 0 && j.CategoryID != f.CategoryID:
		return false
	case f.PostedByID != 0 && j.PostedByID != f.PostedByID:
		return false
	case f.JobType != "" && j.JobType != f.JobType:
		return false
	case f.Location != "" && !containsFold(j.Location, f.Location):
		return false
	}
	if f.Search != "" {
		return containsFold(j.Title, f.Search) ||
			containsFold(j.Description, f.Search) ||
			containsFold(j.CompanyName, f.Search) ||
			containsFold(j.Requirements, f.Search)
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func sortJobs(jobs []types.Job, ordering string) {
	key := strings.TrimSpace(ordering)
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")
	if _, ok := store.JobOrderings[key]; !ok {
		key, desc = "created_at", true
	}

	// value returns the sort key and whether it is NULL.
	value := func(j types.Job) (float64, bool) {
		switch key {
		case "salary_min":
			if j.SalaryMin == nil {
				return 0, true
			}
			return *j.SalaryMin, false
		case "salary_max":
			if j.SalaryMax == nil {
				return 0, true
			}
			return *j.SalaryMax, false
		case "application_deadline":
			if j.ApplicationDeadline == nil {
				return 0, true
			}
			return float64(j.ApplicationDeadline.UnixNano()), false
		default:
			return float64(j.CreatedAt.UnixNano()), false
		}
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		va, nullA := value(jobs[a])
		vb, nullB := value(jobs[b])
		if nullA != nullB {
			return nullB
		}
		if va != vb {
			if desc {
				return va > vb
			}
			return va < vb
		}
		if desc {
			return jobs[a].ID > jobs[b].ID
		}
		return jobs[a].ID < jobs[b].ID
	})
}

func (r *Jobs) Get(_ context.Context, id int) (types.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return types.Job{}, store.ErrNotFound
	}
	return r.project(j), nil
}

func (r *Jobs) Create(_ context.Context, job types.Job) (types.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkRefs(job); err != nil {
		return types.Job{}, err
	}
	now := r.s.now()
	job.ID = r.s.id()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.s.jobs[job.ID] = r.strip(job)
	return job, nil
}

func (r *Jobs) Update(_ context.Context, job types.Job) (types.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.jobs[job.ID]
	if !ok {
		return types.Job{}, store.ErrNotFound
	}
	if err := r.checkRefs(job); err != nil {
		return types.Job{}, err
	}
	job.PostedByID = current.PostedByID
	job.CreatedAt = current.CreatedAt
	job.UpdatedAt = r.s.now()
	r.s.jobs[job.ID] = r.strip(job)
	return job, nil
}

func (r *Jobs) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[id]; !ok {
		return store.ErrNotFound
	}
	r.s.deleteJob(id)
	return nil
}

func (r *Jobs) checkRefs(job types.Job) error {
	if _, ok := r.s.categories[job.CategoryID]; !ok {
		return invalidRef("jobs_category_id_fkey")
	}
	if _, ok := r.s.users[job.PostedByID]; !ok {
		return invalidRef("jobs_posted_by_fkey")
	}
	return nil
}

func (r *Jobs) strip(job types.Job) types.Job {
	job.CategoryName = ""
	job.PostedByName = ""
	job.Category = nil
	job.PostedBy = nil
	job.ApplicationsCount = nil
	return job
}

// Applications implements the application repository.
type Applications struct{ s *Store }

func (r *Applications) project(a types.Application) types.Application {
	job := r.s.jobs[a.JobID]
	a.JobTitle = job.Title
	a.CompanyName = job.CompanyName
	a.ApplicantEmail = r.s.users[a.ApplicantID].Email
	return a
}

func (r *Applications) match(a types.Application, f store.ApplicationFilter) bool {
	switch {
	case f.ApplicantID != 0 && a.ApplicantID != f.ApplicantID:
		return false
	case f.JobID != 0 && a.JobID != f.JobID:
		return false
	case f.CategoryID != 0 && r.s.jobs[a.JobID].CategoryID != f.CategoryID:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	}
	return true
}

func (r *Applications) filtered(filter store.ApplicationFilter) []types.Application {
	var apps []types.Application
	for _, a := range r.s.apps {
		if r.match(a, filter) {
			apps = append(apps, r.project(a))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].AppliedAt.Equal(apps[j].AppliedAt) {
			return apps[i].AppliedAt.After(apps[j].AppliedAt)
		}
		return apps[i].ID > apps[j].ID
	})
	return apps
}

func (r *Applications) List(_ context.Context, filter store.ApplicationFilter) ([]types.Application, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	apps := r.filtered(filter)
	return window(apps, filter.Page), len(apps), nil
}

func (r *Applications) ResumeKeys(_ context.Context, filter store.ApplicationFilter) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for _, a := range r.filtered(filter) {
		keys = append(keys, a.Resume)
	}
	return keys, nil
}

func (r *Applications) CountByJob(_ context.Context, jobID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, a := range r.s.apps {
		if a.JobID == jobID {
			count++
		}
	}
	return count, nil
}

func (r *Applications) CountByResume(_ context.Context, resume string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, a := range r.s.apps {
		if a.Resume == resume {
			count++
		}
	}
	return count, nil
}

func (r *Applications) Get(_ context.Context, id int) (types.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.apps[id]
	if !ok {
		return types.Application{}, store.ErrNotFound
	}
	return r.project(a), nil
}

func (r *Applications) GetByJobAndApplicant(_ context.Context, jobID, applicantID int) (types.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.apps {
		if a.JobID == jobID && a.ApplicantID == applicantID {
			return r.project(a), nil
		}
	}
	return types.Application{}, store.ErrNotFound
}

func (r *Applications) Create(_ context.Context, app types.Application) (types.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[app.JobID]; !ok {
		return types.Application{}, invalidRef("applications_job_id_fkey")
	}
	if _, ok := r.s.users[app.ApplicantID]; !ok {
		return types.Application{}, invalidRef("applications_applicant_id_fkey")
	}
	for _, a := range r.s.apps {
		if a.JobID == app.JobID && a.ApplicantID == app.ApplicantID {
			return types.Application{}, conflict("applications_job_applicant_key")
		}
	}
	now := r.s.now()
	app.ID = r.s.id()
	app.AppliedAt = now
	app.UpdatedAt = now
	r.s.apps[app.ID] = app
	return app, nil
}

func (r *Applications) Update(_ context.Context, app types.Application) (types.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.apps[app.ID]
	if !ok {
		return types.Application{}, store.ErrNotFound
	}
	current.CoverLetter = app.CoverLetter
	current.Resume = app.Resume
	current.UpdatedAt = r.s.now()
	r.s.apps[app.ID] = current
	app.UpdatedAt = current.UpdatedAt
	return app, nil
}

func (r *Applications) UpdateStatus(_ context.Context, app types.Application) (types.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.apps[app.ID]
	if !ok {
		return types.Application{}, store.ErrNotFound
	}
	current.Status = app.Status
	current.Notes = app.Notes
	current.UpdatedAt = r.s.now()
	r.s.apps[app.ID] = current
	app.UpdatedAt = current.UpdatedAt
	return app, nil
}

func (r *Applications) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.apps[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.apps, id)
	return nil
}

// Counts reports how many rows each table holds.
func (s *Store) Counts() (users, categories, jobs, applications int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.categories), len(s.jobs), len(s.apps)
}
