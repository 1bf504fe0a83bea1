package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/metrics"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/types"
)

const deadlineLayout = "2006-01-02"

// JobRepository defines persistence operations for jobs.
type JobRepository interface {
	List(ctx context.Context, filter store.JobFilter) ([]types.Job, int, error)
	Get(ctx context.Context, id int) (types.Job, error)
	Create(ctx context.Context, job types.Job) (types.Job, error)
	Update(ctx context.Context, job types.Job) (types.Job, error)
	Delete(ctx context.Context, id int) error
}

// JobService encapsulates job posting use-cases.
type JobService struct {
	repo       JobRepository
	categories CategoryRepository
	users      UserRepository
	apps       ApplicationRepository
	resumes    *ResumeService
	events     events.Publisher
}

func NewJobService(
	repo JobRepository,
	categories CategoryRepository,
	users UserRepository,
	apps ApplicationRepository,
	resumes *ResumeService,
	publisher events.Publisher,
) *JobService {
	return &JobService{
		repo:       repo,
		categories: categories,
		users:      users,
		apps:       apps,
		resumes:    resumes,
		events:     publisher,
	}
}

// JobInput carries job writes. Nil fields are left unchanged on partial
// updates. ApplicationDeadline accepts YYYY-MM-DD or RFC 3339.
type JobInput struct {
	Title               *string  `json:"title"`
	Description         *string  `json:"description"`
	Requirements        *string  `json:"requirements"`
	Responsibilities    *string  `json:"responsibilities"`
	Benefits            *string  `json:"benefits"`
	CompanyName         *string  `json:"company_name"`
	Location            *string  `json:"location"`
	JobType             *string  `json:"job_type"`
	SalaryMin           *float64 `json:"salary_min"`
	SalaryMax           *float64 `json:"salary_max"`
	ApplicationDeadline *string  `json:"application_deadline"`
	IsActive            *bool    `json:"is_active"`
	CategoryID          *int     `json:"category_id"`
}

// JobQuery holds the public listing filters.
type JobQuery struct {
	// Category is a category id or slug.
	Category string
	JobType  string
	Location string
	Search   string
	Ordering string
	// IsActive is only honoured for admins.
	IsActive *bool
	Page     store.Page
}

func (s *JobService) List(ctx context.Context, actor policy.Actor, q JobQuery) ([]types.Job, int, error) {
	filter := store.JobFilter{
		ActiveOnly: policy.JobScope(actor).ActiveOnly,
		Location:   strings.TrimSpace(q.Location),
		Search:     strings.TrimSpace(q.Search),
		Ordering:   q.Ordering,
		Page:       q.Page,
	}
	if actor.IsAdmin() {
		filter.IsActive = q.IsActive
	}
	if jobType := strings.TrimSpace(q.JobType); jobType != "" {
		if !types.ValidJobType(jobType) {
			return nil, 0, fieldError("job_type", "must be full-time, part-time, contract or internship")
		}
		filter.JobType = jobType
	}
	if category := strings.TrimSpace(q.Category); category != "" {
		id, err := s.resolveCategory(ctx, category)
		if err != nil {
			return nil, 0, err
		}
		if id == 0 {
			return []types.Job{}, 0, nil
		}
		filter.CategoryID = id
	}
	return s.repo.List(ctx, filter)
}

// ByCategory lists the visible jobs of one category.
func (s *JobService) ByCategory(ctx context.Context, actor policy.Actor, categoryID int, page store.Page) ([]types.Job, int, error) {
	return s.repo.List(ctx, store.JobFilter{
		ActiveOnly: policy.JobScope(actor).ActiveOnly,
		CategoryID: categoryID,
		Page:       page,
	})
}

// Mine lists the visible jobs posted by the caller.
func (s *JobService) Mine(ctx context.Context, actor policy.Actor, page store.Page) ([]types.Job, int, error) {
	if !actor.Authenticated() {
		return nil, 0, ErrUnauthenticated
	}
	return s.repo.List(ctx, store.JobFilter{
		ActiveOnly: policy.JobScope(actor).ActiveOnly,
		PostedByID: actor.ID,
		Page:       page,
	})
}

// Get returns the job with its nested category, poster and application
// count. Jobs the caller cannot see are reported as not found.
func (s *JobService) Get(ctx context.Context, actor policy.Actor, id int) (types.Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Job{}, translate(err, "job")
	}
	if !policy.CanViewJob(actor, job) {
		return types.Job{}, notFound("job")
	}
	return s.detail(ctx, job)
}

func (s *JobService) Create(ctx context.Context, actor policy.Actor, in JobInput) (types.Job, error) {
	if !actor.Authenticated() {
		return types.Job{}, ErrUnauthenticated
	}
	if !policy.CanCreateJob(actor) {
		return types.Job{}, forbidden("cannot post jobs")
	}

	job := types.Job{IsActive: true, PostedByID: actor.ID}
	fields := applyJobInput(&job, in)
	if in.CategoryID == nil {
		fields["category_id"] = "this field is required"
	}
	if in.JobType == nil {
		fields["job_type"] = "this field is required"
	}
	for field, message := range validateJob(job) {
		if _, ok := fields[field]; !ok {
			fields[field] = message
		}
	}
	if len(fields) > 0 {
		return types.Job{}, validationError(fields)
	}

	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return types.Job{}, translate(err, "job")
	}
	metrics.RecordJobCreated()
	s.events.Publish(ctx, events.New(events.JobCreated, actor.ID, created.ID, map[string]string{
		"category_id": strconv.Itoa(created.CategoryID),
	}))

	job, err = s.repo.Get(ctx, created.ID)
	if err != nil {
		return types.Job{}, translate(err, "job")
	}
	return s.detail(ctx, job)
}

// Update edits a job. A full update (partial false) requires every
// required field; omitted optional fields are cleared.
func (s *JobService) Update(ctx context.Context, actor policy.Actor, id int, in JobInput, partial bool) (types.Job, error) {
	if !actor.Authenticated() {
		return types.Job{}, ErrUnauthenticated
	}
	if !policy.CanModifyJob(actor) {
		return types.Job{}, forbidden("admin access required")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Job{}, translate(err, "job")
	}
	if !policy.CanViewJob(actor, job) {
		return types.Job{}, notFound("job")
	}

	fields := map[string]string{}
	if !partial {
		fields = requireFullJob(in)
		job.Benefits = ""
		job.SalaryMin = nil
		job.SalaryMax = nil
		job.ApplicationDeadline = nil
	}
	for field, message := range applyJobInput(&job, in) {
		fields[field] = message
	}
	for field, message := range validateJob(job) {
		if _, ok := fields[field]; !ok {
			fields[field] = message
		}
	}
	if len(fields) > 0 {
		return types.Job{}, validationError(fields)
	}

	if _, err := s.repo.Update(ctx, job); err != nil {
		return types.Job{}, translate(err, "job")
	}
	return s.Get(ctx, actor, id)
}

// Delete removes the job together with its applications.
func (s *JobService) Delete(ctx context.Context, actor policy.Actor, id int) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !policy.CanModifyJob(actor) {
		return forbidden("admin access required")
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return translate(err, "job")
	}

	keys, err := s.apps.ResumeKeys(ctx, store.ApplicationFilter{JobID: id})
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(err, "job")
	}
	s.resumes.removeApplicationResumes(ctx, keys...)
	s.events.Publish(ctx, events.New(events.JobDeleted, actor.ID, id, map[string]string{
		"removed_applications": strconv.Itoa(len(keys)),
	}))
	return nil
}

func (s *JobService) detail(ctx context.Context, job types.Job) (types.Job, error) {
	category, err := s.categories.GetByID(ctx, job.CategoryID)
	if err != nil {
		return types.Job{}, translate(err, "category")
	}
	poster, err := s.users.GetByID(ctx, job.PostedByID)
	if err != nil {
		return types.Job{}, translate(err, "user")
	}
	count, err := s.apps.CountByJob(ctx, job.ID)
	if err != nil {
		return types.Job{}, err
	}
	job.Category = &category
	job.PostedBy = &poster
	job.ApplicationsCount = &count
	return job, nil
}

// resolveCategory maps an id or slug to a category id. Unknown slugs
// resolve to zero.
func (s *JobService) resolveCategory(ctx context.Context, ref string) (int, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return id, nil
	}
	category, err := s.categories.GetBySlug(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return category.ID, nil
}

func requireFullJob(in JobInput) map[string]string {
	fields := map[string]string{}
	required := map[string]bool{
		"title":            in.Title != nil,
		"description":      in.Description != nil,
		"requirements":     in.Requirements != nil,
		"responsibilities": in.Responsibilities != nil,
		"company_name":     in.CompanyName != nil,
		"location":         in.Location != nil,
		"job_type":         in.JobType != nil,
		"category_id":      in.CategoryID != nil,
	}
	for field, present := range required {
		if !present {
			fields[field] = "this field is required"
		}
	}
	return fields
}

// applyJobInput copies the set fields of in onto job and returns parse
// errors for fields that could not be converted.
func applyJobInput(job *types.Job, in JobInput) map[string]string {
	fields := map[string]string{}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&job.Title, in.Title)
	set(&job.Description, in.Description)
	set(&job.Requirements, in.Requirements)
	set(&job.Responsibilities, in.Responsibilities)
	set(&job.Benefits, in.Benefits)
	set(&job.CompanyName, in.CompanyName)
	set(&job.Location, in.Location)
	if in.JobType != nil {
		job.JobType = strings.ToLower(strings.TrimSpace(*in.JobType))
	}
	if in.SalaryMin != nil {
		job.SalaryMin = in.SalaryMin
	}
	if in.SalaryMax != nil {
		job.SalaryMax = in.SalaryMax
	}
	if in.ApplicationDeadline != nil {
		deadline, err := parseDeadline(*in.ApplicationDeadline)
		if err != nil {
			fields["application_deadline"] = "use YYYY-MM-DD"
		} else {
			job.ApplicationDeadline = deadline
		}
	}
	if in.IsActive != nil {
		job.IsActive = *in.IsActive
	}
	if in.CategoryID != nil {
		job.CategoryID = *in.CategoryID
	}
	return fields
}

// parseDeadline returns nil for an empty value, clearing the deadline.
func parseDeadline(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(deadlineLayout, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &day, nil
}

// maxSalary is the largest value a NUMERIC(10,2) salary column holds.
const maxSalary = 99_999_999.99

func validateJob(job types.Job) map[string]string {
	fields := map[string]string{}
	required := map[string]string{
		"title":            job.Title,
		"description":      job.Description,
		"requirements":     job.Requirements,
		"responsibilities": job.Responsibilities,
		"company_name":     job.CompanyName,
		"location":         job.Location,
	}
	for field, value := range required {
		if value == "" {
			fields[field] = "this field is required"
		}
	}
	limited := map[string]string{
		"title":        job.Title,
		"company_name": job.CompanyName,
		"location":     job.Location,
	}
	for field, value := range limited {
		if utf8.RuneCountInString(value) > 200 {
			fields[field] = "must be at most 200 characters"
		}
	}
	if job.JobType != "" && !types.ValidJobType(job.JobType) {
		fields["job_type"] = "must be full-time, part-time, contract or internship"
	}
	if job.CategoryID <= 0 {
		fields["category_id"] = "this field is required"
	}
	salaries := map[string]*float64{"salary_min": job.SalaryMin, "salary_max": job.SalaryMax}
	for field, salary := range salaries {
		switch {
		case salary == nil:
		case *salary < 0:
			fields[field] = "must not be negative"
		case *salary > maxSalary:
			fields[field] = "must be at most 99999999.99"
		}
	}
	if job.SalaryMin != nil && job.SalaryMax != nil && *job.SalaryMin > *job.SalaryMax {
		fields["salary_min"] = "minimum salary cannot be greater than maximum salary"
	}
	return fields
}
