package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jobhub/apiserver/types"
)

// JobFilter narrows a job listing.
type JobFilter struct {
	// ActiveOnly hides inactive jobs regardless of IsActive.
	ActiveOnly bool
	// IsActive filters on the active flag when set.
	IsActive   *bool
	CategoryID int
	PostedByID int
	JobType    string
	// Location matches case-insensitively as a substring.
	Location string
	// Search matches title, description, company name and requirements.
	Search string
	// Ordering is a column name optionally prefixed with "-" for descending.
	Ordering string
	Page     Page
}

// JobOrderings maps accepted ordering keys to SQL columns.
var JobOrderings = map[string]string{
	"created_at":           "j.created_at",
	"salary_min":           "j.salary_min",
	"salary_max":           "j.salary_max",
	"application_deadline": "j.application_deadline",
}

const defaultJobOrdering = "-created_at"

// JobRepository handles persistence for jobs.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobSelect = `
	SELECT j.id, j.title, j.description, j.requirements, j.responsibilities, j.benefits,
	       j.company_name, j.location, j.job_type, j.salary_min, j.salary_max,
	       j.application_deadline, j.is_active, j.category_id, j.posted_by,
	       j.created_at, j.updated_at, c.name, u.first_name, u.last_name
	FROM jobs j
	JOIN categories c ON c.id = j.category_id
	JOIN users u ON u.id = j.posted_by`

func scanJob(row rowScanner) (types.Job, error) {
	var job types.Job
	var salaryMin, salaryMax sql.NullFloat64
	var deadline sql.NullTime
	var firstName, lastName string
	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Description,
		&job.Requirements,
		&job.Responsibilities,
		&job.Benefits,
		&job.CompanyName,
		&job.Location,
		&job.JobType,
		&salaryMin,
		&salaryMax,
		&deadline,
		&job.IsActive,
		&job.CategoryID,
		&job.PostedByID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CategoryName,
		&firstName,
		&lastName,
	)
	if err != nil {
		return types.Job{}, err
	}
	if salaryMin.Valid {
		job.SalaryMin = &salaryMin.Float64
	}
	if salaryMax.Valid {
		job.SalaryMax = &salaryMax.Float64
	}
	if deadline.Valid {
		job.ApplicationDeadline = &deadline.Time
	}
	job.PostedByName = strings.TrimSpace(firstName + " " + lastName)
	return job, nil
}

func jobConditions(filter JobFilter) conditions {
	var cond conditions
	if filter.ActiveOnly {
		cond.add("j.is_active = ?", true)
	} else if filter.IsActive != nil {
		cond.add("j.is_active = ?", *filter.IsActive)
	}
	if filter.CategoryID != 0 {
		cond.add("j.category_id = ?", filter.CategoryID)
	}
	if filter.PostedByID != 0 {
		cond.add("j.posted_by = ?", filter.PostedByID)
	}
	if filter.JobType != "" {
		cond.add("j.job_type = ?", filter.JobType)
	}
	if filter.Location != "" {
		cond.add("j.location ILIKE ?", containsPattern(filter.Location))
	}
	if filter.Search != "" {
		pattern := containsPattern(filter.Search)
		cond.add("(j.title ILIKE ? OR j.description ILIKE ? OR j.company_name ILIKE ? OR j.requirements ILIKE ?)",
			pattern, pattern, pattern, pattern)
	}
	return cond
}

func jobOrderBy(ordering string) string {
	ordering = strings.TrimSpace(ordering)
	if ordering == "" {
		ordering = defaultJobOrdering
	}
	direction := "ASC"
	if strings.HasPrefix(ordering, "-") {
		direction = "DESC"
		ordering = ordering[1:]
	}
	column, ok := JobOrderings[ordering]
	if !ok {
		column, direction = "j.created_at", "DESC"
	}
	return " ORDER BY " + column + " " + direction + " NULLS LAST, j.id " + direction
}

func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]types.Job, int, error) {
	cond := jobConditions(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs j`+cond.where(), cond.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageClause, args := cond.page(filter.Page)
	rows, err := r.db.QueryContext(ctx, jobSelect+cond.where()+jobOrderBy(filter.Ordering)+pageClause, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := make([]types.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *JobRepository) Get(ctx context.Context, id int) (types.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, jobSelect+` WHERE j.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Job{}, ErrNotFound
		}
		return types.Job{}, err
	}
	return job, nil
}

func (r *JobRepository) Create(ctx context.Context, job types.Job) (types.Job, error) {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	const query = `
		INSERT INTO jobs (
			title, description, requirements, responsibilities, benefits,
			company_name, location, job_type, salary_min, salary_max,
			application_deadline, is_active, category_id, posted_by,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		job.Title,
		job.Description,
		job.Requirements,
		job.Responsibilities,
		job.Benefits,
		job.CompanyName,
		job.Location,
		job.JobType,
		job.SalaryMin,
		job.SalaryMax,
		job.ApplicationDeadline,
		job.IsActive,
		job.CategoryID,
		job.PostedByID,
		job.CreatedAt,
		job.UpdatedAt,
	).Scan(&job.ID); err != nil {
		return types.Job{}, translateError(err)
	}
	return job, nil
}

func (r *JobRepository) Update(ctx context.Context, job types.Job) (types.Job, error) {
	job.UpdatedAt = time.Now()

	const query = `
		UPDATE jobs
		SET title = $1,
			description = $2,
			requirements = $3,
			responsibilities = $4,
			benefits = $5,
			company_name = $6,
			location = $7,
			job_type = $8,
			salary_min = $9,
			salary_max = $10,
			application_deadline = $11,
			is_active = $12,
			category_id = $13,
			updated_at = $14
		WHERE id = $15`
	result, err := r.db.ExecContext(
		ctx,
		query,
		job.Title,
		job.Description,
		job.Requirements,
		job.Responsibilities,
		job.Benefits,
		job.CompanyName,
		job.Location,
		job.JobType,
		job.SalaryMin,
		job.SalaryMax,
		job.ApplicationDeadline,
		job.IsActive,
		job.CategoryID,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return types.Job{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Job{}, err
	}
	if affected == 0 {
		return types.Job{}, ErrNotFound
	}
	return job, nil
}

// Delete removes the job and, through ON DELETE CASCADE, its applications.
func (r *JobRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM jobs WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
