package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jobhub/apiserver/types"
)

// ApplicationFilter narrows an application listing.
type ApplicationFilter struct {
	ApplicantID int
	JobID       int
	CategoryID  int
	Status      types.ApplicationStatus
	Page        Page
}

// ApplicationRepository handles persistence for applications.
type ApplicationRepository struct {
	db *sql.DB
}

func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationSelect = `
	SELECT a.id, a.job_id, a.applicant_id, a.cover_letter, a.resume, a.status, a.notes,
	       a.applied_at, a.updated_at, j.title, j.company_name, u.email
	FROM applications a
	JOIN jobs j ON j.id = a.job_id
	JOIN users u ON u.id = a.applicant_id`

func scanApplication(row rowScanner) (types.Application, error) {
	var app types.Application
	err := row.Scan(
		&app.ID,
		&app.JobID,
		&app.ApplicantID,
		&app.CoverLetter,
		&app.Resume,
		&app.Status,
		&app.Notes,
		&app.AppliedAt,
		&app.UpdatedAt,
		&app.JobTitle,
		&app.CompanyName,
		&app.ApplicantEmail,
	)
	return app, err
}

func applicationConditions(filter ApplicationFilter) conditions {
	var cond conditions
	if filter.ApplicantID != 0 {
		cond.add("a.applicant_id = ?", filter.ApplicantID)
	}
	if filter.JobID != 0 {
		cond.add("a.job_id = ?", filter.JobID)
	}
	if filter.CategoryID != 0 {
		cond.add("a.job_id IN (SELECT id FROM jobs WHERE category_id = ?)", filter.CategoryID)
	}
	if filter.Status != "" {
		cond.add("a.status = ?", string(filter.Status))
	}
	return cond
}

func (r *ApplicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]types.Application, int, error) {
	cond := applicationConditions(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM applications a`+cond.where(), cond.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageClause, args := cond.page(filter.Page)
	rows, err := r.db.QueryContext(ctx, applicationSelect+cond.where()+` ORDER BY a.applied_at DESC, a.id DESC`+pageClause, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	apps := make([]types.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

// ResumeKeys returns the stored resume references of every application
// matching filter. Pagination is ignored.
func (r *ApplicationRepository) ResumeKeys(ctx context.Context, filter ApplicationFilter) ([]string, error) {
	cond := applicationConditions(filter)
	rows, err := r.db.QueryContext(ctx, `SELECT a.resume FROM applications a`+cond.where(), cond.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *ApplicationRepository) CountByJob(ctx context.Context, jobID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM applications WHERE job_id = $1`, jobID).Scan(&count)
	return count, err
}

// CountByResume counts applications pointing at the given resume.
func (r *ApplicationRepository) CountByResume(ctx context.Context, resume string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM applications WHERE resume = $1`, resume).Scan(&count)
	return count, err
}

func (r *ApplicationRepository) Get(ctx context.Context, id int) (types.Application, error) {
	app, err := scanApplication(r.db.QueryRowContext(ctx, applicationSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Application{}, ErrNotFound
		}
		return types.Application{}, err
	}
	return app, nil
}

func (r *ApplicationRepository) GetByJobAndApplicant(ctx context.Context, jobID, applicantID int) (types.Application, error) {
	app, err := scanApplication(r.db.QueryRowContext(ctx, applicationSelect+` WHERE a.job_id = $1 AND a.applicant_id = $2`, jobID, applicantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Application{}, ErrNotFound
		}
		return types.Application{}, err
	}
	return app, nil
}

func (r *ApplicationRepository) Create(ctx context.Context, app types.Application) (types.Application, error) {
	now := time.Now()
	app.AppliedAt = now
	app.UpdatedAt = now

	const query = `
		INSERT INTO applications (job_id, applicant_id, cover_letter, resume, status, notes, applied_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		app.JobID,
		app.ApplicantID,
		app.CoverLetter,
		app.Resume,
		string(app.Status),
		app.Notes,
		app.AppliedAt,
		app.UpdatedAt,
	).Scan(&app.ID); err != nil {
		return types.Application{}, translateError(err)
	}
	return app, nil
}

// Update persists the applicant-editable fields.
func (r *ApplicationRepository) Update(ctx context.Context, app types.Application) (types.Application, error) {
	app.UpdatedAt = time.Now()

	const query = `
		UPDATE applications
		SET cover_letter = $1,
			resume = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, app.CoverLetter, app.Resume, app.UpdatedAt, app.ID)
	if err != nil {
		return types.Application{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Application{}, err
	}
	if affected == 0 {
		return types.Application{}, ErrNotFound
	}
	return app, nil
}

// UpdateStatus persists the review fields.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, app types.Application) (types.Application, error) {
	app.UpdatedAt = time.Now()

	const query = `
		UPDATE applications
		SET status = $1,
			notes = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, string(app.Status), app.Notes, app.UpdatedAt, app.ID)
	if err != nil {
		return types.Application{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Application{}, err
	}
	if affected == 0 {
		return types.Application{}, ErrNotFound
	}
	return app, nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM applications WHERE id = $1`
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
