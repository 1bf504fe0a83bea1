package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jobhub/apiserver/types"
)

// UserFilter narrows a user listing.
type UserFilter struct {
	// ID restricts the listing to one account when non-zero.
	ID   int
	Page Page
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, role, phone_number, resume, is_active, password_hash, date_joined, updated_at`

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var resume sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.PhoneNumber,
		&resume,
		&user.IsActive,
		&user.PasswordHash,
		&user.DateJoined,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	if resume.Valid {
		user.Resume = &resume.String
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]types.User, int, error) {
	var cond conditions
	if filter.ID != 0 {
		cond.add("id = ?", filter.ID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`+cond.where(), cond.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageClause, args := cond.page(filter.Page)
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+cond.where()+` ORDER BY date_joined DESC, id DESC`+pageClause, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// CountByResume counts accounts whose default resume is the given key.
func (r *UserRepository) CountByResume(ctx context.Context, resume string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE resume = $1`, resume).Scan(&count)
	return count, err
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.DateJoined = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, first_name, last_name, role, phone_number, resume, is_active, password_hash, date_joined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.PhoneNumber,
		user.Resume,
		user.IsActive,
		user.PasswordHash,
		user.DateJoined,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET email = $1,
			first_name = $2,
			last_name = $3,
			role = $4,
			phone_number = $5,
			resume = $6,
			is_active = $7,
			password_hash = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.PhoneNumber,
		user.Resume,
		user.IsActive,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}
