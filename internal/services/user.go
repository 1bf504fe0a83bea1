package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jobhub/apiserver/internal/events"
	"github.com/jobhub/apiserver/internal/metrics"
	"github.com/jobhub/apiserver/internal/policy"
	"github.com/jobhub/apiserver/internal/store"
	"github.com/jobhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxNameLength     = 100
	maxPhoneLength    = 15
	maxEmailLength    = 254
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context, filter store.UserFilter) ([]types.User, int, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	CountByResume(ctx context.Context, resume string) (int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo     UserRepository
	resumes  *ResumeService
	events   events.Publisher
	hashCost int
}

func NewUserService(repo UserRepository, resumes *ResumeService, publisher events.Publisher) *UserService {
	return &UserService{
		repo:     repo,
		resumes:  resumes,
		events:   publisher,
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

// ProfileInput carries profile edits. Nil fields are left unchanged.
type ProfileInput struct {
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
}

// AdminUserInput carries the fields only admins may change.
type AdminUserInput struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// Register creates a regular account. Any requested role is ignored.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	user, err := s.create(ctx, in, types.RoleUser)
	if err != nil {
		return types.User{}, err
	}
	metrics.RecordRegistration()
	s.events.Publish(ctx, events.New(events.UserRegistered, user.ID, user.ID, nil))
	return user, nil
}

// CreateAdmin creates an admin account. It is only reachable from the CLI.
func (s *UserService) CreateAdmin(ctx context.Context, in RegisterInput) (types.User, error) {
	return s.create(ctx, in, types.RoleAdmin)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role string) (types.User, error) {
	user := types.User{
		Email:       normalizeEmail(in.Email),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Role:        role,
		IsActive:    true,
	}

	fields := validateUser(user)
	if len(in.Password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return types.User{}, validationError(fields)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = string(hashed)

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return types.User{}, translate(err, "user")
	}
	return created, nil
}

// Authenticate checks credentials. Unknown emails, wrong passwords and
// deactivated accounts all fail the same way.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	invalid := newError(KindUnauthenticated, "invalid credentials")

	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, invalid
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, invalid
	}
	if !user.IsActive {
		return types.User{}, invalid
	}
	return user, nil
}

// Resolve loads the account behind a token subject.
func (s *UserService) Resolve(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, newError(KindUnauthenticated, "account no longer exists")
		}
		return types.User{}, err
	}
	if !user.IsActive {
		return types.User{}, newError(KindUnauthenticated, "account is deactivated")
	}
	return user, nil
}

func (s *UserService) Profile(ctx context.Context, actor policy.Actor) (types.User, error) {
	if !actor.Authenticated() {
		return types.User{}, ErrUnauthenticated
	}
	user, err := s.repo.GetByID(ctx, actor.ID)
	return user, translate(err, "user")
}

// UpdateProfile edits the caller's own profile. A full update (partial
// false) requires email, first_name and last_name.
func (s *UserService) UpdateProfile(ctx context.Context, actor policy.Actor, in ProfileInput, partial bool) (types.User, error) {
	user, err := s.Profile(ctx, actor)
	if err != nil {
		return types.User{}, err
	}
	if !policy.CanUpdateProfile(actor, user) {
		return types.User{}, forbidden("cannot edit this profile")
	}

	if !partial {
		fields := map[string]string{}
		if in.Email == nil {
			fields["email"] = "this field is required"
		}
		if in.FirstName == nil {
			fields["first_name"] = "this field is required"
		}
		if in.LastName == nil {
			fields["last_name"] = "this field is required"
		}
		if len(fields) > 0 {
			return types.User{}, validationError(fields)
		}
	}

	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if fields := validateUser(user); len(fields) > 0 {
		return types.User{}, validationError(fields)
	}

	updated, err := s.repo.Update(ctx, user)
	return updated, translate(err, "user")
}

// SetResume uploads a new default resume for the caller and removes the
// previous object.
func (s *UserService) SetResume(ctx context.Context, actor policy.Actor, upload Upload) (types.User, error) {
	user, err := s.Profile(ctx, actor)
	if err != nil {
		return types.User{}, err
	}

	key, err := s.resumes.saveAccountResume(ctx, user.ID, upload)
	if err != nil {
		return types.User{}, err
	}

	previous := user.Resume
	user.Resume = &key
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		s.resumes.remove(ctx, key)
		return types.User{}, translate(err, "user")
	}
	if previous != nil {
		s.resumes.remove(ctx, *previous)
	}
	return updated, nil
}

// List returns every account for admins and only the caller otherwise.
func (s *UserService) List(ctx context.Context, actor policy.Actor, page store.Page) ([]types.User, int, error) {
	scope := policy.UserScope(actor)
	if scope.Empty {
		return []types.User{}, 0, nil
	}
	return s.repo.List(ctx, store.UserFilter{ID: scope.OwnerID, Page: page})
}

func (s *UserService) Get(ctx context.Context, actor policy.Actor, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, translate(err, "user")
	}
	if !policy.CanViewUser(actor, user) {
		return types.User{}, notFound("user")
	}
	return user, nil
}

// AdminUpdate changes an account's role or activation.
func (s *UserService) AdminUpdate(ctx context.Context, actor policy.Actor, id int, in AdminUserInput) (types.User, error) {
	if !actor.Authenticated() {
		return types.User{}, ErrUnauthenticated
	}
	if !policy.CanAdministerUsers(actor) {
		return types.User{}, forbidden("admin access required")
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, translate(err, "user")
	}
	if in.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*in.Role))
		if !types.ValidRole(role) {
			return types.User{}, fieldError("role", `must be "admin" or "user"`)
		}
		user.Role = role
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}

	updated, err := s.repo.Update(ctx, user)
	return updated, translate(err, "user")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUser(user types.User) map[string]string {
	fields := map[string]string{}
	if user.Email == "" {
		fields["email"] = "this field is required"
	} else if utf8.RuneCountInString(user.Email) > maxEmailLength {
		fields["email"] = "must be at most 254 characters"
	} else if addr, err := mail.ParseAddress(user.Email); err != nil || addr.Address != user.Email {
		fields["email"] = "enter a valid email address"
	}
	switch {
	case user.FirstName == "":
		fields["first_name"] = "this field is required"
	case utf8.RuneCountInString(user.FirstName) > maxNameLength:
		fields["first_name"] = "must be at most 100 characters"
	}
	switch {
	case user.LastName == "":
		fields["last_name"] = "this field is required"
	case utf8.RuneCountInString(user.LastName) > maxNameLength:
		fields["last_name"] = "must be at most 100 characters"
	}
	if utf8.RuneCountInString(user.PhoneNumber) > maxPhoneLength {
		fields["phone_number"] = "must be at most 15 characters"
	}
	return fields
}
