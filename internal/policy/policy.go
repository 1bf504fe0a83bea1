// Package policy decides which rows a caller may see and which mutations
// a caller may perform. Every service consults it instead of checking
// roles inline.
package policy

import "github.com/jobhub/apiserver/types"

// Actor is the caller of an operation. The zero value is anonymous.
type Actor struct {
	ID   int
	Role string
}

// Anonymous returns an unauthenticated actor.
func Anonymous() Actor {
	return Actor{}
}

// ActorFor builds the actor for an authenticated account.
func ActorFor(user types.User) Actor {
	return Actor{ID: user.ID, Role: user.Role}
}

// Authenticated reports whether the actor has an identity.
func (a Actor) Authenticated() bool {
	return a.ID > 0
}

// IsAdmin reports whether the actor is an authenticated admin.
func (a Actor) IsAdmin() bool {
	return a.Authenticated() && a.Role == types.RoleAdmin
}

// Scope narrows a list query. A zero Scope means no restriction.
type Scope struct {
	// ActiveOnly hides inactive jobs.
	ActiveOnly bool
	// OwnerID restricts rows to those owned by this account.
	OwnerID int
	// Empty means the caller may see nothing at all.
	Empty bool
}

// JobScope limits non-admins to active jobs.
func JobScope(a Actor) Scope {
	return Scope{ActiveOnly: !a.IsAdmin()}
}

// ApplicationScope limits non-admins to their own applications.
func ApplicationScope(a Actor) Scope {
	switch {
	case a.IsAdmin():
		return Scope{}
	case a.Authenticated():
		return Scope{OwnerID: a.ID}
	default:
		return Scope{Empty: true}
	}
}

// UserScope limits non-admins to their own account.
func UserScope(a Actor) Scope {
	switch {
	case a.IsAdmin():
		return Scope{}
	case a.Authenticated():
		return Scope{OwnerID: a.ID}
	default:
		return Scope{Empty: true}
	}
}

// CanViewUser reports whether the account is visible to the actor.
func CanViewUser(a Actor, user types.User) bool {
	return a.IsAdmin() || (a.Authenticated() && a.ID == user.ID)
}

// CanUpdateProfile reports whether the actor may edit the account's profile fields.
func CanUpdateProfile(a Actor, user types.User) bool {
	return CanViewUser(a, user)
}

// CanAdministerUsers reports whether the actor may change roles and activation.
func CanAdministerUsers(a Actor) bool {
	return a.IsAdmin()
}

// CanModifyCategory reports whether the actor may create, update or delete categories.
func CanModifyCategory(a Actor) bool {
	return a.IsAdmin()
}

// CanViewJob reports whether the job is visible to the actor.
func CanViewJob(a Actor, job types.Job) bool {
	return a.IsAdmin() || job.IsActive
}

// CanCreateJob reports whether the actor may post a job.
func CanCreateJob(a Actor) bool {
	return a.Authenticated()
}

// CanModifyJob reports whether the actor may update or delete jobs.
// Posters lose edit rights once the job is created.
func CanModifyJob(a Actor) bool {
	return a.IsAdmin()
}

// CanViewApplication reports whether the application is visible to the actor.
func CanViewApplication(a Actor, app types.Application) bool {
	return a.IsAdmin() || (a.Authenticated() && a.ID == app.ApplicantID)
}

// CanCreateApplication reports whether the actor may apply to jobs.
func CanCreateApplication(a Actor) bool {
	return a.Authenticated()
}

// CanModifyApplication reports whether the actor may edit or withdraw the application.
func CanModifyApplication(a Actor, app types.Application) bool {
	return CanViewApplication(a, app)
}

// CanChangeApplicationStatus reports whether the actor may move applications
// through the review workflow.
func CanChangeApplicationStatus(a Actor) bool {
	return a.IsAdmin()
}

// CanListApplicationsForJob reports whether the actor may list every
// application for a job.
func CanListApplicationsForJob(a Actor) bool {
	return a.IsAdmin()
}
