// Package store defines the persistence boundary for the notedrive
// access-control core.
//
// The [Store] interface abstracts the relational source of truth over two
// implementations: a PostgreSQL backend built on GORM for deployments, and an
// in-memory backend for development mode and tests. Permission decisions are
// always derivable from this layer alone; everything the cache tiers hold is
// a re-computable copy.
//
// Conventions, shared by every implementation:
//   - Get methods return (nil, nil) for missing records; errors mean the
//     lookup itself failed.
//   - List methods return empty slices, never nil.
//   - Update and delete methods return [ErrNotFound] when the target record
//     does not exist.
//   - All methods accept a context and respect its cancellation.
package store

import (
	"context"
	"errors"

	"github.com/notedrive/notedrive/pkg/models"
)

// ErrNotFound is returned by update and delete operations whose target
// record does not exist.
var ErrNotFound = errors.New("record not found")

// PageAuthz is one row of the page authorization join: everything needed to
// resolve a single user's access to a single page in one query. MemberRole is
// nil when the user holds no membership in the page's drive; the permission
// flags are meaningful only when HasRow is true.
type PageAuthz struct {
	PageID     models.PageID          `gorm:"column:page_id" json:"page_id"`
	DriveID    models.DriveID         `gorm:"column:drive_id" json:"drive_id"`
	OwnerID    models.UserID          `gorm:"column:owner_id" json:"owner_id"`
	MemberRole *models.MembershipRole `gorm:"column:member_role" json:"member_role,omitempty"`
	HasRow     bool                   `gorm:"column:has_row" json:"has_row"`
	CanView    bool                   `gorm:"column:can_view" json:"can_view"`
	CanEdit    bool                   `gorm:"column:can_edit" json:"can_edit"`
	CanShare   bool                   `gorm:"column:can_share" json:"can_share"`
	CanDelete  bool                   `gorm:"column:can_delete" json:"can_delete"`
}

// DriveAuthz is the drive authorization join for one (user, drive) pair.
// HasPageView reports whether the user holds at least one ACL row with
// CanView on any page in the drive, which is what lets page-level
// collaborators see the drive at all.
type DriveAuthz struct {
	DriveID     models.DriveID         `gorm:"column:drive_id" json:"drive_id"`
	OwnerID     models.UserID          `gorm:"column:owner_id" json:"owner_id"`
	MemberRole  *models.MembershipRole `gorm:"column:member_role" json:"member_role,omitempty"`
	HasPageView bool                   `gorm:"column:has_page_view" json:"has_page_view"`
}

// Store is the persistence interface for users, drives, memberships, pages,
// ACL rows, and the activity log, plus the join reads the permission
// resolver and mutation service are built on.
type Store interface {
	// User operations.

	// CreateUser persists a new user, generating an ID if unset.
	CreateUser(ctx context.Context, user *models.User) error
	// GetUser retrieves a user by ID, or nil if none exists.
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)
	// GetUserByEmail retrieves a user by email, or nil if none exists.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser replaces an existing user record.
	UpdateUser(ctx context.Context, user *models.User) error
	// DeleteUser soft-deletes a user.
	DeleteUser(ctx context.Context, id models.UserID) error

	// Drive operations.

	// CreateDrive persists a new drive, generating an ID if unset.
	CreateDrive(ctx context.Context, drive *models.Drive) error
	// GetDrive retrieves a drive by ID, or nil if none exists.
	GetDrive(ctx context.Context, id models.DriveID) (*models.Drive, error)
	// UpdateDrive replaces an existing drive record. Ownership transfers go
	// through this method; callers are responsible for authorization and for
	// invalidating cached decisions for both owners.
	UpdateDrive(ctx context.Context, drive *models.Drive) error
	// DeleteDrive soft-deletes a drive.
	DeleteDrive(ctx context.Context, id models.DriveID) error
	// ListDrives returns the drives a user owns or is a member of.
	ListDrives(ctx context.Context, userID models.UserID) ([]*models.Drive, error)

	// Drive membership operations.

	// AddDriveMembership persists a membership row. At most one row exists
	// per (drive, user); adding a duplicate is a constraint violation.
	AddDriveMembership(ctx context.Context, membership *models.DriveMembership) error
	// GetDriveMembership retrieves the membership for (drive, user), or nil.
	GetDriveMembership(ctx context.Context, driveID models.DriveID, userID models.UserID) (*models.DriveMembership, error)
	// UpdateDriveMembership replaces an existing membership row (role changes).
	UpdateDriveMembership(ctx context.Context, membership *models.DriveMembership) error
	// RemoveDriveMembership deletes the membership for (drive, user).
	RemoveDriveMembership(ctx context.Context, driveID models.DriveID, userID models.UserID) error
	// ListDriveMemberships returns all memberships of a drive.
	ListDriveMemberships(ctx context.Context, driveID models.DriveID) ([]*models.DriveMembership, error)

	// Page operations.

	// CreatePage persists a new page, generating an ID if unset. A non-nil
	// parent must belong to the same drive.
	CreatePage(ctx context.Context, page *models.Page) error
	// GetPage retrieves a page by ID, or nil if none exists.
	GetPage(ctx context.Context, id models.PageID) (*models.Page, error)
	// UpdatePage replaces an existing page record.
	UpdatePage(ctx context.Context, page *models.Page) error
	// DeletePage soft-deletes a page.
	DeletePage(ctx context.Context, id models.PageID) error
	// ListPages returns all pages in a drive.
	ListPages(ctx context.Context, driveID models.DriveID) ([]*models.Page, error)
	// ListChildPages returns the direct children of a page.
	ListChildPages(ctx context.Context, parentPageID models.PageID) ([]*models.Page, error)

	// Page permission operations. ACL rows are mutated only through the
	// transactional upsert/delete pair below; there is no plain create.

	// GetPagePermission retrieves the ACL row for (page, user), or nil.
	GetPagePermission(ctx context.Context, pageID models.PageID, userID models.UserID) (*models.PagePermission, error)
	// ListPagePermissions returns all ACL rows on a page.
	ListPagePermissions(ctx context.Context, pageID models.PageID) ([]*models.PagePermission, error)
	// ListUserPagePermissions returns all ACL rows held by a user.
	ListUserPagePermissions(ctx context.Context, userID models.UserID) ([]*models.PagePermission, error)
	// UpsertPagePermission writes the ACL row for (perm.PageID, perm.UserID)
	// inside one transaction: the existing row is looked up and updated in
	// place, or a new row is inserted. Two concurrent upserts for the same
	// pair cannot produce duplicate rows; the last committed transaction
	// wins. Reports whether a new row was created.
	UpsertPagePermission(ctx context.Context, perm *models.PagePermission) (created bool, err error)
	// DeletePagePermission removes the ACL row for (page, user) inside one
	// transaction and returns the deleted row, or (nil, nil) if no row
	// existed. The returned row carries the previous values needed for
	// audit and rollback.
	DeletePagePermission(ctx context.Context, pageID models.PageID, userID models.UserID) (*models.PagePermission, error)

	// Authorization reads. These feed the resolver's precedence logic and
	// the mutation service's live authorization check.

	// GetPageAuthz returns the authorization row for one (user, page) pair,
	// or nil when the page does not exist. One join query: the page's
	// drive, that drive's owner, the user's membership role, and the user's
	// ACL flags.
	GetPageAuthz(ctx context.Context, userID models.UserID, pageID models.PageID) (*PageAuthz, error)
	// GetPageAuthzBatch returns authorization rows for many pages in a
	// single multi-row join query, never one query per page. Pages that do
	// not exist are simply absent from the result.
	GetPageAuthzBatch(ctx context.Context, userID models.UserID, pageIDs []models.PageID) ([]PageAuthz, error)
	// GetDriveAuthz returns the authorization row for one (user, drive)
	// pair, or nil when the drive does not exist.
	GetDriveAuthz(ctx context.Context, userID models.UserID, driveID models.DriveID) (*DriveAuthz, error)

	// Activity log operations. Entries are append-only.

	// CreateActivityLog persists one activity entry.
	CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error
	// GetActivityLog retrieves an activity entry by ID, or nil.
	GetActivityLog(ctx context.Context, id models.ActivityID) (*models.ActivityLog, error)
	// ListDriveActivity returns a drive's newest entries, newest first,
	// capped at limit (or a backend default when limit <= 0).
	ListDriveActivity(ctx context.Context, driveID models.DriveID, limit int) ([]*models.ActivityLog, error)
	// ListUserActivity returns a user's newest entries, newest first,
	// capped at limit (or a backend default when limit <= 0).
	ListUserActivity(ctx context.Context, userID models.UserID, limit int) ([]*models.ActivityLog, error)

	// Migrate creates or updates the backing schema.
	Migrate(ctx context.Context) error
	// Close releases the backend's resources.
	Close() error
}
