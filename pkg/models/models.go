package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// UserRole is the platform-level role carried by session claims.
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// MembershipRole is a user's role within a drive.
type MembershipRole string

const (
	MembershipAdmin  MembershipRole = "admin"
	MembershipMember MembershipRole = "member"
)

// DriveRole is the effective drive-wide role reported by permission
// resolution. Unlike MembershipRole it includes ownership, which is stored
// on the drive itself rather than as a membership row.
type DriveRole string

const (
	DriveRoleOwner  DriveRole = "owner"
	DriveRoleAdmin  DriveRole = "admin"
	DriveRoleMember DriveRole = "member"
)

// ResourceType identifies what kind of resource an activity touched.
type ResourceType string

const (
	ResourceTypeDrive      ResourceType = "drive"
	ResourceTypePage       ResourceType = "page"
	ResourceTypePermission ResourceType = "page_permission"
	ResourceTypeMembership ResourceType = "drive_membership"
	ResourceTypeUser       ResourceType = "user"
)

// ActivityOperation is the kind of mutation an activity log entry records.
type ActivityOperation string

const (
	OpCreate            ActivityOperation = "create"
	OpUpdate            ActivityOperation = "update"
	OpDelete            ActivityOperation = "delete"
	OpTrash             ActivityOperation = "trash"
	OpMove              ActivityOperation = "move"
	OpReorder           ActivityOperation = "reorder"
	OpPermissionGrant   ActivityOperation = "permission_grant"
	OpPermissionUpdate  ActivityOperation = "permission_update"
	OpPermissionRevoke  ActivityOperation = "permission_revoke"
	OpAgentConfigUpdate ActivityOperation = "agent_config_update"
	OpMemberAdd         ActivityOperation = "member_add"
	OpMemberRemove      ActivityOperation = "member_remove"
	OpMemberRoleChange  ActivityOperation = "member_role_change"
	OpRoleReorder       ActivityOperation = "role_reorder"
	OpMessageUpdate     ActivityOperation = "message_update"
	OpMessageDelete     ActivityOperation = "message_delete"
	OpOwnershipTransfer ActivityOperation = "ownership_transfer"
	OpSignup            ActivityOperation = "signup"
	OpLogin             ActivityOperation = "login"
	OpLogout            ActivityOperation = "logout"
	OpRollback          ActivityOperation = "rollback"
)

// JSONMap is a flexible key-value map stored as JSONB in Postgres. It holds
// the loosely structured parts of activity entries: previous values captured
// for rollback, content snapshots, and actor metadata.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

// User represents a user account. Within the access-control core users are
// referenced by ID only; profile data exists for the API surface.
type User struct {
	ID        UserID         `gorm:"type:uuid;primary_key" json:"id"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `gorm:"not null" json:"name"`
	Role      UserRole       `gorm:"not null;default:user" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook to generate ID if not set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID.IsZero() {
		u.ID = NewUserID()
	}
	if u.Role == "" {
		u.Role = UserRoleUser
	}
	return nil
}

// Drive represents a workspace container. Every drive has exactly one owner,
// who holds implicit full permission on every page in it.
type Drive struct {
	ID        DriveID        `gorm:"type:uuid;primary_key" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	OwnerID   UserID         `gorm:"type:uuid;not null" json:"owner_id"`
	Owner     *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook to generate ID if not set
func (d *Drive) BeforeCreate(tx *gorm.DB) error {
	if d.ID.IsZero() {
		d.ID = NewDriveID()
	}
	return nil
}

// DriveMembership ties a user to a drive with a role. Admins hold implicit
// full permission on every page in the drive, equal to the owner. Members
// hold drive-wide view/edit; share/delete only via an explicit page grant.
type DriveMembership struct {
	ID        MembershipID   `gorm:"type:uuid;primary_key" json:"id"`
	DriveID   DriveID        `gorm:"type:uuid;not null;uniqueIndex:idx_drive_member" json:"drive_id"`
	Drive     *Drive         `gorm:"foreignKey:DriveID" json:"drive,omitempty"`
	UserID    UserID         `gorm:"type:uuid;not null;uniqueIndex:idx_drive_member" json:"user_id"`
	User      *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      MembershipRole `gorm:"not null" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (m *DriveMembership) BeforeCreate(tx *gorm.DB) error {
	if m.ID.IsZero() {
		m.ID = NewMembershipID()
	}
	return nil
}

// Page represents a content unit belonging to exactly one drive. Pages form
// a tree through ParentPageID. Pages carry no permission state of their own
// beyond the PagePermission rows referencing them.
type Page struct {
	ID           PageID         `gorm:"type:uuid;primary_key" json:"id"`
	DriveID      DriveID        `gorm:"type:uuid;not null;index" json:"drive_id"`
	Drive        *Drive         `gorm:"foreignKey:DriveID" json:"drive,omitempty"`
	ParentPageID *PageID        `gorm:"type:uuid" json:"parent_page_id,omitempty"`
	ParentPage   *Page          `gorm:"foreignKey:ParentPageID" json:"parent_page,omitempty"`
	Title        string         `gorm:"not null" json:"title"`
	CreatedBy    UserID         `gorm:"type:uuid;not null" json:"created_by"`
	Creator      *User          `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook to generate ID if not set
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewPageID()
	}
	return nil
}

// PagePermission is a per-user, per-page ACL row. At most one row exists per
// (page, user) pair; a grant updates the existing row in place. A row whose
// CanEdit, CanShare, or CanDelete is true must also have CanView true; that
// combination is rejected before persistence. GrantedBy records who created
// or last updated the grant and always comes from the acting context, never
// from a request payload.
type PagePermission struct {
	ID        PermissionID `gorm:"type:uuid;primary_key" json:"id"`
	PageID    PageID       `gorm:"type:uuid;not null;uniqueIndex:idx_page_user" json:"page_id"`
	Page      *Page        `gorm:"foreignKey:PageID" json:"page,omitempty"`
	UserID    UserID       `gorm:"type:uuid;not null;uniqueIndex:idx_page_user" json:"user_id"`
	User      *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CanView   bool         `gorm:"not null" json:"can_view"`
	CanEdit   bool         `gorm:"not null" json:"can_edit"`
	CanShare  bool         `gorm:"not null" json:"can_share"`
	CanDelete bool         `gorm:"not null" json:"can_delete"`
	GrantedBy UserID       `gorm:"type:uuid;not null" json:"granted_by"`
	GrantedAt time.Time    `gorm:"not null" json:"granted_at"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (p *PagePermission) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewPermissionID()
	}
	return nil
}

// ActivityLog records one mutation for display and rollback. Entries are
// written once and never updated; PreviousValues and ContentSnapshot hold
// whatever a later revert would need to restore.
type ActivityLog struct {
	ID              ActivityID        `gorm:"type:uuid;primary_key" json:"id"`
	Operation       ActivityOperation `gorm:"not null;index" json:"operation"`
	ResourceType    ResourceType      `gorm:"not null" json:"resource_type"`
	ResourceID      string            `gorm:"not null" json:"resource_id"`
	DriveID         *DriveID          `gorm:"type:uuid;index" json:"drive_id,omitempty"`
	PageID          *PageID           `gorm:"type:uuid;index" json:"page_id,omitempty"`
	UserID          UserID            `gorm:"type:uuid;not null;index" json:"user_id"`
	IsAIGenerated   bool              `gorm:"not null" json:"is_ai_generated"`
	ActorMetadata   JSONMap           `gorm:"type:jsonb" json:"actor_metadata,omitempty"`
	PreviousValues  JSONMap           `gorm:"type:jsonb" json:"previous_values,omitempty"`
	ContentSnapshot JSONMap           `gorm:"type:jsonb" json:"content_snapshot,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// BeforeCreate hook to generate ID if not set
func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID.IsZero() {
		a.ID = NewActivityID()
	}
	return nil
}
