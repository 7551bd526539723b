package models

// AccessLevel is a resolved permission decision for one (user, page) pair.
// A nil *AccessLevel is the explicit "no decision" value: the page does not
// exist, or the user has no relationship to it at all. That is distinct from
// a non-nil AccessLevel whose four flags are all false, which means an
// explicit all-false grant exists.
//
// DriveID is the drive the page belongs to at resolution time; cached
// entries rely on it for drive-scoped invalidation.
type AccessLevel struct {
	DriveID   DriveID `json:"drive_id"`
	CanView   bool    `json:"can_view"`
	CanEdit   bool    `json:"can_edit"`
	CanShare  bool    `json:"can_share"`
	CanDelete bool    `json:"can_delete"`
	IsOwner   bool    `json:"is_owner"`
	IsAdmin   bool    `json:"is_admin"`
}

// FullAccessLevel returns the decision held by a drive owner or admin.
func FullAccessLevel(driveID DriveID, owner bool) *AccessLevel {
	return &AccessLevel{
		DriveID:   driveID,
		CanView:   true,
		CanEdit:   true,
		CanShare:  true,
		CanDelete: true,
		IsOwner:   owner,
		IsAdmin:   !owner,
	}
}

// DriveAccess is the coarse drive-visibility decision: whether the drive
// should be reachable for a user at all, plus whether that user owns it.
type DriveAccess struct {
	HasAccess bool `json:"has_access"`
	IsOwner   bool `json:"is_owner"`
}

// DrivePermissions is the granular drive-wide decision. It exists only for
// owners, admins, and members; a user whose sole relationship to the drive
// is a page-level grant gets nil here even though DriveAccess reports true.
// The two shapes serve different callers and are deliberately not unified.
type DrivePermissions struct {
	Role      DriveRole `json:"role"`
	CanView   bool      `json:"can_view"`
	CanEdit   bool      `json:"can_edit"`
	CanShare  bool      `json:"can_share"`
	CanDelete bool      `json:"can_delete"`
}
