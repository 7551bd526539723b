// Package models defines the domain entities and access-level value types for
// the notedrive workspace system.
//
// The model is built around one idea: a page's effective permissions are
// derived from three sources in strict priority order, and every entity here
// exists to feed that derivation or to record what was done with it.
//
// # Domain Model Architecture
//
// Each entity serves a specific purpose in the permission hierarchy:
//
//   - [Drive]: Top-level containers that organize pages, owned by exactly one
//     user. Ownership is stored on the drive itself and outranks every other
//     permission source
//   - [DriveMembership]: Attaches a user to a drive with an admin or member
//     role. Admins hold full access to every page in the drive; members hold
//     a view/edit baseline that individual page grants can extend but never
//     weaken
//   - [Page]: Core content units nested through parent-child relationships
//     within a drive, soft-deleted so trashed pages can be restored
//   - [PagePermission]: An explicit per-user grant on a single page with
//     view/edit/share/delete flags, recording who granted it and when. This
//     is how collaborators outside a drive get access to one document
//   - [User]: Account identity referenced by every other entity; profile
//     fields exist for the API surface
//   - [ActivityLog]: Append-only record of mutations with enough captured
//     state (previous values, content snapshots, the AI-generation marker)
//     for the rollback policy to judge revertibility
//
// # Access Levels
//
// Permission resolution produces [AccessLevel] values: the four flags plus
// the drive the page belongs to. A nil *AccessLevel means no relationship at
// all, which callers must distinguish from an all-false level (an explicit
// grant whose flags were later stripped). [DriveAccess] and
// [DrivePermissions] carry the drive-wide variants.
//
// # Typed IDs
//
// This package defines strongly-typed identifiers for each entity: [UserID],
// [DriveID], [PageID], [MembershipID], [PermissionID], and [ActivityID].
// Each wraps a UUID and implements JSON, CBOR, and SQL conversions, so a
// page ID cannot be passed where a user ID is expected anywhere between the
// HTTP layer and the database. CBOR support exists because cache entries are
// CBOR-encoded in the shared Redis tier.
package models
