// Package authz implements the permission core of notedrive: resolving what
// a user may do to a page or drive, mutating ACL rows under zero-trust
// checks, and authorizing rollback of historical activity.
//
// The package draws a hard line between two kinds of failure. Expected
// outcomes of an authorization question travel as *Error values with a
// stable Code; infrastructure failures travel as plain wrapped errors. The
// Resolver goes one step further and never returns an error at all: a
// store or cache failure is logged and resolved as deny, because an
// authorization question must always produce an answer.
package authz

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/notedrive/notedrive/pkg/models"
	"github.com/notedrive/notedrive/pkg/permcache"
	"github.com/notedrive/notedrive/pkg/store"
)

// Resolver computes permission decisions from the store, consulting the
// cache first and populating it on a miss. It is the sole authority on the
// precedence of ownership, drive roles, and explicit ACL rows.
type Resolver struct {
	store store.Store
	cache *permcache.Cache
	log   zerolog.Logger
}

// NewResolver builds a Resolver. The cache is required; run it without a
// remote tier rather than without a cache.
func NewResolver(st store.Store, cache *permcache.Cache, log zerolog.Logger) *Resolver {
	return &Resolver{store: st, cache: cache, log: log}
}

// GetUserAccessLevel resolves what the user may do to the page. The
// precedence is: drive owner, then drive admin, then drive member baseline
// merged with any explicit ACL row, then the ACL row alone. A nil result is
// the explicit "no decision" value: the page does not exist or the user has
// no relationship to it. Positive decisions are cached; "no decision" never
// is, so a just-created relationship becomes visible immediately.
//
// Store and cache failures are logged and resolved as nil. The method does
// not return an error.
func (r *Resolver) GetUserAccessLevel(ctx context.Context, userID models.UserID, pageID models.PageID) *models.AccessLevel {
	if access, ok := r.cache.GetPagePermission(ctx, userID, pageID); ok {
		return access
	}
	row, err := r.store.GetPageAuthz(ctx, userID, pageID)
	if err != nil {
		r.log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("page_id", pageID.String()).
			Msg("resolving page access, denying")
		return nil
	}
	access := deriveAccess(userID, row)
	if access != nil {
		r.cache.SetPagePermission(ctx, userID, pageID, *access)
	}
	return access
}

// deriveAccess turns one authorization row into a decision. A nil row means
// the page or its drive does not exist and yields no decision.
func deriveAccess(userID models.UserID, row *store.PageAuthz) *models.AccessLevel {
	if row == nil {
		return nil
	}
	if row.OwnerID == userID {
		return models.FullAccessLevel(row.DriveID, true)
	}
	if row.MemberRole != nil && *row.MemberRole == models.MembershipAdmin {
		return models.FullAccessLevel(row.DriveID, false)
	}
	if row.MemberRole != nil {
		// Members hold drive-wide view and edit regardless of any row;
		// share and delete come only from an explicit grant.
		return &models.AccessLevel{
			DriveID:   row.DriveID,
			CanView:   true,
			CanEdit:   true,
			CanShare:  row.HasRow && row.CanShare,
			CanDelete: row.HasRow && row.CanDelete,
		}
	}
	if row.HasRow {
		return &models.AccessLevel{
			DriveID:   row.DriveID,
			CanView:   row.CanView,
			CanEdit:   row.CanEdit,
			CanShare:  row.CanShare,
			CanDelete: row.CanDelete,
		}
	}
	return nil
}

// GetUserDriveAccess answers the coarse visibility question: should this
// drive be reachable for the user at all. True for the owner, any member,
// or a user holding at least one viewable page row inside the drive. Both
// polarities are cached.
func (r *Resolver) GetUserDriveAccess(ctx context.Context, userID models.UserID, driveID models.DriveID) bool {
	if access, ok := r.cache.GetDriveAccess(ctx, userID, driveID); ok {
		return access.HasAccess
	}
	row, err := r.store.GetDriveAuthz(ctx, userID, driveID)
	if err != nil {
		r.log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("drive_id", driveID.String()).
			Msg("resolving drive access, denying")
		return false
	}
	if row == nil {
		return false
	}
	access := models.DriveAccess{
		HasAccess: row.OwnerID == userID || row.MemberRole != nil || row.HasPageView,
		IsOwner:   row.OwnerID == userID,
	}
	r.cache.SetDriveAccess(ctx, userID, driveID, access)
	return access.HasAccess
}

// GetUserDrivePermissions returns the user's drive-wide rights, or nil when
// the user is neither the owner nor a member. Page-level collaborators get
// nil here even though GetUserDriveAccess reports true for them: callers
// scoping drive-wide capabilities, such as service tokens, must not widen a
// page grant into drive rights. The result is computed live and not cached.
func (r *Resolver) GetUserDrivePermissions(ctx context.Context, userID models.UserID, driveID models.DriveID) *models.DrivePermissions {
	row, err := r.store.GetDriveAuthz(ctx, userID, driveID)
	if err != nil {
		r.log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("drive_id", driveID.String()).
			Msg("resolving drive permissions, denying")
		return nil
	}
	if row == nil {
		return nil
	}
	switch {
	case row.OwnerID == userID:
		return &models.DrivePermissions{
			Role:    models.DriveRoleOwner,
			CanView: true, CanEdit: true, CanShare: true, CanDelete: true,
		}
	case row.MemberRole != nil && *row.MemberRole == models.MembershipAdmin:
		return &models.DrivePermissions{
			Role:    models.DriveRoleAdmin,
			CanView: true, CanEdit: true, CanShare: true, CanDelete: true,
		}
	case row.MemberRole != nil:
		return &models.DrivePermissions{
			Role:    models.DriveRoleMember,
			CanView: true, CanEdit: true,
		}
	default:
		return nil
	}
}

// GetBatchPagePermissions resolves many pages for one user at once. Cached
// decisions are reused; the rest are fetched with a single store query,
// derived, and cached individually. Pages resolving to "no decision" are
// omitted from the result, so the map is pointwise equal to calling
// GetUserAccessLevel per page.
func (r *Resolver) GetBatchPagePermissions(ctx context.Context, userID models.UserID, pageIDs []models.PageID) map[models.PageID]models.AccessLevel {
	result, missing := r.cache.GetBatchPagePermissions(ctx, userID, pageIDs)
	if len(missing) == 0 {
		return result
	}
	rows, err := r.store.GetPageAuthzBatch(ctx, userID, missing)
	if err != nil {
		r.log.Error().Err(err).
			Str("user_id", userID.String()).
			Int("pages", len(missing)).
			Msg("resolving page access batch, denying misses")
		return result
	}
	resolved := make(map[models.PageID]models.AccessLevel, len(rows))
	for i := range rows {
		row := rows[i]
		access := deriveAccess(userID, &row)
		if access == nil {
			continue
		}
		resolved[row.PageID] = *access
		result[row.PageID] = *access
	}
	r.cache.SetBatchPagePermissions(ctx, userID, resolved)
	return result
}

// CanUserViewPage reports whether the user may view the page. "No
// decision" defaults to false.
func (r *Resolver) CanUserViewPage(ctx context.Context, userID models.UserID, pageID models.PageID) bool {
	access := r.GetUserAccessLevel(ctx, userID, pageID)
	return access != nil && access.CanView
}

// CanUserEditPage reports whether the user may edit the page.
func (r *Resolver) CanUserEditPage(ctx context.Context, userID models.UserID, pageID models.PageID) bool {
	access := r.GetUserAccessLevel(ctx, userID, pageID)
	return access != nil && access.CanEdit
}

// CanUserSharePage reports whether the user may share the page.
func (r *Resolver) CanUserSharePage(ctx context.Context, userID models.UserID, pageID models.PageID) bool {
	access := r.GetUserAccessLevel(ctx, userID, pageID)
	return access != nil && access.CanShare
}

// CanUserDeletePage reports whether the user may delete the page.
func (r *Resolver) CanUserDeletePage(ctx context.Context, userID models.UserID, pageID models.PageID) bool {
	access := r.GetUserAccessLevel(ctx, userID, pageID)
	return access != nil && access.CanDelete
}
