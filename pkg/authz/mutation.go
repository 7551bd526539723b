package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/notedrive/notedrive/pkg/audit"
	"github.com/notedrive/notedrive/pkg/authctx"
	"github.com/notedrive/notedrive/pkg/models"
	"github.com/notedrive/notedrive/pkg/permcache"
	"github.com/notedrive/notedrive/pkg/store"
)

// RevokeReasonNotFound is the Reason reported when a revoke found no row
// to delete.
const RevokeReasonNotFound = "not_found"

// Auditor receives one-way audit events. audit.Recorder satisfies it.
type Auditor interface {
	Record(event audit.Event)
}

// GrantInput is the payload for granting or updating one ACL row.
type GrantInput struct {
	PageID       models.PageID `json:"page_id"`
	TargetUserID models.UserID `json:"target_user_id"`
	CanView      bool          `json:"can_view"`
	CanEdit      bool          `json:"can_edit"`
	CanShare     bool          `json:"can_share"`
	CanDelete    bool          `json:"can_delete"`

	// GrantedBy is accepted so that clients sending it do not fail to
	// decode, and then ignored: the persisted grantedBy is always the
	// acting context's user ID.
	GrantedBy string `json:"granted_by,omitempty"`
}

// GrantResult reports a successful grant. IsUpdate is true when an
// existing row was overwritten rather than created.
type GrantResult struct {
	Permission *models.PagePermission `json:"permission"`
	IsUpdate   bool                   `json:"is_update"`
}

// RevokeInput is the payload for revoking one ACL row.
type RevokeInput struct {
	PageID       models.PageID `json:"page_id"`
	TargetUserID models.UserID `json:"target_user_id"`
}

// RevokeResult reports a completed revoke. Revoking an absent row is not
// an error: Revoked is false and Reason says why.
type RevokeResult struct {
	Revoked bool   `json:"revoked"`
	Reason  string `json:"reason,omitempty"`
}

// MutationService performs the only writes to ACL rows in the system.
// Every mutation runs the same sequence: validate, business rules, live
// authorization against the store, existence check, transactional write,
// cache invalidation, async audit. Authorization always reads the store
// directly, never the cache, so a stale cache can widen read latency but
// never a write decision.
type MutationService struct {
	store   store.Store
	cache   *permcache.Cache
	auditor Auditor
	log     zerolog.Logger
}

// NewMutationService builds the service. The auditor may be nil, which
// disables audit emission; the cache is required.
func NewMutationService(st store.Store, cache *permcache.Cache, auditor Auditor, log zerolog.Logger) *MutationService {
	return &MutationService{store: st, cache: cache, auditor: auditor, log: log}
}

// Grant creates or overwrites the ACL row for (input.PageID,
// input.TargetUserID). The actor must be the drive owner, a drive admin,
// or hold a share grant on the page. Expected failures return *Error;
// anything else is an infrastructure failure and no partial state remains.
func (s *MutationService) Grant(ctx context.Context, actor *authctx.Context, input GrantInput) (*GrantResult, error) {
	if actor == nil {
		return nil, fmt.Errorf("grant: nil acting context")
	}
	if input.PageID.IsZero() || input.TargetUserID.IsZero() {
		return nil, newError(CodeValidationFailed, "page ID and target user ID are required")
	}
	if !input.CanView && (input.CanEdit || input.CanShare || input.CanDelete) {
		return nil, newError(CodeInvalidPermissionCombination,
			"edit, share, and delete permissions require view permission")
	}
	if actor.UserID() == input.TargetUserID {
		return nil, newError(CodeSelfPermissionDenied, "cannot change your own permissions")
	}
	if !actor.IsBoundToResource(models.ResourceTypePage, input.PageID.String()) {
		return nil, newError(CodeInsufficientPermission, "session is bound to a different resource")
	}

	row, err := s.store.GetPageAuthz(ctx, actor.UserID(), input.PageID)
	if err != nil {
		return nil, fmt.Errorf("authorizing grant: %w", err)
	}
	if !canShare(actor.UserID(), row) {
		return nil, newError(CodePageNotAccessible, "page not found or not shareable")
	}

	target, err := s.store.GetUser(ctx, input.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("checking target user: %w", err)
	}
	if target == nil {
		return nil, newError(CodeUserNotFound, "target user does not exist")
	}

	// Read the target's current row first so an overwrite can be audited
	// with the values it replaced.
	prior, err := s.store.GetPagePermission(ctx, input.PageID, input.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("reading existing permission: %w", err)
	}

	perm := &models.PagePermission{
		PageID:    input.PageID,
		UserID:    input.TargetUserID,
		CanView:   input.CanView,
		CanEdit:   input.CanEdit,
		CanShare:  input.CanShare,
		CanDelete: input.CanDelete,
		GrantedBy: actor.UserID(),
		GrantedAt: time.Now().UTC(),
	}
	created, err := s.store.UpsertPagePermission(ctx, perm)
	if err != nil {
		return nil, fmt.Errorf("writing permission: %w", err)
	}

	s.cache.InvalidateUserPermissions(ctx, input.TargetUserID)
	s.cache.InvalidateDrivePermissions(ctx, row.DriveID)

	operation := models.OpPermissionGrant
	var previous models.JSONMap
	if !created && prior != nil {
		operation = models.OpPermissionUpdate
		previous = permissionValues(prior)
	}
	s.audit(audit.Event{
		Operation:    operation,
		ResourceType: models.ResourceTypePermission,
		ResourceID:   perm.ID.String(),
		DriveID:      &row.DriveID,
		PageID:       &input.PageID,
		ActorID:      actor.UserID(),
		ActorMetadata: models.JSONMap{
			"target_user_id": input.TargetUserID.String(),
			"can_view":       input.CanView,
			"can_edit":       input.CanEdit,
			"can_share":      input.CanShare,
			"can_delete":     input.CanDelete,
		},
		PreviousValues: previous,
	})
	return &GrantResult{Permission: perm, IsUpdate: !created}, nil
}

// Revoke deletes the ACL row for (input.PageID, input.TargetUserID). It is
// idempotent: revoking an absent row succeeds with Revoked false. The
// audit event carries the deleted row's values so the revoke itself can be
// rolled back.
func (s *MutationService) Revoke(ctx context.Context, actor *authctx.Context, input RevokeInput) (*RevokeResult, error) {
	if actor == nil {
		return nil, fmt.Errorf("revoke: nil acting context")
	}
	if input.PageID.IsZero() || input.TargetUserID.IsZero() {
		return nil, newError(CodeValidationFailed, "page ID and target user ID are required")
	}
	if actor.UserID() == input.TargetUserID {
		return nil, newError(CodeSelfPermissionDenied, "cannot change your own permissions")
	}
	if !actor.IsBoundToResource(models.ResourceTypePage, input.PageID.String()) {
		return nil, newError(CodeInsufficientPermission, "session is bound to a different resource")
	}

	row, err := s.store.GetPageAuthz(ctx, actor.UserID(), input.PageID)
	if err != nil {
		return nil, fmt.Errorf("authorizing revoke: %w", err)
	}
	if !canShare(actor.UserID(), row) {
		return nil, newError(CodePageNotAccessible, "page not found or not shareable")
	}

	prior, err := s.store.DeletePagePermission(ctx, input.PageID, input.TargetUserID)
	if err != nil {
		return nil, fmt.Errorf("deleting permission: %w", err)
	}
	if prior == nil {
		return &RevokeResult{Revoked: false, Reason: RevokeReasonNotFound}, nil
	}

	s.cache.InvalidateUserPermissions(ctx, input.TargetUserID)
	s.cache.InvalidateDrivePermissions(ctx, row.DriveID)

	s.audit(audit.Event{
		Operation:    models.OpPermissionRevoke,
		ResourceType: models.ResourceTypePermission,
		ResourceID:   prior.ID.String(),
		DriveID:      &row.DriveID,
		PageID:       &input.PageID,
		ActorID:      actor.UserID(),
		ActorMetadata: models.JSONMap{
			"target_user_id": input.TargetUserID.String(),
		},
		PreviousValues: permissionValues(prior),
	})
	return &RevokeResult{Revoked: true}, nil
}

// canShare decides whether the actor may grant or revoke on the page the
// row describes. Grant and revoke share this check: being able to hand a
// permission out implies being able to take it back. A nil row means the
// page does not exist, which is indistinguishable from lacking access.
func canShare(actorID models.UserID, row *store.PageAuthz) bool {
	if row == nil {
		return false
	}
	if row.OwnerID == actorID {
		return true
	}
	if row.MemberRole != nil && *row.MemberRole == models.MembershipAdmin {
		return true
	}
	return row.HasRow && row.CanShare
}

func (s *MutationService) audit(event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(event)
}

// permissionValues captures a row's restorable state for audit entries.
func permissionValues(perm *models.PagePermission) models.JSONMap {
	return models.JSONMap{
		"can_view":   perm.CanView,
		"can_edit":   perm.CanEdit,
		"can_share":  perm.CanShare,
		"can_delete": perm.CanDelete,
		"granted_by": perm.GrantedBy.String(),
		"granted_at": perm.GrantedAt.Format(time.RFC3339),
	}
}
