package authz

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notedrive/notedrive/pkg/models"
)

// RollbackContext is the vantage point a revert request originates from.
// It selects which authorization rule applies: the same activity can be
// revertible from one context and not another.
type RollbackContext string

const (
	// RollbackContextPage is a revert initiated from a page's history
	// panel. Requires current edit permission on the page.
	RollbackContextPage RollbackContext = "page"

	// RollbackContextDrive is a revert initiated from drive-level
	// administration. Requires drive ownership or an admin membership
	// and then covers any user's activity in the drive.
	RollbackContextDrive RollbackContext = "drive"

	// RollbackContextAITool is a revert of AI-generated changes from the
	// AI session view. Restricted to the actor's own AI-generated
	// activity.
	RollbackContextAITool RollbackContext = "ai_tool"

	// RollbackContextUserDashboard is a revert from the actor's personal
	// activity feed. Restricted to the actor's own activity.
	RollbackContextUserDashboard RollbackContext = "user_dashboard"
)

// RollbackDecision is the outcome of a rollback authorization check. The
// reason is explanatory text for denials, not a stable code.
type RollbackDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() RollbackDecision {
	return RollbackDecision{Allowed: true}
}

func deny(reason string) RollbackDecision {
	return RollbackDecision{Allowed: false, Reason: reason}
}

// revertibleOps is the allow-list of operations a rollback can undo.
// An operation outside this list has no defined inverse.
var revertibleOps = map[models.ActivityOperation]bool{
	models.OpCreate:            true,
	models.OpUpdate:            true,
	models.OpDelete:            true,
	models.OpTrash:             true,
	models.OpMove:              true,
	models.OpReorder:           true,
	models.OpPermissionGrant:   true,
	models.OpPermissionUpdate:  true,
	models.OpPermissionRevoke:  true,
	models.OpAgentConfigUpdate: true,
	models.OpMemberAdd:         true,
	models.OpMemberRemove:      true,
	models.OpMemberRoleChange:  true,
	models.OpRoleReorder:       true,
	models.OpMessageUpdate:     true,
	models.OpMessageDelete:     true,
	models.OpOwnershipTransfer: true,
}

// neverRevertibleOps are excluded from rollback under every context no
// matter what the activity carries. Rollback of a rollback is excluded to
// keep undo chains from recursing; undoing an undo is a distinct feature.
var neverRevertibleOps = map[models.ActivityOperation]bool{
	models.OpSignup:   true,
	models.OpLogin:    true,
	models.OpLogout:   true,
	models.OpRollback: true,
}

// RollbackPolicy authorizes reverting historical activity. Whether a user
// may rollback an activity is a different question from whether they may
// edit the resource today, so it gets its own layer on top of the
// Resolver.
type RollbackPolicy struct {
	resolver *Resolver
	log      zerolog.Logger
}

// NewRollbackPolicy builds the policy around an existing Resolver.
func NewRollbackPolicy(resolver *Resolver, log zerolog.Logger) *RollbackPolicy {
	return &RollbackPolicy{resolver: resolver, log: log}
}

// IsActivityEligibleForRollback is the structural check: the operation
// must be a revertible kind and the entry must carry something to restore
// from, either previous values or a content snapshot. It is pure and does
// no I/O. Callers must apply it in addition to CanUserRollback, not
// instead of it; the two checks are independent.
func (p *RollbackPolicy) IsActivityEligibleForRollback(activity *models.ActivityLog) bool {
	if activity == nil {
		return false
	}
	if !revertibleOps[activity.Operation] {
		return false
	}
	return len(activity.PreviousValues) > 0 || len(activity.ContentSnapshot) > 0
}

// CanUserRollback is the authorization check: may this user revert this
// activity from this context. Operations in the never-revertible set are
// denied before any context rule runs.
func (p *RollbackPolicy) CanUserRollback(ctx context.Context, userID models.UserID, activity *models.ActivityLog, rollbackCtx RollbackContext) RollbackDecision {
	if activity == nil {
		return deny("no activity to roll back")
	}
	if neverRevertibleOps[activity.Operation] {
		return deny(fmt.Sprintf("operation %q is never revertible", activity.Operation))
	}
	switch rollbackCtx {
	case RollbackContextPage:
		if activity.PageID == nil {
			return deny("activity is not associated with a page")
		}
		if !p.resolver.CanUserEditPage(ctx, userID, *activity.PageID) {
			return deny("edit permission on the page is required")
		}
		return allow()

	case RollbackContextDrive:
		if activity.DriveID == nil {
			return deny("activity is not associated with a drive")
		}
		perms := p.resolver.GetUserDrivePermissions(ctx, userID, *activity.DriveID)
		if perms == nil || (perms.Role != models.DriveRoleOwner && perms.Role != models.DriveRoleAdmin) {
			return deny("drive owner or admin role is required")
		}
		return allow()

	case RollbackContextAITool:
		if activity.UserID != userID {
			return deny("only your own AI-generated activity can be rolled back here")
		}
		if !activity.IsAIGenerated {
			return deny("activity was not AI-generated")
		}
		return allow()

	case RollbackContextUserDashboard:
		if activity.UserID != userID {
			return deny("only your own activity can be rolled back here")
		}
		return allow()

	default:
		return deny(fmt.Sprintf("unknown rollback context %q", rollbackCtx))
	}
}
