package authz

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedrive/notedrive/pkg/models"
)

func newRollbackFixture(t *testing.T) (*fixture, *RollbackPolicy) {
	t.Helper()
	f := newFixture(t)
	return f, NewRollbackPolicy(f.resolver, zerolog.Nop())
}

func pageActivity(f *fixture, actor models.UserID) *models.ActivityLog {
	return &models.ActivityLog{
		ID:             models.NewActivityID(),
		UserID:         actor,
		Operation:      models.OpUpdate,
		ResourceType:   models.ResourceTypePage,
		ResourceID:     f.page.ID.String(),
		DriveID:        &f.drive.ID,
		PageID:         &f.page.ID,
		PreviousValues: models.JSONMap{"title": "Old title"},
	}
}

func TestIsActivityEligibleForRollback(t *testing.T) {
	f, policy := newRollbackFixture(t)

	t.Run("revertible with previous values", func(t *testing.T) {
		assert.True(t, policy.IsActivityEligibleForRollback(pageActivity(f, f.member.ID)))
	})

	t.Run("revertible with snapshot only", func(t *testing.T) {
		activity := pageActivity(f, f.member.ID)
		activity.PreviousValues = nil
		activity.ContentSnapshot = models.JSONMap{"title": "Snapshot"}
		assert.True(t, policy.IsActivityEligibleForRollback(activity))
	})

	t.Run("nothing to restore from", func(t *testing.T) {
		activity := pageActivity(f, f.member.ID)
		activity.PreviousValues = nil
		assert.False(t, policy.IsActivityEligibleForRollback(activity))
	})

	t.Run("non-revertible operation", func(t *testing.T) {
		activity := pageActivity(f, f.member.ID)
		activity.Operation = models.OpLogin
		assert.False(t, policy.IsActivityEligibleForRollback(activity))
	})

	t.Run("permission operations are revertible", func(t *testing.T) {
		for _, op := range []models.ActivityOperation{
			models.OpPermissionGrant,
			models.OpPermissionUpdate,
			models.OpPermissionRevoke,
		} {
			activity := pageActivity(f, f.member.ID)
			activity.Operation = op
			assert.True(t, policy.IsActivityEligibleForRollback(activity), string(op))
		}
	})

	t.Run("nil activity", func(t *testing.T) {
		assert.False(t, policy.IsActivityEligibleForRollback(nil))
	})
}

func TestCanUserRollbackNeverRevertible(t *testing.T) {
	ctx := context.Background()
	f, policy := newRollbackFixture(t)

	contexts := []RollbackContext{
		RollbackContextPage,
		RollbackContextDrive,
		RollbackContextAITool,
		RollbackContextUserDashboard,
	}
	ops := []models.ActivityOperation{
		models.OpSignup, models.OpLogin, models.OpLogout, models.OpRollback,
	}
	for _, op := range ops {
		for _, rc := range contexts {
			// Even the drive owner acting on their own AI-flagged entry
			// is denied.
			activity := pageActivity(f, f.owner.ID)
			activity.Operation = op
			activity.IsAIGenerated = true
			decision := policy.CanUserRollback(ctx, f.owner.ID, activity, rc)
			assert.False(t, decision.Allowed, "%s under %s", op, rc)
		}
	}
}

func TestCanUserRollbackPageContext(t *testing.T) {
	ctx := context.Background()
	f, policy := newRollbackFixture(t)

	t.Run("editor may revert", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.member.ID, pageActivity(f, f.owner.ID), RollbackContextPage)
		assert.True(t, decision.Allowed)
	})

	t.Run("viewer may not", func(t *testing.T) {
		viewer := &models.User{Email: "viewer@example.com", Name: "Viewer"}
		require.NoError(t, f.store.CreateUser(ctx, viewer))
		f.grant(t, viewer.ID, f.page.ID, models.PagePermission{CanView: true})

		decision := policy.CanUserRollback(ctx, viewer.ID, pageActivity(f, f.owner.ID), RollbackContextPage)
		assert.False(t, decision.Allowed)
	})

	t.Run("activity without a page", func(t *testing.T) {
		activity := pageActivity(f, f.owner.ID)
		activity.PageID = nil
		decision := policy.CanUserRollback(ctx, f.member.ID, activity, RollbackContextPage)
		assert.False(t, decision.Allowed)
	})
}

func TestCanUserRollbackDriveContext(t *testing.T) {
	ctx := context.Background()
	f, policy := newRollbackFixture(t)

	t.Run("owner and admin may revert anyone's activity", func(t *testing.T) {
		activity := pageActivity(f, f.member.ID)
		assert.True(t, policy.CanUserRollback(ctx, f.owner.ID, activity, RollbackContextDrive).Allowed)
		assert.True(t, policy.CanUserRollback(ctx, f.admin.ID, activity, RollbackContextDrive).Allowed)
	})

	t.Run("member may not", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.member.ID, pageActivity(f, f.owner.ID), RollbackContextDrive)
		assert.False(t, decision.Allowed)
	})

	t.Run("activity without a drive", func(t *testing.T) {
		activity := pageActivity(f, f.owner.ID)
		activity.DriveID = nil
		decision := policy.CanUserRollback(ctx, f.owner.ID, activity, RollbackContextDrive)
		assert.False(t, decision.Allowed)
	})
}

func TestCanUserRollbackAIToolContext(t *testing.T) {
	ctx := context.Background()
	f, policy := newRollbackFixture(t)

	t.Run("own AI activity", func(t *testing.T) {
		activity := pageActivity(f, f.member.ID)
		activity.IsAIGenerated = true
		decision := policy.CanUserRollback(ctx, f.member.ID, activity, RollbackContextAITool)
		assert.True(t, decision.Allowed)
	})

	t.Run("someone else's AI activity", func(t *testing.T) {
		activity := pageActivity(f, f.member.ID)
		activity.IsAIGenerated = true
		decision := policy.CanUserRollback(ctx, f.owner.ID, activity, RollbackContextAITool)
		assert.False(t, decision.Allowed)
	})

	t.Run("own non-AI activity", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.member.ID, pageActivity(f, f.member.ID), RollbackContextAITool)
		assert.False(t, decision.Allowed)
	})
}

func TestCanUserRollbackUserDashboardContext(t *testing.T) {
	ctx := context.Background()
	f, policy := newRollbackFixture(t)

	t.Run("own activity", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.member.ID, pageActivity(f, f.member.ID), RollbackContextUserDashboard)
		assert.True(t, decision.Allowed)
	})

	t.Run("someone else's activity", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.member.ID, pageActivity(f, f.owner.ID), RollbackContextUserDashboard)
		assert.False(t, decision.Allowed)
	})
}

func TestCanUserRollbackEdgeCases(t *testing.T) {
	ctx := context.Background()
	f, policy := newRollbackFixture(t)

	t.Run("unknown context", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.owner.ID, pageActivity(f, f.owner.ID), RollbackContext("cli"))
		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.Reason, "unknown rollback context")
	})

	t.Run("nil activity", func(t *testing.T) {
		decision := policy.CanUserRollback(ctx, f.owner.ID, nil, RollbackContextPage)
		assert.False(t, decision.Allowed)
	})
}
