package authz

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedrive/notedrive/pkg/audit"
	"github.com/notedrive/notedrive/pkg/authctx"
	"github.com/notedrive/notedrive/pkg/models"
)

// captureAuditor records events synchronously for assertions.
type captureAuditor struct {
	events []audit.Event
}

func (c *captureAuditor) Record(event audit.Event) {
	c.events = append(c.events, event)
}

func (c *captureAuditor) last(t *testing.T) audit.Event {
	t.Helper()
	require.NotEmpty(t, c.events)
	return c.events[len(c.events)-1]
}

func newMutationFixture(t *testing.T) (*fixture, *MutationService, *captureAuditor) {
	t.Helper()
	f := newFixture(t)
	auditor := &captureAuditor{}
	svc := NewMutationService(f.store, f.cache, auditor, zerolog.Nop())
	return f, svc, auditor
}

func actorFor(user *models.User) *authctx.Context {
	return authctx.FromSession(authctx.SessionClaims{
		UserID:   user.ID,
		UserRole: user.Role,
		Scopes:   []string{authctx.ScopeAll},
	})
}

func TestGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("owner grants a new row", func(t *testing.T) {
		f, svc, auditor := newMutationFixture(t)
		result, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
			CanEdit:      true,
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.IsUpdate)
		assert.Equal(t, f.owner.ID, result.Permission.GrantedBy)
		assert.False(t, result.Permission.GrantedAt.IsZero())

		event := auditor.last(t)
		assert.Equal(t, models.OpPermissionGrant, event.Operation)
		assert.Equal(t, models.ResourceTypePermission, event.ResourceType)
		assert.Equal(t, f.owner.ID, event.ActorID)
		require.NotNil(t, event.PageID)
		assert.Equal(t, f.page.ID, *event.PageID)
		assert.Nil(t, event.PreviousValues)
	})

	t.Run("payload grantedBy is ignored", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		result, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
			GrantedBy:    f.stranger.ID.String(),
		})
		require.NoError(t, err)
		assert.Equal(t, f.owner.ID, result.Permission.GrantedBy)
	})

	t.Run("overwrite reports update with previous values", func(t *testing.T) {
		f, svc, auditor := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		require.NoError(t, err)

		result, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
			CanEdit:      true,
		})
		require.NoError(t, err)
		assert.True(t, result.IsUpdate)

		event := auditor.last(t)
		assert.Equal(t, models.OpPermissionUpdate, event.Operation)
		require.NotNil(t, event.PreviousValues)
		assert.Equal(t, true, event.PreviousValues["can_view"])
		assert.Equal(t, false, event.PreviousValues["can_edit"])
	})

	t.Run("combination is validated before authorization", func(t *testing.T) {
		// The actor holds no share rights at all, yet the combination
		// failure wins because it is checked first.
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.stranger), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.member.ID,
			CanView:      false,
			CanEdit:      true,
		})
		assert.Equal(t, CodeInvalidPermissionCombination, CodeOf(err))
	})

	t.Run("all-false combination is allowed", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		result, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
		})
		require.NoError(t, err)
		assert.False(t, result.Permission.CanView)
	})

	t.Run("self grant denied", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.owner.ID,
			CanView:      true,
		})
		assert.Equal(t, CodeSelfPermissionDenied, CodeOf(err))
	})

	t.Run("zero IDs fail validation", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{CanView: true})
		assert.Equal(t, CodeValidationFailed, CodeOf(err))

		_, err = svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:  f.page.ID,
			CanView: true,
		})
		assert.Equal(t, CodeValidationFailed, CodeOf(err))
	})

	t.Run("nil actor is an infrastructure error", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, nil, GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		require.Error(t, err)
		assert.Empty(t, CodeOf(err))
	})

	t.Run("actor without share rights", func(t *testing.T) {
		// The collaborator holds view+edit but not share; the page reads
		// as not accessible, indistinguishable from a missing page.
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.collaborator), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		assert.Equal(t, CodePageNotAccessible, CodeOf(err))
	})

	t.Run("member without share rights", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.member), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		assert.Equal(t, CodePageNotAccessible, CodeOf(err))
	})

	t.Run("platform admin does not bypass drive authorization", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		platformAdmin := &models.User{
			Email: "root@example.com", Name: "Root", Role: models.UserRoleAdmin,
		}
		require.NoError(t, f.store.CreateUser(ctx, platformAdmin))
		_, err := svc.Grant(ctx, actorFor(platformAdmin), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		assert.Equal(t, CodePageNotAccessible, CodeOf(err))
	})

	t.Run("missing page", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       models.NewPageID(),
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		assert.Equal(t, CodePageNotAccessible, CodeOf(err))
	})

	t.Run("missing target user", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: models.NewUserID(),
			CanView:      true,
		})
		assert.Equal(t, CodeUserNotFound, CodeOf(err))
	})

	t.Run("session bound to another resource", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		bound := authctx.FromSession(authctx.SessionClaims{
			UserID: f.owner.ID,
			Scopes: []string{authctx.ScopeAll},
			Binding: &authctx.ResourceBinding{
				Type: models.ResourceTypePage,
				ID:   models.NewPageID().String(),
			},
		})
		_, err := svc.Grant(ctx, bound, GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		assert.Equal(t, CodeInsufficientPermission, CodeOf(err))
	})

	t.Run("grant invalidates the target's cached decision", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		stale := f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID)
		require.NotNil(t, stale)
		require.False(t, stale.CanDelete)

		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.collaborator.ID,
			CanView:      true,
			CanEdit:      true,
			CanDelete:    true,
		})
		require.NoError(t, err)

		fresh := f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID)
		require.NotNil(t, fresh)
		assert.True(t, fresh.CanDelete)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()

	t.Run("sharer revokes and revoke is idempotent", func(t *testing.T) {
		f, svc, auditor := newMutationFixture(t)

		// The owner hands the collaborator share rights; the collaborator
		// then revokes a third user's row.
		_, err := svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.collaborator.ID,
			CanView:      true,
			CanShare:     true,
		})
		require.NoError(t, err)
		_, err = svc.Grant(ctx, actorFor(f.owner), GrantInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
			CanView:      true,
		})
		require.NoError(t, err)
		auditedBefore := len(auditor.events)

		result, err := svc.Revoke(ctx, actorFor(f.collaborator), RevokeInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
		})
		require.NoError(t, err)
		assert.True(t, result.Revoked)

		event := auditor.last(t)
		assert.Equal(t, models.OpPermissionRevoke, event.Operation)
		require.NotNil(t, event.PreviousValues)
		assert.Equal(t, true, event.PreviousValues["can_view"])

		// Second revoke finds nothing, succeeds, and audits nothing.
		again, err := svc.Revoke(ctx, actorFor(f.collaborator), RevokeInput{
			PageID:       f.page.ID,
			TargetUserID: f.stranger.ID,
		})
		require.NoError(t, err)
		assert.False(t, again.Revoked)
		assert.Equal(t, RevokeReasonNotFound, again.Reason)
		assert.Len(t, auditor.events, auditedBefore+1)
	})

	t.Run("actor without share rights", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Revoke(ctx, actorFor(f.member), RevokeInput{
			PageID:       f.page.ID,
			TargetUserID: f.collaborator.ID,
		})
		assert.Equal(t, CodePageNotAccessible, CodeOf(err))
	})

	t.Run("self revoke denied", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Revoke(ctx, actorFor(f.owner), RevokeInput{
			PageID:       f.page.ID,
			TargetUserID: f.owner.ID,
		})
		assert.Equal(t, CodeSelfPermissionDenied, CodeOf(err))
	})

	t.Run("zero IDs fail validation", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		_, err := svc.Revoke(ctx, actorFor(f.owner), RevokeInput{})
		assert.Equal(t, CodeValidationFailed, CodeOf(err))
	})

	t.Run("revoke invalidates the target's cached decision", func(t *testing.T) {
		f, svc, _ := newMutationFixture(t)
		warm := f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID)
		require.NotNil(t, warm)

		result, err := svc.Revoke(ctx, actorFor(f.owner), RevokeInput{
			PageID:       f.page.ID,
			TargetUserID: f.collaborator.ID,
		})
		require.NoError(t, err)
		require.True(t, result.Revoked)

		assert.Nil(t, f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID))
	})
}
