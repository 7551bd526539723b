package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedrive/notedrive/pkg/models"
	"github.com/notedrive/notedrive/pkg/permcache"
	"github.com/notedrive/notedrive/pkg/store"
	"github.com/notedrive/notedrive/pkg/store/memory"
)

// fixture carries a populated store and the IDs of its cast: a drive owned
// by owner, with admin and member memberships, one page, and a
// collaborator holding an explicit view+edit row on it.
type fixture struct {
	store    store.Store
	cache    *permcache.Cache
	resolver *Resolver

	owner        *models.User
	admin        *models.User
	member       *models.User
	collaborator *models.User
	stranger     *models.User

	drive *models.Drive
	page  *models.Page
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{store: memory.NewMemoryStore()}
	f.cache = permcache.New(permcache.Config{}, nil, zerolog.Nop())
	t.Cleanup(f.cache.Close)
	f.resolver = NewResolver(f.store, f.cache, zerolog.Nop())

	f.owner = &models.User{Email: "owner@example.com", Name: "Owner"}
	f.admin = &models.User{Email: "admin@example.com", Name: "Admin"}
	f.member = &models.User{Email: "member@example.com", Name: "Member"}
	f.collaborator = &models.User{Email: "collab@example.com", Name: "Collaborator"}
	f.stranger = &models.User{Email: "stranger@example.com", Name: "Stranger"}
	for _, u := range []*models.User{f.owner, f.admin, f.member, f.collaborator, f.stranger} {
		require.NoError(t, f.store.CreateUser(ctx, u))
	}

	f.drive = &models.Drive{Name: "Engineering", OwnerID: f.owner.ID}
	require.NoError(t, f.store.CreateDrive(ctx, f.drive))
	require.NoError(t, f.store.AddDriveMembership(ctx, &models.DriveMembership{
		DriveID: f.drive.ID, UserID: f.admin.ID, Role: models.MembershipAdmin,
	}))
	require.NoError(t, f.store.AddDriveMembership(ctx, &models.DriveMembership{
		DriveID: f.drive.ID, UserID: f.member.ID, Role: models.MembershipMember,
	}))

	f.page = &models.Page{DriveID: f.drive.ID, Title: "Roadmap", CreatedBy: f.owner.ID}
	require.NoError(t, f.store.CreatePage(ctx, f.page))

	f.grant(t, f.collaborator.ID, f.page.ID, models.PagePermission{CanView: true, CanEdit: true})
	return f
}

// grant writes an ACL row directly to the store, bypassing the mutation
// service, for test setup.
func (f *fixture) grant(t *testing.T, userID models.UserID, pageID models.PageID, flags models.PagePermission) {
	t.Helper()
	_, err := f.store.UpsertPagePermission(context.Background(), &models.PagePermission{
		PageID:    pageID,
		UserID:    userID,
		CanView:   flags.CanView,
		CanEdit:   flags.CanEdit,
		CanShare:  flags.CanShare,
		CanDelete: flags.CanDelete,
		GrantedBy: f.owner.ID,
		GrantedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestGetUserAccessLevel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("drive owner has full access", func(t *testing.T) {
		access := f.resolver.GetUserAccessLevel(ctx, f.owner.ID, f.page.ID)
		require.NotNil(t, access)
		assert.True(t, access.CanView)
		assert.True(t, access.CanEdit)
		assert.True(t, access.CanShare)
		assert.True(t, access.CanDelete)
		assert.True(t, access.IsOwner)
		assert.False(t, access.IsAdmin)
		assert.Equal(t, f.drive.ID, access.DriveID)
	})

	t.Run("drive admin has full access", func(t *testing.T) {
		access := f.resolver.GetUserAccessLevel(ctx, f.admin.ID, f.page.ID)
		require.NotNil(t, access)
		assert.True(t, access.CanDelete)
		assert.False(t, access.IsOwner)
		assert.True(t, access.IsAdmin)
	})

	t.Run("member gets view and edit only", func(t *testing.T) {
		access := f.resolver.GetUserAccessLevel(ctx, f.member.ID, f.page.ID)
		require.NotNil(t, access)
		assert.True(t, access.CanView)
		assert.True(t, access.CanEdit)
		assert.False(t, access.CanShare)
		assert.False(t, access.CanDelete)
	})

	t.Run("member share comes only from an explicit row", func(t *testing.T) {
		f2 := newFixture(t)
		f2.grant(t, f2.member.ID, f2.page.ID, models.PagePermission{CanView: true, CanShare: true})
		access := f2.resolver.GetUserAccessLevel(ctx, f2.member.ID, f2.page.ID)
		require.NotNil(t, access)
		assert.True(t, access.CanEdit, "membership baseline survives a weaker row")
		assert.True(t, access.CanShare)
		assert.False(t, access.CanDelete)
	})

	t.Run("collaborator gets exactly the row flags", func(t *testing.T) {
		access := f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID)
		require.NotNil(t, access)
		assert.True(t, access.CanView)
		assert.True(t, access.CanEdit)
		assert.False(t, access.CanShare)
		assert.False(t, access.CanDelete)
	})

	t.Run("no relationship is no decision", func(t *testing.T) {
		assert.Nil(t, f.resolver.GetUserAccessLevel(ctx, f.stranger.ID, f.page.ID))
	})

	t.Run("missing page is no decision", func(t *testing.T) {
		assert.Nil(t, f.resolver.GetUserAccessLevel(ctx, f.owner.ID, models.NewPageID()))
	})
}

func TestResolverCachesPositiveDecisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID)
	require.NotNil(t, first)

	// Removing the row behind the cache's back must not change the answer
	// until the entry is invalidated.
	_, err := f.store.DeletePagePermission(ctx, f.page.ID, f.collaborator.ID)
	require.NoError(t, err)

	cached := f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID)
	require.NotNil(t, cached)
	assert.Equal(t, *first, *cached)

	f.cache.InvalidateUserPermissions(ctx, f.collaborator.ID)
	assert.Nil(t, f.resolver.GetUserAccessLevel(ctx, f.collaborator.ID, f.page.ID))
}

func TestResolverDoesNotCacheNoDecision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A fresh relationship must be visible immediately even though the
	// previous resolve answered "no decision".
	assert.Nil(t, f.resolver.GetUserAccessLevel(ctx, f.stranger.ID, f.page.ID))
	f.grant(t, f.stranger.ID, f.page.ID, models.PagePermission{CanView: true})
	access := f.resolver.GetUserAccessLevel(ctx, f.stranger.ID, f.page.ID)
	require.NotNil(t, access)
	assert.True(t, access.CanView)
}

// failingStore wraps a Store and fails its authorization reads.
type failingStore struct {
	store.Store
}

func (f *failingStore) GetPageAuthz(ctx context.Context, userID models.UserID, pageID models.PageID) (*store.PageAuthz, error) {
	return nil, errors.New("connection refused")
}

func (f *failingStore) GetDriveAuthz(ctx context.Context, userID models.UserID, driveID models.DriveID) (*store.DriveAuthz, error) {
	return nil, errors.New("connection refused")
}

func TestResolverDeniesOnStoreError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cache := permcache.New(permcache.Config{}, nil, zerolog.Nop())
	t.Cleanup(cache.Close)
	broken := NewResolver(&failingStore{Store: f.store}, cache, zerolog.Nop())

	assert.Nil(t, broken.GetUserAccessLevel(ctx, f.owner.ID, f.page.ID))
	assert.False(t, broken.GetUserDriveAccess(ctx, f.owner.ID, f.drive.ID))
	assert.Nil(t, broken.GetUserDrivePermissions(ctx, f.owner.ID, f.drive.ID))
}

func TestGetUserDriveAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.True(t, f.resolver.GetUserDriveAccess(ctx, f.owner.ID, f.drive.ID))
	assert.True(t, f.resolver.GetUserDriveAccess(ctx, f.member.ID, f.drive.ID))
	assert.True(t, f.resolver.GetUserDriveAccess(ctx, f.collaborator.ID, f.drive.ID),
		"a page-level view row makes the drive reachable")
	assert.False(t, f.resolver.GetUserDriveAccess(ctx, f.stranger.ID, f.drive.ID))
	assert.False(t, f.resolver.GetUserDriveAccess(ctx, f.owner.ID, models.NewDriveID()))
}

func TestDriveAccessIgnoresRowsInOtherDrives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// An ACL row on a page in a different drive must not open this one.
	otherDrive := &models.Drive{Name: "Other", OwnerID: f.owner.ID}
	require.NoError(t, f.store.CreateDrive(ctx, otherDrive))
	otherPage := &models.Page{DriveID: otherDrive.ID, Title: "Elsewhere", CreatedBy: f.owner.ID}
	require.NoError(t, f.store.CreatePage(ctx, otherPage))
	f.grant(t, f.stranger.ID, otherPage.ID, models.PagePermission{CanView: true})

	assert.False(t, f.resolver.GetUserDriveAccess(ctx, f.stranger.ID, f.drive.ID))
	assert.True(t, f.resolver.GetUserDriveAccess(ctx, f.stranger.ID, otherDrive.ID))
}

func TestGetUserDrivePermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("owner", func(t *testing.T) {
		perms := f.resolver.GetUserDrivePermissions(ctx, f.owner.ID, f.drive.ID)
		require.NotNil(t, perms)
		assert.Equal(t, models.DriveRoleOwner, perms.Role)
		assert.True(t, perms.CanDelete)
	})

	t.Run("admin", func(t *testing.T) {
		perms := f.resolver.GetUserDrivePermissions(ctx, f.admin.ID, f.drive.ID)
		require.NotNil(t, perms)
		assert.Equal(t, models.DriveRoleAdmin, perms.Role)
		assert.True(t, perms.CanShare)
	})

	t.Run("member", func(t *testing.T) {
		perms := f.resolver.GetUserDrivePermissions(ctx, f.member.ID, f.drive.ID)
		require.NotNil(t, perms)
		assert.Equal(t, models.DriveRoleMember, perms.Role)
		assert.True(t, perms.CanView)
		assert.True(t, perms.CanEdit)
		assert.False(t, perms.CanShare)
		assert.False(t, perms.CanDelete)
	})

	t.Run("page collaborator gets nil despite drive access", func(t *testing.T) {
		assert.True(t, f.resolver.GetUserDriveAccess(ctx, f.collaborator.ID, f.drive.ID))
		assert.Nil(t, f.resolver.GetUserDrivePermissions(ctx, f.collaborator.ID, f.drive.ID))
	})

	t.Run("stranger and missing drive", func(t *testing.T) {
		assert.Nil(t, f.resolver.GetUserDrivePermissions(ctx, f.stranger.ID, f.drive.ID))
		assert.Nil(t, f.resolver.GetUserDrivePermissions(ctx, f.owner.ID, models.NewDriveID()))
	})
}

func TestGetBatchPagePermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	second := &models.Page{DriveID: f.drive.ID, Title: "Second", CreatedBy: f.owner.ID}
	require.NoError(t, f.store.CreatePage(ctx, second))

	pageIDs := []models.PageID{f.page.ID, second.ID, models.NewPageID()}

	t.Run("collaborator sees only granted pages", func(t *testing.T) {
		result := f.resolver.GetBatchPagePermissions(ctx, f.collaborator.ID, pageIDs)
		require.Len(t, result, 1)
		access, ok := result[f.page.ID]
		require.True(t, ok)
		assert.True(t, access.CanView)
	})

	t.Run("owner sees every existing page", func(t *testing.T) {
		result := f.resolver.GetBatchPagePermissions(ctx, f.owner.ID, pageIDs)
		assert.Len(t, result, 2)
	})

	t.Run("batch agrees with single resolves", func(t *testing.T) {
		batch := f.resolver.GetBatchPagePermissions(ctx, f.member.ID, pageIDs)
		for _, pageID := range pageIDs {
			single := f.resolver.GetUserAccessLevel(ctx, f.member.ID, pageID)
			got, ok := batch[pageID]
			if single == nil {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)
			assert.Equal(t, *single, got)
		}
	})

	t.Run("second call is served from cache", func(t *testing.T) {
		// Resolve once, then break the store; cached entries still answer.
		warm := f.resolver.GetBatchPagePermissions(ctx, f.admin.ID, []models.PageID{f.page.ID, second.ID})
		require.Len(t, warm, 2)

		broken := NewResolver(&failingStore{Store: f.store}, f.cache, zerolog.Nop())
		again := broken.GetBatchPagePermissions(ctx, f.admin.ID, []models.PageID{f.page.ID, second.ID})
		assert.Equal(t, warm, again)
	})
}

func TestCanUserHelpers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	viewer := &models.User{Email: "viewer@example.com", Name: "Viewer"}
	require.NoError(t, f.store.CreateUser(ctx, viewer))
	f.grant(t, viewer.ID, f.page.ID, models.PagePermission{CanView: true})

	assert.True(t, f.resolver.CanUserViewPage(ctx, viewer.ID, f.page.ID))
	assert.False(t, f.resolver.CanUserEditPage(ctx, viewer.ID, f.page.ID))
	assert.False(t, f.resolver.CanUserSharePage(ctx, viewer.ID, f.page.ID))
	assert.False(t, f.resolver.CanUserDeletePage(ctx, viewer.ID, f.page.ID))

	assert.False(t, f.resolver.CanUserViewPage(ctx, f.stranger.ID, f.page.ID))
	assert.True(t, f.resolver.CanUserDeletePage(ctx, f.owner.ID, f.page.ID))
}
