package permcache

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedrive/notedrive/pkg/models"
)

// fakeRemote is an in-memory Remote with optional injected failure.
type fakeRemote struct {
	mu     sync.Mutex
	values map[string][]byte
	sets   map[string]map[string]struct{}
	err    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		values: make(map[string][]byte),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (f *fakeRemote) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	val, ok := f.values[key]
	if !ok {
		return nil, nil
	}
	return val, nil
}

func (f *fakeRemote) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if val, ok := f.values[key]; ok {
			out[i] = val
		}
	}
	return out, nil
}

func (f *fakeRemote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

func (f *fakeRemote) MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for key, value := range entries {
		f.values[key] = value
	}
	return nil
}

func (f *fakeRemote) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeRemote) DelPattern(ctx context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for key := range f.values {
		if ok, _ := path.Match(pattern, key); ok {
			delete(f.values, key)
		}
	}
	return nil
}

func (f *fakeRemote) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (f *fakeRemote) SMembersDel(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	set := f.sets[key]
	delete(f.sets, key)
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}

func (f *fakeRemote) keys() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

func newLocalCache(t *testing.T) *Cache {
	t.Helper()
	c := New(Config{}, nil, zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func newSharedCache(t *testing.T, remote Remote) *Cache {
	t.Helper()
	c := New(Config{}, remote, zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func someAccess(driveID models.DriveID) models.AccessLevel {
	return models.AccessLevel{DriveID: driveID, CanView: true, CanEdit: true}
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := newLocalCache(t)

	userID := models.NewUserID()
	pageID := models.NewPageID()
	driveID := models.NewDriveID()

	t.Run("page permission", func(t *testing.T) {
		_, ok := c.GetPagePermission(ctx, userID, pageID)
		assert.False(t, ok)

		c.SetPagePermission(ctx, userID, pageID, someAccess(driveID))

		got, ok := c.GetPagePermission(ctx, userID, pageID)
		require.True(t, ok)
		assert.True(t, got.CanView)
		assert.Equal(t, driveID, got.DriveID)

		// Another user's key is distinct.
		_, ok = c.GetPagePermission(ctx, models.NewUserID(), pageID)
		assert.False(t, ok)
	})

	t.Run("drive access caches both polarities", func(t *testing.T) {
		c.SetDriveAccess(ctx, userID, driveID, models.DriveAccess{HasAccess: false})
		got, ok := c.GetDriveAccess(ctx, userID, driveID)
		require.True(t, ok)
		assert.False(t, got.HasAccess)

		c.SetDriveAccess(ctx, userID, driveID, models.DriveAccess{HasAccess: true, IsOwner: true})
		got, ok = c.GetDriveAccess(ctx, userID, driveID)
		require.True(t, ok)
		assert.True(t, got.HasAccess)
		assert.True(t, got.IsOwner)
	})
}

func TestCacheEntriesExpire(t *testing.T) {
	ctx := context.Background()
	c := New(Config{TTL: 50 * time.Millisecond}, nil, zerolog.Nop())
	t.Cleanup(c.Close)

	userID := models.NewUserID()
	pageID := models.NewPageID()
	c.SetPagePermission(ctx, userID, pageID, someAccess(models.NewDriveID()))

	_, ok := c.GetPagePermission(ctx, userID, pageID)
	require.True(t, ok)

	// Reads must not extend the lifetime: keep reading past the TTL.
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		c.GetPagePermission(ctx, userID, pageID)
		time.Sleep(10 * time.Millisecond)
	}
	_, ok = c.GetPagePermission(ctx, userID, pageID)
	assert.False(t, ok)
}

func TestRemoteTierSharing(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()

	writer := newSharedCache(t, remote)
	reader := newSharedCache(t, remote)

	userID := models.NewUserID()
	pageID := models.NewPageID()
	driveID := models.NewDriveID()

	writer.SetPagePermission(ctx, userID, pageID, someAccess(driveID))

	// The reader instance has a cold local tier and hits the remote.
	got, ok := reader.GetPagePermission(ctx, userID, pageID)
	require.True(t, ok)
	assert.True(t, got.CanEdit)
	assert.Equal(t, driveID, got.DriveID)

	t.Run("remote hit was promoted", func(t *testing.T) {
		remote.mu.Lock()
		remote.err = errors.New("down")
		remote.mu.Unlock()

		got, ok := reader.GetPagePermission(ctx, userID, pageID)
		require.True(t, ok)
		assert.True(t, got.CanView)

		remote.mu.Lock()
		remote.err = nil
		remote.mu.Unlock()
	})

	t.Run("drive access shared", func(t *testing.T) {
		writer.SetDriveAccess(ctx, userID, driveID, models.DriveAccess{HasAccess: true})
		got, ok := reader.GetDriveAccess(ctx, userID, driveID)
		require.True(t, ok)
		assert.True(t, got.HasAccess)
	})
}

func TestInvalidateUserPermissions(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := newSharedCache(t, remote)

	target := models.NewUserID()
	other := models.NewUserID()
	pageID := models.NewPageID()
	driveID := models.NewDriveID()

	c.SetPagePermission(ctx, target, pageID, someAccess(driveID))
	c.SetDriveAccess(ctx, target, driveID, models.DriveAccess{HasAccess: true})
	c.SetPagePermission(ctx, other, pageID, someAccess(driveID))

	c.InvalidateUserPermissions(ctx, target)

	_, ok := c.GetPagePermission(ctx, target, pageID)
	assert.False(t, ok)
	_, ok = c.GetDriveAccess(ctx, target, driveID)
	assert.False(t, ok)

	// The other user's entries survive, in both tiers.
	_, ok = c.GetPagePermission(ctx, other, pageID)
	assert.True(t, ok)

	fresh := newSharedCache(t, remote)
	_, ok = fresh.GetPagePermission(ctx, target, pageID)
	assert.False(t, ok)
	_, ok = fresh.GetPagePermission(ctx, other, pageID)
	assert.True(t, ok)
}

func TestInvalidateDrivePermissions(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := newSharedCache(t, remote)

	userA := models.NewUserID()
	userB := models.NewUserID()
	drive := models.NewDriveID()
	otherDrive := models.NewDriveID()
	pageInDrive := models.NewPageID()
	pageElsewhere := models.NewPageID()

	c.SetPagePermission(ctx, userA, pageInDrive, someAccess(drive))
	c.SetPagePermission(ctx, userB, pageInDrive, someAccess(drive))
	c.SetPagePermission(ctx, userA, pageElsewhere, someAccess(otherDrive))
	c.SetDriveAccess(ctx, userA, drive, models.DriveAccess{HasAccess: true})
	c.SetDriveAccess(ctx, userA, otherDrive, models.DriveAccess{HasAccess: true})

	c.InvalidateDrivePermissions(ctx, drive)

	// Every decision touching the drive is gone for every user.
	_, ok := c.GetPagePermission(ctx, userA, pageInDrive)
	assert.False(t, ok)
	_, ok = c.GetPagePermission(ctx, userB, pageInDrive)
	assert.False(t, ok)
	_, ok = c.GetDriveAccess(ctx, userA, drive)
	assert.False(t, ok)

	// Decisions for the other drive survive.
	_, ok = c.GetPagePermission(ctx, userA, pageElsewhere)
	assert.True(t, ok)
	_, ok = c.GetDriveAccess(ctx, userA, otherDrive)
	assert.True(t, ok)

	t.Run("remote tier cleared through the index", func(t *testing.T) {
		fresh := newSharedCache(t, remote)
		_, ok := fresh.GetPagePermission(ctx, userA, pageInDrive)
		assert.False(t, ok)
		_, ok = fresh.GetPagePermission(ctx, userA, pageElsewhere)
		assert.True(t, ok)
	})
}

func TestGetBatchPagePermissions(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()

	userID := models.NewUserID()
	driveID := models.NewDriveID()
	localPage := models.NewPageID()
	remotePage := models.NewPageID()
	coldPage := models.NewPageID()

	// Seed one entry in another instance so it exists only remotely, and
	// one entry locally.
	seeder := newSharedCache(t, remote)
	seeder.SetPagePermission(ctx, userID, remotePage, someAccess(driveID))

	c := newSharedCache(t, remote)
	c.pages.Set(pageKey(userID, localPage), someAccess(driveID), DefaultTTL)

	hits, missing := c.GetBatchPagePermissions(ctx, userID,
		[]models.PageID{localPage, remotePage, coldPage})

	assert.Len(t, hits, 2)
	assert.Contains(t, hits, localPage)
	assert.Contains(t, hits, remotePage)
	require.Len(t, missing, 1)
	assert.Equal(t, coldPage, missing[0])

	t.Run("empty input", func(t *testing.T) {
		hits, missing := c.GetBatchPagePermissions(ctx, userID, nil)
		assert.Empty(t, hits)
		assert.Empty(t, missing)
	})
}

func TestSetBatchPagePermissions(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := newSharedCache(t, remote)

	userID := models.NewUserID()
	driveID := models.NewDriveID()
	pageA := models.NewPageID()
	pageB := models.NewPageID()

	c.SetBatchPagePermissions(ctx, userID, map[models.PageID]models.AccessLevel{
		pageA: someAccess(driveID),
		pageB: someAccess(driveID),
	})

	for _, pageID := range []models.PageID{pageA, pageB} {
		got, ok := c.GetPagePermission(ctx, userID, pageID)
		require.True(t, ok)
		assert.True(t, got.CanView)
	}

	t.Run("remote tier populated", func(t *testing.T) {
		fresh := newSharedCache(t, remote)
		got, ok := fresh.GetPagePermission(ctx, userID, pageA)
		require.True(t, ok)
		assert.Equal(t, driveID, got.DriveID)
	})

	t.Run("entries registered in the drive index", func(t *testing.T) {
		c.InvalidateDrivePermissions(ctx, driveID)
		fresh := newSharedCache(t, remote)
		_, ok := fresh.GetPagePermission(ctx, userID, pageA)
		assert.False(t, ok)
		_, ok = fresh.GetPagePermission(ctx, userID, pageB)
		assert.False(t, ok)
	})
}

func TestRemoteFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.err = errors.New("connection refused")
	c := newSharedCache(t, remote)

	userID := models.NewUserID()
	pageID := models.NewPageID()
	driveID := models.NewDriveID()

	_, ok := c.GetPagePermission(ctx, userID, pageID)
	assert.False(t, ok)

	// Writes and invalidations must not panic or propagate the failure.
	c.SetPagePermission(ctx, userID, pageID, someAccess(driveID))
	c.SetBatchPagePermissions(ctx, userID, map[models.PageID]models.AccessLevel{pageID: someAccess(driveID)})
	c.SetDriveAccess(ctx, userID, driveID, models.DriveAccess{HasAccess: true})
	c.InvalidateUserPermissions(ctx, userID)
	c.InvalidateDrivePermissions(ctx, driveID)

	hits, missing := c.GetBatchPagePermissions(ctx, userID, []models.PageID{pageID})
	assert.Empty(t, hits)
	assert.Len(t, missing, 1)
}

func TestUndecodableRemoteEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c := newSharedCache(t, remote)

	userID := models.NewUserID()
	pageID := models.NewPageID()
	key := pageKey(userID, pageID)
	require.NoError(t, remote.Set(ctx, key, []byte("not cbor"), time.Minute))

	_, ok := c.GetPagePermission(ctx, userID, pageID)
	assert.False(t, ok)
	assert.Zero(t, remote.keys(), "garbage entry should have been deleted")
}
