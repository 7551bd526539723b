// Package permcache caches derived permission decisions so repeated checks
// do not hit the database.
//
// The cache has two tiers: a bounded in-process TTL map, and an optional
// shared remote backend visible across service instances. Reads check the
// in-process tier first, then the remote tier; writes populate both. Every
// entry is a re-computable derivation, never the source of truth, so the
// cache degrades rather than fails: a remote outage is treated as a miss
// and the caller falls through to a live resolve.
//
// Keys are "pg:<userID>:<pageID>" for page decisions and
// "dr:<userID>:<driveID>" for drive access. The remote tier additionally
// keeps a per-drive set "dx:<driveID>" of the page keys written for that
// drive, so a drive-wide invalidation can remove them without a full scan.
// Remote values are CBOR.
package permcache

import (
	"context"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/notedrive/notedrive/pkg/models"
)

const (
	// DefaultTTL bounds how long a cached decision may outlive a
	// permission change on another instance.
	DefaultTTL = 60 * time.Second

	// DefaultCapacity bounds the in-process tier.
	DefaultCapacity = 4096
)

// Config carries the cache tuning knobs. Zero values select the defaults.
type Config struct {
	TTL      time.Duration
	Capacity uint64
}

// Cache is the two-tier permission cache. Construct it with New; a nil
// Remote runs the cache in single-instance mode with only the in-process
// tier.
type Cache struct {
	pages  *ttlcache.Cache[string, models.AccessLevel]
	drives *ttlcache.Cache[string, models.DriveAccess]
	remote Remote
	ttl    time.Duration
	log    zerolog.Logger
}

// New builds a Cache and starts its expiration janitors. Call Close to
// stop them.
func New(cfg Config, remote Remote, log zerolog.Logger) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		pages: ttlcache.New[string, models.AccessLevel](
			ttlcache.WithTTL[string, models.AccessLevel](ttl),
			ttlcache.WithCapacity[string, models.AccessLevel](capacity),
			ttlcache.WithDisableTouchOnHit[string, models.AccessLevel](),
		),
		drives: ttlcache.New[string, models.DriveAccess](
			ttlcache.WithTTL[string, models.DriveAccess](ttl),
			ttlcache.WithCapacity[string, models.DriveAccess](capacity),
			ttlcache.WithDisableTouchOnHit[string, models.DriveAccess](),
		),
		remote: remote,
		ttl:    ttl,
		log:    log,
	}
	go c.pages.Start()
	go c.drives.Start()
	return c
}

// Close stops the expiration janitors. The cache must not be used after
// Close.
func (c *Cache) Close() {
	c.pages.Stop()
	c.drives.Stop()
}

// TTL returns the entry lifetime, which is also the bound on staleness
// after a failed invalidation.
func (c *Cache) TTL() time.Duration { return c.ttl }

func pageKey(userID models.UserID, pageID models.PageID) string {
	return "pg:" + userID.String() + ":" + pageID.String()
}

func driveKey(userID models.UserID, driveID models.DriveID) string {
	return "dr:" + userID.String() + ":" + driveID.String()
}

func driveIndexKey(driveID models.DriveID) string {
	return "dx:" + driveID.String()
}

// GetPagePermission returns the cached decision for (user, page), checking
// the in-process tier and then the remote tier. Remote hits are promoted.
func (c *Cache) GetPagePermission(ctx context.Context, userID models.UserID, pageID models.PageID) (*models.AccessLevel, bool) {
	key := pageKey(userID, pageID)
	if item := c.pages.Get(key); item != nil {
		access := item.Value()
		return &access, true
	}
	if c.remote == nil {
		return nil, false
	}
	raw, err := c.remote.Get(ctx, key)
	if err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("remote cache read failed")
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var access models.AccessLevel
	if err := cbor.Unmarshal(raw, &access); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		_ = c.remote.Del(ctx, key)
		return nil, false
	}
	c.pages.Set(key, access, ttlcache.DefaultTTL)
	return &access, true
}

// SetPagePermission stores a resolved decision in both tiers and records
// the key in the drive index so drive-wide invalidation can find it.
func (c *Cache) SetPagePermission(ctx context.Context, userID models.UserID, pageID models.PageID, access models.AccessLevel) {
	key := pageKey(userID, pageID)
	c.pages.Set(key, access, ttlcache.DefaultTTL)
	if c.remote == nil {
		return
	}
	raw, err := cbor.Marshal(access)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("encoding cache entry")
		return
	}
	if err := c.remote.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("remote cache write failed")
		return
	}
	if access.DriveID.IsZero() {
		return
	}
	// The index outlives its members so a slow instance cannot resurrect
	// a key the index no longer tracks.
	if err := c.remote.SAdd(ctx, driveIndexKey(access.DriveID), 2*c.ttl, key); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("remote cache index write failed")
	}
}

// GetDriveAccess returns the cached coarse drive-access result for
// (user, drive).
func (c *Cache) GetDriveAccess(ctx context.Context, userID models.UserID, driveID models.DriveID) (*models.DriveAccess, bool) {
	key := driveKey(userID, driveID)
	if item := c.drives.Get(key); item != nil {
		access := item.Value()
		return &access, true
	}
	if c.remote == nil {
		return nil, false
	}
	raw, err := c.remote.Get(ctx, key)
	if err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("remote cache read failed")
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var access models.DriveAccess
	if err := cbor.Unmarshal(raw, &access); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		_ = c.remote.Del(ctx, key)
		return nil, false
	}
	c.drives.Set(key, access, ttlcache.DefaultTTL)
	return &access, true
}

// SetDriveAccess stores a coarse drive-access result in both tiers.
func (c *Cache) SetDriveAccess(ctx context.Context, userID models.UserID, driveID models.DriveID, access models.DriveAccess) {
	key := driveKey(userID, driveID)
	c.drives.Set(key, access, ttlcache.DefaultTTL)
	if c.remote == nil {
		return
	}
	raw, err := cbor.Marshal(access)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("encoding cache entry")
		return
	}
	if err := c.remote.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("remote cache write failed")
	}
}

// GetBatchPagePermissions returns the cached decisions for the given pages
// and the IDs that were not cached in either tier. The in-process tier is
// checked per key; the remaining keys go to the remote tier in one
// round trip.
func (c *Cache) GetBatchPagePermissions(ctx context.Context, userID models.UserID, pageIDs []models.PageID) (map[models.PageID]models.AccessLevel, []models.PageID) {
	hits := make(map[models.PageID]models.AccessLevel, len(pageIDs))
	missing := make([]models.PageID, 0, len(pageIDs))
	remoteKeys := make([]string, 0, len(pageIDs))
	remoteIDs := make([]models.PageID, 0, len(pageIDs))
	for _, pageID := range pageIDs {
		if item := c.pages.Get(pageKey(userID, pageID)); item != nil {
			hits[pageID] = item.Value()
			continue
		}
		remoteKeys = append(remoteKeys, pageKey(userID, pageID))
		remoteIDs = append(remoteIDs, pageID)
	}
	if c.remote == nil || len(remoteKeys) == 0 {
		return hits, append(missing, remoteIDs...)
	}
	vals, err := c.remote.MGet(ctx, remoteKeys)
	if err != nil {
		c.log.Debug().Err(err).Msg("remote cache batch read failed")
		return hits, append(missing, remoteIDs...)
	}
	for i, raw := range vals {
		if raw == nil {
			missing = append(missing, remoteIDs[i])
			continue
		}
		var access models.AccessLevel
		if err := cbor.Unmarshal(raw, &access); err != nil {
			c.log.Debug().Err(err).Str("key", remoteKeys[i]).Msg("discarding undecodable cache entry")
			missing = append(missing, remoteIDs[i])
			continue
		}
		c.pages.Set(remoteKeys[i], access, ttlcache.DefaultTTL)
		hits[remoteIDs[i]] = access
	}
	return hits, missing
}

// SetBatchPagePermissions stores many resolved decisions for one user:
// the in-process tier per entry, the remote tier in one write, and one
// index update per drive touched.
func (c *Cache) SetBatchPagePermissions(ctx context.Context, userID models.UserID, entries map[models.PageID]models.AccessLevel) {
	if len(entries) == 0 {
		return
	}
	remoteEntries := make(map[string][]byte, len(entries))
	indexMembers := make(map[models.DriveID][]string)
	for pageID, access := range entries {
		key := pageKey(userID, pageID)
		c.pages.Set(key, access, ttlcache.DefaultTTL)
		if c.remote == nil {
			continue
		}
		raw, err := cbor.Marshal(access)
		if err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("encoding cache entry")
			continue
		}
		remoteEntries[key] = raw
		if !access.DriveID.IsZero() {
			indexMembers[access.DriveID] = append(indexMembers[access.DriveID], key)
		}
	}
	if c.remote == nil || len(remoteEntries) == 0 {
		return
	}
	if err := c.remote.MSet(ctx, remoteEntries, c.ttl); err != nil {
		c.log.Debug().Err(err).Int("entries", len(remoteEntries)).Msg("remote cache batch write failed")
		return
	}
	for driveID, members := range indexMembers {
		if err := c.remote.SAdd(ctx, driveIndexKey(driveID), 2*c.ttl, members...); err != nil {
			c.log.Debug().Err(err).Str("drive_id", driveID.String()).Msg("remote cache index write failed")
		}
	}
}

// InvalidateUserPermissions removes every cached decision for the user
// from both tiers. A remote failure does not propagate: the entries expire
// within one TTL, and the failure is logged so operators can see the
// staleness window.
func (c *Cache) InvalidateUserPermissions(ctx context.Context, userID models.UserID) {
	pagePrefix := "pg:" + userID.String() + ":"
	drivePrefix := "dr:" + userID.String() + ":"
	for key := range c.pages.Items() {
		if strings.HasPrefix(key, pagePrefix) {
			c.pages.Delete(key)
		}
	}
	for key := range c.drives.Items() {
		if strings.HasPrefix(key, drivePrefix) {
			c.drives.Delete(key)
		}
	}
	if c.remote == nil {
		return
	}
	var failed error
	if err := c.remote.DelPattern(ctx, pagePrefix+"*"); err != nil {
		failed = err
	}
	if err := c.remote.DelPattern(ctx, drivePrefix+"*"); err != nil {
		failed = err
	}
	if failed != nil {
		c.log.Error().Err(failed).
			Str("user_id", userID.String()).
			Dur("max_staleness", c.ttl).
			Msg("remote permission invalidation failed; other instances may serve stale entries for up to one TTL")
	}
}

// InvalidateDrivePermissions removes every cached decision touching the
// drive from both tiers: page decisions via the stored drive ID (local) and
// the drive index set (remote), drive-access decisions via key match.
func (c *Cache) InvalidateDrivePermissions(ctx context.Context, driveID models.DriveID) {
	driveSuffix := ":" + driveID.String()
	for key, item := range c.pages.Items() {
		if item.Value().DriveID == driveID {
			c.pages.Delete(key)
		}
	}
	for key := range c.drives.Items() {
		if strings.HasSuffix(key, driveSuffix) {
			c.drives.Delete(key)
		}
	}
	if c.remote == nil {
		return
	}
	var failed error
	members, err := c.remote.SMembersDel(ctx, driveIndexKey(driveID))
	if err != nil {
		failed = err
	} else if len(members) > 0 {
		if err := c.remote.Del(ctx, members...); err != nil {
			failed = err
		}
	}
	if err := c.remote.DelPattern(ctx, "dr:*"+driveSuffix); err != nil {
		failed = err
	}
	if failed != nil {
		c.log.Error().Err(failed).
			Str("drive_id", driveID.String()).
			Dur("max_staleness", c.ttl).
			Msg("remote permission invalidation failed; other instances may serve stale entries for up to one TTL")
	}
}
