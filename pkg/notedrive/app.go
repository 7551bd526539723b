// Package notedrive wires the permission core into a runnable HTTP service:
// configuration, store selection, cache tiers, audit delivery, session
// handling, and the REST API.
package notedrive

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/notedrive/notedrive/pkg/audit"
	"github.com/notedrive/notedrive/pkg/authz"
	"github.com/notedrive/notedrive/pkg/logger"
	"github.com/notedrive/notedrive/pkg/permcache"
	"github.com/notedrive/notedrive/pkg/store"
	"github.com/notedrive/notedrive/pkg/store/memory"
	"github.com/notedrive/notedrive/pkg/store/postgres"
)

// Store backend names accepted by Config.StoreKind.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// redisKeyPrefix namespaces every cache key so one Redis database can be
// shared with other services.
const redisKeyPrefix = "notedrive:acl:"

const redisPingTimeout = 3 * time.Second

// Config holds application configuration. Parse fills it from flags and
// environment variables.
type Config struct {
	// PostgresDSN is the connection string for the postgres store kind.
	PostgresDSN string

	// StoreKind selects the backend: postgres (default) or memory. The
	// memory backend is for development and tests only.
	StoreKind string

	// RedisAddr enables the shared cache tier when non-empty. Without it
	// the service runs with the in-process tier only, which is fine for
	// a single instance.
	RedisAddr     string
	RedisPassword string

	// CacheTTL bounds how long a permission decision may be served
	// without re-deriving it. Zero selects the default.
	CacheTTL time.Duration

	// SessionTTL is the lifetime of minted session tokens.
	SessionTTL time.Duration

	// AuditBuffer is the audit event channel capacity.
	AuditBuffer int

	ServerPort string

	LogLevel   string
	LogPath    string
	LogConsole bool
}

// App holds the application state: the store, the permission core built on
// top of it, and the session layer.
type App struct {
	config *Config
	log    zerolog.Logger

	store    store.Store
	redis    *redis.Client
	cache    *permcache.Cache
	resolver *authz.Resolver
	mutator  *authz.MutationService
	rollback *authz.RollbackPolicy
	recorder *audit.Recorder
	sessions *sessionManager

	logFile *os.File
}

// New builds the application from config. The Redis tier is best-effort: if
// the address is set but unreachable, the app starts anyway with only the
// in-process cache tier, because cache availability must never gate
// correctness.
func New(config *Config) (*App, error) {
	logBuild := logger.New().FromLevel(config.LogLevel).FromService("notedrive")
	if config.LogPath != "" {
		logBuild = logBuild.FromPath(config.LogPath)
	}
	if config.LogConsole {
		logBuild = logBuild.Console()
	}
	logData, err := logBuild.Make()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	log := logData.Logger

	var appStore store.Store
	switch config.StoreKind {
	case StoreMemory:
		appStore = memory.NewMemoryStore()
		log.Info().Msg("using in-memory store")
	case StorePostgres, "":
		appStore, err = postgres.NewPostgresStore(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		log.Info().Msg("connected to PostgreSQL")
	default:
		return nil, fmt.Errorf("unknown store kind %q", config.StoreKind)
	}

	var remote permcache.Remote
	var redisClient *redis.Client
	if config.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", config.RedisAddr).
				Msg("redis unreachable, caching permissions in process only")
			_ = redisClient.Close()
			redisClient = nil
		} else {
			remote = permcache.NewRedisRemote(redisClient, redisKeyPrefix)
			log.Info().Str("addr", config.RedisAddr).Msg("connected to Redis")
		}
	}

	cache := permcache.New(permcache.Config{TTL: config.CacheTTL}, remote, log)
	recorder := audit.NewRecorder(appStore, config.AuditBuffer, log)
	resolver := authz.NewResolver(appStore, cache, log)

	app := &App{
		config:   config,
		log:      log,
		store:    appStore,
		redis:    redisClient,
		cache:    cache,
		resolver: resolver,
		mutator:  authz.NewMutationService(appStore, cache, recorder, log),
		rollback: authz.NewRollbackPolicy(resolver, log),
		recorder: recorder,
		sessions: newSessionManager(config.SessionTTL),
		logFile:  logData.LogFile,
	}
	return app, nil
}

// Close drains the audit recorder and releases every connection. Safe to
// call once after the server has stopped.
func (a *App) Close() error {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Store returns the underlying store, useful for tests and seeding.
func (a *App) Store() store.Store {
	return a.store
}

// Resolver returns the permission resolver.
func (a *App) Resolver() *authz.Resolver {
	return a.resolver
}

// getEnv returns the environment variable value, or defaultValue when the
// variable is unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
