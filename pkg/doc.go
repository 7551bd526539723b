// Package pkg contains all the sub-packages for the notedrive application.
//
// This package serves as a central namespace for organizing the application's
// functionality into focused, single-purpose packages that together provide a
// collaborative workspace service with fine-grained, cached, audited access
// control.
//
// # Application Layer
//
// [github.com/notedrive/notedrive/pkg/notedrive] - Command orchestration,
// configuration, session management, and HTTP handlers. Contains the main
// application entry points and wires the authorization pipeline together.
// Use this package when adding commands or extending the HTTP API.
//
// # Domain Layer
//
// [github.com/notedrive/notedrive/pkg/models] - Domain entities, typed IDs,
// and access-level value types for the workspace system. Use this package
// when working with data models or adding entity types.
//
// [github.com/notedrive/notedrive/pkg/authctx] - Capability contexts derived
// from authenticated sessions. Handlers and services take the acting user,
// scopes, and resource bindings from here rather than from request payloads.
//
// [github.com/notedrive/notedrive/pkg/authz] - The authorization core:
// permission resolution with caching, permission mutation with live-state
// checks, and the rollback eligibility policy for recorded operations.
//
// [github.com/notedrive/notedrive/pkg/audit] - Asynchronous activity
// recording. Mutations enqueue entries; a background worker persists them
// without blocking request handling.
//
// # Infrastructure Layer
//
// [github.com/notedrive/notedrive/pkg/store] - Persistence abstraction with
// the [github.com/notedrive/notedrive/pkg/store.Store] interface, including
// the denormalized authorization queries the resolver depends on.
//
// [github.com/notedrive/notedrive/pkg/store/postgres] - PostgreSQL
// implementation using GORM, with single-query authorization joins and
// transactional permission upserts.
//
// [github.com/notedrive/notedrive/pkg/store/memory] - In-memory
// implementation with the same semantics, used by tests and local
// development.
//
// [github.com/notedrive/notedrive/pkg/permcache] - Two-tier permission
// cache: a bounded in-process TTL tier in front of an optional shared Redis
// tier, with invalidation by user and by drive.
//
// [github.com/notedrive/notedrive/pkg/logger] - Structured logging setup
// shared by the server and tests.
//
// # Package Dependencies
//
// The packages follow these dependency relationships:
//
//	notedrive → authz, authctx, audit, permcache, store, models, logger
//	authz → authctx, audit, permcache, store, models
//	audit → models
//	permcache → models
//	authctx → models
//	store/postgres → store, models
//	store/memory → store, models
//	store → models
//
// This keeps the authorization core independent of HTTP concerns and lets the
// store backends be swapped without touching policy code.
package pkg
