// Package notedrive implements a collaborative workspace service where users
// organize hierarchical pages inside shared drives, with fine-grained access
// control enforced and audited on every operation.
//
// The service answers one question fast and correctly: what may this user do
// to this page right now? A two-tier permission cache keeps that answer cheap
// under load. Capability contexts derived from sessions keep it trustworthy,
// since request payloads can never override the acting identity. An
// append-only activity log with a rollback policy keeps it accountable.
//
// # Features
//
//   - Drive Membership Roles: Owners, admins, and members with a permission
//     baseline that individual page grants can extend but never weaken
//   - Page-Level Grants: Per-user view/edit/share/delete flags on single
//     pages, letting outside collaborators work on one document without
//     seeing the rest of the drive
//   - Two-Tier Permission Cache: An in-process TTL cache backed by an
//     optional shared Redis tier, so permission checks rarely touch the
//     database and revocations propagate across instances
//   - Capability Tokens: Sessions carry explicit scopes and optional
//     resource bindings; handlers authorize against the capability, never
//     against client-supplied identity fields
//   - Activity Log and Rollback Policy: Every mutation is recorded
//     asynchronously, and recorded operations can be checked for
//     revertibility under page, drive, AI-tool, and dashboard contexts
//   - Dual Store Backends: PostgreSQL (using GORM) for production and an
//     in-memory store for tests and local development
//
// # Architecture Overview
//
// Authorization is split into three cooperating pieces:
//
//   - Resolution: [github.com/notedrive/notedrive/pkg/authz.Resolver] computes
//     the effective access level for a (user, page) pair from ownership,
//     membership role, and explicit grants, consulting
//     [github.com/notedrive/notedrive/pkg/permcache.Cache] before the store
//   - Mutation: [github.com/notedrive/notedrive/pkg/authz.Mutator] validates,
//     authorizes, and applies grant/update/revoke requests against live store
//     state, then invalidates caches and records audit entries
//   - Enforcement: [github.com/notedrive/notedrive/pkg/notedrive] handlers
//     derive the acting user from [github.com/notedrive/notedrive/pkg/authctx.Context]
//     and translate domain error codes into HTTP statuses
//
// # Data Model
//
// Users own drives; drives contain pages nested through parent-child
// relationships; memberships attach users to drives with a role; page
// permissions attach users to single pages with explicit flags. All entities
// use typed IDs for compile-time safety. See
// [github.com/notedrive/notedrive/pkg/models] for details.
//
// # Getting Started
//
// For command-line usage, flags, and application configuration, see
// [github.com/notedrive/notedrive/pkg/notedrive]. The server reads its
// PostgreSQL DSN and optional Redis address from the environment:
//
//	notedrive migrate
//	REDIS_ADDR=localhost:6379 notedrive run
//	notedrive -store memory -log-console run
//
// For the persistence layer and its backends, see
// [github.com/notedrive/notedrive/pkg/store],
// [github.com/notedrive/notedrive/pkg/store/postgres], and
// [github.com/notedrive/notedrive/pkg/store/memory].
package notedrive
