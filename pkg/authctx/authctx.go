// Package authctx defines the capability object that every authorization
// decision in notedrive accepts in place of a raw user ID.
//
// A [Context] can only be built through [FromSession], from claims the
// session subsystem has already verified. All fields are unexported and the
// constructor copies every mutable input, so no caller can fabricate a
// context from arbitrary strings or alter one after construction. Components
// that need to know "who is acting" read it from the context, never from a
// request payload.
package authctx

import (
	"strings"
	"time"

	"github.com/notedrive/notedrive/pkg/models"
)

// ScopeAll is the global wildcard scope. A context holding it passes every
// HasScope check.
const ScopeAll = "*"

// ResourceBinding restricts a context to a single resource. A bound context
// may only act on the resource it names; an unbound context is unrestricted.
type ResourceBinding struct {
	Type models.ResourceType `json:"type"`
	ID   string              `json:"id"`
}

// SessionClaims is the verified output of the session subsystem. This
// package performs no credential verification of its own: callers must only
// pass claims whose signature and expiry have already been checked.
type SessionClaims struct {
	UserID    models.UserID    `json:"user_id"`
	UserRole  models.UserRole  `json:"user_role"`
	Scopes    []string         `json:"scopes"`
	Binding   *ResourceBinding `json:"binding,omitempty"`
	DriveID   *models.DriveID  `json:"drive_id,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Context is the immutable authorization context for one request or
// operation. Instances live for a single operation and are never persisted.
type Context struct {
	userID  models.UserID
	role    models.UserRole
	scopes  map[string]struct{}
	binding *ResourceBinding
	driveID *models.DriveID
}

// FromSession is the only way to build a Context. The claims are trusted as
// given; scope and binding values are copied so later mutation of the claims
// cannot reach the returned context.
func FromSession(claims SessionClaims) *Context {
	ctx := &Context{
		userID: claims.UserID,
		role:   claims.UserRole,
		scopes: make(map[string]struct{}, len(claims.Scopes)),
	}
	for _, scope := range claims.Scopes {
		ctx.scopes[scope] = struct{}{}
	}
	if claims.Binding != nil {
		binding := *claims.Binding
		ctx.binding = &binding
	}
	if claims.DriveID != nil {
		driveID := *claims.DriveID
		ctx.driveID = &driveID
	}
	return ctx
}

// UserID returns the acting user's ID.
func (c *Context) UserID() models.UserID { return c.userID }

// UserRole returns the acting user's platform role.
func (c *Context) UserRole() models.UserRole { return c.role }

// IsAdmin reports whether the acting user holds the platform admin role.
func (c *Context) IsAdmin() bool { return c.role == models.UserRoleAdmin }

// DriveID returns the drive the session was scoped to, if any.
func (c *Context) DriveID() (models.DriveID, bool) {
	if c.driveID == nil {
		return models.DriveID{}, false
	}
	return *c.driveID, true
}

// Binding returns a copy of the resource binding, if any.
func (c *Context) Binding() (ResourceBinding, bool) {
	if c.binding == nil {
		return ResourceBinding{}, false
	}
	return *c.binding, true
}

// HasScope reports whether the context may exercise the given scope. A
// scope is granted by the global wildcard "*", an exact entry, or a
// namespace wildcard: "pages:*" grants "pages:read". The namespace is the
// text before the first colon.
func (c *Context) HasScope(scope string) bool {
	if _, ok := c.scopes[ScopeAll]; ok {
		return true
	}
	if _, ok := c.scopes[scope]; ok {
		return true
	}
	if namespace, _, found := strings.Cut(scope, ":"); found {
		if _, ok := c.scopes[namespace+":"+ScopeAll]; ok {
			return true
		}
	}
	return false
}

// IsBoundToResource reports whether the context may act on the named
// resource. An unbound context may act on anything; a bound context only on
// an exact type and ID match.
func (c *Context) IsBoundToResource(resourceType models.ResourceType, id string) bool {
	if c.binding == nil {
		return true
	}
	return c.binding.Type == resourceType && c.binding.ID == id
}
