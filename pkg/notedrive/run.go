package notedrive

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// run context is cancelled.
const shutdownTimeout = 5 * time.Second

// Run starts the HTTP server and blocks until the context is cancelled or
// the listener fails. On cancellation the server drains in-flight requests
// for up to shutdownTimeout before returning.
//
// # API Endpoints
//
// Health check:
//
//	GET  /health                                    - Service health status
//	GET  /api/health                                - Same, under the API prefix
//
// Authentication and tokens:
//
//	POST /api/auth/signup                           - Register a user and open a session
//	POST /api/auth/signin                           - Open a session for an existing user
//	POST /api/auth/signout                          - End the current session
//	GET  /api/auth/me                               - Get the authenticated user
//	POST /api/auth/refresh                          - Re-issue the session token
//	POST /api/tokens                                - Mint a scoped, resource-bound token
//
// Users:
//
//	POST   /api/users                               - Create a user (admin)
//	GET    /api/users/{id}                          - Get a user
//	PUT    /api/users/{id}                          - Update a user
//	DELETE /api/users/{id}                          - Delete a user (admin)
//
// Drives and memberships:
//
//	POST   /api/drives                              - Create a drive owned by the caller
//	GET    /api/drives                              - List the caller's drives
//	GET    /api/drives/{id}                         - Get a drive
//	PUT    /api/drives/{id}                         - Update a drive (owner or admin)
//	DELETE /api/drives/{id}                         - Delete a drive (owner)
//	GET    /api/drives/{id}/access                  - Coarse access check
//	GET    /api/drives/{id}/permissions             - The caller's drive-wide rights
//	GET    /api/drives/{id}/members                 - List memberships
//	POST   /api/drives/{id}/members                 - Add a member (owner or admin)
//	PUT    /api/drives/{id}/members/{userId}        - Change a member's role
//	DELETE /api/drives/{id}/members/{userId}        - Remove a member, or leave
//	GET    /api/drives/{id}/activity                - Drive activity log (owner or admin)
//
// Pages:
//
//	POST   /api/pages                               - Create a page
//	GET    /api/pages/{id}                          - Get a page
//	PUT    /api/pages/{id}                          - Update a page
//	DELETE /api/pages/{id}                          - Delete a page
//	GET    /api/pages/{id}/children                 - List visible child pages
//	GET    /api/drives/{driveId}/pages              - List the drive's visible pages
//
// Permissions and access resolution:
//
//	POST   /api/permissions                         - Grant or update a page permission
//	DELETE /api/pages/{pageId}/permissions/{userId} - Revoke a page permission
//	GET    /api/pages/{id}/permissions              - List a page's ACL rows
//	GET    /api/pages/{id}/access                   - The caller's resolved page access
//	POST   /api/access/pages                        - Batch page access resolution
//
// Activity and rollback:
//
//	GET  /api/me/activity                           - The caller's activity log
//	POST /api/activities/{id}/rollback/check        - Rollback eligibility and authorization
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.routes()

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().
		Str("addr", addr).
		Str("store", string(a.config.StoreKind)).
		Msg("starting notedrive server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (a *App) routes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()

	// Health check
	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Auth routes
	api.HandleFunc("/auth/signup", a.handleSignUp).Methods("POST")
	api.HandleFunc("/auth/signin", a.handleSignIn).Methods("POST")
	api.HandleFunc("/auth/signout", a.handleSignOut).Methods("POST")
	api.HandleFunc("/auth/me", a.handleGetCurrentUser).Methods("GET")
	api.HandleFunc("/auth/refresh", a.handleRefreshToken).Methods("POST")
	api.HandleFunc("/tokens", a.handleCreateToken).Methods("POST")

	// User routes
	api.HandleFunc("/users", a.handleCreateUser).Methods("POST")
	api.HandleFunc("/users/{id}", a.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{id}", a.handleUpdateUser).Methods("PUT")
	api.HandleFunc("/users/{id}", a.handleDeleteUser).Methods("DELETE")

	// Drive routes
	api.HandleFunc("/drives", a.handleCreateDrive).Methods("POST")
	api.HandleFunc("/drives", a.handleListDrives).Methods("GET")
	api.HandleFunc("/drives/{id}", a.handleGetDrive).Methods("GET")
	api.HandleFunc("/drives/{id}", a.handleUpdateDrive).Methods("PUT")
	api.HandleFunc("/drives/{id}", a.handleDeleteDrive).Methods("DELETE")
	api.HandleFunc("/drives/{id}/access", a.handleGetDriveAccess).Methods("GET")
	api.HandleFunc("/drives/{id}/permissions", a.handleGetDrivePermissions).Methods("GET")
	api.HandleFunc("/drives/{id}/activity", a.handleListDriveActivity).Methods("GET")

	// Membership routes
	api.HandleFunc("/drives/{id}/members", a.handleListMembers).Methods("GET")
	api.HandleFunc("/drives/{id}/members", a.handleAddMember).Methods("POST")
	api.HandleFunc("/drives/{id}/members/{userId}", a.handleUpdateMemberRole).Methods("PUT")
	api.HandleFunc("/drives/{id}/members/{userId}", a.handleRemoveMember).Methods("DELETE")

	// Page routes
	api.HandleFunc("/pages", a.handleCreatePage).Methods("POST")
	api.HandleFunc("/pages/{id}", a.handleGetPage).Methods("GET")
	api.HandleFunc("/pages/{id}", a.handleUpdatePage).Methods("PUT")
	api.HandleFunc("/pages/{id}", a.handleDeletePage).Methods("DELETE")
	api.HandleFunc("/pages/{id}/children", a.handleListChildPages).Methods("GET")
	api.HandleFunc("/drives/{driveId}/pages", a.handleListPages).Methods("GET")

	// Permission and access routes
	api.HandleFunc("/permissions", a.handleGrantPermission).Methods("POST")
	api.HandleFunc("/pages/{pageId}/permissions/{userId}", a.handleRevokePermission).Methods("DELETE")
	api.HandleFunc("/pages/{id}/permissions", a.handleListPagePermissions).Methods("GET")
	api.HandleFunc("/pages/{id}/access", a.handleGetPageAccess).Methods("GET")
	api.HandleFunc("/access/pages", a.handleBatchPageAccess).Methods("POST")

	// Activity routes
	api.HandleFunc("/me/activity", a.handleListMyActivity).Methods("GET")
	api.HandleFunc("/activities/{id}/rollback/check", a.handleRollbackCheck).Methods("POST")

	// Health check route (outside of /api prefix)
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}
