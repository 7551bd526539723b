package notedrive

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/notedrive/notedrive/pkg/audit"
	"github.com/notedrive/notedrive/pkg/authctx"
	"github.com/notedrive/notedrive/pkg/authz"
	"github.com/notedrive/notedrive/pkg/models"
)

// maxBatchPages bounds one batch access request. Callers with more pages
// split the request; the bound keeps a single query's IN list reasonable.
const maxBatchPages = 200

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAuthzError translates an error from the permission core into an
// HTTP response. Expected outcomes map to client statuses by code;
// anything else is a 500 with no detail leaked.
func (a *App) respondAuthzError(w http.ResponseWriter, err error) {
	var authzErr *authz.Error
	if !errors.As(err, &authzErr) {
		a.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, statusForCode(authzErr.Code), map[string]string{
		"code":  string(authzErr.Code),
		"error": authzErr.Message,
	})
}

func statusForCode(code authz.Code) int {
	switch code {
	case authz.CodeValidationFailed, authz.CodeInvalidPermissionCombination:
		return http.StatusBadRequest
	case authz.CodeSelfPermissionDenied, authz.CodeInsufficientPermission:
		return http.StatusForbidden
	case authz.CodePageNotAccessible, authz.CodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondNotAccessible hides whether the resource exists from callers who
// may not touch it.
func respondNotAccessible(w http.ResponseWriter) {
	respondJSON(w, http.StatusNotFound, map[string]string{
		"code":  string(authz.CodePageNotAccessible),
		"error": "resource not found or not accessible",
	})
}

func (a *App) requireBinding(w http.ResponseWriter, actor *authctx.Context, resourceType models.ResourceType, id string) bool {
	if actor.IsBoundToResource(resourceType, id) {
		return true
	}
	respondJSON(w, http.StatusForbidden, map[string]string{
		"code":  string(authz.CodeInsufficientPermission),
		"error": "session is bound to a different resource",
	})
	return false
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"store":  a.config.StoreKind,
		"time":   time.Now().Unix(),
	})
}

// User handlers

func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeUsersWrite) {
		return
	}
	if !actor.IsAdmin() {
		respondError(w, http.StatusForbidden, "admin role required")
		return
	}
	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if user.Email == "" || user.Name == "" {
		respondError(w, http.StatusBadRequest, "email and name are required")
		return
	}
	if err := a.store.CreateUser(r.Context(), &user); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	a.recorder.Record(audit.Event{
		Operation:    models.OpCreate,
		ResourceType: models.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		ActorID:      actor.UserID(),
		ActorMetadata: models.JSONMap{
			"email": user.Email,
		},
	})
	respondJSON(w, http.StatusCreated, user)
}

func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeUsersRead) {
		return
	}
	userID, err := models.ParseUserID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if userID != actor.UserID() && !actor.IsAdmin() {
		respondError(w, http.StatusForbidden, "cannot read other users")
		return
	}
	user, err := a.store.GetUser(r.Context(), userID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (a *App) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeUsersWrite) {
		return
	}
	userID, err := models.ParseUserID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if userID != actor.UserID() && !actor.IsAdmin() {
		respondError(w, http.StatusForbidden, "cannot update other users")
		return
	}
	user, err := a.store.GetUser(r.Context(), userID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	previous := models.JSONMap{"name": user.Name, "email": user.Email}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if err := a.store.UpdateUser(r.Context(), user); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	a.recorder.Record(audit.Event{
		Operation:      models.OpUpdate,
		ResourceType:   models.ResourceTypeUser,
		ResourceID:     user.ID.String(),
		ActorID:        actor.UserID(),
		PreviousValues: previous,
	})
	respondJSON(w, http.StatusOK, user)
}

func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeUsersWrite) {
		return
	}
	if !actor.IsAdmin() {
		respondError(w, http.StatusForbidden, "admin role required")
		return
	}
	userID, err := models.ParseUserID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	user, err := a.store.GetUser(r.Context(), userID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err := a.store.DeleteUser(r.Context(), userID); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	a.cache.InvalidateUserPermissions(r.Context(), userID)
	a.recorder.Record(audit.Event{
		Operation:    models.OpDelete,
		ResourceType: models.ResourceTypeUser,
		ResourceID:   userID.String(),
		ActorID:      actor.UserID(),
		PreviousValues: models.JSONMap{
			"email": user.Email,
			"name":  user.Name,
		},
	})
	w.WriteHeader(http.StatusNoContent)
}

// Drive handlers

func (a *App) handleCreateDrive(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesWrite) {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	drive := &models.Drive{Name: req.Name, OwnerID: actor.UserID()}
	if err := a.store.CreateDrive(r.Context(), drive); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	driveID := drive.ID
	a.recorder.Record(audit.Event{
		Operation:       models.OpCreate,
		ResourceType:    models.ResourceTypeDrive,
		ResourceID:      drive.ID.String(),
		DriveID:         &driveID,
		ActorID:         actor.UserID(),
		ContentSnapshot: models.JSONMap{"name": drive.Name},
	})
	respondJSON(w, http.StatusCreated, drive)
}

func (a *App) handleGetDrive(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesRead) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, driveID.String()) {
		return
	}
	if !a.resolver.GetUserDriveAccess(r.Context(), actor.UserID(), driveID) {
		respondNotAccessible(w)
		return
	}
	drive, err := a.store.GetDrive(r.Context(), driveID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if drive == nil {
		respondNotAccessible(w)
		return
	}
	respondJSON(w, http.StatusOK, drive)
}

func (a *App) handleUpdateDrive(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesWrite) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, driveID.String()) {
		return
	}
	perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), driveID)
	if perms == nil || (perms.Role != models.DriveRoleOwner && perms.Role != models.DriveRoleAdmin) {
		respondNotAccessible(w)
		return
	}
	drive, err := a.store.GetDrive(r.Context(), driveID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if drive == nil {
		respondNotAccessible(w)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	previous := models.JSONMap{"name": drive.Name}
	drive.Name = req.Name
	if err := a.store.UpdateDrive(r.Context(), drive); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	a.recorder.Record(audit.Event{
		Operation:      models.OpUpdate,
		ResourceType:   models.ResourceTypeDrive,
		ResourceID:     drive.ID.String(),
		DriveID:        &driveID,
		ActorID:        actor.UserID(),
		PreviousValues: previous,
	})
	respondJSON(w, http.StatusOK, drive)
}

func (a *App) handleDeleteDrive(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesWrite) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, driveID.String()) {
		return
	}
	drive, err := a.store.GetDrive(r.Context(), driveID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if drive == nil || drive.OwnerID != actor.UserID() {
		respondNotAccessible(w)
		return
	}
	if err := a.store.DeleteDrive(r.Context(), driveID); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	a.cache.InvalidateDrivePermissions(r.Context(), driveID)
	a.recorder.Record(audit.Event{
		Operation:      models.OpDelete,
		ResourceType:   models.ResourceTypeDrive,
		ResourceID:     driveID.String(),
		DriveID:        &driveID,
		ActorID:        actor.UserID(),
		PreviousValues: models.JSONMap{"name": drive.Name},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleListDrives(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesRead) {
		return
	}
	drives, err := a.store.ListDrives(r.Context(), actor.UserID())
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, drives)
}

func (a *App) handleGetDriveAccess(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesRead) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	has := a.resolver.GetUserDriveAccess(r.Context(), actor.UserID(), driveID)
	respondJSON(w, http.StatusOK, map[string]bool{"has_access": has})
}

func (a *App) handleGetDrivePermissions(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesRead) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), driveID)
	if perms == nil {
		respondNotAccessible(w)
		return
	}
	respondJSON(w, http.StatusOK, perms)
}

// Membership handlers

func (a *App) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesWrite) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, driveID.String()) {
		return
	}
	perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), driveID)
	if perms == nil || (perms.Role != models.DriveRoleOwner && perms.Role != models.DriveRoleAdmin) {
		respondNotAccessible(w)
		return
	}
	var req struct {
		UserID models.UserID         `json:"user_id"`
		Role   models.MembershipRole `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.UserID.IsZero() {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Role != models.MembershipAdmin && req.Role != models.MembershipMember {
		respondError(w, http.StatusBadRequest, "role must be admin or member")
		return
	}
	target, err := a.store.GetUser(r.Context(), req.UserID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if target == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{
			"code":  string(authz.CodeUserNotFound),
			"error": "target user does not exist",
		})
		return
	}
	membership := &models.DriveMembership{
		DriveID: driveID,
		UserID:  req.UserID,
		Role:    req.Role,
	}
	if err := a.store.AddDriveMembership(r.Context(), membership); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	a.cache.InvalidateUserPermissions(r.Context(), req.UserID)
	a.cache.InvalidateDrivePermissions(r.Context(), driveID)
	a.recorder.Record(audit.Event{
		Operation:    models.OpMemberAdd,
		ResourceType: models.ResourceTypeMembership,
		ResourceID:   membership.ID.String(),
		DriveID:      &driveID,
		ActorID:      actor.UserID(),
		ActorMetadata: models.JSONMap{
			"member_user_id": req.UserID.String(),
			"role":           string(req.Role),
		},
	})
	respondJSON(w, http.StatusCreated, membership)
}

func (a *App) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesWrite) {
		return
	}
	vars := mux.Vars(r)
	driveID, err := models.ParseDriveID(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	memberID, err := models.ParseUserID(vars["userId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, driveID.String()) {
		return
	}
	perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), driveID)
	if perms == nil || (perms.Role != models.DriveRoleOwner && perms.Role != models.DriveRoleAdmin) {
		respondNotAccessible(w)
		return
	}
	var req struct {
		Role models.MembershipRole `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Role != models.MembershipAdmin && req.Role != models.MembershipMember {
		respondError(w, http.StatusBadRequest, "role must be admin or member")
		return
	}
	membership, err := a.store.GetDriveMembership(r.Context(), driveID, memberID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if membership == nil {
		respondError(w, http.StatusNotFound, "Membership not found")
		return
	}
	previousRole := membership.Role
	membership.Role = req.Role
	if err := a.store.UpdateDriveMembership(r.Context(), membership); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	a.cache.InvalidateUserPermissions(r.Context(), memberID)
	a.cache.InvalidateDrivePermissions(r.Context(), driveID)
	a.recorder.Record(audit.Event{
		Operation:    models.OpMemberRoleChange,
		ResourceType: models.ResourceTypeMembership,
		ResourceID:   membership.ID.String(),
		DriveID:      &driveID,
		ActorID:      actor.UserID(),
		ActorMetadata: models.JSONMap{
			"member_user_id": memberID.String(),
		},
		PreviousValues: models.JSONMap{"role": string(previousRole)},
	})
	respondJSON(w, http.StatusOK, membership)
}

func (a *App) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesWrite) {
		return
	}
	vars := mux.Vars(r)
	driveID, err := models.ParseDriveID(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	memberID, err := models.ParseUserID(vars["userId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, driveID.String()) {
		return
	}
	// Members may leave on their own; removing anyone else needs a
	// manager role.
	if memberID != actor.UserID() {
		perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), driveID)
		if perms == nil || (perms.Role != models.DriveRoleOwner && perms.Role != models.DriveRoleAdmin) {
			respondNotAccessible(w)
			return
		}
	}
	membership, err := a.store.GetDriveMembership(r.Context(), driveID, memberID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if membership == nil {
		respondError(w, http.StatusNotFound, "Membership not found")
		return
	}
	if err := a.store.RemoveDriveMembership(r.Context(), driveID, memberID); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	a.cache.InvalidateUserPermissions(r.Context(), memberID)
	a.cache.InvalidateDrivePermissions(r.Context(), driveID)
	a.recorder.Record(audit.Event{
		Operation:    models.OpMemberRemove,
		ResourceType: models.ResourceTypeMembership,
		ResourceID:   membership.ID.String(),
		DriveID:      &driveID,
		ActorID:      actor.UserID(),
		ActorMetadata: models.JSONMap{
			"member_user_id": memberID.String(),
		},
		PreviousValues: models.JSONMap{"role": string(membership.Role)},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleListMembers(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeDrivesRead) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	if !a.resolver.GetUserDriveAccess(r.Context(), actor.UserID(), driveID) {
		respondNotAccessible(w)
		return
	}
	memberships, err := a.store.ListDriveMemberships(r.Context(), driveID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, memberships)
}

// Page handlers

func (a *App) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesWrite) {
		return
	}
	var req struct {
		DriveID      models.DriveID `json:"drive_id"`
		ParentPageID *models.PageID `json:"parent_page_id,omitempty"`
		Title        string         `json:"title"`
		AIGenerated  bool           `json:"ai_generated"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.DriveID.IsZero() || req.Title == "" {
		respondError(w, http.StatusBadRequest, "drive_id and title are required")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypeDrive, req.DriveID.String()) {
		return
	}
	perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), req.DriveID)
	if perms == nil || !perms.CanEdit {
		respondNotAccessible(w)
		return
	}
	if req.ParentPageID != nil {
		parent, err := a.store.GetPage(r.Context(), *req.ParentPageID)
		if err != nil {
			a.respondAuthzError(w, err)
			return
		}
		if parent == nil || parent.DriveID != req.DriveID {
			respondError(w, http.StatusBadRequest, "parent page must belong to the same drive")
			return
		}
	}
	page := &models.Page{
		DriveID:      req.DriveID,
		ParentPageID: req.ParentPageID,
		Title:        req.Title,
		CreatedBy:    actor.UserID(),
	}
	if err := a.store.CreatePage(r.Context(), page); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	driveID := page.DriveID
	pageID := page.ID
	a.recorder.Record(audit.Event{
		Operation:       models.OpCreate,
		ResourceType:    models.ResourceTypePage,
		ResourceID:      page.ID.String(),
		DriveID:         &driveID,
		PageID:          &pageID,
		ActorID:         actor.UserID(),
		IsAIGenerated:   req.AIGenerated,
		ContentSnapshot: models.JSONMap{"title": page.Title},
	})
	respondJSON(w, http.StatusCreated, page)
}

func (a *App) handleGetPage(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesRead) {
		return
	}
	pageID, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypePage, pageID.String()) {
		return
	}
	if !a.resolver.CanUserViewPage(r.Context(), actor.UserID(), pageID) {
		respondNotAccessible(w)
		return
	}
	page, err := a.store.GetPage(r.Context(), pageID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if page == nil {
		respondNotAccessible(w)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesWrite) {
		return
	}
	pageID, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypePage, pageID.String()) {
		return
	}
	if !a.resolver.CanUserEditPage(r.Context(), actor.UserID(), pageID) {
		respondNotAccessible(w)
		return
	}
	page, err := a.store.GetPage(r.Context(), pageID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if page == nil {
		respondNotAccessible(w)
		return
	}
	var req struct {
		Title       string `json:"title"`
		AIGenerated bool   `json:"ai_generated"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	previous := models.JSONMap{"title": page.Title}
	page.Title = req.Title
	if err := a.store.UpdatePage(r.Context(), page); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	driveID := page.DriveID
	a.recorder.Record(audit.Event{
		Operation:      models.OpUpdate,
		ResourceType:   models.ResourceTypePage,
		ResourceID:     page.ID.String(),
		DriveID:        &driveID,
		PageID:         &pageID,
		ActorID:        actor.UserID(),
		IsAIGenerated:  req.AIGenerated,
		PreviousValues: previous,
	})
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesWrite) {
		return
	}
	pageID, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	if !a.requireBinding(w, actor, models.ResourceTypePage, pageID.String()) {
		return
	}
	if !a.resolver.CanUserDeletePage(r.Context(), actor.UserID(), pageID) {
		respondNotAccessible(w)
		return
	}
	page, err := a.store.GetPage(r.Context(), pageID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if page == nil {
		respondNotAccessible(w)
		return
	}
	if err := a.store.DeletePage(r.Context(), pageID); err != nil {
		a.respondAuthzError(w, err)
		return
	}
	driveID := page.DriveID
	a.cache.InvalidateDrivePermissions(r.Context(), driveID)
	a.recorder.Record(audit.Event{
		Operation:    models.OpDelete,
		ResourceType: models.ResourceTypePage,
		ResourceID:   pageID.String(),
		DriveID:      &driveID,
		PageID:       &pageID,
		ActorID:      actor.UserID(),
		PreviousValues: models.JSONMap{
			"title": page.Title,
		},
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleListPages lists the pages of a drive the actor can see. Visibility
// is decided per page with one batch resolve, so an owner sees everything
// while a page-level collaborator sees only their pages.
func (a *App) handleListPages(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesRead) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["driveId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	if !a.resolver.GetUserDriveAccess(r.Context(), actor.UserID(), driveID) {
		respondNotAccessible(w)
		return
	}
	pages, err := a.store.ListPages(r.Context(), driveID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a.filterViewablePages(r, actor.UserID(), pages))
}

func (a *App) handleListChildPages(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesRead) {
		return
	}
	pageID, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	if !a.resolver.CanUserViewPage(r.Context(), actor.UserID(), pageID) {
		respondNotAccessible(w)
		return
	}
	pages, err := a.store.ListChildPages(r.Context(), pageID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a.filterViewablePages(r, actor.UserID(), pages))
}

// filterViewablePages keeps the pages the user may view, resolving the
// whole set in one batch.
func (a *App) filterViewablePages(r *http.Request, userID models.UserID, pages []*models.Page) []*models.Page {
	ids := make([]models.PageID, len(pages))
	for i, page := range pages {
		ids[i] = page.ID
	}
	access := a.resolver.GetBatchPagePermissions(r.Context(), userID, ids)
	visible := []*models.Page{}
	for _, page := range pages {
		if level, ok := access[page.ID]; ok && level.CanView {
			visible = append(visible, page)
		}
	}
	return visible
}

// Permission handlers

func (a *App) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePermsGrant) {
		return
	}
	var input authz.GrantInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	result, err := a.mutator.Grant(r.Context(), actor, input)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	status := http.StatusCreated
	if result.IsUpdate {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

func (a *App) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePermsRevoke) {
		return
	}
	vars := mux.Vars(r)
	pageID, err := models.ParsePageID(vars["pageId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	targetID, err := models.ParseUserID(vars["userId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	result, err := a.mutator.Revoke(r.Context(), actor, authz.RevokeInput{
		PageID:       pageID,
		TargetUserID: targetID,
	})
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *App) handleListPagePermissions(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesRead) {
		return
	}
	pageID, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	// Seeing the ACL requires the same capability as changing it.
	if !a.resolver.CanUserSharePage(r.Context(), actor.UserID(), pageID) {
		respondNotAccessible(w)
		return
	}
	perms, err := a.store.ListPagePermissions(r.Context(), pageID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, perms)
}

func (a *App) handleGetPageAccess(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesRead) {
		return
	}
	pageID, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	access := a.resolver.GetUserAccessLevel(r.Context(), actor.UserID(), pageID)
	if access == nil {
		respondNotAccessible(w)
		return
	}
	respondJSON(w, http.StatusOK, access)
}

func (a *App) handleBatchPageAccess(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopePagesRead) {
		return
	}
	var req struct {
		PageIDs []models.PageID `json:"page_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.PageIDs) > maxBatchPages {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"code":  string(authz.CodeValidationFailed),
			"error": "too many page IDs in one batch",
		})
		return
	}
	access := a.resolver.GetBatchPagePermissions(r.Context(), actor.UserID(), req.PageIDs)
	out := make(map[string]models.AccessLevel, len(access))
	for pageID, level := range access {
		out[pageID.String()] = level
	}
	respondJSON(w, http.StatusOK, out)
}

// Activity handlers

func (a *App) handleListDriveActivity(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeActivityRead) {
		return
	}
	driveID, err := models.ParseDriveID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid drive ID")
		return
	}
	perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), driveID)
	if perms == nil || (perms.Role != models.DriveRoleOwner && perms.Role != models.DriveRoleAdmin) {
		respondNotAccessible(w)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.store.ListDriveActivity(r.Context(), driveID, limit)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (a *App) handleListMyActivity(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeActivityRead) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.store.ListUserActivity(r.Context(), actor.UserID(), limit)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// handleRollbackCheck reports whether the actor could revert the named
// activity from a given context. Both the structural and the authorization
// checks run; the restore itself is the caller's feature.
func (a *App) handleRollbackCheck(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := a.authContext(w, r)
	if !ok {
		return
	}
	if !a.requireScope(w, actor, ScopeRollback) {
		return
	}
	activityID, err := models.ParseActivityID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid activity ID")
		return
	}
	var req struct {
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	activity, err := a.store.GetActivityLog(r.Context(), activityID)
	if err != nil {
		a.respondAuthzError(w, err)
		return
	}
	if activity == nil {
		respondError(w, http.StatusNotFound, "Activity not found")
		return
	}
	eligible := a.rollback.IsActivityEligibleForRollback(activity)
	decision := a.rollback.CanUserRollback(r.Context(), actor.UserID(), activity, authz.RollbackContext(req.Context))
	respondJSON(w, http.StatusOK, map[string]any{
		"eligible": eligible,
		"allowed":  decision.Allowed,
		"reason":   decision.Reason,
	})
}
