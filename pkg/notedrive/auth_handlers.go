package notedrive

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/notedrive/notedrive/pkg/audit"
	"github.com/notedrive/notedrive/pkg/authctx"
	"github.com/notedrive/notedrive/pkg/authz"
	"github.com/notedrive/notedrive/pkg/models"
)

// Scopes enforced by the API layer. A full login session holds the global
// wildcard; restricted tokens minted via /api/tokens hold a subset.
const (
	ScopeUsersRead    = "users:read"
	ScopeUsersWrite   = "users:write"
	ScopeDrivesRead   = "drives:read"
	ScopeDrivesWrite  = "drives:write"
	ScopePagesRead    = "pages:read"
	ScopePagesWrite   = "pages:write"
	ScopePermsGrant   = "permissions:grant"
	ScopePermsRevoke  = "permissions:revoke"
	ScopeActivityRead = "activity:read"
	ScopeRollback     = "activity:rollback"
)

const defaultSessionTTL = 24 * time.Hour

// session pairs the verified claims handed to the permission core with the
// user record the API returns to clients.
type session struct {
	claims authctx.SessionClaims
	user   *models.User
}

// sessionManager is an in-memory bearer-token session store. Sessions do
// not survive a restart; a deployment needing durable or shared sessions
// would back this with the Redis tier.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]session
	ttl      time.Duration
}

func newSessionManager(ttl time.Duration) *sessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &sessionManager{sessions: make(map[string]session), ttl: ttl}
}

func (m *sessionManager) create(user *models.User, scopes []string, binding *authctx.ResourceBinding, driveID *models.DriveID) (string, authctx.SessionClaims, error) {
	token, err := generateToken()
	if err != nil {
		return "", authctx.SessionClaims{}, err
	}
	claims := authctx.SessionClaims{
		UserID:    user.ID,
		UserRole:  user.Role,
		Scopes:    scopes,
		Binding:   binding,
		DriveID:   driveID,
		ExpiresAt: time.Now().Add(m.ttl),
	}
	m.mu.Lock()
	m.sessions[token] = session{claims: claims, user: user}
	m.mu.Unlock()
	return token, claims, nil
}

func (m *sessionManager) get(token string) (session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return session{}, false
	}
	if time.Now().After(s.claims.ExpiresAt) {
		m.delete(token)
		return session{}, false
	}
	return s, true
}

func (m *sessionManager) delete(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// generateToken returns a 256-bit random token as hex.
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// getTokenFromHeader extracts the bearer token from the Authorization
// header.
func getTokenFromHeader(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(auth, bearerPrefix) {
		return auth[len(bearerPrefix):]
	}
	return auth
}

// authContext resolves the request's bearer token into a capability
// context. On failure it writes the 401 response and returns false.
func (a *App) authContext(w http.ResponseWriter, r *http.Request) (*authctx.Context, *models.User, bool) {
	token := getTokenFromHeader(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, nil, false
	}
	sess, ok := a.sessions.get(token)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, nil, false
	}
	return authctx.FromSession(sess.claims), sess.user, true
}

// requireScope writes a 403 and returns false when the context lacks the
// scope.
func (a *App) requireScope(w http.ResponseWriter, actor *authctx.Context, scope string) bool {
	if actor.HasScope(scope) {
		return true
	}
	respondJSON(w, http.StatusForbidden, map[string]string{
		"code":  string(authz.CodeInsufficientPermission),
		"error": "missing scope " + scope,
	})
	return false
}

type signUpRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// handleSignUp registers a user and opens a full session for them.
func (a *App) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Email == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "email and name are required")
		return
	}

	user := &models.User{
		Email: req.Email,
		Name:  req.Name,
		Role:  models.UserRoleUser,
	}
	if err := a.store.CreateUser(r.Context(), user); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	token, claims, err := a.sessions.create(user, []string{authctx.ScopeAll}, nil, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	a.recorder.Record(audit.Event{
		Operation:    models.OpSignup,
		ResourceType: models.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		ActorID:      user.ID,
		ActorMetadata: models.JSONMap{
			"email": user.Email,
		},
	})
	respondJSON(w, http.StatusCreated, authResponse{Token: token, ExpiresAt: claims.ExpiresAt, User: user})
}

// handleSignIn opens a full session for an existing user. Credential
// verification belongs to the external identity provider; this layer only
// requires the account to exist.
func (a *App) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := a.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, claims, err := a.sessions.create(user, []string{authctx.ScopeAll}, nil, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	a.recorder.Record(audit.Event{
		Operation:    models.OpLogin,
		ResourceType: models.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		ActorID:      user.ID,
	})
	respondJSON(w, http.StatusOK, authResponse{Token: token, ExpiresAt: claims.ExpiresAt, User: user})
}

// handleSignOut ends the session named by the bearer token.
func (a *App) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := getTokenFromHeader(r)
	if token != "" {
		if sess, ok := a.sessions.get(token); ok {
			a.recorder.Record(audit.Event{
				Operation:    models.OpLogout,
				ResourceType: models.ResourceTypeUser,
				ResourceID:   sess.claims.UserID.String(),
				ActorID:      sess.claims.UserID,
			})
		}
		a.sessions.delete(token)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleGetCurrentUser returns the authenticated user.
func (a *App) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	_, user, ok := a.authContext(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// handleRefreshToken rotates the bearer token, preserving the session's
// scopes and binding.
func (a *App) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	oldToken := getTokenFromHeader(r)
	if oldToken == "" {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	sess, ok := a.sessions.get(oldToken)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	newToken, claims, err := a.sessions.create(sess.user, sess.claims.Scopes, sess.claims.Binding, sess.claims.DriveID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	a.sessions.delete(oldToken)
	respondJSON(w, http.StatusOK, authResponse{Token: newToken, ExpiresAt: claims.ExpiresAt, User: sess.user})
}

type createTokenRequest struct {
	Scopes  []string                 `json:"scopes"`
	Binding *authctx.ResourceBinding `json:"binding,omitempty"`
	DriveID *models.DriveID          `json:"drive_id,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []string  `json:"scopes"`
}

// handleCreateToken mints a restricted token for service or automation use.
// The requested scopes must be covered by the caller's own, and scoping the
// token to a drive requires drive-wide rights there: a user whose only
// relationship to the drive is a page grant cannot widen it into a
// drive-scoped token.
func (a *App) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	actor, user, ok := a.authContext(w, r)
	if !ok {
		return
	}
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.Scopes) == 0 {
		respondError(w, http.StatusBadRequest, "at least one scope is required")
		return
	}
	for _, scope := range req.Scopes {
		if !actor.HasScope(scope) {
			respondJSON(w, http.StatusForbidden, map[string]string{
				"code":  string(authz.CodeInsufficientPermission),
				"error": "cannot mint scope " + scope,
			})
			return
		}
	}
	if req.Binding != nil && (req.Binding.Type == "" || req.Binding.ID == "") {
		respondError(w, http.StatusBadRequest, "binding requires type and id")
		return
	}
	if req.DriveID != nil {
		perms := a.resolver.GetUserDrivePermissions(r.Context(), actor.UserID(), *req.DriveID)
		if perms == nil {
			respondJSON(w, http.StatusForbidden, map[string]string{
				"code":  string(authz.CodeInsufficientPermission),
				"error": "drive-wide rights are required to scope a token to a drive",
			})
			return
		}
	}

	token, claims, err := a.sessions.create(user, req.Scopes, req.Binding, req.DriveID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		Scopes:    req.Scopes,
	})
}
