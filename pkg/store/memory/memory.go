// Package memory implements the [github.com/notedrive/notedrive/pkg/store.Store]
// interface with in-process maps.
//
// The memory backend exists for development mode and tests: it is
// deterministic, needs no external services, and honors the same semantics
// as the PostgreSQL backend, including the single-writer transactional
// behavior of the ACL upsert/delete pair (here a plain mutex). Data does not
// survive the process.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/notedrive/notedrive/pkg/models"
	"github.com/notedrive/notedrive/pkg/store"
)

const defaultActivityLimit = 50

// MemoryStore implements the Store interface with mutex-guarded maps.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[models.UserID]models.User
	drives      map[models.DriveID]models.Drive
	memberships map[models.MembershipID]models.DriveMembership
	pages       map[models.PageID]models.Page
	permissions map[models.PermissionID]models.PagePermission
	activities  []models.ActivityLog
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() store.Store {
	return &MemoryStore{
		users:       make(map[models.UserID]models.User),
		drives:      make(map[models.DriveID]models.Drive),
		memberships: make(map[models.MembershipID]models.DriveMembership),
		pages:       make(map[models.PageID]models.Page),
		permissions: make(map[models.PermissionID]models.PagePermission),
	}
}

// Migrate is a no-op for the memory backend.
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// Close is a no-op for the memory backend.
func (s *MemoryStore) Close() error { return nil }

// User operations

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = models.NewUserID()
	}
	if user.Role == "" {
		user.Role = models.UserRoleUser
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("user with email %q already exists", user.Email)
		}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id models.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// Drive operations

func (s *MemoryStore) CreateDrive(ctx context.Context, drive *models.Drive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drive.ID.IsZero() {
		drive.ID = models.NewDriveID()
	}
	now := time.Now().UTC()
	drive.CreatedAt = now
	drive.UpdatedAt = now
	stored := *drive
	stored.Owner = nil
	s.drives[drive.ID] = stored
	return nil
}

func (s *MemoryStore) GetDrive(ctx context.Context, id models.DriveID) (*models.Drive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drive, ok := s.drives[id]
	if !ok {
		return nil, nil
	}
	return &drive, nil
}

func (s *MemoryStore) UpdateDrive(ctx context.Context, drive *models.Drive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drives[drive.ID]; !ok {
		return store.ErrNotFound
	}
	drive.UpdatedAt = time.Now().UTC()
	stored := *drive
	stored.Owner = nil
	s.drives[drive.ID] = stored
	return nil
}

func (s *MemoryStore) DeleteDrive(ctx context.Context, id models.DriveID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drives[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.drives, id)
	return nil
}

func (s *MemoryStore) ListDrives(ctx context.Context, userID models.UserID) ([]*models.Drive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	memberOf := make(map[models.DriveID]bool)
	for _, m := range s.memberships {
		if m.UserID == userID {
			memberOf[m.DriveID] = true
		}
	}
	drives := []*models.Drive{}
	for _, drive := range s.drives {
		if drive.OwnerID == userID || memberOf[drive.ID] {
			d := drive
			drives = append(drives, &d)
		}
	}
	return drives, nil
}

// Drive membership operations

func (s *MemoryStore) AddDriveMembership(ctx context.Context, membership *models.DriveMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.DriveID == membership.DriveID && m.UserID == membership.UserID {
			return fmt.Errorf("membership for user %s in drive %s already exists",
				membership.UserID, membership.DriveID)
		}
	}
	if membership.ID.IsZero() {
		membership.ID = models.NewMembershipID()
	}
	now := time.Now().UTC()
	membership.CreatedAt = now
	membership.UpdatedAt = now
	stored := *membership
	stored.Drive = nil
	stored.User = nil
	s.memberships[membership.ID] = stored
	return nil
}

func (s *MemoryStore) GetDriveMembership(ctx context.Context, driveID models.DriveID, userID models.UserID) (*models.DriveMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.DriveID == driveID && m.UserID == userID {
			membership := m
			return &membership, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateDriveMembership(ctx context.Context, membership *models.DriveMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[membership.ID]; !ok {
		return store.ErrNotFound
	}
	membership.UpdatedAt = time.Now().UTC()
	stored := *membership
	stored.Drive = nil
	stored.User = nil
	s.memberships[membership.ID] = stored
	return nil
}

func (s *MemoryStore) RemoveDriveMembership(ctx context.Context, driveID models.DriveID, userID models.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.DriveID == driveID && m.UserID == userID {
			delete(s.memberships, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *MemoryStore) ListDriveMemberships(ctx context.Context, driveID models.DriveID) ([]*models.DriveMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	memberships := []*models.DriveMembership{}
	for _, m := range s.memberships {
		if m.DriveID == driveID {
			membership := m
			memberships = append(memberships, &membership)
		}
	}
	return memberships, nil
}

// Page operations

func (s *MemoryStore) CreatePage(ctx context.Context, page *models.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page.ID.IsZero() {
		page.ID = models.NewPageID()
	}
	now := time.Now().UTC()
	page.CreatedAt = now
	page.UpdatedAt = now
	stored := *page
	stored.Drive = nil
	stored.ParentPage = nil
	stored.Creator = nil
	s.pages[page.ID] = stored
	return nil
}

func (s *MemoryStore) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return nil, nil
	}
	return &page, nil
}

func (s *MemoryStore) UpdatePage(ctx context.Context, page *models.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[page.ID]; !ok {
		return store.ErrNotFound
	}
	page.UpdatedAt = time.Now().UTC()
	stored := *page
	stored.Drive = nil
	stored.ParentPage = nil
	stored.Creator = nil
	s.pages[page.ID] = stored
	return nil
}

func (s *MemoryStore) DeletePage(ctx context.Context, id models.PageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.pages, id)
	return nil
}

func (s *MemoryStore) ListPages(ctx context.Context, driveID models.DriveID) ([]*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := []*models.Page{}
	for _, page := range s.pages {
		if page.DriveID == driveID {
			p := page
			pages = append(pages, &p)
		}
	}
	return pages, nil
}

func (s *MemoryStore) ListChildPages(ctx context.Context, parentPageID models.PageID) ([]*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := []*models.Page{}
	for _, page := range s.pages {
		if page.ParentPageID != nil && *page.ParentPageID == parentPageID {
			p := page
			pages = append(pages, &p)
		}
	}
	return pages, nil
}

// Page permission operations

func (s *MemoryStore) GetPagePermission(ctx context.Context, pageID models.PageID, userID models.UserID) (*models.PagePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if perm := s.findPermission(pageID, userID); perm != nil {
		p := *perm
		return &p, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListPagePermissions(ctx context.Context, pageID models.PageID) ([]*models.PagePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := []*models.PagePermission{}
	for _, perm := range s.permissions {
		if perm.PageID == pageID {
			p := perm
			perms = append(perms, &p)
		}
	}
	return perms, nil
}

func (s *MemoryStore) ListUserPagePermissions(ctx context.Context, userID models.UserID) ([]*models.PagePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := []*models.PagePermission{}
	for _, perm := range s.permissions {
		if perm.UserID == userID {
			p := perm
			perms = append(perms, &p)
		}
	}
	return perms, nil
}

func (s *MemoryStore) UpsertPagePermission(ctx context.Context, perm *models.PagePermission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing := s.findPermission(perm.PageID, perm.UserID); existing != nil {
		existing.CanView = perm.CanView
		existing.CanEdit = perm.CanEdit
		existing.CanShare = perm.CanShare
		existing.CanDelete = perm.CanDelete
		existing.GrantedBy = perm.GrantedBy
		existing.GrantedAt = perm.GrantedAt
		existing.UpdatedAt = now
		s.permissions[existing.ID] = *existing
		*perm = *existing
		return false, nil
	}
	if perm.ID.IsZero() {
		perm.ID = models.NewPermissionID()
	}
	perm.CreatedAt = now
	perm.UpdatedAt = now
	stored := *perm
	stored.Page = nil
	stored.User = nil
	s.permissions[perm.ID] = stored
	return true, nil
}

func (s *MemoryStore) DeletePagePermission(ctx context.Context, pageID models.PageID, userID models.UserID) (*models.PagePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.findPermission(pageID, userID)
	if existing == nil {
		return nil, nil
	}
	prior := *existing
	delete(s.permissions, existing.ID)
	return &prior, nil
}

// findPermission returns a copy of the row for (page, user), or nil.
// Callers must hold the mutex.
func (s *MemoryStore) findPermission(pageID models.PageID, userID models.UserID) *models.PagePermission {
	for _, perm := range s.permissions {
		if perm.PageID == pageID && perm.UserID == userID {
			p := perm
			return &p
		}
	}
	return nil
}

// Authorization reads

func (s *MemoryStore) GetPageAuthz(ctx context.Context, userID models.UserID, pageID models.PageID) (*store.PageAuthz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageAuthzLocked(userID, pageID), nil
}

func (s *MemoryStore) GetPageAuthzBatch(ctx context.Context, userID models.UserID, pageIDs []models.PageID) ([]store.PageAuthz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := []store.PageAuthz{}
	for _, pageID := range pageIDs {
		if row := s.pageAuthzLocked(userID, pageID); row != nil {
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

// pageAuthzLocked assembles the page authorization row. Callers must hold
// at least a read lock.
func (s *MemoryStore) pageAuthzLocked(userID models.UserID, pageID models.PageID) *store.PageAuthz {
	page, ok := s.pages[pageID]
	if !ok {
		return nil
	}
	drive, ok := s.drives[page.DriveID]
	if !ok {
		return nil
	}
	row := &store.PageAuthz{
		PageID:  page.ID,
		DriveID: page.DriveID,
		OwnerID: drive.OwnerID,
	}
	for _, m := range s.memberships {
		if m.DriveID == page.DriveID && m.UserID == userID {
			role := m.Role
			row.MemberRole = &role
			break
		}
	}
	if perm := s.findPermission(pageID, userID); perm != nil {
		row.HasRow = true
		row.CanView = perm.CanView
		row.CanEdit = perm.CanEdit
		row.CanShare = perm.CanShare
		row.CanDelete = perm.CanDelete
	}
	return row
}

func (s *MemoryStore) GetDriveAuthz(ctx context.Context, userID models.UserID, driveID models.DriveID) (*store.DriveAuthz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drive, ok := s.drives[driveID]
	if !ok {
		return nil, nil
	}
	row := &store.DriveAuthz{
		DriveID: drive.ID,
		OwnerID: drive.OwnerID,
	}
	for _, m := range s.memberships {
		if m.DriveID == driveID && m.UserID == userID {
			role := m.Role
			row.MemberRole = &role
			break
		}
	}
	for _, perm := range s.permissions {
		if perm.UserID != userID || !perm.CanView {
			continue
		}
		if page, ok := s.pages[perm.PageID]; ok && page.DriveID == driveID {
			row.HasPageView = true
			break
		}
	}
	return row, nil
}

// Activity log operations

func (s *MemoryStore) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = models.NewActivityID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.activities = append(s.activities, *entry)
	return nil
}

func (s *MemoryStore) GetActivityLog(ctx context.Context, id models.ActivityID) (*models.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.activities {
		if entry.ID == id {
			e := entry
			return &e, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListDriveActivity(ctx context.Context, driveID models.DriveID, limit int) ([]*models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := []*models.ActivityLog{}
	for i := len(s.activities) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := s.activities[i]
		if entry.DriveID != nil && *entry.DriveID == driveID {
			e := entry
			entries = append(entries, &e)
		}
	}
	return entries, nil
}

func (s *MemoryStore) ListUserActivity(ctx context.Context, userID models.UserID, limit int) ([]*models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := []*models.ActivityLog{}
	for i := len(s.activities) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := s.activities[i]
		if entry.UserID == userID {
			e := entry
			entries = append(entries, &e)
		}
	}
	return entries, nil
}
