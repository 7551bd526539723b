// Package postgres implements the [github.com/notedrive/notedrive/pkg/store.Store]
// interface on PostgreSQL using GORM.
//
// This is the production source of truth for the access-control core. GORM
// handles query generation, the schema migration through AutoMigrate, and the
// single-row transactions the ACL upsert/delete pair relies on. The
// authorization reads (GetPageAuthz, GetPageAuthzBatch, GetDriveAuthz) are
// raw join queries: each resolves everything needed for a permission decision
// in one round trip, which is what keeps the resolver free of N+1 patterns.
//
// Missing records follow the store convention: lookups return (nil, nil),
// updates and deletes report [github.com/notedrive/notedrive/pkg/store.ErrNotFound]
// via affected-row counts.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/notedrive/notedrive/pkg/models"
	"github.com/notedrive/notedrive/pkg/store"
)

// defaultActivityLimit caps activity listings when the caller passes no limit.
const defaultActivityLimit = 50

// PostgresStore implements the Store interface using PostgreSQL with GORM.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore connects to PostgreSQL and returns a store backed by it.
func NewPostgresStore(dsn string) (store.Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// getDB returns the database connection
func (s *PostgresStore) getDB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the schema for all models via GORM AutoMigrate.
// Safe to run repeatedly; it only adds missing tables, columns, and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Drive{},
		&models.DriveMembership{},
		&models.Page{},
		&models.PagePermission{},
		&models.ActivityLog{},
	)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// User operations

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.getDB().WithContext(ctx).Create(user).Error
}

func (s *PostgresStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	var user models.User
	err := s.getDB().WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.getDB().WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	res := s.getDB().WithContext(ctx).Save(user)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id models.UserID) error {
	res := s.getDB().WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Drive operations

func (s *PostgresStore) CreateDrive(ctx context.Context, drive *models.Drive) error {
	return s.getDB().WithContext(ctx).Create(drive).Error
}

func (s *PostgresStore) GetDrive(ctx context.Context, id models.DriveID) (*models.Drive, error) {
	var drive models.Drive
	err := s.getDB().WithContext(ctx).First(&drive, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &drive, nil
}

func (s *PostgresStore) UpdateDrive(ctx context.Context, drive *models.Drive) error {
	res := s.getDB().WithContext(ctx).Save(drive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDrive(ctx context.Context, id models.DriveID) error {
	res := s.getDB().WithContext(ctx).Delete(&models.Drive{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDrives(ctx context.Context, userID models.UserID) ([]*models.Drive, error) {
	var drives []*models.Drive
	err := s.getDB().WithContext(ctx).
		Model(&models.Drive{}).
		Distinct("drives.*").
		Joins("LEFT JOIN drive_memberships ON drive_memberships.drive_id = drives.id AND drive_memberships.user_id = ?", userID).
		Where("drives.owner_id = ? OR drive_memberships.user_id IS NOT NULL", userID).
		Find(&drives).Error
	if drives == nil {
		drives = []*models.Drive{}
	}
	return drives, err
}

// Drive membership operations

func (s *PostgresStore) AddDriveMembership(ctx context.Context, membership *models.DriveMembership) error {
	return s.getDB().WithContext(ctx).Create(membership).Error
}

func (s *PostgresStore) GetDriveMembership(ctx context.Context, driveID models.DriveID, userID models.UserID) (*models.DriveMembership, error) {
	var membership models.DriveMembership
	err := s.getDB().WithContext(ctx).Where("drive_id = ? AND user_id = ?", driveID, userID).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

func (s *PostgresStore) UpdateDriveMembership(ctx context.Context, membership *models.DriveMembership) error {
	res := s.getDB().WithContext(ctx).Save(membership)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveDriveMembership(ctx context.Context, driveID models.DriveID, userID models.UserID) error {
	res := s.getDB().WithContext(ctx).
		Where("drive_id = ? AND user_id = ?", driveID, userID).
		Delete(&models.DriveMembership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDriveMemberships(ctx context.Context, driveID models.DriveID) ([]*models.DriveMembership, error) {
	var memberships []*models.DriveMembership
	err := s.getDB().WithContext(ctx).Where("drive_id = ?", driveID).Find(&memberships).Error
	if memberships == nil {
		memberships = []*models.DriveMembership{}
	}
	return memberships, err
}

// Page operations

func (s *PostgresStore) CreatePage(ctx context.Context, page *models.Page) error {
	return s.getDB().WithContext(ctx).Create(page).Error
}

func (s *PostgresStore) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	var page models.Page
	err := s.getDB().WithContext(ctx).First(&page, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &page, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, page *models.Page) error {
	res := s.getDB().WithContext(ctx).Save(page)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePage(ctx context.Context, id models.PageID) error {
	res := s.getDB().WithContext(ctx).Delete(&models.Page{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPages(ctx context.Context, driveID models.DriveID) ([]*models.Page, error) {
	var pages []*models.Page
	err := s.getDB().WithContext(ctx).Where("drive_id = ?", driveID).Find(&pages).Error
	if pages == nil {
		pages = []*models.Page{}
	}
	return pages, err
}

func (s *PostgresStore) ListChildPages(ctx context.Context, parentPageID models.PageID) ([]*models.Page, error) {
	var pages []*models.Page
	err := s.getDB().WithContext(ctx).Where("parent_page_id = ?", parentPageID).Find(&pages).Error
	if pages == nil {
		pages = []*models.Page{}
	}
	return pages, err
}

// Page permission operations

func (s *PostgresStore) GetPagePermission(ctx context.Context, pageID models.PageID, userID models.UserID) (*models.PagePermission, error) {
	var perm models.PagePermission
	err := s.getDB().WithContext(ctx).Where("page_id = ? AND user_id = ?", pageID, userID).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (s *PostgresStore) ListPagePermissions(ctx context.Context, pageID models.PageID) ([]*models.PagePermission, error) {
	var perms []*models.PagePermission
	err := s.getDB().WithContext(ctx).Where("page_id = ?", pageID).Find(&perms).Error
	if perms == nil {
		perms = []*models.PagePermission{}
	}
	return perms, err
}

func (s *PostgresStore) ListUserPagePermissions(ctx context.Context, userID models.UserID) ([]*models.PagePermission, error) {
	var perms []*models.PagePermission
	err := s.getDB().WithContext(ctx).Where("user_id = ?", userID).Find(&perms).Error
	if perms == nil {
		perms = []*models.PagePermission{}
	}
	return perms, err
}

func (s *PostgresStore) UpsertPagePermission(ctx context.Context, perm *models.PagePermission) (bool, error) {
	created := false
	err := s.getDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PagePermission
		err := tx.Where("page_id = ? AND user_id = ?", perm.PageID, perm.UserID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(perm).Error
		}
		if err != nil {
			return err
		}
		existing.CanView = perm.CanView
		existing.CanEdit = perm.CanEdit
		existing.CanShare = perm.CanShare
		existing.CanDelete = perm.CanDelete
		existing.GrantedBy = perm.GrantedBy
		existing.GrantedAt = perm.GrantedAt
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*perm = existing
		return nil
	})
	return created, err
}

func (s *PostgresStore) DeletePagePermission(ctx context.Context, pageID models.PageID, userID models.UserID) (*models.PagePermission, error) {
	var prior *models.PagePermission
	err := s.getDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PagePermission
		err := tx.Where("page_id = ? AND user_id = ?", pageID, userID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&existing).Error; err != nil {
			return err
		}
		prior = &existing
		return nil
	})
	return prior, err
}

// Authorization reads

const pageAuthzSelect = `
SELECT pages.id AS page_id,
       pages.drive_id AS drive_id,
       drives.owner_id AS owner_id,
       drive_memberships.role AS member_role,
       page_permissions.id IS NOT NULL AS has_row,
       COALESCE(page_permissions.can_view, FALSE) AS can_view,
       COALESCE(page_permissions.can_edit, FALSE) AS can_edit,
       COALESCE(page_permissions.can_share, FALSE) AS can_share,
       COALESCE(page_permissions.can_delete, FALSE) AS can_delete
FROM pages
JOIN drives ON drives.id = pages.drive_id AND drives.deleted_at IS NULL
LEFT JOIN drive_memberships ON drive_memberships.drive_id = pages.drive_id AND drive_memberships.user_id = ?
LEFT JOIN page_permissions ON page_permissions.page_id = pages.id AND page_permissions.user_id = ?
WHERE pages.deleted_at IS NULL`

func (s *PostgresStore) GetPageAuthz(ctx context.Context, userID models.UserID, pageID models.PageID) (*store.PageAuthz, error) {
	var rows []store.PageAuthz
	err := s.getDB().WithContext(ctx).
		Raw(pageAuthzSelect+" AND pages.id = ?", userID, userID, pageID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *PostgresStore) GetPageAuthzBatch(ctx context.Context, userID models.UserID, pageIDs []models.PageID) ([]store.PageAuthz, error) {
	if len(pageIDs) == 0 {
		return []store.PageAuthz{}, nil
	}
	var rows []store.PageAuthz
	err := s.getDB().WithContext(ctx).
		Raw(pageAuthzSelect+" AND pages.id IN ?", userID, userID, pageIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []store.PageAuthz{}
	}
	return rows, nil
}

const driveAuthzSelect = `
SELECT drives.id AS drive_id,
       drives.owner_id AS owner_id,
       drive_memberships.role AS member_role,
       EXISTS (
           SELECT 1 FROM page_permissions
           JOIN pages ON pages.id = page_permissions.page_id AND pages.deleted_at IS NULL
           WHERE pages.drive_id = drives.id
             AND page_permissions.user_id = ?
             AND page_permissions.can_view
       ) AS has_page_view
FROM drives
LEFT JOIN drive_memberships ON drive_memberships.drive_id = drives.id AND drive_memberships.user_id = ?
WHERE drives.id = ? AND drives.deleted_at IS NULL`

func (s *PostgresStore) GetDriveAuthz(ctx context.Context, userID models.UserID, driveID models.DriveID) (*store.DriveAuthz, error) {
	var rows []store.DriveAuthz
	err := s.getDB().WithContext(ctx).
		Raw(driveAuthzSelect, userID, userID, driveID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Activity log operations

func (s *PostgresStore) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	return s.getDB().WithContext(ctx).Create(entry).Error
}

func (s *PostgresStore) GetActivityLog(ctx context.Context, id models.ActivityID) (*models.ActivityLog, error) {
	var entry models.ActivityLog
	err := s.getDB().WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (s *PostgresStore) ListDriveActivity(ctx context.Context, driveID models.DriveID, limit int) ([]*models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	var entries []*models.ActivityLog
	err := s.getDB().WithContext(ctx).
		Where("drive_id = ?", driveID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if entries == nil {
		entries = []*models.ActivityLog{}
	}
	return entries, err
}

func (s *PostgresStore) ListUserActivity(ctx context.Context, userID models.UserID, limit int) ([]*models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	var entries []*models.ActivityLog
	err := s.getDB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if entries == nil {
		entries = []*models.ActivityLog{}
	}
	return entries, err
}
