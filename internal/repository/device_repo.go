package repository

import (
	"context"
	"errors"
	"time"

	"github.com/quocanhngo/eventspot/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// DeviceRepository handles database operations for DeviceRegistration
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FindByUserID returns the registration of a user
func (r *DeviceRepository) FindByUserID(ctx context.Context, userID string) (*model.DeviceRegistration, error) {
	var reg model.DeviceRegistration
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Upsert creates the registration or merges token and the given preference
// fields into the existing row. Fields left nil keep their stored value.
func (r *DeviceRepository) Upsert(ctx context.Context, userID, token string, prefs model.Preferences) error {
	now := time.Now()
	reg := model.DeviceRegistration{
		UserID:      userID,
		Token:       token,
		Preferences: prefs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	updates := prefs.Columns()
	updates["token"] = token
	updates["updated_at"] = now

	// Upsert: on conflict update only what the caller sent
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&reg).Error
}

// UpdatePreferences merges preference fields into an existing registration
func (r *DeviceRepository) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	updates := prefs.Columns()
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&model.DeviceRegistration{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
