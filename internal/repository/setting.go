package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arkeep-io/relaycoord/internal/db"
)

// SettingRepository persists per-user key-value settings — the backing
// store for internal/policy's tier:info payloads.
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository returns a SettingRepository backed by the provided
// *gorm.DB.
func NewSettingRepository(gdb *gorm.DB) *SettingRepository {
	return &SettingRepository{db: gdb}
}

// Get retrieves a single setting value. Returns ErrNotFound if absent.
func (r *SettingRepository) Get(ctx context.Context, userID uuid.UUID, key string) (string, error) {
	var s db.Setting
	err := r.db.WithContext(ctx).First(&s, "user_id = ? AND key = ?", userID, key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("settings: get: %w", err)
	}
	return string(s.Value), nil
}

// ListForUser returns every setting key-value pair for userID.
func (r *SettingRepository) ListForUser(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	var rows []db.Setting
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("settings: list for user: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = string(row.Value)
	}
	return out, nil
}

// Set upserts a single setting value.
func (r *SettingRepository) Set(ctx context.Context, userID uuid.UUID, key, value string) error {
	s := db.Setting{UserID: userID, Key: key, Value: db.EncryptedString(value)}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&s).Error
	if err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}
