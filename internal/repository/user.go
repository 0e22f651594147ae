package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arkeep-io/relaycoord/internal/db"
)

// UserRepository persists User records and implements
// internal/relay.UserLookup directly, so a *UserRepository can be wired in
// as the relay's UserLookup collaborator without an adapter.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a UserRepository backed by the provided *gorm.DB.
func NewUserRepository(gdb *gorm.DB) *UserRepository {
	return &UserRepository{db: gdb}
}

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, user *db.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		// SQLite and Postgres report a unique-index violation (here, a
		// duplicate email) with these messages.
		msg := err.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value") {
			return fmt.Errorf("users: create: %w", ErrConflict)
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// GetByID retrieves a user by its UUID string. Returns ErrNotFound if no
// record exists or id does not parse as a UUID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*db.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var user db.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: get by id: %w", err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: get by email: %w", err)
	}
	return &user, nil
}

// Exists implements internal/relay.UserLookup: it reports whether userID
// names an existing, active user account, without returning the account
// itself — the relay only needs tenancy confirmation.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return false, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ? AND is_active = ?", uid, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("users: exists: %w", err)
	}
	return count > 0, nil
}
