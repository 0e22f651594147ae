package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models. ID uses UUID v7
// (time-ordered) for efficient B-tree indexing and natural chronological
// ordering without a separate created_at sort. CreatedAt and UpdatedAt are
// managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// User is a tenant of the relay: the subject named in a verified access or
// refresh token, and the owner of zero or more agent tokens. The relay
// itself only needs tenancy confirmation (see UserLookup in
// internal/relay) — profile fields here exist for the admin surface, not
// for routing.
type User struct {
	base
	Email       string `gorm:"uniqueIndex;not null"`
	DisplayName string `gorm:"not null"`
	IsActive    bool   `gorm:"not null;default:true"`
}

// AgentToken is a provisioned bearer credential an agent presents in its
// agent:auth handshake. Only the SHA-256 hash is stored — the raw value is
// returned to the operator exactly once, at provisioning time, mirroring
// how the teacher stores refresh tokens.
type AgentToken struct {
	base
	UserID     uuid.UUID `gorm:"type:text;not null;index"`
	TokenHash  string    `gorm:"not null;uniqueIndex"`
	Label      string    `gorm:"not null;default:''"` // operator-facing name, e.g. "laptop"
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Setting is a generic per-user key-value entry, namespaced by convention
// (e.g. "tier.plan", "tier.max_agents"). internal/policy reads these to
// build the opaque tier:info payload pushed to a browser on connect.
// Sensitive values are encrypted at rest via EncryptedString.
type Setting struct {
	UserID    uuid.UUID       `gorm:"type:text;primaryKey"`
	Key       string          `gorm:"primaryKey"`
	Value     EncryptedString `gorm:"type:text;not null"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime"`
}
