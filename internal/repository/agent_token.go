package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arkeep-io/relaycoord/internal/db"
)

// AgentTokenRepository persists AgentToken records and implements
// internal/auth.AgentTokenLookup directly.
type AgentTokenRepository struct {
	db *gorm.DB
}

// NewAgentTokenRepository returns an AgentTokenRepository backed by the
// provided *gorm.DB.
func NewAgentTokenRepository(gdb *gorm.DB) *AgentTokenRepository {
	return &AgentTokenRepository{db: gdb}
}

// Create inserts a new provisioned agent token record.
func (r *AgentTokenRepository) Create(ctx context.Context, token *db.AgentToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("agent_tokens: create: %w", err)
	}
	return nil
}

// FindByHash implements internal/auth.AgentTokenLookup. It resolves a
// token hash to its owning user id and revocation state, and best-effort
// stamps LastUsedAt — a failure to record the stamp never fails the
// lookup itself.
func (r *AgentTokenRepository) FindByHash(ctx context.Context, tokenHash string) (string, bool, error) {
	var tok db.AgentToken
	if err := r.db.WithContext(ctx).First(&tok, "token_hash = ?", tokenHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("agent_tokens: find by hash: %w", err)
	}

	now := time.Now()
	r.db.WithContext(ctx).
		Model(&db.AgentToken{}).
		Where("id = ?", tok.ID).
		Update("last_used_at", now)

	return tok.UserID.String(), tok.RevokedAt != nil, nil
}

// Revoke marks a provisioned token revoked by id.
func (r *AgentTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&db.AgentToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return fmt.Errorf("agent_tokens: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns every provisioned token for userID, most recent
// first. Used by the admin surface.
func (r *AgentTokenRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]db.AgentToken, error) {
	var tokens []db.AgentToken
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("agent_tokens: list for user: %w", err)
	}
	return tokens, nil
}
