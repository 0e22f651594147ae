// Package policy implements internal/relay.PolicyProvider, supplying the
// opaque per-user tier:info payload a Browser Session pushes immediately
// after connecting.
package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SettingLookup is the subset of internal/repository.SettingRepository
// this package depends on.
type SettingLookup interface {
	ListForUser(ctx context.Context, userID uuid.UUID) (map[string]string, error)
}

// defaultPlan is used for any user with no "tier.plan" setting recorded —
// new accounts before an operator or billing integration assigns a plan.
const defaultPlan = "free"

// TierInfo is the payload shape pushed as tier:info. Field names are
// stable across plans; MaxAgents of 0 means unlimited.
type TierInfo struct {
	Plan      string `json:"plan"`
	MaxAgents int    `json:"maxAgents"`
}

var planLimits = map[string]int{
	"free": 1,
	"pro":  10,
	"team": 0,
}

// Provider implements internal/relay.PolicyProvider against a
// SettingLookup.
type Provider struct {
	settings SettingLookup
}

// NewProvider constructs a Provider.
func NewProvider(settings SettingLookup) *Provider {
	return &Provider{settings: settings}
}

// TierInfoFor builds the tier:info payload for userID.
func (p *Provider) TierInfoFor(ctx context.Context, userID string) (any, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid user id %q: %w", userID, err)
	}

	settings, err := p.settings.ListForUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("policy: loading settings: %w", err)
	}

	plan := settings["tier.plan"]
	if plan == "" {
		plan = defaultPlan
	}

	return TierInfo{Plan: plan, MaxAgents: planLimits[plan]}, nil
}
