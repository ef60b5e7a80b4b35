package domain

import (
	"strings"
	"time"
)

// BounceType classifies a provider-reported delivery failure.
type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// AudienceGroup is a named collection of audience members.
type AudienceGroup struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AudienceMember is one recipient's membership in one audience group.
// An address may appear in multiple groups (one row per group), but
// suppression flags are address-scoped in effect: a send is blocked if ANY
// membership row for the address is inactive or bounced.
type AudienceMember struct {
	ID               string      `json:"id" db:"id"`
	GroupID          string      `json:"group_id" db:"group_id"`
	Name             string      `json:"name" db:"name"`
	Email            string      `json:"email" db:"email"`
	IsActive         bool        `json:"is_active" db:"is_active"`
	Bounced          bool        `json:"bounced" db:"bounced"`
	BounceType       *BounceType `json:"bounce_type,omitempty" db:"bounce_type"`
	BounceReason     string      `json:"bounce_reason,omitempty" db:"bounce_reason"`
	BouncedAt        *time.Time  `json:"bounced_at,omitempty" db:"bounced_at"`
	UnsubscribeToken *string     `json:"-" db:"unsubscribe_token"`

	// SentAt records the FIRST send ever to this member and is never
	// updated by later campaigns. Do not use it for recency logic.
	SentAt *time.Time `json:"sent_at,omitempty" db:"sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CanReceiveEmail reports whether this membership row alone permits sending.
// Address-wide suppression still has to be checked across all groups.
func (m *AudienceMember) CanReceiveEmail() bool {
	return m.IsActive && !m.Bounced
}

// NormalizeEmail lowercases and trims an address. Every comparison in the
// system goes through this so that case and whitespace never split an
// identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
