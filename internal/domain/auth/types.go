package auth

// Package auth contains domain-level types for principals, credentials and session status.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a platform role. The set is closed; see ParseRole.
// Keep string form for easy persistence.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// Roles lists every valid role in a stable order.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleParent, RoleAdmin}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole converts a persisted or wire value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Principal is the authenticated identity. Values are replaced wholesale, never mutated in place.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	Grade       string `json:"grade,omitempty"` // optional; empty means absent
}

// ProfileUpdate carries editable principal fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	Grade       *string
}

// WithProfile returns a copy of p with the update applied. Identity and role never change here.
func (p Principal) WithProfile(u ProfileUpdate) Principal {
	out := p
	if u.DisplayName != nil {
		out.DisplayName = *u.DisplayName
	}
	if u.Email != nil {
		out.Email = *u.Email
	}
	if u.Grade != nil {
		out.Grade = *u.Grade
	}
	return out
}

// Claims are decoded locally from the token and only used for expiry checks.
type Claims struct {
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token carries no expiry
}

// Credential is the opaque bearer token plus what we know about it locally.
type Credential struct {
	Token        string
	RefreshToken string
	Claims       Claims
}

// Expired reports whether the credential carries an expiry claim that lies at or before now.
func (c Credential) Expired(now time.Time) bool {
	if c.Claims.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.Claims.ExpiresAt)
}

// Tier identifies a persistence tier of the credential store.
type Tier int

const (
	// TierDurable survives process restarts ("remember me").
	TierDurable Tier = iota
	// TierEphemeral lives as long as the current process.
	TierEphemeral
	// TierMemory is the in-process fallback used when a backend fails.
	TierMemory
)

func (t Tier) String() string {
	switch t {
	case TierDurable:
		return "durable"
	case TierEphemeral:
		return "ephemeral"
	case TierMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseTier converts a configuration value into a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "durable":
		return TierDurable, nil
	case "ephemeral":
		return TierEphemeral, nil
	case "memory":
		return TierMemory, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// Status is the authentication status exposed to the rest of the application.
type Status int

const (
	StatusUninitialized Status = iota
	StatusChecking
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Settled reports whether the restore attempt has finished.
func (s Status) Settled() bool {
	return s == StatusAuthenticated || s == StatusUnauthenticated
}
