package auth

import (
	"errors"
	"time"
)

// Role identifies which side of the relay a credential belongs to.
type Role string

const (
	// RoleDevice is a paired phone that executes commands and streams telemetry.
	RoleDevice Role = "device"

	// RoleController is a watching client that issues commands to one device.
	RoleController Role = "controller"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleDevice, RoleController}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Identity is the verified content of a credential.
type Identity struct {
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt *time.Time // nil for refresh tokens issued without expiry
	Refresh   bool
}

// PairingCode is a one-time code that authorises a device registration.
type PairingCode struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
	DeviceID  *string   `json:"deviceId,omitempty"`
}

// IsExpired reports whether the code has passed its expiry at now.
func (p *PairingCode) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrRefreshToken       = errors.New("refresh token not accepted here")
	ErrNotRefreshToken    = errors.New("not a refresh token")
	ErrPairingNotFound    = errors.New("pairing code not found")
	ErrPairingCodeInvalid = errors.New("pairing code is invalid")
	ErrPairingCodeExpired = errors.New("pairing code has expired")
	ErrPairingCodeUsed    = errors.New("pairing code already used")
)
