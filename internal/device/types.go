package device

import "time"

// ConnectionStatus is the persisted online flag of a device.
// It mirrors the presence registry on connect and disconnect; the registry
// remains the authority on whether a live session exists right now.
type ConnectionStatus string

const (
	StatusOnline  ConnectionStatus = "online"
	StatusOffline ConnectionStatus = "offline"
)

// PushPlatform identifies the wake-up channel a push token belongs to.
type PushPlatform string

const (
	PushPlatformFCM  PushPlatform = "fcm"
	PushPlatformAPNS PushPlatform = "apns"
	PushPlatformMQTT PushPlatform = "mqtt"
)

// AllPushPlatforms returns every accepted push platform.
func AllPushPlatforms() []PushPlatform {
	return []PushPlatform{PushPlatformFCM, PushPlatformAPNS, PushPlatformMQTT}
}

// Device is a paired mobile endpoint.
// This matches the devices table in migrations/20260301_090000_initial_schema.up.sql.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// SecretHash is the Argon2id hash of the device secret. Never serialised.
	SecretHash string `json:"-"`

	Status     ConnectionStatus `json:"status"`
	LastSeen   *time.Time       `json:"lastSeen,omitempty"`
	LastStatus *StatusSnapshot  `json:"lastStatus,omitempty"`
	Settings   Settings         `json:"settings"`

	PushToken    *string       `json:"-"`
	PushPlatform *PushPlatform `json:"pushPlatform,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPushToken reports whether a wake-up channel is registered.
func (d *Device) HasPushToken() bool {
	return d.PushToken != nil && *d.PushToken != ""
}

// IsOnline reports the persisted flag only.
func (d *Device) IsOnline() bool {
	return d.Status == StatusOnline
}
