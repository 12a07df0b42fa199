package domain

import "time"

// DeviceCodeStatus enumerates the observable states of a live device authorization.
// Consumed and expired requests are removed from the store, so they have no stored status.
const (
	DeviceCodeStatusPending  = "pending"
	DeviceCodeStatusVerified = "verified"
	DeviceCodeStatusExpired  = "expired"
)

// DeviceCode tracks the lifecycle of a device authorization request.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	UserID          *string
	Verified        bool
	ExpiresAt       time.Time
	IntervalSeconds int
	CreatedAt       time.Time
	VerifiedAt      *time.Time
}

// Expired reports whether the device code is expired relative to now.
func (d DeviceCode) Expired(now time.Time) bool {
	if d.ExpiresAt.IsZero() {
		return false
	}
	return !now.UTC().Before(d.ExpiresAt.UTC())
}

// Status derives the request state at now.
func (d DeviceCode) Status(now time.Time) string {
	switch {
	case d.Expired(now):
		return DeviceCodeStatusExpired
	case d.Verified:
		return DeviceCodeStatusVerified
	default:
		return DeviceCodeStatusPending
	}
}

// BoundUserID returns the approving user, or "" while the request is unbound.
func (d DeviceCode) BoundUserID() string {
	if d.UserID == nil {
		return ""
	}
	return *d.UserID
}

// Clone returns a deep copy so callers never share pointers with the store.
func (d DeviceCode) Clone() DeviceCode {
	out := d
	if d.UserID != nil {
		id := *d.UserID
		out.UserID = &id
	}
	if d.VerifiedAt != nil {
		at := *d.VerifiedAt
		out.VerifiedAt = &at
	}
	return out
}
