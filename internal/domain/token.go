package domain

import "time"

// DefaultDeviceName is recorded when the client does not identify itself
const DefaultDeviceName = "Unknown device"

// RefreshToken is the stored record of a refresh token. The plaintext value
// is never stored: VerifyHash is a salted slow hash used to accept the value,
// LookupHash a fast digest used to find the record.
type RefreshToken struct {
	ID              int64     `json:"id" db:"id"`
	AccountPublicID string    `json:"user_id" db:"user_id"`
	VerifyHash      string    `json:"-" db:"verify_hash"`
	LookupHash      string    `json:"-" db:"lookup_hash"`
	DeviceName      *string   `json:"device_name" db:"device_name"`
	UserAgent       *string   `json:"user_agent" db:"user_agent"`
	IPAddress       *string   `json:"ip_address" db:"ip_address"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at"`
	Revoked         bool      `json:"revoked" db:"revoked"`
}

// OneTimeToken is a single-use token row (email verification or password
// reset). At most one row exists per account.
type OneTimeToken struct {
	AccountID int64     `db:"user_id"`
	Email     string    `db:"email"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
}

// DeviceMeta describes the client a session was started from
type DeviceMeta struct {
	Name      string
	UserAgent string
	IPAddress string
}
