package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTPPurpose identifies the flow an OTP code belongs to.
type OTPPurpose string

const (
	// OTPRegistration verifies a freshly registered email address.
	OTPRegistration OTPPurpose = "REGISTRATION"

	// OTPForgotPassword authorizes a password reset.
	OTPForgotPassword OTPPurpose = "FORGOT_PASSWORD"

	// OTPChangeEmail verifies control of a new email address before
	// it replaces the one on the account.
	OTPChangeEmail OTPPurpose = "CHANGE_EMAIL"
)

// Valid reports whether p is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPRegistration, OTPForgotPassword, OTPChangeEmail:
		return true
	}
	return false
}

// OTP represents a single outstanding verification code for an email
// address. At most one record exists per email (unique index), and records
// expire automatically through a TTL index on CreatedAt.
type OTP struct {
	// ID is the unique identifier of the record.
	ID primitive.ObjectID `json:"-" bson:"_id,omitempty"`

	// Email is the address the code was issued for.
	Email string `json:"email" bson:"email"`

	// Code is the numeric one-time password. Never exposed in responses.
	Code string `json:"-" bson:"otp"`

	// Purpose identifies the flow the code belongs to.
	Purpose OTPPurpose `json:"type" bson:"type"`

	// Dummy marks a placeholder record written for a non-existent account.
	// Dummy records verify as incorrect for any submitted code so that
	// responses never reveal whether an email is registered.
	Dummy bool `json:"-" bson:"is_dummy"`

	// CreatedAt is the issuance time. The resend cooldown and the TTL
	// expiry are both measured from it.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
