package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account in the system.
// It contains identity, verification state, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Name is the user's display name.
	Name string `json:"name" bson:"name"`

	// Email is the user's email address. It is unique across all users
	// and doubles as the login identifier.
	Email string `json:"email" bson:"email"`

	// Avatar is the URL of the user's avatar image in object storage.
	Avatar string `json:"avatar,omitempty" bson:"avatar,omitempty"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	// Validated reports whether the user has confirmed control of their
	// email address via OTP. Login is refused until it is true.
	Validated bool `json:"validated" bson:"is_validated"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
