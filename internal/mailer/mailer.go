package mailer

import (
	"context"
	"fmt"

	"github.com/tasknest/apiserver/types"
)

// OTPMail describes a verification code to be delivered to a user.
type OTPMail struct {
	// To is the recipient address.
	To string `json:"to"`

	// Name is the recipient's display name, used in the registration
	// greeting. May be empty for the other purposes.
	Name string `json:"name,omitempty"`

	// Code is the one-time password to deliver.
	Code string `json:"code"`

	// Purpose selects the subject and body template.
	Purpose types.OTPPurpose `json:"purpose"`
}

// Notifier delivers OTP mail. Callers treat delivery as fire-and-forget;
// a returned error is logged, never surfaced to the client.
type Notifier interface {
	SendOTP(ctx context.Context, mail OTPMail) error
}

// Subject renders the subject line for the mail's purpose.
func (m OTPMail) Subject() string {
	switch m.Purpose {
	case types.OTPRegistration:
		return fmt.Sprintf("Welcome, %s! Here's your OTP: %s", m.Name, m.Code)
	case types.OTPForgotPassword:
		return fmt.Sprintf("Forgot Password OTP: %s", m.Code)
	case types.OTPChangeEmail:
		return fmt.Sprintf("Change Email OTP: %s", m.Code)
	}
	return fmt.Sprintf("Your OTP: %s", m.Code)
}

// Body renders the plain-text body for the mail's purpose.
func (m OTPMail) Body() string {
	return m.Subject()
}

// HTMLBody renders the HTML body for the mail's purpose.
func (m OTPMail) HTMLBody() string {
	return "<b>" + m.Subject() + "</b>"
}
