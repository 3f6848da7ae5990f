package mailer

import (
	"context"
	"log"
)

// LogNotifier writes OTP mail to the process log instead of sending it.
// Intended for development without an SMTP server.
type LogNotifier struct{}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// SendOTP logs the mail subject.
func (n *LogNotifier) SendOTP(_ context.Context, mail OTPMail) error {
	log.Printf("mail to %s: %s", mail.To, mail.Subject())
	return nil
}
