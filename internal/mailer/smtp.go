package mailer

import (
	"context"
	"fmt"

	"github.com/tasknest/apiserver/config"
	gomail "gopkg.in/gomail.v2"
)

// SMTPNotifier delivers OTP mail directly over SMTP.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPNotifier constructs an SMTP-backed notifier from config.
func NewSMTPNotifier(cfg config.MailConfig) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password),
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
	}
}

// SendOTP sends the mail through the configured SMTP server.
func (n *SMTPNotifier) SendOTP(_ context.Context, mail OTPMail) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", mail.Subject())
	msg.SetBody("text/plain", mail.Body())
	msg.AddAlternative("text/html", mail.HTMLBody())

	return n.dialer.DialAndSend(msg)
}
