package mailer

import (
	"context"
	"log"
	"time"
)

const defaultSendTimeout = 15 * time.Second

// AsyncNotifier decouples mail delivery from the request that triggered
// it. SendOTP returns immediately; the wrapped notifier runs in its own
// goroutine with a fresh timeout context, and failures are only logged.
type AsyncNotifier struct {
	inner   Notifier
	timeout time.Duration
}

// NewAsyncNotifier wraps a notifier for fire-and-forget delivery.
func NewAsyncNotifier(inner Notifier) *AsyncNotifier {
	return &AsyncNotifier{inner: inner, timeout: defaultSendTimeout}
}

// SendOTP dispatches the mail in the background and always returns nil.
func (n *AsyncNotifier) SendOTP(_ context.Context, mail OTPMail) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.inner.SendOTP(ctx, mail); err != nil {
			log.Printf("async mail delivery to %s failed: %v", mail.To, err)
		}
	}()
	return nil
}
