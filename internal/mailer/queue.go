package mailer

import (
	"context"
	"encoding/json"

	"github.com/tasknest/apiserver/internal/mq"
)

// QueueNotifier hands OTP mail to a message broker instead of sending
// it inline. A mailworker process consumes the queue and performs the
// actual SMTP delivery.
type QueueNotifier struct {
	queue *mq.MQ
}

// NewQueueNotifier constructs a broker-backed notifier.
func NewQueueNotifier(queue *mq.MQ) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

// SendOTP publishes the mail as JSON onto the configured queue.
func (n *QueueNotifier) SendOTP(ctx context.Context, mail OTPMail) error {
	data, err := json.Marshal(mail)
	if err != nil {
		return err
	}
	_, err = n.queue.Publish(ctx, data)
	return err
}
