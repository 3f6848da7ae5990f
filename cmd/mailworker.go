/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/tasknest/apiserver/config"
	"github.com/tasknest/apiserver/internal/mailer"
	"github.com/tasknest/apiserver/internal/mq"
)

// mailworkerCmd represents the mailworker command
var mailworkerCmd = &cobra.Command{
	Use:   "mailworker",
	Short: "Consume queued OTP mail and deliver it over SMTP",
	Long: `Consume queued OTP mail and deliver it over SMTP. Runs until
interrupted. Pair it with MAIL_BACKEND=queue on the server so codes are
published to the broker instead of sent inline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		var (
			backend mq.Backend
			err     error
		)
		switch cfg.MQ.Backend {
		case "rabbitmq":
			backend, err = mq.NewRabbitMQClient(cfg.MQ.RabbitMQ, cfg.Mail.Queue)
		case "pubsub":
			backend, err = mq.NewPubSubClient(cmd.Context(), cfg.MQ.PubSub, cfg.Mail.Queue)
		default:
			return fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
		}
		if err != nil {
			return fmt.Errorf("connect to broker failed: %w", err)
		}

		queue := mq.New(backend)
		defer func() {
			_ = queue.Close()
		}()

		notifier := mailer.NewSMTPNotifier(cfg.Mail)

		log.Printf("mailworker consuming queue %s", cfg.Mail.Queue)
		return queue.Subscribe(cmd.Context(), func(ctx context.Context, msg mq.Message) error {
			var mail mailer.OTPMail
			if err := json.Unmarshal(msg.Data, &mail); err != nil {
				log.Printf("dropping malformed mail message %s: %v", msg.ID, err)
				return nil
			}
			if err := notifier.SendOTP(ctx, mail); err != nil {
				return fmt.Errorf("send mail to %s: %w", mail.To, err)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mailworkerCmd)
}
