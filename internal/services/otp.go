package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/tasknest/apiserver/internal/mailer"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const otpDigits = 6

// ErrOTPIncorrect is returned when the submitted code does not match the
// outstanding record, or when the record is a dummy. Both cases read the
// same to the client so responses never reveal whether an email exists.
var ErrOTPIncorrect = errors.New("OTP is incorrect")

// ErrNoOutstandingOTP is returned when no record exists for the email.
var ErrNoOutstandingOTP = errors.New("no outstanding OTP")

// ErrAlreadyValidated is returned when a registration code is requested
// for an account that has already been verified.
var ErrAlreadyValidated = errors.New("email already validated")

// CooldownError is returned when a code was issued too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("OTP already sent, wait %ds", int(e.Remaining.Seconds()))
}

// OTPRepository defines persistence operations for OTP records.
type OTPRepository interface {
	GetByEmail(ctx context.Context, email string) (types.OTP, error)
	GetByEmailAndPurpose(ctx context.Context, email string, purpose types.OTPPurpose) (types.OTP, error)
	Create(ctx context.Context, otp types.OTP) (types.OTP, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// OTPService implements OTP issuance, resend throttling, and
// verification. At most one record is outstanding per email; the store's
// unique index backs that invariant when two issue calls race.
type OTPService struct {
	otps     OTPRepository
	users    UserRepository
	notifier mailer.Notifier
	cooldown time.Duration
	now      func() time.Time
}

func NewOTPService(otps OTPRepository, users UserRepository, notifier mailer.Notifier, cooldown time.Duration) *OTPService {
	return &OTPService{
		otps:     otps,
		users:    users,
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Cooldown returns the configured resend cooldown.
func (s *OTPService) Cooldown() time.Duration {
	return s.cooldown
}

// Outstanding returns the single outstanding record for an email,
// regardless of purpose. store.ErrNotFound when none exists.
func (s *OTPService) Outstanding(ctx context.Context, email string) (types.OTP, error) {
	return s.otps.GetByEmail(ctx, email)
}

// CheckCooldown returns a CooldownError when the record was created
// inside the cooldown window, nil otherwise.
func (s *OTPService) CheckCooldown(otp types.OTP) *CooldownError {
	elapsed := s.now().Sub(otp.CreatedAt)
	if elapsed < s.cooldown {
		return &CooldownError{Remaining: s.cooldown - elapsed}
	}
	return nil
}

// Supersede removes an outstanding record so a fresh one can be issued.
func (s *OTPService) Supersede(ctx context.Context, otp types.OTP) error {
	err := s.otps.Delete(ctx, otp.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Already expired underneath us. Fine.
		return nil
	}
	return err
}

// Issue creates a fresh code for the email and dispatches it. When
// dummy is set, a placeholder record is written and no mail is sent;
// the caller's response must be indistinguishable from the real case.
//
// Callers check the cooldown on any existing record first. Should two
// issue calls race, the unique index rejects the loser and the miss is
// reported as a full-cooldown rejection.
func (s *OTPService) Issue(ctx context.Context, email, name string, purpose types.OTPPurpose, dummy bool) (types.OTP, error) {
	code, err := newCode()
	if err != nil {
		return types.OTP{}, err
	}

	otp, err := s.otps.Create(ctx, types.OTP{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		Dummy:     dummy,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.OTP{}, &CooldownError{Remaining: s.cooldown}
		}
		return types.OTP{}, err
	}

	if !dummy {
		if err := s.notifier.SendOTP(ctx, mailer.OTPMail{
			To:      email,
			Name:    name,
			Code:    code,
			Purpose: purpose,
		}); err != nil {
			log.Printf("otp mail dispatch failed for %s: %v", email, err)
		}
	}
	return otp, nil
}

// Verify consumes the outstanding record for (email, purpose) when the
// submitted code matches. Dummy records and mismatches both fail with
// ErrOTPIncorrect; a missing record fails with ErrNoOutstandingOTP.
func (s *OTPService) Verify(ctx context.Context, email string, purpose types.OTPPurpose, code string) (types.OTP, error) {
	otp, err := s.otps.GetByEmailAndPurpose(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.OTP{}, ErrNoOutstandingOTP
		}
		return types.OTP{}, err
	}

	if otp.Dummy {
		log.Printf("dummy OTP verification attempt for %s (%s), possible enumeration probe", email, purpose)
		return types.OTP{}, ErrOTPIncorrect
	}
	if otp.Code != code {
		return types.OTP{}, ErrOTPIncorrect
	}

	if err := s.otps.Delete(ctx, otp.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.OTP{}, err
	}
	return otp, nil
}

// Resend supersedes the outstanding record for the email with a fresh
// code, subject to the cooldown. A dummy record is re-dummied without
// touching the mail transport. A registration resend for a validated
// account is rejected.
func (s *OTPService) Resend(ctx context.Context, email string) error {
	otp, err := s.otps.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoOutstandingOTP
		}
		return err
	}

	if cooldownErr := s.CheckCooldown(otp); cooldownErr != nil {
		return cooldownErr
	}
	if err := s.Supersede(ctx, otp); err != nil {
		return err
	}

	if otp.Dummy {
		_, err := s.Issue(ctx, email, "", types.OTPForgotPassword, true)
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if otp.Purpose != types.OTPChangeEmail {
				return ErrNoOutstandingOTP
			}
			user = types.User{}
		} else {
			return err
		}
	}

	if otp.Purpose == types.OTPRegistration && user.Validated {
		return ErrAlreadyValidated
	}

	_, err = s.Issue(ctx, email, user.Name, otp.Purpose, false)
	return err
}

func newCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
