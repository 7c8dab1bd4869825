package recovery

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/store"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/domain/validate"
)

// Config holds the message settings of the recovery flow.
type Config struct {
	// URI is the front-end address the token is appended to.
	URI     string
	Subject string
}

// Service implements the password recovery flow.
type Service struct {
	tx       store.Transactor
	tokens   Repository
	users    user.Repository
	hasher   user.Hasher
	notifier Notifier
	cfg      Config
	now      func() time.Time
	newToken func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenSource overrides the random token generator.
func WithTokenSource(fn func() string) Option {
	return func(s *Service) { s.newToken = fn }
}

// NewService creates a recovery Service.
func NewService(
	tx store.Transactor,
	tokens Repository,
	users user.Repository,
	hasher user.Hasher,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		tx:       tx,
		tokens:   tokens,
		users:    users,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		newToken: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type recoverRequest struct {
	Email string `validate:"required,email"`
}

type redeemRequest struct {
	Token    string `validate:"notblank"`
	Password string `validate:"required,min=8"`
}

// RequestRecovery issues a token for the account with email and sends it
// through the notifier. The token row is committed before the message goes
// out; a delivery failure leaves an unused token behind.
func (s *Service) RequestRecovery(ctx context.Context, email string, lifetime time.Duration) error {
	email = strings.TrimSpace(email)
	if err := validate.Struct(recoverRequest{Email: email}); err != nil {
		return err
	}
	if lifetime < 0 {
		return apperr.New(apperr.KindInvalidArgument, "token lifetime must not be negative")
	}

	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		return errors.Wrap(err, "get user")
	}

	t := &Token{
		Email:      email,
		Token:      s.newToken(),
		Expiration: s.now().UTC().Add(lifetime),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return errors.Wrap(err, "create token")
	}

	body := strings.TrimRight(s.cfg.URI, "/") + "/" + t.Token
	if err := s.notifier.Send(ctx, email, s.cfg.Subject, body); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "send recovery message")
	}

	zctx.From(ctx).Info("Recovery token issued",
		zap.Int64("token_id", t.ID),
		zap.Time("expiration", t.Expiration),
	)
	return nil
}

// RedeemRecovery sets a new password for the token's account and consumes
// the token.
func (s *Service) RedeemRecovery(ctx context.Context, token, password string) error {
	if err := validate.Struct(redeemRequest{Token: token, Password: password}); err != nil {
		return err
	}

	var userID int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		t, err := s.tokens.FindValid(ctx, token, now)
		if err != nil {
			return err
		}
		// The row matched at query time; check again against our own clock.
		if !t.Usable(now) {
			return ErrInvalidToken
		}

		u, err := s.users.GetByEmail(ctx, t.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return ErrInvalidToken
			}
			return errors.Wrap(err, "get user")
		}

		hash, err := s.hasher.Hash(password)
		if err != nil {
			return errors.Wrap(err, "hash password")
		}
		if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
			return errors.Wrap(err, "update password")
		}
		if err := s.tokens.MarkConsumed(ctx, t.ID, now); err != nil {
			return errors.Wrap(err, "consume token")
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return err
	}

	zctx.From(ctx).Info("Password reset", zap.Int64("user_id", userID))
	return nil
}
