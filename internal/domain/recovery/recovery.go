// Package recovery implements password reset through short-lived, single-use
// tokens delivered by a notification collaborator.
package recovery

import (
	"context"
	"time"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
)

// MinPasswordLength is the shortest accepted new password.
const MinPasswordLength = 8

// ErrInvalidToken is returned for unknown, expired or already consumed tokens.
var ErrInvalidToken = &apperr.Error{Kind: apperr.KindInvalidToken, Msg: "invalid or expired token"}

// Token is a password recovery token issued for an email.
type Token struct {
	ID         int64
	Email      string
	Token      string
	Expiration time.Time
	// ConsumedAt is set once the token has been redeemed.
	ConsumedAt *time.Time
}

// Usable reports whether t may still be redeemed at now.
func (t *Token) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.Expiration)
}

// Repository persists recovery tokens.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	// FindValid returns the unconsumed token with value token whose
	// expiration is after now, locking it for the rest of the transaction.
	// It returns ErrInvalidToken when there is none.
	FindValid(ctx context.Context, token string, now time.Time) (*Token, error)
	MarkConsumed(ctx context.Context, id int64, at time.Time) error
}

// Notifier delivers a message to an address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}
