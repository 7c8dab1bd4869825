package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/recovery"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/memory"
)

type sentMessage struct {
	to, subject, body string
}

type mockNotifier struct {
	sent []sentMessage
	err  error
}

func (m *mockNotifier) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

type testEnv struct {
	svc      *recovery.Service
	users    *memory.UserRepository
	notifier *mockNotifier
	hasher   user.Hasher
	clock    *time.Time
	userID   int64
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	u := &user.User{FirstName: "Ana", Email: "ana@example.com", PasswordHash: "old"}
	require.NoError(t, st.Users().Create(context.Background(), u))

	clock := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		users:    st.Users(),
		notifier: &mockNotifier{},
		hasher:   user.NewBcryptHasher(4),
		clock:    &clock,
		userID:   u.ID,
	}
	env.svc = recovery.NewService(st, st.Tokens(), st.Users(), env.hasher, env.notifier,
		recovery.Config{URI: "https://app.example.com/recover/", Subject: "Password recovery"},
		recovery.WithClock(func() time.Time { return *env.clock }),
		recovery.WithTokenSource(func() string { return "3f1c2b9e-token" }),
	)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func TestService_RequestAndRedeem(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	require.NoError(t, env.svc.RequestRecovery(ctx, "ana@example.com", 30*time.Minute))
	require.Len(t, env.notifier.sent, 1)
	msg := env.notifier.sent[0]
	assert.Equal(t, "ana@example.com", msg.to)
	assert.Equal(t, "Password recovery", msg.subject)
	assert.Equal(t, "https://app.example.com/recover/3f1c2b9e-token", msg.body)

	env.advance(time.Minute)
	require.NoError(t, env.svc.RedeemRecovery(ctx, "3f1c2b9e-token", "s3cret-pass"))

	u, err := env.users.GetByID(ctx, env.userID)
	require.NoError(t, err)
	assert.True(t, env.hasher.Verify(u.PasswordHash, "s3cret-pass"))

	// Tokens are single-use.
	err = env.svc.RedeemRecovery(ctx, "3f1c2b9e-token", "another-pass")
	require.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestService_RedeemExpired(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	require.NoError(t, env.svc.RequestRecovery(ctx, "ana@example.com", 0))
	env.advance(time.Second)

	err := env.svc.RedeemRecovery(ctx, "3f1c2b9e-token", "s3cret-pass")
	require.ErrorIs(t, err, apperr.ErrInvalidToken)

	u, err := env.users.GetByID(ctx, env.userID)
	require.NoError(t, err)
	assert.Equal(t, "old", u.PasswordHash)
}

func TestService_RedeemUnknownToken(t *testing.T) {
	env := newEnv(t)
	err := env.svc.RedeemRecovery(context.Background(), "nope", "s3cret-pass")
	require.ErrorIs(t, err, recovery.ErrInvalidToken)
}

func TestService_RedeemShortPassword(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	require.NoError(t, env.svc.RequestRecovery(ctx, "ana@example.com", time.Hour))

	err := env.svc.RedeemRecovery(ctx, "3f1c2b9e-token", "short")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	// A rejected password leaves the token usable.
	require.NoError(t, env.svc.RedeemRecovery(ctx, "3f1c2b9e-token", "long-enough"))
}

func TestService_RequestRecovery_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		lifetime time.Duration
		sendErr  error
		kind     apperr.Kind
	}{
		{name: "MalformedEmail", email: "not-an-email", lifetime: time.Hour, kind: apperr.KindInvalidArgument},
		{name: "NegativeLifetime", email: "ana@example.com", lifetime: -time.Second, kind: apperr.KindInvalidArgument},
		{name: "UnknownEmail", email: "bo@example.com", lifetime: time.Hour, kind: apperr.KindNotFound},
		{name: "NotifierDown", email: "ana@example.com", lifetime: time.Hour, sendErr: errors.New("broker closed"), kind: apperr.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			env.notifier.err = tt.sendErr

			err := env.svc.RequestRecovery(ctx, tt.email, tt.lifetime)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Empty(t, env.notifier.sent)
		})
	}
}
