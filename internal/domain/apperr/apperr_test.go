package apperr

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetMissing struct{ id int64 }

func (e *widgetMissing) Error() string { return fmt.Sprintf("widget %d missing", e.id) }
func (e *widgetMissing) Kind() Kind { return KindReferenceNotFound }
func (e *widgetMissing) Is(target error) bool { return Matches(KindReferenceNotFound, target) }

func TestError_IsMatchesSentinelOfSameKind(t *testing.T) {
	err := New(KindNotFound, "order %d not found", 5)

	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, "order 5 not found", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
		{name: "sentinel", err: ErrConflict, want: KindConflict},
		{name: "wrapped", err: errors.Wrap(ErrUnavailable, "query"), want: KindUnavailable},
		{name: "typed", err: fmt.Errorf("create: %w", &widgetMissing{id: 3}), want: KindReferenceNotFound},
		{name: "wrap with cause", err: Wrap(KindInvalidToken, errors.New("no rows"), "token"), want: KindInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestTypedErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &widgetMissing{id: 9})

	assert.ErrorIs(t, err, ErrReferenceNotFound)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(KindConflict, nil, "ignored"))

	cause := errors.New("duplicate key")
	err := Wrap(KindConflict, cause, "create payment")
	assert.Equal(t, "create payment: duplicate key", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(Wrap(KindUnavailable, cause, "dial")))
	assert.False(t, Retryable(err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "reference_not_found", KindReferenceNotFound.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
