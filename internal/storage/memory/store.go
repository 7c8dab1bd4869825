// Package memory is a process-local implementation of every domain
// repository. Transactions are serialized behind one mutex; a failed
// transaction restores the state captured when it began.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/recovery"
	"github.com/xenking/hdcontrol/internal/domain/store"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

var _ store.Transactor = (*Store)(nil)

type state struct {
	seq      map[string]int64
	roles    []user.Role
	users    map[int64]user.User
	products map[int64]product.Product
	orders   map[int64]order.Order
	lines    map[int64][]ledger.Line
	payments map[int64]payment.Payment
	tokens   map[int64]recovery.Token
	apiKeys  map[string]auth.APIKeyInfo
}

func newState() *state {
	return &state{
		seq: map[string]int64{},
		roles: []user.Role{
			{ID: 1, Authority: user.RoleAdmin},
			{ID: 2, Authority: user.RoleOperator},
			{ID: 3, Authority: user.RoleClient},
		},
		users:    map[int64]user.User{},
		products: map[int64]product.Product{},
		orders:   map[int64]order.Order{},
		lines:    map[int64][]ledger.Line{},
		payments: map[int64]payment.Payment{},
		tokens:   map[int64]recovery.Token{},
		apiKeys:  map[string]auth.APIKeyInfo{},
	}
}

func (s *state) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

func (s *state) clone() *state {
	c := &state{
		seq:      maps.Clone(s.seq),
		roles:    append([]user.Role(nil), s.roles...),
		users:    make(map[int64]user.User, len(s.users)),
		products: maps.Clone(s.products),
		orders:   maps.Clone(s.orders),
		lines:    make(map[int64][]ledger.Line, len(s.lines)),
		payments: maps.Clone(s.payments),
		tokens:   make(map[int64]recovery.Token, len(s.tokens)),
		apiKeys:  maps.Clone(s.apiKeys),
	}
	for id, u := range s.users {
		u.Roles = append([]user.Role(nil), u.Roles...)
		c.users[id] = u
	}
	for id, ls := range s.lines {
		c.lines[id] = append([]ledger.Line(nil), ls...)
	}
	for id, t := range s.tokens {
		if t.ConsumedAt != nil {
			at := *t.ConsumedAt
			t.ConsumedAt = &at
		}
		c.tokens[id] = t
	}
	return c
}

type txKey struct{}

// Store holds all data in memory.
type Store struct {
	mu   sync.Mutex
	data *state
}

// New returns an empty store with the standard roles seeded.
func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn against the state, taking the lock unless ctx already holds it.
func (s *Store) do(ctx context.Context, fn func(*state) error) error {
	if s.inTx(ctx) {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// InReadTx is InTx; a serialized transaction is also a consistent snapshot.
func (s *Store) InReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.InTx(ctx, fn)
}

// Products returns the catalog repository.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Lines returns the order line repository.
func (s *Store) Lines() *LineRepository { return &LineRepository{s: s} }

// Payments returns the payment repository.
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

// Tokens returns the recovery token repository.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }

// now is the store's clock for row timestamps.
var now = func() time.Time { return time.Now().UTC() }
