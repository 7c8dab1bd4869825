//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/recovery"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "hdc",
				"POSTGRES_PASSWORD": "hdc",
				"POSTGRES_DB":       "hdc",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://hdc:hdc@%s:%s/hdc?sslmode=disable", host, port.Port())
	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	// Twice: the schema must be idempotent.
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate again: %v", err)
	}

	return m.Run()
}

type stack struct {
	db       *postgres.DB
	users    *postgres.UserRepository
	products *postgres.ProductRepository
	orders   *order.Service
	ledger   *ledger.Ledger
	payments *payment.Service
	tokens   *postgres.TokenRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE users, products, orders, order_items, payments,
		password_recover_tokens, api_keys RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	db := postgres.NewDB(pool, 10*time.Second)
	s := &stack{
		db:       db,
		users:    postgres.NewUserRepository(db),
		products: postgres.NewProductRepository(db),
		tokens:   postgres.NewTokenRepository(db),
	}
	orders := postgres.NewOrderRepository(db)
	payments := postgres.NewPaymentRepository(db)
	s.ledger = ledger.New(db, postgres.NewLineRepository(db), s.products, orders)
	s.orders = order.NewService(db, orders, s.ledger, s.users, payments)
	s.payments = payment.NewService(db, payments, orders)
	return s
}

func (s *stack) seed(t *testing.T) (int64, []product.Product) {
	t.Helper()
	ctx := context.Background()

	u := &user.User{FirstName: "Ana", Email: "ana@example.com", Roles: []user.Role{{Authority: user.RoleClient}}}
	require.NoError(t, s.users.Create(ctx, u))
	require.Len(t, u.Roles, 1)

	var out []product.Product
	for _, p := range []product.Product{
		{Name: "Keyboard", Description: "Mechanical", Brand: "Acme", Price: decimal.RequireFromString("10.00")},
		{Name: "Mouse", Description: "Wireless", Brand: "Acme", Price: decimal.RequireFromString("2.50")},
	} {
		require.NoError(t, s.products.Create(ctx, &p))
		out = append(out, p)
	}
	return u.ID, out
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	userID, products := s.seed(t)

	created, err := s.orders.Create(ctx, order.Request{
		UserID:             userID,
		ServiceDescription: "Repair laptop",
		Items: []ledger.LineInput{
			{ProductID: products[0].ID, Quantity: 2},
			{ProductID: products[0].ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, created.Items, 2)
	assert.Equal(t, "30.00", created.Total().StringFixed(2))
	assert.Equal(t, "ana@example.com", created.Owner.Email)

	updated, err := s.orders.Update(ctx, created.ID, order.Request{
		UserID:             userID,
		ServiceDescription: "Repair laptop",
		Status:             order.StatusReady,
		Items:              []ledger.LineInput{{ProductID: products[1].ID, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, products[1].ID, updated.Items[0].ProductID)
	assert.Equal(t, "12.50", updated.Total().StringFixed(2))

	list, err := s.orders.List(ctx, order.ListFilter{UserID: &userID}, page.Request{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 5, list.Items[0].TotalQuantity())

	p, err := s.payments.Create(ctx, created.ID)
	require.NoError(t, err)
	_, err = s.payments.Advance(ctx, p.ID, payment.StatusPaid)
	require.NoError(t, err)

	err = s.products.Delete(ctx, products[1].ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, s.orders.Delete(ctx, created.ID))
	_, err = s.orders.Find(ctx, created.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.payments.Find(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOrderCreate_MissingProductRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	userID, products := s.seed(t)

	_, err := s.orders.Create(ctx, order.Request{
		UserID:             userID,
		ServiceDescription: "Repair laptop",
		Items: []ledger.LineInput{
			{ProductID: products[0].ID, Quantity: 1},
			{ProductID: 999, Quantity: 1},
		},
	})
	require.ErrorIs(t, err, apperr.ErrReferenceNotFound)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n))
	assert.Zero(t, n)
}

func TestLedgerAddItem_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	userID, products := s.seed(t)

	o, err := s.orders.Create(ctx, order.Request{
		UserID:             userID,
		ServiceDescription: "Screen",
		Items:              []ledger.LineInput{{ProductID: products[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)

	const workers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers+1)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.ledger.AddItem(ctx, o.ID, ledger.LineInput{ProductID: products[1].ID, Quantity: 1})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[workers] = s.ledger.AddItem(ctx, o.ID, ledger.LineInput{
			ProductID: products[0].ID,
			Quantity:  1,
			UnitPrice: decimal.NewNullDecimal(decimal.Zero),
		})
	}()
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	lines, err := s.ledger.Lines(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, lines, workers+2)
	for i, l := range lines {
		assert.Equal(t, i+1, l.LineNo)
	}

	totals, err := s.ledger.ComputeTotals(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", totals.Total.StringFixed(2), "one catalog keyboard, one free, eight mice")
}

func TestPaymentCreate_Race(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	userID, _ := s.seed(t)

	o, err := s.orders.Create(ctx, order.Request{UserID: userID, ServiceDescription: "Screen"})
	require.NoError(t, err)

	const workers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.payments.Create(ctx, o.ID)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestUserManagement(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	userID, _ := s.seed(t)
	svc := user.NewService(s.db, s.users, user.NewBcryptHasher(4))

	staff, err := svc.Create(ctx, user.Input{
		FirstName: "Bia",
		Email:     "bia@example.com",
		Password:  "correct horse",
		Roles:     []string{user.RoleOperator},
	})
	require.NoError(t, err)
	require.Len(t, staff.Roles, 1)
	assert.Equal(t, user.RoleOperator, staff.Roles[0].Authority)

	_, err = svc.Create(ctx, user.Input{FirstName: "Dup", Email: "BIA@example.com", Password: "correct horse"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	updated, err := svc.Update(ctx, staff.ID, user.Input{
		FirstName: "Bia",
		LastName:  "Souza",
		Email:     "bia@example.com",
		Roles:     []string{user.RoleAdmin, user.RoleClient},
	})
	require.NoError(t, err)
	assert.Equal(t, "Souza", updated.LastName)
	require.Len(t, updated.Roles, 2)
	assert.Equal(t, user.RoleAdmin, updated.Roles[0].Authority)
	assert.NotEmpty(t, updated.PasswordHash)

	list, err := svc.List(ctx, page.Request{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Items, 2)
	assert.Len(t, list.Items[0].Roles, 1)
	assert.Len(t, list.Items[1].Roles, 2)

	_, err = s.orders.Create(ctx, order.Request{UserID: userID, ServiceDescription: "Screen"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, userID), apperr.ErrConflict)

	require.NoError(t, svc.Delete(ctx, staff.ID))
	_, err = svc.Find(ctx, staff.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecoveryTokens(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	s.seed(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	tok := &recovery.Token{Email: "ana@example.com", Token: "tok-1", Expiration: now.Add(time.Minute)}
	require.NoError(t, s.tokens.Create(ctx, tok))

	_, err := s.tokens.FindValid(ctx, "tok-1", now.Add(2*time.Minute))
	require.ErrorIs(t, err, recovery.ErrInvalidToken)

	err = s.db.InTx(ctx, func(ctx context.Context) error {
		found, err := s.tokens.FindValid(ctx, "tok-1", now)
		if err != nil {
			return err
		}
		return s.tokens.MarkConsumed(ctx, found.ID, now)
	})
	require.NoError(t, err)

	_, err = s.tokens.FindValid(ctx, "tok-1", now)
	require.ErrorIs(t, err, recovery.ErrInvalidToken)
}
