package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/memory"
)

type env struct {
	ledger  *ledger.Ledger
	store   *memory.Store
	orderID int64
	product *product.Product
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	u := &user.User{FirstName: "Ana", Email: "ana@example.com"}
	require.NoError(t, st.Users().Create(ctx, u))
	o := &order.Order{ServiceDescription: "Battery swap", Status: order.StatusPending, UserID: u.ID}
	require.NoError(t, st.Orders().Create(ctx, o))
	p := &product.Product{Name: "Battery", Description: "4000mAh", Brand: "Acme", Price: decimal.RequireFromString("19.90")}
	require.NoError(t, st.Products().Create(ctx, p))

	return &env{
		ledger:  ledger.New(st, st.Lines(), st.Products(), st.Orders()),
		store:   st,
		orderID: o.ID,
		product: p,
	}
}

func TestLedger_AddItem(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	first, err := e.ledger.AddItem(ctx, e.orderID, ledger.LineInput{ProductID: e.product.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, first.LineNo)
	assert.Equal(t, "19.90", first.UnitPrice.StringFixed(2))

	second, err := e.ledger.AddItem(ctx, e.orderID, ledger.LineInput{
		ProductID: e.product.ID,
		Quantity:  1,
		UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("15.00")),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.LineNo)

	totals, err := e.ledger.ComputeTotals(ctx, e.orderID)
	require.NoError(t, err)
	assert.Equal(t, "54.80", totals.Total.StringFixed(2))
	assert.Equal(t, 3, totals.Quantity)
}

func TestLedger_AddItem_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	tests := []struct {
		name    string
		orderID int64
		in      ledger.LineInput
		target  error
	}{
		{name: "ZeroQuantity", orderID: e.orderID, in: ledger.LineInput{ProductID: e.product.ID}, target: apperr.ErrInvalidArgument},
		{name: "UnknownOrder", orderID: 404, in: ledger.LineInput{ProductID: e.product.ID, Quantity: 1}, target: apperr.ErrReferenceNotFound},
		{name: "UnknownProduct", orderID: e.orderID, in: ledger.LineInput{ProductID: 999, Quantity: 1}, target: apperr.ErrReferenceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ledger.AddItem(ctx, tt.orderID, tt.in)
			require.ErrorIs(t, err, tt.target)
		})
	}

	lines, err := e.ledger.Lines(ctx, e.orderID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLedger_ReplaceItems(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.ledger.ReplaceItems(ctx, e.orderID, []ledger.LineInput{
		{ProductID: e.product.ID, Quantity: 1},
		{ProductID: e.product.ID, Quantity: 1},
	})
	require.NoError(t, err)

	replaced, err := e.ledger.ReplaceItems(ctx, e.orderID, []ledger.LineInput{{ProductID: e.product.ID, Quantity: 7}})
	require.NoError(t, err)
	require.Len(t, replaced, 1)

	lines, err := e.ledger.Lines(ctx, e.orderID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 7, lines[0].Quantity)
	assert.Equal(t, "Battery", lines[0].Product.Name)

	_, err = e.ledger.ReplaceItems(ctx, e.orderID, []ledger.LineInput{{ProductID: 999, Quantity: 1}})
	require.ErrorIs(t, err, apperr.ErrReferenceNotFound)

	lines, err = e.ledger.Lines(ctx, e.orderID)
	require.NoError(t, err)
	require.Len(t, lines, 1, "failed replacement keeps the previous lines")
}

func TestLedger_SnapshotSurvivesPriceChange(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.ledger.AddItem(ctx, e.orderID, ledger.LineInput{ProductID: e.product.ID, Quantity: 1})
	require.NoError(t, err)

	changed := *e.product
	changed.Price = decimal.RequireFromString("25.00")
	require.NoError(t, e.store.Products().Update(ctx, &changed))

	totals, err := e.ledger.ComputeTotals(ctx, e.orderID)
	require.NoError(t, err)
	assert.Equal(t, "19.90", totals.Total.StringFixed(2))
}

func TestLedger_ComputeTotals_OrderNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.ledger.ComputeTotals(context.Background(), 404)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLedger_AddItem_FreeLine(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	line, err := e.ledger.AddItem(ctx, e.orderID, ledger.LineInput{
		ProductID: e.product.ID,
		Quantity:  1,
		UnitPrice: decimal.NewNullDecimal(decimal.Zero),
	})
	require.NoError(t, err)
	assert.True(t, line.UnitPrice.IsZero(), "explicit zero is kept, got %s", line.UnitPrice)

	totals, err := e.ledger.ComputeTotals(ctx, e.orderID)
	require.NoError(t, err)
	assert.True(t, totals.Total.IsZero())
	assert.Equal(t, 1, totals.Quantity)
}

// lockRecorder counts the order locks taken by the ledger.
type lockRecorder struct {
	ledger.OrderChecker
	mu    sync.Mutex
	locks []int64
}

func (r *lockRecorder) Lock(ctx context.Context, id int64) error {
	r.mu.Lock()
	r.locks = append(r.locks, id)
	r.mu.Unlock()
	return r.OrderChecker.Lock(ctx, id)
}

func TestLedger_WritesLockOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	rec := &lockRecorder{OrderChecker: e.store.Orders()}
	lg := ledger.New(e.store, e.store.Lines(), e.store.Products(), rec)

	_, err := lg.AddItem(ctx, e.orderID, ledger.LineInput{ProductID: e.product.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = lg.ReplaceItems(ctx, e.orderID, []ledger.LineInput{{ProductID: e.product.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{e.orderID, e.orderID}, rec.locks)

	_, err = lg.AddItem(ctx, 404, ledger.LineInput{ProductID: e.product.ID, Quantity: 1})
	var notFound *ledger.OrderNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(404), notFound.OrderID)
}

func TestLedger_AddItem_Concurrent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.ledger.AddItem(ctx, e.orderID, ledger.LineInput{ProductID: e.product.ID, Quantity: 1})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	lines, err := e.ledger.Lines(ctx, e.orderID)
	require.NoError(t, err)
	require.Len(t, lines, n)
	for i, l := range lines {
		assert.Equal(t, i+1, l.LineNo)
	}
}
