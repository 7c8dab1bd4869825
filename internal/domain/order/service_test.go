package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/memory"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	orders   *order.Service
	ledger   *ledger.Ledger
	payments *payment.Service
	userID   int64
	p1, p2   *product.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	u := &user.User{FirstName: "Ana", LastName: "Lima", Email: "ana@example.com", Roles: []user.Role{{Authority: user.RoleClient}}}
	require.NoError(t, st.Users().Create(ctx, u))

	p1 := &product.Product{Name: "Keyboard", Description: "Mechanical", Brand: "Acme", Price: decimal.RequireFromString("10.00")}
	p2 := &product.Product{Name: "Mouse", Description: "Wireless", Brand: "Acme", Price: decimal.RequireFromString("2.50")}
	require.NoError(t, st.Products().Create(ctx, p1))
	require.NoError(t, st.Products().Create(ctx, p2))

	lg := ledger.New(st, st.Lines(), st.Products(), st.Orders())
	clock := func() time.Time { return now }
	return &fixture{
		store:    st,
		orders:   order.NewService(st, st.Orders(), lg, st.Users(), st.Payments(), order.WithClock(clock)),
		ledger:   lg,
		payments: payment.NewService(st, st.Payments(), st.Orders(), payment.WithClock(clock)),
		userID:   u.ID,
		p1:       p1,
		p2:       p2,
	}
}

func (f *fixture) request(items ...ledger.LineInput) order.Request {
	return order.Request{
		UserID:             f.userID,
		ServiceDescription: "Repair laptop",
		DeliveryDate:       now.AddDate(0, 0, -1),
		Items:              items,
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o, err := f.orders.Create(ctx, f.request(
		ledger.LineInput{ProductID: f.p1.ID, Quantity: 2},
		ledger.LineInput{ProductID: f.p2.ID, Quantity: 3, UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("2.00"))},
	))
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "ana@example.com", o.Owner.Email)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "10.00", o.Items[0].UnitPrice.StringFixed(2), "catalog price snapshot")
	assert.Equal(t, "2.00", o.Items[1].UnitPrice.StringFixed(2), "explicit price kept")
	assert.Equal(t, "26.00", o.Total().StringFixed(2))
	assert.Equal(t, 5, o.TotalQuantity())
	assert.Len(t, o.Products(), 2)
}

func TestService_Create_DuplicateProductsKeptAsSeparateLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o, err := f.orders.Create(ctx, f.request(
		ledger.LineInput{ProductID: f.p1.ID, Quantity: 1},
		ledger.LineInput{ProductID: f.p1.ID, Quantity: 4},
	))
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, 1, o.Items[0].LineNo)
	assert.Equal(t, 2, o.Items[1].LineNo)
	assert.Equal(t, 5, o.TotalQuantity())
	assert.Len(t, o.Products(), 1)
}

func TestService_Create_MissingProductRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orders.Create(ctx, f.request(
		ledger.LineInput{ProductID: f.p1.ID, Quantity: 1},
		ledger.LineInput{ProductID: 999, Quantity: 1},
	))
	require.ErrorIs(t, err, apperr.ErrReferenceNotFound)

	var notFound *ledger.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(999), notFound.ProductID)

	list, err := f.orders.List(ctx, order.ListFilter{}, page.Request{})
	require.NoError(t, err)
	assert.Zero(t, list.Total, "no order row may survive")
}

func TestService_Create_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name   string
		modify func(r *order.Request)
		kind   apperr.Kind
	}{
		{
			name:   "BlankDescription",
			modify: func(r *order.Request) { r.ServiceDescription = "   " },
			kind:   apperr.KindInvalidArgument,
		},
		{
			name:   "UnknownStatus",
			modify: func(r *order.Request) { r.Status = "LOST" },
			kind:   apperr.KindInvalidArgument,
		},
		{
			name:   "FutureDeliveryDate",
			modify: func(r *order.Request) { r.DeliveryDate = now.AddDate(0, 0, 1) },
			kind:   apperr.KindInvalidArgument,
		},
		{
			name: "ZeroQuantity",
			modify: func(r *order.Request) {
				r.Items = []ledger.LineInput{{ProductID: f.p1.ID, Quantity: 0}}
			},
			kind: apperr.KindInvalidArgument,
		},
		{
			name: "MissingProductID",
			modify: func(r *order.Request) {
				r.Items = []ledger.LineInput{{Quantity: 1}}
			},
			kind: apperr.KindInvalidArgument,
		},
		{
			name:   "MissingUserID",
			modify: func(r *order.Request) { r.UserID = 0 },
			kind:   apperr.KindInvalidArgument,
		},
		{
			name:   "UnknownUser",
			modify: func(r *order.Request) { r.UserID = 42 },
			kind:   apperr.KindReferenceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(ledger.LineInput{ProductID: f.p1.ID, Quantity: 1})
			tt.modify(&req)

			_, err := f.orders.Create(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err), err.Error())
		})
	}
}

func TestService_Create_DeliveryDateToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.request()
	req.DeliveryDate = time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	o, err := f.orders.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), o.DeliveryDate)
	assert.Empty(t, o.Items)
	assert.True(t, o.Total().IsZero())
}

func TestService_Update_ReplacesLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.orders.Create(ctx, f.request(ledger.LineInput{ProductID: f.p1.ID, Quantity: 2}))
	require.NoError(t, err)

	req := f.request(ledger.LineInput{ProductID: f.p2.ID, Quantity: 5})
	req.Status = order.StatusShipped
	req.Observation = "left at reception"
	updated, err := f.orders.Update(ctx, created.ID, req)
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	assert.Equal(t, f.p2.ID, updated.Items[0].ProductID)
	assert.Equal(t, 5, updated.Items[0].Quantity)
	assert.Equal(t, order.StatusShipped, updated.Status)
	assert.Equal(t, "left at reception", updated.Observation)
	assert.Equal(t, "12.50", updated.Total().StringFixed(2))

	found, err := f.orders.Find(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, f.p2.ID, found.Items[0].ProductID)
}

func TestService_Update_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orders.Update(ctx, 77, f.request())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_Update_FailureKeepsPreviousLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.orders.Create(ctx, f.request(ledger.LineInput{ProductID: f.p1.ID, Quantity: 2}))
	require.NoError(t, err)

	req := f.request(ledger.LineInput{ProductID: 999, Quantity: 1})
	req.ServiceDescription = "Changed"
	_, err = f.orders.Update(ctx, created.ID, req)
	require.ErrorIs(t, err, apperr.ErrReferenceNotFound)

	found, err := f.orders.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Repair laptop", found.ServiceDescription)
	require.Len(t, found.Items, 1)
	assert.Equal(t, f.p1.ID, found.Items[0].ProductID)
}

func TestService_TotalsStableAcrossReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.orders.Create(ctx, f.request(
		ledger.LineInput{ProductID: f.p1.ID, Quantity: 3},
		ledger.LineInput{ProductID: f.p2.ID, Quantity: 1},
	))
	require.NoError(t, err)

	for range 3 {
		found, err := f.orders.Find(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "32.50", found.Total().StringFixed(2))

		totals, err := f.ledger.ComputeTotals(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, totals.Total.Equal(found.Total()))
		assert.Equal(t, found.TotalQuantity(), totals.Quantity)
	}
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := &user.User{FirstName: "Bo", Email: "bo@example.com"}
	require.NoError(t, f.store.Users().Create(ctx, other))

	for range 3 {
		_, err := f.orders.Create(ctx, f.request(ledger.LineInput{ProductID: f.p2.ID, Quantity: 2}))
		require.NoError(t, err)
	}
	req := f.request()
	req.UserID = other.ID
	_, err := f.orders.Create(ctx, req)
	require.NoError(t, err)

	all, err := f.orders.List(ctx, order.ListFilter{}, page.Request{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, 2, all.TotalPages())

	mine, err := f.orders.List(ctx, order.ListFilter{UserID: &f.userID}, page.Request{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.Total)
	for _, o := range mine.Items {
		assert.Equal(t, f.userID, o.UserID)
		assert.Equal(t, "5.00", o.Total().StringFixed(2), "lines loaded for listed orders")
	}
}

func TestService_Delete_CascadesLinesAndPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o, err := f.orders.Create(ctx, f.request(
		ledger.LineInput{ProductID: f.p1.ID, Quantity: 1},
		ledger.LineInput{ProductID: f.p2.ID, Quantity: 1},
	))
	require.NoError(t, err)
	p, err := f.payments.Create(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, f.orders.Delete(ctx, o.ID))

	_, err = f.orders.Find(ctx, o.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.payments.Find(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	lines, err := f.ledger.Lines(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	// Products stay in the catalog and can now be deleted.
	require.NoError(t, f.store.Products().Delete(ctx, f.p1.ID))
}

func TestService_Delete_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.orders.Delete(context.Background(), 3)
	require.ErrorIs(t, err, order.ErrNotFound)
}
