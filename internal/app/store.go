package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/recovery"
	"github.com/xenking/hdcontrol/internal/domain/store"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/memory"
	"github.com/xenking/hdcontrol/internal/storage/postgres"
	"github.com/xenking/hdcontrol/pkg/health"
)

// Catalog is the product repository plus the bulk importer's upsert.
type Catalog interface {
	product.Repository
	// Upsert inserts p or updates the product with the same name and brand.
	// It reports whether a row was inserted.
	Upsert(ctx context.Context, p *product.Product) (bool, error)
}

// OrderStore persists orders and answers payment lookups.
type OrderStore interface {
	order.Repository
	payment.OrderLookup
}

// Backend is the set of repositories the services run on.
type Backend struct {
	Tx       store.Transactor
	Products Catalog
	Users    user.Repository
	Orders   OrderStore
	Lines    ledger.Repository
	Payments payment.Repository
	Tokens   recovery.Repository
	APIKeys  auth.Repository

	// Ping checks the database; nil for the memory driver.
	Ping  health.Check
	close func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenStore connects the configured store driver. With the postgres driver
// the embedded schema is applied when cfg.Store.Migrate is set.
func OpenStore(ctx context.Context, lg *zap.Logger, cfg *Config) (*Backend, error) {
	switch cfg.Store.Driver {
	case DriverMemory:
		lg.Warn("Using in-memory store, data is lost on exit")
		st := memory.New()
		return &Backend{
			Tx:       st,
			Products: st.Products(),
			Users:    st.Users(),
			Orders:   st.Orders(),
			Lines:    st.Lines(),
			Payments: st.Payments(),
			Tokens:   st.Tokens(),
			APIKeys:  st.APIKeys(),
		}, nil
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if cfg.Store.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, errors.Wrap(err, "run migrations")
			}
		}
		db := postgres.NewDB(pool, cfg.Store.QueryTimeout)
		return &Backend{
			Tx:       db,
			Products: postgres.NewProductRepository(db),
			Users:    postgres.NewUserRepository(db),
			Orders:   postgres.NewOrderRepository(db),
			Lines:    postgres.NewLineRepository(db),
			Payments: postgres.NewPaymentRepository(db),
			Tokens:   postgres.NewTokenRepository(db),
			APIKeys:  postgres.NewAPIKeyRepository(db),
			Ping:     health.Ping(pool),
			close:    pool.Close,
		}, nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
