package memory

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	s *Store
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var out *product.Product
	err := r.s.do(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return product.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepository) List(ctx context.Context, name string, req page.Request) (page.Page[product.Product], error) {
	var out page.Page[product.Product]
	err := r.s.do(ctx, func(st *state) error {
		needle := strings.ToLower(name)
		var all []product.Product
		for _, p := range sortedValues(st.products) {
			if strings.Contains(strings.ToLower(p.Name), needle) {
				all = append(all, p)
			}
		}
		out = page.Slice(all, req)
		return nil
	})
	return out, err
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	return r.s.do(ctx, func(st *state) error {
		for _, existing := range st.products {
			if existing.Name == p.Name && existing.Brand == p.Brand {
				return apperr.New(apperr.KindConflict, "product %q of %q already exists", p.Name, p.Brand)
			}
		}
		p.ID = st.next("products")
		st.products[p.ID] = *p
		return nil
	})
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.products[p.ID]; !ok {
			return product.ErrNotFound
		}
		st.products[p.ID] = *p
		return nil
	})
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.products[id]; !ok {
			return product.ErrNotFound
		}
		for _, lines := range st.lines {
			if slices.ContainsFunc(lines, func(l ledger.Line) bool { return l.ProductID == id }) {
				return apperr.New(apperr.KindConflict, "product %d is referenced by order lines", id)
			}
		}
		delete(st.products, id)
		return nil
	})
}

func (r *ProductRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.s.do(ctx, func(st *state) error {
		_, ok = st.products[id]
		return nil
	})
	return ok, err
}

// Upsert inserts p or, when a product with the same name and brand exists,
// updates its description and price. It reports whether a row was inserted.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) (bool, error) {
	var inserted bool
	err := r.s.do(ctx, func(st *state) error {
		for id, existing := range st.products {
			if existing.Name == p.Name && existing.Brand == p.Brand {
				p.ID = id
				st.products[id] = *p
				return nil
			}
		}
		p.ID = st.next("products")
		st.products[p.ID] = *p
		inserted = true
		return nil
	})
	return inserted, err
}

// sortedValues returns map values ordered by key.
func sortedValues[V any](m map[int64]V) []V {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
