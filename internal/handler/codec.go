package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

// decodeBody reads the request body and walks its top-level object with fn.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := decodeObject(jx.DecodeBytes(body), fn); err != nil {
		return badRequest(errors.Wrap(err, "decode body"))
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest(errors.Wrap(err, "read body"))
	}
	return body, nil
}

func decodeObject(d *jx.Decoder, fn func(d *jx.Decoder, key string) error) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
}

// decodeDecimal accepts a JSON number, a numeric string or null (zero).
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", tt)
	}
}

// decodeNullDecimal is decodeDecimal where null leaves the value unset.
func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// decodeDate accepts "YYYY-MM-DD" or null (zero time).
func decodeDate(d *jx.Decoder) (time.Time, error) {
	if d.Next() == jx.Null {
		return time.Time{}, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse date")
	}
	return t, nil
}

// decodeRefID reads {"id": n}, the nested reference shape.
func decodeRefID(d *jx.Decoder) (int64, error) {
	var id int64
	err := decodeObject(d, func(d *jx.Decoder, key string) error {
		if key != "id" {
			return d.Skip()
		}
		v, err := d.Int64()
		id = v
		return err
	})
	return id, err
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(errors.Errorf("invalid id %q", raw))
	}
	return id, nil
}

// pageRequest reads ?page=&size=. Page numbers are zero-based.
func pageRequest(r *http.Request) (page.Request, error) {
	var req page.Request
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &req.Number, "size": &req.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return page.Request{}, badRequest(errors.Errorf("invalid %s %q", name, raw))
		}
		*dst = v
	}
	return req.Normalize(), nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

// encodePage writes {"content":[...],"number","size","totalElements","totalPages"}.
func encodePage[T any](e *jx.Encoder, p page.Page[T], item func(*jx.Encoder, T)) {
	e.ObjStart()
	e.FieldStart("content")
	e.ArrStart()
	for _, it := range p.Items {
		item(e, it)
	}
	e.ArrEnd()
	e.FieldStart("number")
	e.Int(p.Number)
	e.FieldStart("size")
	e.Int(p.Size)
	e.FieldStart("totalElements")
	e.Int64(p.Total)
	e.FieldStart("totalPages")
	e.Int(p.TotalPages())
	e.ObjEnd()
}

func pageEncoder[T any](item func(*jx.Encoder, T)) func(*jx.Encoder, page.Page[T]) {
	return func(e *jx.Encoder, p page.Page[T]) {
		encodePage(e, p, item)
	}
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.ObjEnd()
}

func encodeOwner(e *jx.Encoder, u user.Summary) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("firstName")
	e.Str(u.FirstName)
	e.FieldStart("lastName")
	e.Str(u.LastName)
	e.FieldStart("email")
	e.Str(u.Email)
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l ledger.Line) {
	e.ObjStart()
	e.FieldStart("lineNo")
	e.Int(l.LineNo)
	e.FieldStart("product")
	encodeProduct(e, l.Product)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("price")
	encodeMoney(e, l.UnitPrice)
	e.FieldStart("subTotal")
	encodeMoney(e, l.Subtotal())
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t ledger.Totals) {
	e.ObjStart()
	e.FieldStart("total")
	encodeMoney(e, t.Total)
	e.FieldStart("totalQuantity")
	e.Int(t.Quantity)
	e.ObjEnd()
}
