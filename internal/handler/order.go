package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
)

func decodeLineInput(d *jx.Decoder) (ledger.LineInput, error) {
	var in ledger.LineInput
	err := decodeObject(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			in.ProductID, err = d.Int64()
		case "product":
			in.ProductID, err = decodeRefID(d)
		case "quantity":
			in.Quantity, err = d.Int()
		case "price":
			in.UnitPrice, err = decodeNullDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return in, err
}

func decodeOrderRequest(w http.ResponseWriter, r *http.Request) (order.Request, error) {
	var req order.Request
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Int64()
		case "user":
			req.UserID, err = decodeRefID(d)
		case "serviceDescription":
			req.ServiceDescription, err = d.Str()
		case "observation":
			req.Observation, err = d.Str()
		case "deliveryDate":
			req.DeliveryDate, err = decodeDate(d)
		case "status":
			var s string
			s, err = d.Str()
			req.Status = order.Status(s)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				in, err := decodeLineInput(d)
				req.Items = append(req.Items, in)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	totals := o.Totals()

	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("serviceDescription")
	e.Str(o.ServiceDescription)
	e.FieldStart("observation")
	e.Str(o.Observation)
	e.FieldStart("deliveryDate")
	if o.DeliveryDate.IsZero() {
		e.Null()
	} else {
		e.Str(o.DeliveryDate.Format(dateLayout))
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("user")
	encodeOwner(e, o.Owner)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Items {
		encodeLine(e, l)
	}
	e.ArrEnd()
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range o.Products() {
		encodeProduct(e, p)
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeMoney(e, totals.Total)
	e.FieldStart("totalQuantity")
	e.Int(totals.Quantity)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

// visibleOrder loads order id, hiding other users' orders from clients.
func (h *Handler) visibleOrder(ctx context.Context, id int64) (*order.Order, error) {
	o, err := h.orders.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope := ownerScope(ctx); scope != nil && o.UserID != *scope {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f := order.ListFilter{UserID: ownerScope(r.Context())}
	if raw := r.URL.Query().Get("userId"); raw != "" && f.UserID == nil {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, badRequest(errors.Errorf("invalid userId %q", raw)))
			return
		}
		f.UserID = &uid
	}

	p, err := h.orders.List(r.Context(), f, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, pageEncoder(encodeOrder))
}

func (h *Handler) findOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.visibleOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *o, encodeOrder)
}

func (h *Handler) orderTotals(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ownerScope(r.Context()) != nil {
		if _, err := h.visibleOrder(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	t, err := h.ledger.ComputeTotals(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, t, encodeTotals)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrderRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, *o, encodeOrder)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeOrderRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *o, encodeOrder)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addOrderItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeLineInput(jx.DecodeBytes(body))
	if err != nil {
		writeError(w, r, badRequest(errors.Wrap(err, "decode body")))
		return
	}
	line, err := h.ledger.AddItem(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, *line, encodeLine)
}
