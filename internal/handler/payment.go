package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/hdcontrol/internal/domain/payment"
)

func encodePayment(e *jx.Encoder, p payment.Payment) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("moment")
	encodeTime(e, p.Moment)
	e.FieldStart("status")
	e.Str(string(p.Status))
	e.FieldStart("order")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.OrderID)
	e.FieldStart("serviceDescription")
	e.Str(p.OrderDescription)
	e.ObjEnd()
	e.ObjEnd()
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, pageEncoder(encodePayment))
}

func (h *Handler) findPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Find(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *p, encodePayment)
}

func (h *Handler) orderPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.FindByOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *p, encodePayment)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var orderID int64
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			orderID, err = d.Int64()
		case "order":
			orderID, err = decodeRefID(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Create(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, *p, encodePayment)
}

func (h *Handler) advancePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var status string
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		status, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.payments.Advance(r.Context(), id, payment.Status(status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *p, encodePayment)
}
