package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/hdcontrol/internal/domain/product"
)

func decodeProductInput(w http.ResponseWriter, r *http.Request) (product.Input, error) {
	var in product.Input
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
		case "description":
			in.Description, err = d.Str()
		case "brand":
			in.Brand, err = d.Str()
		case "price":
			in.Price, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return in, err
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.List(r.Context(), r.URL.Query().Get("name"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, pageEncoder(encodeProduct))
}

func (h *Handler) findProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Find(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *p, encodeProduct)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeProductInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, *p, encodeProduct)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeProductInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *p, encodeProduct)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
