package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
)

// requestRecovery answers 204 whether or not the e-mail belongs to an account
// and whether or not the message could be sent.
func (h *Handler) requestRecovery(w http.ResponseWriter, r *http.Request) {
	var email string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "email" {
			return d.Skip()
		}
		var err error
		email, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.recovery.RequestRecovery(r.Context(), email, h.recoveryLifetime)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		zctx.From(r.Context()).Debug("Recovery requested for unknown e-mail")
	case errors.Is(err, apperr.ErrUnavailable):
		zctx.From(r.Context()).Error("Recovery message not sent", zap.Error(err))
	default:
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) redeemRecovery(w http.ResponseWriter, r *http.Request) {
	var token, password string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "token":
			token, err = d.Str()
		case "newPassword":
			password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.recovery.RedeemRecovery(r.Context(), token, password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
