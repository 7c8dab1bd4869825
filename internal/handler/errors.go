package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/auth"
)

// httpError is a failure that only exists at the HTTP layer.
type httpError struct {
	status int
	kind   string
	msg    string
}

func (e *httpError) Error() string { return e.msg }

var (
	errForbidden        = &httpError{status: http.StatusForbidden, kind: "forbidden", msg: "forbidden"}
	errRouteNotFound    = &httpError{status: http.StatusNotFound, kind: "not_found", msg: "route not found"}
	errMethodNotAllowed = &httpError{status: http.StatusMethodNotAllowed, kind: "method_not_allowed", msg: "method not allowed"}
)

// badRequest reports a body or parameter that could not be parsed.
func badRequest(err error) error {
	return &httpError{status: http.StatusBadRequest, kind: "bad_request", msg: err.Error()}
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindReferenceNotFound: http.StatusUnprocessableEntity,
	apperr.KindInvalidArgument:   http.StatusUnprocessableEntity,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindInvalidToken:      http.StatusNotFound,
	apperr.KindUnavailable:       http.StatusServiceUnavailable,
}

// classify picks the response status, kind and message for err.
func classify(err error) (status int, kind, msg string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, he.kind, he.msg
	}
	if errors.Is(err, auth.ErrUnauthorized) {
		return http.StatusUnauthorized, "unauthenticated", "missing or invalid api key"
	}
	k := apperr.KindOf(err)
	if status, ok := kindStatus[k]; ok {
		return status, k.String(), err.Error()
	}
	return http.StatusInternalServerError, apperr.KindUnknown.String(), "internal error"
}

// writeError writes the error envelope {"code","kind","message"}. Server
// errors are logged with their cause and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("kind")
	e.Str(kind)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// respond encodes v with enc and writes it with status.
func respond[T any](w http.ResponseWriter, status int, v T, enc func(*jx.Encoder, T)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	enc(e, v)
	writeJSON(w, status, e)
}
