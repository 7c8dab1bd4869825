package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

// decodeAuthority accepts "ROLE_X" or {"authority":"ROLE_X"}.
func decodeAuthority(d *jx.Decoder) (string, error) {
	if d.Next() == jx.String {
		return d.Str()
	}
	var authority string
	err := decodeObject(d, func(d *jx.Decoder, key string) error {
		if key != "authority" {
			return d.Skip()
		}
		var err error
		authority, err = d.Str()
		return err
	})
	return authority, err
}

func decodeUserInput(w http.ResponseWriter, r *http.Request) (user.Input, error) {
	var in user.Input
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "firstName":
			in.FirstName, err = d.Str()
		case "lastName":
			in.LastName, err = d.Str()
		case "email":
			in.Email, err = d.Str()
		case "phone":
			in.Phone, err = d.Str()
		case "password":
			in.Password, err = d.Str()
		case "roles":
			err = d.Arr(func(d *jx.Decoder) error {
				a, err := decodeAuthority(d)
				in.Roles = append(in.Roles, a)
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return in, err
}

func encodeUser(e *jx.Encoder, u user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(u.ID)
	e.FieldStart("firstName")
	e.Str(u.FirstName)
	e.FieldStart("lastName")
	e.Str(u.LastName)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("phone")
	e.Str(u.Phone)
	e.FieldStart("roles")
	e.ArrStart()
	for _, role := range u.Roles {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(role.ID)
		e.FieldStart("authority")
		e.Str(role.Authority)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.users.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p, pageEncoder(encodeUser))
}

func (h *Handler) findUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Find(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *u, encodeUser)
}

// me returns the account behind the caller's API key.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, r, auth.ErrUnauthorized)
		return
	}
	u, err := h.users.Find(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *u, encodeUser)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	in, err := decodeUserInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, *u, encodeUser)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeUserInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, *u, encodeUser)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
