package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/uaagate/internal/authn"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	rid := w.Header().Get(headerRequestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError traduce errores del core a la respuesta pública. Nada del detalle
// interno llega al cliente; el log ya lo registró quien falló.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case authn.IsAuthFailure(err):
		WriteError(w, http.StatusUnauthorized, "invalid_grant", authn.PublicMessage(err))
	case errors.Is(err, authn.ErrTenantNotProvided):
		WriteError(w, http.StatusBadRequest, "invalid_request", "tenant required")
	default:
		WriteError(w, http.StatusInternalServerError, "server_error", authn.PublicMessage(err))
	}
}
