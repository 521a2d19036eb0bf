package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/s0up4200/seedbrake/controller"
	"github.com/s0up4200/seedbrake/qbittorrent"
	"github.com/s0up4200/seedbrake/store"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrUnknownTarget):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmptyIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, qbittorrent.ErrAuthentication),
		errors.Is(err, qbittorrent.ErrSessionRejected),
		errors.Is(err, qbittorrent.ErrActuationFailed),
		errors.Is(err, qbittorrent.ErrConnectionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes err with the status derived from its kind.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, statusFor(err), err)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
