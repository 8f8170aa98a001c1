package services

import (
	"errors"
	"net/http"
)

// Engine error kinds. Handlers translate these to HTTP statuses; the
// services themselves never touch transport codes.
var (
	// ErrNotFound: a transaction, account, member or staged bridge
	// reference does not exist (or was already consumed).
	ErrNotFound = errors.New("not found")

	// ErrPendingPayment: a bridge begin was attempted while another card
	// payment is still staged.
	ErrPendingPayment = errors.New("a card payment is already pending")

	// ErrValidation: a request failed semantic validation beyond struct tags.
	ErrValidation = errors.New("validation failed")
)

// StatusForError maps an engine error to the HTTP status the caller
// should emit. Anything unrecognized is a persistence/internal failure.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPendingPayment):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
