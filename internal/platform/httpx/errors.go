package httpx

import (
	"errors"
	"net/http"

	"github.com/kueskilink/kueskilink/internal/shared"
)

// RespondError maps the domain error taxonomy to RFC7807 responses.
// Expired deadlines surface as 403 to match the public payment API the
// client application already depends on.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrExpired):
		Problem(w, http.StatusForbidden, "Expired", err.Error())
	case errors.Is(err, shared.ErrProvider):
		Problem(w, http.StatusBadGateway, "Provider Error", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
