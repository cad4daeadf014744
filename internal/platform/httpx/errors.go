package httpx

import (
	"errors"
	"net/http"

	"github.com/splitpot/splitpot/internal/shared"
)

// RespondError maps ledger domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Permission Denied", err.Error())
	case errors.Is(err, shared.ErrInvalidCommand):
		Problem(w, http.StatusBadRequest, "Invalid Command", err.Error())
	case errors.Is(err, shared.ErrConflictOnCommit):
		Problem(w, http.StatusConflict, "Conflict On Commit", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
