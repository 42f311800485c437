package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fynity/fynity/internal/shared"
)

const internalMessage = "An unexpected error occurred."

// RespondError maps domain errors to the error envelope. Unclassified
// errors are logged and reported as InternalError.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if e, ok := shared.AsError(err); ok {
		if e.Kind == shared.KindInternal && logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Fail(w, e)
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, shared.NotFound("Not found."))
	case errors.Is(err, ErrMalformedBody):
		Fail(w, shared.Validation("Malformed request body.", nil))
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Fail(w, &shared.Error{Kind: shared.KindInternal, Message: internalMessage, Status: http.StatusInternalServerError})
	}
}
