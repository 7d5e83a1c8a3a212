package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/intake"
)

// handleError maps an error to an HTTP status and writes it. Unexpected
// errors are logged and reported without detail.
func handleError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	switch {
	case errors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.IsInvalidRequestError(err),
		errors.Is(err, intake.ErrUnsupported),
		errors.Is(err, intake.ErrEmpty):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Errorw(context, "error", err)
		writeError(w, http.StatusInternalServerError, context)
	}
}
