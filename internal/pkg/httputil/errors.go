package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/inspection-sync/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError writes the response of the first mapping matching err.
// A canceled request context is answered with 503 and logged at debug, since
// the client is already gone. Anything else is logged and becomes a 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	log := ctxlog.FromContext(ctx)
	if errors.Is(err, context.Canceled) {
		log.Debug("request canceled", "error", err)
		Error(w, http.StatusServiceUnavailable, "request canceled")
		return
	}

	log.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
