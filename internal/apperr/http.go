package apperr

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

// Body is the JSON error envelope.
type Body struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Status maps an error kind to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrWeakCredential):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// BodyFor builds the client-facing envelope for err. Storage failures and
// unclassified errors collapse into one opaque message.
func BodyFor(err error) Body {
	e, ok := As(err)
	if !ok || e.Kind == ErrStorage {
		return Body{Error: "internal error", Code: ErrStorage.Error()}
	}
	return Body{Error: e.Message, Code: e.Kind.Error(), Fields: e.Fields}
}

// Write sends err as a JSON error response. 5xx causes are logged.
func Write(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "err", err)
	}
	utilities.WriteJSON(w, status, BodyFor(err))
}
