package todo

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

// Handler exposes the todo CRUD endpoints. It must sit behind
// session.RequireSession, which supplies the acting user id.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

var errInvalidPayload = apperr.Validation(map[string]string{"body": "invalid JSON payload"})

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	var req CreateInput
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid todo payload", "err", err)
		apperr.Write(w, h.logger, errInvalidPayload)
		return
	}
	t, err := h.svc.Create(r.Context(), userID, req)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	todos, err := h.svc.List(r.Context(), userID)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, todos)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req UpdateInput
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid todo payload", "err", err)
		apperr.Write(w, h.logger, errInvalidPayload)
		return
	}
	t, err := h.svc.Update(r.Context(), userID, id, req)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]string{"message": "todo deleted"})
}

func (h *Handler) actingUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := session.UserIDFromContext(r.Context())
	if !ok {
		apperr.Write(w, h.logger, apperr.New(apperr.ErrUnauthenticated, "authentication required"))
		return 0, false
	}
	return userID, true
}

// target resolves the acting user and the {id} path value. An id that does
// not parse is reported like any other missing todo.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := h.actingUser(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		apperr.Write(w, h.logger, errTodoNotFound)
		return 0, 0, false
	}
	return userID, id, true
}
