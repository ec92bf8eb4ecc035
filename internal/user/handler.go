package user

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

// Sessions is the part of the session manager the handler drives.
type Sessions interface {
	Create(ctx context.Context, userID int64) (string, *session.Session, error)
	Destroy(ctx context.Context, token string) error
}

// Handler exposes HTTP endpoints for registration, login, logout and the
// acting user's profile.
type Handler struct {
	svc      *UserService
	sessions Sessions
	codec    *session.CookieCodec
	logger   *zap.SugaredLogger
	onLogin  func(success bool)
}

func NewHandler(svc *UserService, sessions Sessions, codec *session.CookieCodec, logger *zap.SugaredLogger, onLogin func(success bool)) *Handler {
	if onLogin == nil {
		onLogin = func(bool) {}
	}
	return &Handler{svc: svc, sessions: sessions, codec: codec, logger: logger, onLogin: onLogin}
}

var errInvalidPayload = apperr.Validation(map[string]string{"body": "invalid JSON payload"})

// UserResponse wraps a profile.
type UserResponse struct {
	User entity.Profile `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		apperr.Write(w, h.logger, errInvalidPayload)
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, UserResponse{User: u.Profile()})
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse echoes the profile and the signed session credential.
type LoginResponse struct {
	User      entity.Profile `json:"user"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		apperr.Write(w, h.logger, errInvalidPayload)
		return
	}
	u, err := h.svc.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		h.onLogin(false)
		apperr.Write(w, h.logger, err)
		return
	}
	token, s, err := h.sessions.Create(r.Context(), u.ID)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	signed, err := h.codec.Encode(token, s.ExpiresAt)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	h.onLogin(true)
	h.codec.SetCookie(w, signed, s.ExpiresAt)
	utilities.WriteJSON(w, http.StatusOK, LoginResponse{User: u.Profile(), Token: signed, ExpiresAt: s.ExpiresAt})
}

// Logout destroys the presented session, if any, and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.codec.TokenFromRequest(r); ok {
		if err := h.sessions.Destroy(r.Context(), token); err != nil {
			h.logger.Errorw("logout failed", "err", err)
			utilities.WriteJSON(w, http.StatusInternalServerError, apperr.Body{Error: "failed to logout", Code: apperr.ErrStorage.Error()})
			return
		}
	}
	h.codec.ClearCookie(w)
	utilities.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserIDFromContext(r.Context())
	u, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, UserResponse{User: u.Profile()})
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := session.UserIDFromContext(r.Context())
	var req UpdateInput
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid profile payload", "err", err)
		apperr.Write(w, h.logger, errInvalidPayload)
		return
	}
	u, err := h.svc.Update(r.Context(), userID, req)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, UserResponse{User: u.Profile()})
}
