package chathandler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hrassist/internal/domain/assistant"
	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/identity"
	"hrassist/internal/transport/http/api"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/shared"
)

const maxMessageLength = 4000

type Assistant interface {
	Handle(ctx context.Context, text string, caller identity.Caller) (assistant.Reply, error)
}

type Handler struct {
	Assistant Assistant
}

func NewHandler(a Assistant) *Handler {
	return &Handler{Assistant: a}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermChatUse)).Post("/chat/message", h.handleMessage)
}

type messageRequest struct {
	Role       string `json:"role"`
	EmployeeID string `json:"employee_id"`
	Text       string `json:"text"`
}

// handleMessage always answers with the flat chat reply, failures included, so the chat
// client renders every outcome the same way.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload messageRequest
	if status, err := shared.ReadJSON(r, &payload); err != nil {
		msg := "Invalid request payload."
		if status == http.StatusRequestEntityTooLarge {
			msg = "Your message is too long."
		}
		api.WriteJSON(w, status, api.Reply{Message: msg})
		return
	}
	if !matchesSession(payload, user) {
		api.WriteJSON(w, http.StatusForbidden, api.Reply{Message: "The request identity does not match your session."})
		return
	}
	if len(payload.Text) > maxMessageLength {
		api.WriteJSON(w, http.StatusBadRequest, api.Reply{Message: "Your message is too long."})
		return
	}

	reply, err := h.Assistant.Handle(r.Context(), payload.Text, user)
	if err != nil {
		zap.L().Error("chat turn failed",
			zap.String("actor", user.ID),
			zap.String("requestId", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		api.WriteJSON(w, http.StatusInternalServerError, api.Reply{Message: "Something went wrong. Please try again."})
		return
	}
	api.WriteJSON(w, http.StatusOK, reply)
}

func matchesSession(payload messageRequest, user identity.Caller) bool {
	if raw := strings.TrimSpace(payload.Role); raw != "" {
		role, err := identity.ParseRole(raw)
		if err != nil || role != user.Role {
			return false
		}
	}
	if id := strings.TrimSpace(payload.EmployeeID); id != "" && id != user.ID {
		return false
	}
	return true
}
