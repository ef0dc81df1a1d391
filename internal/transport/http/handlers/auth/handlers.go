package authhandler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"hrassist/internal/domain/credential"
	"hrassist/internal/domain/identity"
	"hrassist/internal/transport/http/api"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/shared"
)

type Gate interface {
	Issue(ctx context.Context, identityKey string, role identity.Role) (credential.IssueResult, error)
	Verify(ctx context.Context, identityKey string, role identity.Role, code string) (identity.Identity, error)
}

type Minter interface {
	Mint(ident identity.Identity) (string, time.Time, error)
}

type Handler struct {
	Gate     Gate
	Sessions Minter
	// AdminIdentityKey is the shared HR identity an ADMIN signs in as when no id is given.
	AdminIdentityKey string
}

func NewHandler(gate Gate, sessions Minter, adminIdentityKey string) *Handler {
	return &Handler{Gate: gate, Sessions: sessions, AdminIdentityKey: adminIdentityKey}
}

type otpRequest struct {
	Role       string `json:"role"`
	EmployeeID string `json:"employee_id"`
	Code       string `json:"code"`
}

type requestOTPResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	DevCode   string    `json:"dev_code,omitempty"`
}

type verifyOTPResponse struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Role       string    `json:"role"`
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name,omitempty"`
}

func (h *Handler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload otpRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	role, key, ok := h.resolve(w, payload, requestID)
	if !ok {
		return
	}

	result, err := h.Gate.Issue(r.Context(), key, role)
	if errors.Is(err, credential.ErrUnknownIdentity) {
		api.Fail(w, http.StatusNotFound, "unknown_identity", "employee not found for this role", requestID)
		return
	}
	if err != nil {
		zap.L().Error("otp issue failed", zap.String("identity", key), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "otp_issue_failed", "failed to issue code", requestID)
		return
	}

	message := "OTP generated"
	if result.Destination != "" {
		message = "OTP sent to " + result.Destination
	}
	api.WriteJSON(w, http.StatusOK, requestOTPResponse{
		Success:   true,
		Message:   message,
		ExpiresAt: result.ExpiresAt,
		DevCode:   result.DevCode,
	})
}

func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload otpRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	role, key, ok := h.resolve(w, payload, requestID)
	if !ok {
		return
	}
	code := strings.TrimSpace(payload.Code)
	if code == "" {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "code", Reason: "is required"}})
		return
	}

	ident, err := h.Gate.Verify(r.Context(), key, role, code)
	switch {
	case errors.Is(err, credential.ErrOTPInvalid):
		api.Fail(w, http.StatusBadRequest, "otp_invalid", "Invalid code", requestID)
		return
	case errors.Is(err, credential.ErrOTPExpired):
		api.Fail(w, http.StatusBadRequest, "otp_expired", "Code expired", requestID)
		return
	case errors.Is(err, credential.ErrOTPAlreadyConsumed):
		api.Fail(w, http.StatusBadRequest, "otp_consumed", "Code already used", requestID)
		return
	case err != nil:
		zap.L().Error("otp verify failed", zap.String("identity", key), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "otp_verify_failed", "failed to verify code", requestID)
		return
	}

	token, expires, err := h.Sessions.Mint(ident)
	if err != nil {
		zap.L().Error("session mint failed", zap.String("identity", key), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "token_failed", "failed to create session", requestID)
		return
	}
	api.WriteJSON(w, http.StatusOK, verifyOTPResponse{
		Success:    true,
		Message:    "OTP verified",
		Token:      token,
		ExpiresAt:  expires,
		Role:       string(ident.Role),
		EmployeeID: ident.ID,
		Name:       ident.Name,
	})
}

// resolve validates the role and picks the identity key the code is bound to.
func (h *Handler) resolve(w http.ResponseWriter, payload otpRequest, requestID string) (identity.Role, string, bool) {
	role, err := identity.ParseRole(payload.Role)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_role", "Invalid role", requestID)
		return "", "", false
	}
	key := strings.TrimSpace(payload.EmployeeID)
	if key == "" && role == identity.RoleAdmin {
		key = h.AdminIdentityKey
	}
	if key == "" {
		api.Fail(w, http.StatusBadRequest, "employee_id_required", "Employee ID required", requestID)
		return "", "", false
	}
	return role, key, true
}
