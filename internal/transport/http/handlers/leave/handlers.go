package leavehandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/leave"
	"hrassist/internal/transport/http/api"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/shared"
)

type Handler struct {
	Service *leave.Service
}

func NewHandler(service *leave.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermLeaveWrite)).Post("/apply", h.handleApply)
		r.With(middleware.RequirePermission(auth.PermLeaveApprove)).Get("/pending", h.handlePending)
		r.With(middleware.RequirePermission(auth.PermLeaveApprove)).Post("/decide", h.handleDecide)
		r.With(middleware.RequirePermission(auth.PermLeaveRead)).Get("/mine/{employeeID}", h.handleMine)
		r.With(middleware.RequirePermission(auth.PermLeaveRead)).Get("/balance/{employeeID}", h.handleBalance)
		r.With(middleware.RequirePermission(auth.PermLeaveRead)).Get("/requests/{requestID}", h.handleGet)
	})
}

type applyRequest struct {
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Days       *int   `json:"days"`
	Reason     string `json:"reason"`
}

type decideRequest struct {
	RequestID int64  `json:"request_id"`
	Decision  string `json:"decision"`
	HRActor   string `json:"hr_actor"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload applyRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	if strings.TrimSpace(payload.EmployeeID) == "" && !user.IsAdmin() {
		payload.EmployeeID = user.ID
	}

	v := shared.NewValidator()
	v.Required("employee_id", payload.EmployeeID, "is required")
	start, _ := v.Date("start_date", payload.StartDate)
	end, _ := v.Date("end_date", payload.EndDate)
	v.DateOrder("start_date", start, "end_date", end)
	v.MaxLength("reason", payload.Reason, leave.MaxReasonLength)
	v.AtLeast("days", payload.Days, 1)
	if v.Reject(w, requestID) {
		return
	}

	created, err := h.Service.Apply(r.Context(), leave.ApplyInput{
		EmployeeID: payload.EmployeeID,
		Start:      start,
		End:        end,
		Days:       payload.Days,
		Reason:     payload.Reason,
	}, user)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	api.Created(w, map[string]any{
		"request": created,
		"message": "Leave request submitted",
	}, requestID)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	items, err := h.Service.Pending(r.Context(), user)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []leave.PendingItem{}
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload decideRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	v := shared.NewValidator()
	v.PositiveID("request_id", payload.RequestID)
	v.Required("decision", payload.Decision, "is required")
	decision := v.Enum("decision", payload.Decision, []string{string(leave.StatusApproved), string(leave.StatusRejected)}, "must be APPROVED or REJECTED")
	if v.Reject(w, requestID) {
		return
	}

	decided, err := h.Service.Decide(r.Context(), leave.DecideInput{
		RequestID: payload.RequestID,
		Decision:  decision,
		Note:      payload.HRActor,
	}, user)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	api.Success(w, map[string]any{
		"request": decided,
		"message": "Request " + strconv.FormatInt(decided.ID, 10) + " " + strings.ToLower(string(decided.Status)),
	}, requestID)
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	items, err := h.Service.History(r.Context(), chi.URLParam(r, "employeeID"), user)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []leave.LeaveRequest{}
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	employeeID := chi.URLParam(r, "employeeID")
	if !user.CanView(employeeID) {
		writeError(w, leave.ErrForbidden, middleware.GetRequestID(r.Context()))
		return
	}
	summary, err := h.Service.Balance(r.Context(), employeeID)
	if err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil || id < 1 {
		api.Fail(w, http.StatusBadRequest, "invalid_request_id", "request id must be a positive integer", requestID)
		return
	}
	req, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	// Other people's requests look missing rather than forbidden.
	if !user.CanView(req.EmployeeID) {
		writeError(w, leave.ErrNotFound, requestID)
		return
	}
	api.Success(w, req, requestID)
}

func writeError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed for this employee", requestID)
	case errors.Is(err, leave.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "leave_not_found", "Request not found", requestID)
	case errors.Is(err, identity.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "employee_not_found", "Employee not found", requestID)
	case errors.Is(err, leave.ErrWorkflowConflict):
		api.Fail(w, http.StatusConflict, "already_decided", "Already decided", requestID)
	case errors.Is(err, leave.ErrInsufficientBalance):
		api.Fail(w, http.StatusConflict, "insufficient_balance", "Leave balance is too low to approve this request", requestID)
	case errors.Is(err, leave.ErrInvalidDateRange),
		errors.Is(err, leave.ErrInvalidDays),
		errors.Is(err, leave.ErrInvalidDate),
		errors.Is(err, leave.ErrInvalidDecision),
		errors.Is(err, leave.ErrReasonTooLong):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	default:
		zap.L().Error("leave request failed", zap.String("requestId", requestID), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "leave_failed", "leave operation failed", requestID)
	}
}
