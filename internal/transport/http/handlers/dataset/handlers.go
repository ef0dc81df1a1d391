package datasethandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/identity"
	"hrassist/internal/transport/http/api"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/shared"
)

const maxImportRows = 5000

type Handler struct {
	Store identity.StoreAPI
}

func NewHandler(store identity.StoreAPI) *Handler {
	return &Handler{Store: store}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dataset", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermDatasetWrite)).Post("/identities", h.handleImport)
		r.With(middleware.RequirePermission(auth.PermDatasetWrite)).Get("/identities", h.handleList)
	})
}

// identityRow mirrors the dataset columns; hire_date is a plain date.
type identityRow struct {
	ID            string  `json:"id"`
	Role          string  `json:"role"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Department    string  `json:"department"`
	ManagerID     string  `json:"manager_id"`
	JobRole       string  `json:"job_role"`
	MonthlyIncome float64 `json:"monthly_income"`
	LeaveBalance  float64 `json:"leave_balance"`
	HireDate      string  `json:"hire_date"`
}

type importRequest struct {
	Rows []identityRow `json:"rows"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload importRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	v := shared.NewValidator()
	v.Count("rows", len(payload.Rows), 1, maxImportRows)
	if v.Reject(w, requestID) {
		return
	}
	rows := make([]identity.Identity, 0, len(payload.Rows))
	for i, raw := range payload.Rows {
		ident, err := raw.toIdentity()
		if err != nil {
			v.Add(rowField(i, "hire_date"), err.Error())
			continue
		}
		if err := ident.Validate(); err != nil {
			v.Add(rowField(i, "id"), err.Error())
			continue
		}
		rows = append(rows, ident)
	}
	if v.Reject(w, requestID) {
		return
	}

	entry := audit.NewEntry(r.Context(), user.ID, audit.ActionDatasetImport, "dataset:identities", map[string]any{"rows": len(rows)})
	n, err := h.Store.Import(r.Context(), rows, entry)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidRow) {
			api.Fail(w, http.StatusBadRequest, "invalid_row", err.Error(), requestID)
			return
		}
		zap.L().Error("identity import failed", zap.Int("rows", len(rows)), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "import_failed", "failed to import identities", requestID)
		return
	}
	zap.L().Info("identities imported", zap.Int("rows", n), zap.String("actor", user.ID))
	api.Success(w, map[string]any{"imported": n}, requestID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	page := v.Page(r.URL.Query(), 50, 500)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	items, err := h.Store.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "identity_list_failed", "failed to list identities", middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []identity.Identity{}
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (row identityRow) toIdentity() (identity.Identity, error) {
	ident := identity.Identity{
		ID:            row.ID,
		Role:          identity.Role(row.Role),
		Name:          row.Name,
		Email:         row.Email,
		Department:    row.Department,
		ManagerID:     strings.TrimSpace(row.ManagerID),
		JobRole:       row.JobRole,
		MonthlyIncome: row.MonthlyIncome,
		LeaveBalance:  row.LeaveBalance,
	}
	if raw := strings.TrimSpace(row.HireDate); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			return identity.Identity{}, errors.New("must be a valid date")
		}
		d := parsed.UTC().Truncate(24 * time.Hour)
		ident.HireDate = &d
	}
	return ident, nil
}

func rowField(i int, field string) string {
	return "rows[" + strconv.Itoa(i) + "]." + field
}
