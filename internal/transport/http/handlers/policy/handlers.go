package policyhandler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hrassist/internal/domain/auth"
	"hrassist/internal/domain/retrieval"
	"hrassist/internal/platform/jobs"
	"hrassist/internal/platform/llm"
	"hrassist/internal/requestctx"
	"hrassist/internal/transport/http/api"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/shared"
)

const maxDocumentChars = 2 << 20

type Engine interface {
	Ingest(ctx context.Context, name, text, actor string) (int, error)
	ReindexAll(ctx context.Context, actor string) (int, error)
	Ask(ctx context.Context, question string) (retrieval.GroundedAnswer, error)
	Status() retrieval.Status
}

type Enqueuer interface {
	Enqueue(jobType string, run jobs.RunFunc) bool
}

type Handler struct {
	Engine Engine
	Jobs   Enqueuer
}

func NewHandler(engine Engine, jobsSvc Enqueuer) *Handler {
	return &Handler{Engine: engine, Jobs: jobsSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/policy", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPolicyWrite)).Post("/documents", h.handleIngest)
		r.With(middleware.RequirePermission(auth.PermPolicyWrite)).Post("/reindex", h.handleReindex)
		r.With(middleware.RequirePermission(auth.PermPolicyRead)).Post("/ask", h.handleAsk)
		r.With(middleware.RequirePermission(auth.PermPolicyRead)).Get("/status", h.handleStatus)
	})
}

type ingestRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Found     bool                 `json:"found"`
	Answer    string               `json:"answer"`
	Citations []retrieval.Citation `json:"citations"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload ingestRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	v := shared.NewValidator()
	v.Required("text", payload.Text, "is required")
	if len(payload.Text) > maxDocumentChars {
		v.Add("text", "document is too large")
	}
	if v.Reject(w, requestID) {
		return
	}

	chunks, err := h.Engine.Ingest(r.Context(), payload.Name, payload.Text, user.ID)
	switch {
	case errors.Is(err, retrieval.ErrEmptyDocument):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "text", Reason: "contains no indexable text"}})
		return
	case errors.Is(err, llm.ErrProviderUnavailable):
		api.Fail(w, http.StatusServiceUnavailable, "provider_unavailable", "embedding provider unavailable", requestID)
		return
	case err != nil:
		zap.L().Error("policy ingest failed", zap.String("name", payload.Name), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "policy_ingest_failed", "failed to ingest document", requestID)
		return
	}
	api.Created(w, map[string]any{
		"chunks": chunks,
		"status": h.Engine.Status(),
	}, requestID)
}

// handleReindex queues a full rebuild; progress shows up in /policy/status and the job log.
func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	origin := r.Context()
	queued := h.Jobs.Enqueue(jobs.JobPolicyReindex, func(ctx context.Context) (any, error) {
		ctx = requestctx.Carry(ctx, origin)
		chunks, err := h.Engine.ReindexAll(ctx, user.ID)
		return map[string]any{"chunks": chunks, "actor": user.ID}, err
	})
	if !queued {
		api.Fail(w, http.StatusServiceUnavailable, "queue_full", "reindex could not be queued, try again later", requestID)
		return
	}
	api.Accepted(w, map[string]any{"queued": true}, requestID)
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload askRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	if strings.TrimSpace(payload.Question) == "" {
		api.Fail(w, http.StatusBadRequest, "question_required", "Question is required", requestID)
		return
	}

	answer, err := h.Engine.Ask(r.Context(), payload.Question)
	switch {
	case errors.Is(err, llm.ErrProviderUnavailable):
		api.Fail(w, http.StatusServiceUnavailable, "provider_unavailable", "The assistant is temporarily unavailable. Please try again shortly.", requestID)
		return
	case err != nil:
		zap.L().Error("policy ask failed", zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "policy_ask_failed", "failed to answer question", requestID)
		return
	}
	citations := answer.Citations
	if citations == nil {
		citations = []retrieval.Citation{}
	}
	api.Success(w, askResponse{Found: answer.Found, Answer: answer.Answer, Citations: citations}, requestID)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Engine.Status(), middleware.GetRequestID(r.Context()))
}
