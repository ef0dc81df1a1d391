package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hrassist/internal/platform/querier"
	"hrassist/internal/requestctx"
)

const (
	ActionLogin          = "auth.login"
	ActionOTPVerify      = "auth.otp_verify"
	ActionLeaveApply     = "leave.apply"
	ActionLeaveDecide    = "leave.decide"
	ActionPolicyIngest   = "policy.ingest"
	ActionPolicyReindex  = "policy.reindex"
	ActionDatasetImport  = "dataset.import"
	ActionScopeViolation = "query.scope_violation"
)

type Entry struct {
	ID        int64           `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Filter struct {
	Action string
	Actor  string
	Target string
}

func (f Filter) matches(e Entry) bool {
	return (f.Action == "" || f.Action == e.Action) &&
		(f.Actor == "" || f.Actor == e.Actor) &&
		(f.Target == "" || f.Target == e.Target)
}

// Recorder is implemented by the PostgreSQL Service and the MemoryLog.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

// NewEntry stamps the request id carried by ctx and marshals detail.
func NewEntry(ctx context.Context, actor, action, target string, detail any) Entry {
	e := Entry{
		Actor:     actor,
		Action:    action,
		Target:    target,
		RequestID: requestctx.RequestID(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if detail != nil {
		payload, err := json.Marshal(detail)
		if err != nil {
			payload = []byte(`{}`)
		}
		e.Detail = payload
	}
	return e
}

// Insert appends e using q, which may be a transaction.
func Insert(ctx context.Context, q querier.Querier, e Entry) (Entry, error) {
	var detail []byte
	if len(e.Detail) > 0 {
		detail = e.Detail
	}
	if err := q.QueryRow(ctx, `
    INSERT INTO audit_entries (actor, action, target, detail, request_id)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, created_at
  `, e.Actor, e.Action, e.Target, detail, e.RequestID).Scan(&e.ID, &e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	_, err := Insert(ctx, s.DB, e)
	return err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, error) {
	query, args := buildBaseQuery("SELECT id, actor, action, target, detail, request_id, created_at", filter)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &detail, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Detail = detail
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_entries WHERE 1=1"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		query += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	if filter.Target != "" {
		args = append(args, filter.Target)
		query += fmt.Sprintf(" AND target = $%d", len(args))
	}
	return query, args
}
