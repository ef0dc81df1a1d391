package leave

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/platform/querier"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const selectRequest = `
    SELECT id, employee_id, start_date, end_date, days, reason, status, created_at, decided_at, COALESCE(decided_by, '')
    FROM leave_requests`

func scanRequest(row pgx.Row) (LeaveRequest, error) {
	var r LeaveRequest
	var status string
	if err := row.Scan(&r.ID, &r.EmployeeID, &r.StartDate, &r.EndDate, &r.Days, &r.Reason, &status, &r.CreatedAt, &r.DecidedAt, &r.DecidedBy); err != nil {
		return LeaveRequest{}, err
	}
	r.Status = Status(status)
	return r, nil
}

func (s *Store) Create(ctx context.Context, req LeaveRequest, effects Effects) (LeaveRequest, notifications.Notification, error) {
	var note notifications.Notification
	err := querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
      INSERT INTO leave_requests (employee_id, start_date, end_date, days, reason, status)
      VALUES ($1,$2,$3,$4,$5,$6)
      RETURNING id, created_at
    `, req.EmployeeID, req.StartDate, req.EndDate, req.Days, req.Reason, string(StatusPending)).Scan(&req.ID, &req.CreatedAt); err != nil {
			return err
		}
		req.Status = StatusPending
		return writeEffects(ctx, tx, req, effects, &note)
	})
	if err != nil {
		return LeaveRequest{}, notifications.Notification{}, err
	}
	return req, note, nil
}

func (s *Store) Decide(ctx context.Context, id int64, status Status, actor string, effects Effects) (LeaveRequest, notifications.Notification, error) {
	var req LeaveRequest
	var note notifications.Notification
	err := querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		req, err = scanRequest(tx.QueryRow(ctx, selectRequest+" WHERE id = $1 FOR UPDATE", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrWorkflowConflict
		}
		if status == StatusApproved {
			var balance float64
			err := tx.QueryRow(ctx, `SELECT leave_balance FROM identities WHERE id = $1 FOR UPDATE`, req.EmployeeID).Scan(&balance)
			if errors.Is(err, pgx.ErrNoRows) {
				return identity.ErrNotFound
			}
			if err != nil {
				return err
			}
			if balance < float64(req.Days) {
				return ErrInsufficientBalance
			}
		}

		var decidedAt time.Time
		if err := tx.QueryRow(ctx, `
      UPDATE leave_requests SET status = $1, decided_at = now(), decided_by = $2
      WHERE id = $3
      RETURNING decided_at
    `, string(status), actor, id).Scan(&decidedAt); err != nil {
			return err
		}
		req.Status = status
		req.DecidedAt = &decidedAt
		req.DecidedBy = actor

		if status == StatusApproved {
			if _, err := tx.Exec(ctx, `
        UPDATE identities SET leave_balance = leave_balance - $1, updated_at = now()
        WHERE id = $2
      `, req.Days, req.EmployeeID); err != nil {
				return err
			}
		}
		return writeEffects(ctx, tx, req, effects, &note)
	})
	if err != nil {
		return LeaveRequest{}, notifications.Notification{}, err
	}
	return req, note, nil
}

func writeEffects(ctx context.Context, tx pgx.Tx, req LeaveRequest, effects Effects, note *notifications.Notification) error {
	if effects == nil {
		return nil
	}
	entry, n := effects(req)
	if _, err := audit.Insert(ctx, tx, entry); err != nil {
		return err
	}
	inserted, err := notifications.Insert(ctx, tx, n)
	if err != nil {
		return err
	}
	*note = inserted
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (LeaveRequest, error) {
	req, err := scanRequest(s.DB.QueryRow(ctx, selectRequest+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveRequest{}, ErrNotFound
	}
	return req, err
}

func (s *Store) ListPending(ctx context.Context) ([]PendingItem, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT lr.id, lr.employee_id, lr.start_date, lr.end_date, lr.days, lr.reason, lr.status, lr.created_at,
           lr.decided_at, COALESCE(lr.decided_by, ''), COALESCE(i.name, ''), COALESCE(i.department, '')
    FROM leave_requests lr
    LEFT JOIN identities i ON i.id = lr.employee_id
    WHERE lr.status = $1
    ORDER BY lr.created_at DESC, lr.id DESC
  `, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingItem
	for rows.Next() {
		var item PendingItem
		var status string
		if err := rows.Scan(&item.ID, &item.EmployeeID, &item.StartDate, &item.EndDate, &item.Days, &item.Reason, &status, &item.CreatedAt,
			&item.DecidedAt, &item.DecidedBy, &item.Name, &item.Department); err != nil {
			return nil, err
		}
		item.Status = Status(status)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) ListByEmployee(ctx context.Context, employeeID string) ([]LeaveRequest, error) {
	rows, err := s.DB.Query(ctx, selectRequest+" WHERE employee_id = $1 ORDER BY created_at DESC, id DESC", employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) Totals(ctx context.Context, employeeID string, monthStart, monthEnd time.Time) (Totals, error) {
	var t Totals
	err := s.DB.QueryRow(ctx, `
    SELECT
      COALESCE(SUM(days) FILTER (WHERE status = 'PENDING'), 0),
      COALESCE(SUM(days) FILTER (WHERE status = 'APPROVED'), 0),
      COALESCE(SUM(days) FILTER (WHERE status = 'PENDING' AND start_date >= $2 AND start_date < $3), 0),
      COALESCE(SUM(days) FILTER (WHERE status = 'APPROVED' AND start_date >= $2 AND start_date < $3), 0)
    FROM leave_requests
    WHERE employee_id = $1
  `, employeeID, monthStart, monthEnd).Scan(&t.PendingDays, &t.ApprovedDays, &t.MonthPendingDays, &t.MonthApprovedDays)
	return t, err
}
