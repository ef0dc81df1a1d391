package notifications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hrassist/internal/platform/querier"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Insert appends n using q. Workflow stores call it inside their transaction.
func Insert(ctx context.Context, q querier.Querier, n Notification) (Notification, error) {
	if err := q.QueryRow(ctx, `
    INSERT INTO notifications (recipient_scope, kind, title, body)
    VALUES ($1,$2,$3,$4)
    RETURNING id, created_at
  `, n.RecipientScope, n.Kind, n.Title, n.Body).Scan(&n.ID, &n.CreatedAt); err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, scope string, q FeedQuery) ([]Notification, error) {
	q = q.normalized()
	rows, err := s.DB.Query(ctx, `
    SELECT id, recipient_scope, kind, title, body, created_at
    FROM notifications
    WHERE recipient_scope = $1 AND id > $2 AND ($3 = 0 OR id < $3)
    ORDER BY id DESC
    LIMIT $4
  `, scope, q.AfterID, q.BeforeID, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientScope, &n.Kind, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
