package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rows is a tabular result in plan column order.
type Rows struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"rows"`
}

// Executor runs validated plans only.
type Executor interface {
	Execute(ctx context.Context, p Plan) (Rows, error)
}

type PGExecutor struct {
	DB *pgxpool.Pool
}

func NewPGExecutor(db *pgxpool.Pool) *PGExecutor {
	return &PGExecutor{DB: db}
}

func (e *PGExecutor) Execute(ctx context.Context, p Plan) (Rows, error) {
	sql, args := Compile(p)
	rows, err := e.DB.Query(ctx, sql, args...)
	if err != nil {
		return Rows{}, fmt.Errorf("run plan on %s: %w", p.Table, err)
	}
	defer rows.Close()

	out := Rows{Columns: resultColumns(p)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Rows{}, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out.Values = append(out.Values, values)
	}
	return out, rows.Err()
}

// normalizeValue turns NUMERIC results (avg, sum over bigint) into float64.
func normalizeValue(v any) any {
	n, ok := v.(pgtype.Numeric)
	if !ok {
		return v
	}
	if !n.Valid {
		return nil
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return nil
	}
	return f.Float64
}
