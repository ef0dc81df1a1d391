package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrassist/internal/domain/audit"
	"hrassist/internal/platform/querier"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const selectIdentity = `
    SELECT id, role, name, email, department, manager_id, job_role, monthly_income, leave_balance, hire_date
    FROM identities`

func scanIdentity(row pgx.Row) (Identity, error) {
	var ident Identity
	var role string
	if err := row.Scan(&ident.ID, &role, &ident.Name, &ident.Email, &ident.Department, &ident.ManagerID, &ident.JobRole, &ident.MonthlyIncome, &ident.LeaveBalance, &ident.HireDate); err != nil {
		return Identity{}, err
	}
	ident.Role = Role(role)
	return ident, nil
}

func (s *Store) Get(ctx context.Context, id string) (Identity, error) {
	ident, err := scanIdentity(s.DB.QueryRow(ctx, selectIdentity+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	return ident, err
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]Identity, error) {
	rows, err := s.DB.Query(ctx, selectIdentity+" ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (s *Store) Import(ctx context.Context, rows []Identity, entry audit.Entry) (int, error) {
	count := 0
	err := querier.RunInTx(ctx, s.DB, func(tx pgx.Tx) error {
		for _, ident := range rows {
			if err := upsert(ctx, tx, ident); err != nil {
				return err
			}
			count++
		}
		_, err := audit.Insert(ctx, tx, entry)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure inserts ident unless the id already exists; existing rows are left untouched.
func (s *Store) Ensure(ctx context.Context, ident Identity) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO identities (id, role, name, email, department, manager_id, job_role, monthly_income, leave_balance, hire_date)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (id) DO NOTHING
  `, ident.ID, string(ident.Role), ident.Name, ident.Email, ident.Department, ident.ManagerID, ident.JobRole, ident.MonthlyIncome, ident.LeaveBalance, ident.HireDate)
	return err
}

func upsert(ctx context.Context, q querier.Querier, ident Identity) error {
	_, err := q.Exec(ctx, `
    INSERT INTO identities (id, role, name, email, department, manager_id, job_role, monthly_income, leave_balance, hire_date)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (id) DO UPDATE
      SET role = EXCLUDED.role,
          name = EXCLUDED.name,
          email = EXCLUDED.email,
          department = EXCLUDED.department,
          manager_id = EXCLUDED.manager_id,
          job_role = EXCLUDED.job_role,
          monthly_income = EXCLUDED.monthly_income,
          leave_balance = EXCLUDED.leave_balance,
          hire_date = EXCLUDED.hire_date,
          updated_at = now()
  `, ident.ID, string(ident.Role), ident.Name, ident.Email, ident.Department, ident.ManagerID, ident.JobRole, ident.MonthlyIncome, ident.LeaveBalance, ident.HireDate)
	return err
}
