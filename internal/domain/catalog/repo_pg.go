package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
)

type testRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) TestRepository {
	return &testRepoPG{pool: pool}
}

const testCols = `id, code, name, category, normal_range, unit, active, created_at, updated_at`

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Category, &t.NormalRange, &t.Unit, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lab test not found")
	}
	return &t, err
}

func (r *testRepoPG) Create(ctx context.Context, t *LabTest) error {
	t.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO lab_test (id, code, name, category, normal_range, unit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		t.ID, t.Code, t.Name, t.Category, t.NormalRange, t.Unit, t.Active).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *testRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanTest(r.pool.QueryRow(ctx, `SELECT `+testCols+` FROM lab_test WHERE id = $1`, id))
}

func (r *testRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*LabTest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+testCols+` FROM lab_test WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (r *testRepoPG) Update(ctx context.Context, t *LabTest) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lab_test SET name=$2, category=$3, normal_range=$4, unit=$5, active=$6, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Category, t.NormalRange, t.Unit, t.Active)
	return err
}

func (r *testRepoPG) List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]*LabTest, int, error) {
	query := `SELECT ` + testCols + ` FROM lab_test WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM lab_test WHERE 1=1`
	var args []interface{}
	idx := 1

	if category != "" {
		clause := fmt.Sprintf(` AND category = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, category)
		idx++
	}
	if activeOnly {
		query += ` AND active`
		countQuery += ` AND active`
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY category, name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}
