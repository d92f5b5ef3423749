package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
)

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

const orderCols = `id, order_number, patient_id, patient_name, doctor_id, doctor_name,
	status, priority, notes, result_notes, cancel_reason, idempotency_key, created_at, completed_at`

func scanOrder(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PatientID, &o.PatientName, &o.DoctorID, &o.DoctorName,
		&o.Status, &o.Priority, &o.Notes, &o.ResultNotes, &o.CancelReason, &o.IdempotencyKey,
		&o.CreatedAt, &o.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order not found")
	}
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *LabOrder, change *StatusChange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// One counter row per year keeps order numbers short and human readable.
	var year, seq int
	if err := tx.QueryRow(ctx, `
		INSERT INTO order_counter (year, last_seq) VALUES (EXTRACT(YEAR FROM NOW())::int, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = order_counter.last_seq + 1
		RETURNING year, last_seq`).Scan(&year, &seq); err != nil {
		return err
	}
	o.OrderNumber = fmt.Sprintf("LAB-%d-%03d", year, seq)

	o.ID = uuid.New()
	if err := tx.QueryRow(ctx, `
		INSERT INTO lab_order (id, order_number, patient_id, patient_name, doctor_id, doctor_name,
			status, priority, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		o.ID, o.OrderNumber, o.PatientID, o.PatientName, o.DoctorID, o.DoctorName,
		o.Status, o.Priority, o.Notes, o.IdempotencyKey).
		Scan(&o.CreatedAt); err != nil {
		return err
	}

	for i := range o.Tests {
		t := &o.Tests[i]
		t.OrderID = o.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO lab_order_test (order_id, test_id, test_name, normal_range, unit, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.OrderID, t.TestID, t.TestName, t.NormalRange, t.Unit, i); err != nil {
			return err
		}
	}

	if err := insertStatusChange(ctx, tx, o.ID, change); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertStatusChange(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, change *StatusChange) error {
	change.ID = uuid.New()
	change.OrderID = orderID
	return tx.QueryRow(ctx, `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING changed_at`,
		change.ID, change.OrderID, change.FromStatus, change.ToStatus, change.ChangedBy, change.Reason).
		Scan(&change.ChangedAt)
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM lab_order WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadTests(ctx, []*LabOrder{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) GetByIdempotencyKey(ctx context.Context, doctorID uuid.UUID, key string) (*LabOrder, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_order WHERE doctor_id = $1 AND idempotency_key = $2`, doctorID, key))
	if err != nil {
		return nil, err
	}
	if err := r.loadTests(ctx, []*LabOrder{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*LabOrder, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Priority != "" {
		where += fmt.Sprintf(` AND priority = $%d`, idx)
		args = append(args, f.Priority)
		idx++
	}
	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(` AND (patient_name ILIKE $%d OR order_number ILIKE $%d)`, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lab_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy := ` ORDER BY created_at`
	if f.UrgentFirst {
		orderBy = ` ORDER BY (priority = 'urgent') DESC, created_at DESC`
	}
	query := `SELECT ` + orderCols + ` FROM lab_order` + where + orderBy +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []*LabOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadTests(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// loadTests attaches order test rows to the given orders in one query,
// preserving each order's original test selection sequence.
func (r *orderRepoPG) loadTests(ctx context.Context, list []*LabOrder) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(list))
	byID := make(map[uuid.UUID]*LabOrder, len(list))
	for i, o := range list {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.pool.Query(ctx, `
		SELECT order_id, test_id, test_name, normal_range, unit, result, is_abnormal
		FROM lab_order_test WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t LabOrderTest
		if err := rows.Scan(&t.OrderID, &t.TestID, &t.TestName, &t.NormalRange, &t.Unit, &t.Result, &t.IsAbnormal); err != nil {
			return err
		}
		o := byID[t.OrderID]
		o.Tests = append(o.Tests, t)
	}
	return rows.Err()
}

func (r *orderRepoPG) Complete(ctx context.Context, orderID uuid.UUID, results map[uuid.UUID]ResultInput, resultNotes *string, change *StatusChange) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// The status predicate is the concurrency guard: of two racing
	// completions, only one sees a pending row.
	ct, err := tx.Exec(ctx, `
		UPDATE lab_order SET status = 'completed', completed_at = NOW(), result_notes = $2
		WHERE id = $1 AND status = 'pending'`,
		orderID, resultNotes)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	for testID, in := range results {
		if _, err := tx.Exec(ctx, `
			UPDATE lab_order_test SET result = $3, is_abnormal = $4
			WHERE order_id = $1 AND test_id = $2`,
			orderID, testID, in.Result, in.IsAbnormal); err != nil {
			return false, err
		}
	}

	if err := insertStatusChange(ctx, tx, orderID, change); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *orderRepoPG) Cancel(ctx context.Context, orderID uuid.UUID, reason *string, change *StatusChange) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE lab_order SET status = 'cancelled', cancel_reason = $2
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		orderID, reason)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertStatusChange(ctx, tx, orderID, change); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *orderRepoPG) StatusHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, from_status, to_status, changed_by, reason, changed_at
		FROM order_status_history WHERE order_id = $1 ORDER BY changed_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*StatusChange
	for rows.Next() {
		var ch StatusChange
		if err := rows.Scan(&ch.ID, &ch.OrderID, &ch.FromStatus, &ch.ToStatus, &ch.ChangedBy, &ch.Reason, &ch.ChangedAt); err != nil {
			return nil, err
		}
		history = append(history, &ch)
	}
	return history, rows.Err()
}
