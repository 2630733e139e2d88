package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

const orderColumns = `
	o.order_no, o.registration_no, o.record_no,
	o.patient_id, o.patient_name, o.encounter_id, o.transaction_time,
	o.practitioner_id, o.practitioner_name, o.performer_id, o.performer_name`

type pgOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPgOrderRepository returns an OrderRepository backed by PostgreSQL.
func NewPgOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepository{pool: pool}
}

func (r *pgOrderRepository) ListPending(ctx context.Context, since time.Time, limit int) ([]domain.LabOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+orderColumns+`
		FROM lab_orders o
		WHERE o.transaction_time >= $1
		  AND NOT EXISTS (
			SELECT 1 FROM bridging_logs l WHERE l.order_no = o.order_no
		  )
		ORDER BY o.transaction_time DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending orders: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (r *pgOrderRepository) FindPending(ctx context.Context, orderNo string) (*domain.LabOrder, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+orderColumns+`
		FROM lab_orders o
		WHERE o.order_no = $1
		  AND NOT EXISTS (
			SELECT 1 FROM bridging_logs l WHERE l.order_no = o.order_no
		  )`, orderNo)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find pending order: %v", domain.ErrStore, err)
	}
	return o, nil
}

func (r *pgOrderRepository) RecordBridged(ctx context.Context, t domain.BridgeTransaction, serviceRequestID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrStore, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO bridging_logs
			(order_no, service_request_id, registration_no, record_no,
			 encounter_id, authored_on, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.Order.OrderNo, serviceRequestID, t.Order.RegistrationNo, t.Order.RecordNo,
		t.Order.EncounterID, t.Order.TransactionTime, now,
	)
	if err != nil {
		return fmt.Errorf("%w: insert bridging log: %v", domain.ErrStore, err)
	}

	for _, item := range t.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO bridging_log_items
				(order_no, service_request_id, loinc_code, loinc_display)
			VALUES ($1,$2,$3,$4)`,
			t.Order.OrderNo, serviceRequestID, item.Coding.Code, item.Coding.Display,
		)
		if err != nil {
			return fmt.Errorf("%w: insert bridging log item: %v", domain.ErrStore, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit bridging log: %v", domain.ErrStore, err)
	}

	return nil
}

// ---- helpers ----

func scanOrder(row pgx.Row) (*domain.LabOrder, error) {
	var o domain.LabOrder
	err := row.Scan(
		&o.OrderNo, &o.RegistrationNo, &o.RecordNo,
		&o.PatientID, &o.PatientName, &o.EncounterID, &o.TransactionTime,
		&o.PractitionerID, &o.PractitionerName, &o.PerformerID, &o.PerformerName,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]domain.LabOrder, error) {
	var result []domain.LabOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan order: %v", domain.ErrStore, err)
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate orders: %v", domain.ErrStore, err)
	}
	return result, nil
}
