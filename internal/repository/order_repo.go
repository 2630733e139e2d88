package repository

import (
	"context"
	"time"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

// OrderRepository defines all persistence operations the bridge needs.
// The pgx implementation is in pg_order_repo.go.
// Tests use a hand-written mock (mock_order_repo.go).
//
// Candidate selection and the bridged-marker write are two sides of the same
// idempotency gate: ListPending and FindPending exclude any order_no that has
// a bridging_logs row, and RecordBridged creates exactly that row.
type OrderRepository interface {
	// ListPending returns unsent orders with transaction_time >= since,
	// newest first, capped at limit. An empty result is not an error.
	ListPending(ctx context.Context, since time.Time, limit int) ([]domain.LabOrder, error)

	// FindPending returns the unsent order with the given business key, or
	// domain.ErrOrderNotFound when the order does not exist or was already
	// bridged.
	FindPending(ctx context.Context, orderNo string) (*domain.LabOrder, error)

	// RecordBridged writes the marker header and one detail row per item in
	// a single transaction. Either all rows commit or none do.
	RecordBridged(ctx context.Context, tx domain.BridgeTransaction, serviceRequestID string) error
}
