package port

import (
	"context"

	"github.com/plantcart/plantcart/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a fully-reserved order with its items and
	// tracking steps.
	CreateOrder(ctx context.Context, order domain.Order) error

	// OrdersByIDs returns the orders matching ids, newest first. Unknown ids
	// are skipped.
	OrdersByIDs(ctx context.Context, ids []string) ([]domain.Order, error)

	// IncompleteOrders returns orders that still have a pending tracking
	// step, newest first.
	IncompleteOrders(ctx context.Context) ([]domain.Order, error)

	// UpdateTrackingSteps replaces the tracking-step sequence of one order.
	UpdateTrackingSteps(ctx context.Context, orderID string, steps []domain.TrackingStep) error
}
