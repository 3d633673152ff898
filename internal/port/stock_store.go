package port

import (
	"context"

	"github.com/plantcart/plantcart/internal/core/domain"
)

// StockStore is the atomic inventory backend. DecrementIfAvailable is the
// single primitive every reservation goes through: the stock cell is never
// read-then-written outside it.
type StockStore interface {
	// DecrementIfAvailable atomically decrements the cell for key by quantity
	// only if the current count is at least quantity. It returns false when no
	// cell matched (insufficient stock or unknown key). A non-nil error means
	// the store itself failed and the result is unknown; it never means a
	// legitimate no-match.
	DecrementIfAvailable(ctx context.Context, key domain.InventoryKey, quantity int) (bool, error)

	// IncrementStock restores quantity units to the cell (compensation path).
	IncrementStock(ctx context.Context, key domain.InventoryKey, quantity int) error

	// AvailableStock reads the current count; an unknown key reads as zero.
	AvailableStock(ctx context.Context, key domain.InventoryKey) (int, error)
}
