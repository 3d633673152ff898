package port

import (
	"context"

	"github.com/plantcart/plantcart/internal/core/domain"
)

type UserRepository interface {
	// FindUser returns the user or nil when no user matches id.
	FindUser(ctx context.Context, id string) (*domain.User, error)

	// AppendOrder links orderID to the user's order history.
	AppendOrder(ctx context.Context, userID, orderID string) error
}
