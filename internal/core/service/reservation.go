package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plantcart/plantcart/internal/core/domain"
	"github.com/plantcart/plantcart/internal/metrics"
	"github.com/plantcart/plantcart/internal/port"
)

var (
	ErrInvalidUser       = errors.New("invalid user id")
	ErrInvalidSize       = errors.New("invalid pot size")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStoreUnavailable  = errors.New("stock store unavailable")
	ErrLockTimeout       = errors.New("inventory lock timeout")
)

var userIDPattern = regexp.MustCompile(`^[a-f0-9]{24}$`)

type ReservationConfig struct {
	// Compensate re-increments already-reserved items when a later item of
	// the same order fails. Off by default: the historical behavior leaves
	// earlier decrements applied and rejects the order, so inventory for
	// those items drifts until reconciliation.
	Compensate bool

	// LockTimeout bounds each per-key acquire; zero means wait forever.
	LockTimeout time.Duration

	// StoreRetries is how many times a failed (not no-match) decrement is
	// retried before surfacing ErrStoreUnavailable.
	StoreRetries int

	RetryBackoff time.Duration
}

// Coordinator reserves stock for every line item of one order. It holds at
// most one inventory lock at a time and never writes an Order; its only
// externally visible effect is decremented stock cells.
type Coordinator struct {
	stock port.StockStore
	locks port.Locker
	cfg   ReservationConfig
}

func NewCoordinator(stock port.StockStore, locks port.Locker, cfg ReservationConfig) *Coordinator {
	if cfg.StoreRetries < 0 {
		cfg.StoreRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return &Coordinator{stock: stock, locks: locks, cfg: cfg}
}

// Reserve attempts to reserve stock for items in their listed order and
// aborts on the first failure. The returned outcomes cover every item
// attempted, including the failing one.
func (c *Coordinator) Reserve(ctx context.Context, userID string, items []domain.OrderLineItem) ([]domain.ReservationOutcome, error) {
	if !userIDPattern.MatchString(userID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
	}

	outcomes := make([]domain.ReservationOutcome, 0, len(items))
	reserved := make([]domain.OrderLineItem, 0, len(items))

	for _, it := range items {
		key := it.Key()

		if !it.Size.Valid() {
			outcomes = append(outcomes, domain.ReservationOutcome{Key: key, Status: domain.ReservationInvalidSize})
			log.Warn().Str("user_id", userID).Str("size", string(it.Size)).Int("product_id", it.ProductID).
				Msg("rejecting order: unmapped pot size")
			c.compensateReserved(reserved)
			return outcomes, fmt.Errorf("%w: %q", ErrInvalidSize, it.Size)
		}

		if err := c.acquire(ctx, key); err != nil {
			outcomes = append(outcomes, domain.ReservationOutcome{Key: key, Status: domain.ReservationLockTimeout})
			log.Warn().Str("user_id", userID).Str("key", key.String()).Err(err).
				Msg("rejecting order: inventory lock not acquired")
			c.compensateReserved(reserved)
			return outcomes, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		matched, err := c.decrementWithRetry(ctx, key, it.Quantity)
		c.locks.Release(key.String())

		if err != nil {
			c.compensateReserved(reserved)
			return outcomes, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !matched {
			metrics.StockConflicts.Inc()
			outcomes = append(outcomes, domain.ReservationOutcome{Key: key, Status: domain.ReservationInsufficientStock})
			log.Warn().Str("user_id", userID).Str("key", key.String()).Int("quantity", it.Quantity).
				Msg("rejecting order: insufficient stock")
			c.compensateReserved(reserved)
			return outcomes, fmt.Errorf("%w: %s", ErrInsufficientStock, key)
		}

		outcomes = append(outcomes, domain.ReservationOutcome{Key: key, Status: domain.ReservationReserved})
		reserved = append(reserved, it)
	}

	return outcomes, nil
}

// PrecheckStock is a read-only sufficiency check for one variant, used
// before payment capture. It takes no lock and changes no state; a passing
// precheck is not a reservation.
func (c *Coordinator) PrecheckStock(ctx context.Context, key domain.InventoryKey, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if !key.Size.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidSize, key.Size)
	}
	available, err := c.stock.AvailableStock(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return available >= quantity, nil
}

func (c *Coordinator) acquire(ctx context.Context, key domain.InventoryKey) error {
	if c.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LockTimeout)
		defer cancel()
	}
	return c.locks.Acquire(ctx, key.String())
}

func (c *Coordinator) decrementWithRetry(ctx context.Context, key domain.InventoryKey, quantity int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.StoreRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			backoff += time.Duration(rand.Int63n(int64(backoff/2) + 1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}

		matched, err := c.stock.DecrementIfAvailable(ctx, key, quantity)
		if err != nil {
			lastErr = err
			log.Warn().Str("key", key.String()).Int("attempt", attempt).Err(err).
				Msg("stock store unavailable")
			continue
		}
		return matched, nil
	}
	return false, lastErr
}

// compensateReserved returns already-decremented items to stock when the
// coordinator runs in compensating mode. Each increment happens under the
// item's lock, one key at a time.
func (c *Coordinator) compensateReserved(reserved []domain.OrderLineItem) {
	if !c.cfg.Compensate || len(reserved) == 0 {
		return
	}

	// The caller's context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, it := range reserved {
		key := it.Key()
		if err := c.acquire(ctx, key); err != nil {
			log.Error().Str("key", key.String()).Int("quantity", it.Quantity).Err(err).
				Msg("CRITICAL: compensating increment skipped, stock drifted")
			continue
		}
		err := c.stock.IncrementStock(ctx, key, it.Quantity)
		c.locks.Release(key.String())
		if err != nil {
			log.Error().Str("key", key.String()).Int("quantity", it.Quantity).Err(err).
				Msg("CRITICAL: compensating increment failed, stock drifted")
		}
	}
}
