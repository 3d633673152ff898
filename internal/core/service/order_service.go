package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/plantcart/plantcart/internal/core/domain"
	"github.com/plantcart/plantcart/internal/metrics"
	"github.com/plantcart/plantcart/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

const deliveryLeadTime = 7 * 24 * time.Hour

type PlaceOrderRequest struct {
	RequestID       string
	UserID          string
	CustomerName    string
	Phone           string
	SparePhone      string
	Items           []domain.OrderLineItem
	DeliveryAddress string
	PaymentMethod   string
	PaymentStatus   string
}

// OrderService commits fully-reserved orders. Payment confirmation is a
// precondition of PlaceOrder, not something this service checks.
type OrderService struct {
	coordinator *Coordinator
	orders      port.OrderRepository
	users       port.UserRepository
	cache       port.CacheRepository
}

func NewOrderService(coordinator *Coordinator, orders port.OrderRepository, users port.UserRepository, cache port.CacheRepository) *OrderService {
	return &OrderService{
		coordinator: coordinator,
		orders:      orders,
		users:       users,
		cache:       cache,
	}
}

// PlaceOrder reserves every line item and, only if all of them succeed,
// persists the order and links it to the user's history. On any reservation
// failure no order record is written.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if req.RequestID != "" {
		idempotencyKey := fmt.Sprintf("order:%s:%s", req.UserID, req.RequestID)
		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			metrics.OrdersRejected.WithLabelValues(rejectReason(ErrDuplicateRequest)).Inc()
			return nil, ErrDuplicateRequest
		}
	}

	if _, err := s.coordinator.Reserve(ctx, req.UserID, req.Items); err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	now := time.Now()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		CustomerName:    req.CustomerName,
		Phone:           req.Phone,
		SparePhone:      req.SparePhone,
		Items:           req.Items,
		Total:           orderTotal(req.Items),
		Status:          domain.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryDate:    now.Add(deliveryLeadTime),
		TrackingNumber:  req.UserID + strconv.FormatInt(now.UnixNano(), 10),
		TrackingSteps:   domain.NewTrackingSteps(now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = "via upi"
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = "Paid"
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		metrics.OrdersRejected.WithLabelValues("internal").Inc()
		return nil, fmt.Errorf("persist order: %w", err)
	}

	// The history append is a separate write; if it fails the order still
	// exists and stays discoverable by id.
	if err := s.users.AppendOrder(ctx, req.UserID, order.ID); err != nil {
		metrics.HistoryAppendFailures.Inc()
		log.Error().Str("user_id", req.UserID).Str("order_id", order.ID).Err(err).
			Msg("order persisted but user history append failed")
	}

	metrics.OrdersPlaced.Inc()
	log.Info().Str("user_id", req.UserID).Str("order_id", order.ID).
		Int("items", len(order.Items)).Float64("total", order.Total).
		Msg("order placed")

	return &order, nil
}

func (s *OrderService) OrdersByIDs(ctx context.Context, ids []string) ([]domain.Order, error) {
	return s.orders.OrdersByIDs(ctx, ids)
}

func (s *OrderService) IncompleteOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.IncompleteOrders(ctx)
}

func (s *OrderService) UpdateTrackingSteps(ctx context.Context, orderID string, steps []domain.TrackingStep) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", domain.ErrOrderNotFound)
	}
	return s.orders.UpdateTrackingSteps(ctx, orderID, steps)
}

func (s *OrderService) User(ctx context.Context, id string) (*domain.User, error) {
	return s.users.FindUser(ctx, id)
}

func orderTotal(items []domain.OrderLineItem) float64 {
	var total float64
	for _, it := range items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrInvalidUser):
		return "invalid_user"
	case errors.Is(err, ErrInvalidSize):
		return "invalid_size"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "internal"
}
