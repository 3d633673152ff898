package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	TrackingStepPlaced    = "Order Placed"
	TrackingStepShipped   = "Shipped"
	TrackingStepDelivered = "Delivered"
)

// OrderLineItem is one variant purchase within an order. Quantity is a
// positive integer, validated before any reservation is attempted.
type OrderLineItem struct {
	ProductID int
	Name      string
	Image     string
	Quantity  int
	UnitPrice float64
	Size      PotSize
	Color     string
}

// Key derives the inventory key the item reserves against.
func (i OrderLineItem) Key() InventoryKey {
	return InventoryKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// TrackingStep is a fulfillment milestone. Date is nil until the step
// completes; a separate fulfillment workflow flips Completed later.
type TrackingStep struct {
	Step      string
	Completed bool
	Date      *time.Time
}

type Order struct {
	ID              string
	UserID          string
	CustomerName    string
	Phone           string
	SparePhone      string
	Items           []OrderLineItem
	Total           float64
	Status          OrderStatus
	PaymentMethod   string
	PaymentStatus   string
	DeliveryAddress string
	DeliveryDate    time.Time
	TrackingNumber  string
	TrackingSteps   []TrackingStep
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTrackingSteps returns the initial three-step sequence for a freshly
// placed order: Placed done now, Shipped and Delivered pending.
func NewTrackingSteps(now time.Time) []TrackingStep {
	placed := now
	return []TrackingStep{
		{Step: TrackingStepPlaced, Completed: true, Date: &placed},
		{Step: TrackingStepShipped, Completed: false},
		{Step: TrackingStepDelivered, Completed: false},
	}
}
