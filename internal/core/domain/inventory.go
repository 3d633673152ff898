package domain

import "fmt"

type PotSize string

const (
	PotSizeSmall  PotSize = "small"
	PotSizeMedium PotSize = "medium"
	PotSizeLarge  PotSize = "large"
)

// Valid reports whether the size maps to a stock field.
func (s PotSize) Valid() bool {
	switch s {
	case PotSizeSmall, PotSizeMedium, PotSizeLarge:
		return true
	}
	return false
}

// InventoryKey identifies one stockable variant: a product in a specific
// pot size and pot color. It is the unit of locking and the predicate of
// conditional decrements.
type InventoryKey struct {
	ProductID int
	Size      PotSize
	Color     string
}

func (k InventoryKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.ProductID, k.Size, k.Color)
}

type ReservationStatus string

const (
	ReservationReserved          ReservationStatus = "reserved"
	ReservationInsufficientStock ReservationStatus = "insufficient_stock"
	ReservationInvalidSize       ReservationStatus = "invalid_size"
	ReservationLockTimeout       ReservationStatus = "lock_timeout"
)

// ReservationOutcome is the transient result of reserving one line item.
// It is never persisted; it only decides commit vs. rejection.
type ReservationOutcome struct {
	Key    InventoryKey
	Status ReservationStatus
}
