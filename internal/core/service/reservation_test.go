package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plantcart/plantcart/internal/core/domain"
	"github.com/plantcart/plantcart/internal/lock"
	"github.com/plantcart/plantcart/internal/port"
)

const testUserID = "64a1f0c2b3d4e5f601234567"

// Mock StockStore
type mockStockStore struct {
	mu    sync.Mutex
	cells map[domain.InventoryKey]int

	delay       time.Duration
	failTimes   atomic.Int32 // errors to return before behaving again
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newMockStockStore(cells map[domain.InventoryKey]int) *mockStockStore {
	if cells == nil {
		cells = make(map[domain.InventoryKey]int)
	}
	return &mockStockStore{cells: cells}
}

func (m *mockStockStore) DecrementIfAvailable(ctx context.Context, key domain.InventoryKey, quantity int) (bool, error) {
	m.calls.Add(1)
	if m.failTimes.Load() > 0 {
		m.failTimes.Add(-1)
		return false, errors.New("store down")
	}

	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cells[key] >= quantity {
		m.cells[key] -= quantity
		return true, nil
	}
	return false, nil
}

func (m *mockStockStore) IncrementStock(ctx context.Context, key domain.InventoryKey, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[key] += quantity
	return nil
}

func (m *mockStockStore) AvailableStock(ctx context.Context, key domain.InventoryKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[key], nil
}

func (m *mockStockStore) count(key domain.InventoryKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[key]
}

// countingLocker wraps a real lock table and counts acquisitions.
type countingLocker struct {
	inner    port.Locker
	acquires atomic.Int32
}

func (c *countingLocker) Acquire(ctx context.Context, key string) error {
	c.acquires.Add(1)
	return c.inner.Acquire(ctx, key)
}

func (c *countingLocker) Release(key string) {
	c.inner.Release(key)
}

func item(productID int, size domain.PotSize, color string, quantity int) domain.OrderLineItem {
	return domain.OrderLineItem{ProductID: productID, Size: size, Color: color, Quantity: quantity, UnitPrice: 50}
}

func TestReserve_Success(t *testing.T) {
	k1 := domain.InventoryKey{ProductID: 1, Size: domain.PotSizeSmall, Color: "red"}
	k2 := domain.InventoryKey{ProductID: 2, Size: domain.PotSizeLarge, Color: "white"}
	store := newMockStockStore(map[domain.InventoryKey]int{k1: 5, k2: 3})
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})

	outcomes, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(1, domain.PotSizeSmall, "red", 2),
		item(2, domain.PotSizeLarge, "white", 1),
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Status != domain.ReservationReserved {
			t.Errorf("expected reserved outcome for %s, got %s", o.Key, o.Status)
		}
	}
	if store.count(k1) != 3 {
		t.Errorf("expected 3 units left for %s, got %d", k1, store.count(k1))
	}
	if store.count(k2) != 2 {
		t.Errorf("expected 2 units left for %s, got %d", k2, store.count(k2))
	}
}

func TestReserve_InvalidUser(t *testing.T) {
	store := newMockStockStore(nil)
	locker := &countingLocker{inner: lock.New()}
	coord := NewCoordinator(store, locker, ReservationConfig{})

	_, err := coord.Reserve(context.Background(), "not-an-id", []domain.OrderLineItem{
		item(1, domain.PotSizeSmall, "red", 1),
	})
	if !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got: %v", err)
	}
	if locker.acquires.Load() != 0 {
		t.Errorf("expected no lock acquisitions, got %d", locker.acquires.Load())
	}
	if store.calls.Load() != 0 {
		t.Errorf("expected no store calls, got %d", store.calls.Load())
	}
}

func TestReserve_InvalidSize_NoLocksNoStoreCalls(t *testing.T) {
	store := newMockStockStore(nil)
	locker := &countingLocker{inner: lock.New()}
	coord := NewCoordinator(store, locker, ReservationConfig{})

	outcomes, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(1, "xl", "red", 1),
	})
	if !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != domain.ReservationInvalidSize {
		t.Fatalf("expected a single invalid_size outcome, got %v", outcomes)
	}
	if locker.acquires.Load() != 0 {
		t.Errorf("expected zero lock acquisitions, got %d", locker.acquires.Load())
	}
	if store.calls.Load() != 0 {
		t.Errorf("expected zero store calls, got %d", store.calls.Load())
	}
}

func TestReserve_InvalidQuantity(t *testing.T) {
	store := newMockStockStore(nil)
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})

	_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(1, domain.PotSizeSmall, "red", 0),
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
	if store.calls.Load() != 0 {
		t.Errorf("expected zero store calls, got %d", store.calls.Load())
	}
}

// Two concurrent orders race for a cell holding 3 units, each wanting 2.
// Exactly one may win; the cell ends at 1.
func TestReserve_ConcurrentContention(t *testing.T) {
	key := domain.InventoryKey{ProductID: 7, Size: domain.PotSizeSmall, Color: "red"}
	store := newMockStockStore(map[domain.InventoryKey]int{key: 3})
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})

	var success, insufficient atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
				item(7, domain.PotSizeSmall, "red", 2),
			})
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success.Load() != 1 || insufficient.Load() != 1 {
		t.Errorf("expected exactly 1 success and 1 insufficient, got %d/%d",
			success.Load(), insufficient.Load())
	}
	if store.count(key) != 1 {
		t.Errorf("expected 1 unit left, got %d", store.count(key))
	}
}

func TestReserve_NoOversellUnderLoad(t *testing.T) {
	key := domain.InventoryKey{ProductID: 9, Size: domain.PotSizeMedium, Color: "terracotta"}
	initial := 20
	store := newMockStockStore(map[domain.InventoryKey]int{key: initial})
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
				item(9, domain.PotSizeMedium, "terracotta", 1),
			})
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != int32(initial) {
		t.Errorf("expected %d successes, got %d", initial, success.Load())
	}
	if store.count(key) != 0 {
		t.Errorf("expected stock 0, got %d", store.count(key))
	}
}

// A later item failing does not undo earlier decrements in the default
// (historical) mode: the order is rejected but the first item's stock stays
// decremented and unreferenced. That drift is the documented behavior.
func TestReserve_PartialFailureLeavesEarlierDecrements(t *testing.T) {
	k1 := domain.InventoryKey{ProductID: 1, Size: domain.PotSizeSmall, Color: "red"}
	k2 := domain.InventoryKey{ProductID: 2, Size: domain.PotSizeSmall, Color: "red"}
	store := newMockStockStore(map[domain.InventoryKey]int{k1: 5, k2: 0})
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})

	outcomes, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(1, domain.PotSizeSmall, "red", 1),
		item(2, domain.PotSizeSmall, "red", 1),
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != domain.ReservationReserved {
		t.Errorf("expected first item reserved, got %s", outcomes[0].Status)
	}
	if outcomes[1].Status != domain.ReservationInsufficientStock {
		t.Errorf("expected second item insufficient, got %s", outcomes[1].Status)
	}
	if store.count(k1) != 4 {
		t.Errorf("expected drifted stock 4 for first item, got %d", store.count(k1))
	}
	if store.count(k2) != 0 {
		t.Errorf("expected stock 0 for second item, got %d", store.count(k2))
	}
}

func TestReserve_CompensateRestoresEarlierDecrements(t *testing.T) {
	k1 := domain.InventoryKey{ProductID: 1, Size: domain.PotSizeSmall, Color: "red"}
	k2 := domain.InventoryKey{ProductID: 2, Size: domain.PotSizeSmall, Color: "red"}
	store := newMockStockStore(map[domain.InventoryKey]int{k1: 5, k2: 0})
	coord := NewCoordinator(store, lock.New(), ReservationConfig{Compensate: true})

	_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(1, domain.PotSizeSmall, "red", 1),
		item(2, domain.PotSizeSmall, "red", 1),
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	if store.count(k1) != 5 {
		t.Errorf("expected stock restored to 5, got %d", store.count(k1))
	}
}

func TestReserve_RetriesStoreOutage(t *testing.T) {
	key := domain.InventoryKey{ProductID: 3, Size: domain.PotSizeLarge, Color: "black"}
	store := newMockStockStore(map[domain.InventoryKey]int{key: 2})
	store.failTimes.Store(2)
	coord := NewCoordinator(store, lock.New(), ReservationConfig{
		StoreRetries: 3,
		RetryBackoff: time.Millisecond,
	})

	_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(3, domain.PotSizeLarge, "black", 1),
	})
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if store.count(key) != 1 {
		t.Errorf("expected stock 1, got %d", store.count(key))
	}
}

// A persistent store outage must surface as ErrStoreUnavailable, never as
// insufficient stock.
func TestReserve_StoreUnavailable(t *testing.T) {
	key := domain.InventoryKey{ProductID: 3, Size: domain.PotSizeLarge, Color: "black"}
	store := newMockStockStore(map[domain.InventoryKey]int{key: 2})
	store.failTimes.Store(10)
	coord := NewCoordinator(store, lock.New(), ReservationConfig{
		StoreRetries: 1,
		RetryBackoff: time.Millisecond,
	})

	_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(3, domain.PotSizeLarge, "black", 1),
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got: %v", err)
	}
	if errors.Is(err, ErrInsufficientStock) {
		t.Fatal("store outage must not be reported as insufficient stock")
	}
	if store.count(key) != 2 {
		t.Errorf("expected stock untouched at 2, got %d", store.count(key))
	}
}

func TestReserve_LockTimeout(t *testing.T) {
	key := domain.InventoryKey{ProductID: 4, Size: domain.PotSizeSmall, Color: "blue"}
	store := newMockStockStore(map[domain.InventoryKey]int{key: 10})
	locks := lock.New()
	coord := NewCoordinator(store, locks, ReservationConfig{LockTimeout: 20 * time.Millisecond})

	// Another task holds the key for the duration of the test.
	if err := locks.Acquire(context.Background(), key.String()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer locks.Release(key.String())

	_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
		item(4, domain.PotSizeSmall, "blue", 1),
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got: %v", err)
	}
	if store.calls.Load() != 0 {
		t.Errorf("expected no store call after lock timeout, got %d", store.calls.Load())
	}
}

// With artificial delay inside the decrement, no two decrements against the
// same key may ever be observed in flight together.
func TestReserve_DecrementsSerializedPerKey(t *testing.T) {
	key := domain.InventoryKey{ProductID: 5, Size: domain.PotSizeMedium, Color: "green"}
	store := newMockStockStore(map[domain.InventoryKey]int{key: 10})
	store.delay = 2 * time.Millisecond
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
				item(5, domain.PotSizeMedium, "green", 1),
			})
		}()
	}
	wg.Wait()

	if store.maxInFlight.Load() != 1 {
		t.Errorf("observed %d concurrent decrements for one key, want 1", store.maxInFlight.Load())
	}
}

// Contention on one key must not delay reservations against another key.
func TestReserve_DisjointKeysIndependent(t *testing.T) {
	contended := domain.InventoryKey{ProductID: 6, Size: domain.PotSizeSmall, Color: "red"}
	free := domain.InventoryKey{ProductID: 8, Size: domain.PotSizeSmall, Color: "red"}
	store := newMockStockStore(map[domain.InventoryKey]int{contended: 1, free: 1})
	locks := lock.New()
	coord := NewCoordinator(store, locks, ReservationConfig{})

	// Jam the contended key.
	if err := locks.Acquire(context.Background(), contended.String()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer locks.Release(contended.String())

	done := make(chan error, 1)
	go func() {
		_, err := coord.Reserve(context.Background(), testUserID, []domain.OrderLineItem{
			item(8, domain.PotSizeSmall, "red", 1),
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reservation on free key failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reservation on an unrelated key blocked behind contention")
	}
}

func TestPrecheckStock(t *testing.T) {
	key := domain.InventoryKey{ProductID: 1, Size: domain.PotSizeSmall, Color: "red"}
	store := newMockStockStore(map[domain.InventoryKey]int{key: 3})
	coord := NewCoordinator(store, lock.New(), ReservationConfig{})
	ctx := context.Background()

	ok, err := coord.PrecheckStock(ctx, key, 3)
	if err != nil || !ok {
		t.Errorf("expected sufficient precheck, got ok=%v err=%v", ok, err)
	}

	ok, err = coord.PrecheckStock(ctx, key, 4)
	if err != nil || ok {
		t.Errorf("expected insufficient precheck, got ok=%v err=%v", ok, err)
	}

	bad := key
	bad.Size = "xl"
	if _, err := coord.PrecheckStock(ctx, bad, 1); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got: %v", err)
	}

	// A precheck is read-only.
	if store.count(key) != 3 {
		t.Errorf("precheck mutated stock: %d", store.count(key))
	}
}
