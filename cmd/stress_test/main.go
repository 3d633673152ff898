package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantcart/plantcart/internal/adapter/storage"
	"github.com/plantcart/plantcart/internal/core/domain"
	"github.com/plantcart/plantcart/internal/core/service"
	"github.com/plantcart/plantcart/internal/lock"
)

const (
	redisAddr     = "localhost:6379"
	initialStock  = 20
	totalRequests = 50
	userID        = "64a1f0c2b3d4e5f601234567"
)

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	key := domain.InventoryKey{ProductID: 7, Size: domain.PotSizeSmall, Color: "red"}

	redisAdapter := storage.NewRedisAdapter(rdb)
	if err := redisAdapter.SetStock(ctx, key, initialStock); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	coordinator := service.NewCoordinator(redisAdapter, lock.New(), service.ReservationConfig{})

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent checkouts racing for the same variant
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := coordinator.Reserve(ctx, userID, []domain.OrderLineItem{
				{ProductID: 7, Name: "Monstera", Quantity: 1, UnitPrice: 50, Size: domain.PotSizeSmall, Color: "red"},
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	// Verify final stock in Redis
	finalStock, _ := redisAdapter.AvailableStock(ctx, key)
	fmt.Printf("Final Redis Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}
