package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/plantcart/plantcart/internal/adapter/handler"
	"github.com/plantcart/plantcart/internal/adapter/storage"
	"github.com/plantcart/plantcart/internal/config"
	"github.com/plantcart/plantcart/internal/core/service"
	"github.com/plantcart/plantcart/internal/lock"
	"github.com/plantcart/plantcart/internal/port"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.MySQL.ConnMaxLifetime))

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	var stock port.StockStore = mysqlAdapter
	if cfg.Stock.Backend == config.BackendRedis {
		stock = redisAdapter
	}
	log.Info().Str("backend", cfg.Stock.Backend).Msg("stock store selected")

	coordinator := service.NewCoordinator(stock, lock.New(), service.ReservationConfig{
		Compensate:   cfg.Reservation.Compensate,
		LockTimeout:  time.Duration(cfg.Reservation.LockTimeout),
		StoreRetries: cfg.Reservation.StoreRetries,
		RetryBackoff: time.Duration(cfg.Reservation.RetryBackoff),
	})
	orderService := service.NewOrderService(coordinator, mysqlAdapter, mysqlAdapter, redisAdapter)

	httpHandler := handler.NewHTTPHandler(orderService, coordinator)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/orders/place-order", httpHandler.PlaceOrder)
	mux.HandleFunc("/api/orders", httpHandler.Orders)
	mux.HandleFunc("/api/orders/incomplete", httpHandler.IncompleteOrders)
	mux.HandleFunc("/api/orders/tracking", httpHandler.UpdateTracking)
	mux.HandleFunc("/api/stock/precheck", httpHandler.PrecheckStock)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("HTTP server stopped")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
