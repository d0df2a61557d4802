/**
 * @description
 * This is the main entry point for the transaction-service. It is responsible
 * for initializing all components of the service: configuration, the
 * transaction log (Postgres when a database is configured, in-memory
 * otherwise), the ledger and directory clients, the event producer, the
 * optional Redis rate limiter, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5 (via internal/api): HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal
 *   packages for the service.
 * - pkg/ledgerclient, pkg/directoryclient, pkg/rabbitmq: Upstream clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bankingapp/transaction-service/internal/api"
	"github.com/bankingapp/transaction-service/internal/app"
	"github.com/bankingapp/transaction-service/internal/config"
	"github.com/bankingapp/transaction-service/internal/store"
	"github.com/bankingapp/transaction-service/pkg/directoryclient"
	"github.com/bankingapp/transaction-service/pkg/ledgerclient"
	"github.com/bankingapp/transaction-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.LedgerServiceURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"ledger service url must be configured\" env=LEDGER_SERVICE_URL")
	}
	if strings.TrimSpace(cfg.DirectoryServiceURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"directory service url must be configured\" env=DIRECTORY_SERVICE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting transaction-service\" port=%s", cfg.ServerPort)

	// Transaction log: Postgres when a database is configured, in-memory
	// otherwise. Both sit behind the same interface, so multiple orchestrator
	// instances can share a log simply by pointing at the same database.
	var txLog store.TransactionLog
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 20
		poolConfig.MinConns = 2
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		pgLog := store.NewPostgresLog(dbpool)
		if err := pgLog.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
		}
		txLog = pgLog
		log.Println("level=info component=bootstrap msg=\"postgres transaction log ready\"")
	} else {
		txLog = store.NewMemoryLog()
		log.Println("level=info component=bootstrap msg=\"using in-memory transaction log\"")
	}

	// Event producer: optional; fall back to a no-op publisher so a missing
	// broker never blocks money movement.
	var producer rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		} else {
			defer eventProducer.Close()
			producer = eventProducer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}

	// Clients for the external ledger and directory services.
	ledger := ledgerclient.NewClient(cfg.LedgerServiceURL)
	directory := directoryclient.NewClient(cfg.DirectoryServiceURL)

	// Initialize the core orchestrator with its dependencies.
	transactionService := app.NewService(txLog, ledger, directory, producer, cfg.EventExchange)
	transactionService.ConfigureSubmitRateLimit(cfg.SubmitRateLimitPerMinute)

	if cfg.SubmitRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; submit rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; submit rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; submit rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					transactionService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the API handlers and router.
	transactionHandlers := api.NewTransactionHandlers(transactionService)
	router := api.TransactionRoutes(transactionHandlers)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
