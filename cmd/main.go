/**
 * @description
 * This is the main entry point for the onramp-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * persistence layer, the licensed partner client, the audit event producer,
 * the settlement service, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/vaspclient: Client for the licensed VASP partner API.
 * - pkg/rabbitmq: Client for RabbitMQ.
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nairagate/onramp-service/internal/api"
	"github.com/nairagate/onramp-service/internal/app"
	"github.com/nairagate/onramp-service/internal/config"
	"github.com/nairagate/onramp-service/internal/store"
	"github.com/nairagate/onramp-service/pkg/rabbitmq"
	"github.com/nairagate/onramp-service/pkg/vaspclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting onramp-service\" port=%s store=%s", cfg.ServerPort, cfg.StoreDriver)

	// Initialize the persistence layer.
	repository, cleanup, err := buildRepository(cfg)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"store init failed\" err=%v", err)
	}
	defer cleanup()

	// Initialize the RabbitMQ producer used as the audit sink. Audit emission
	// degrades to process log lines when the broker is unavailable.
	var producer rabbitmq.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; audit events go to process log\"")
	} else {
		eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
			producer = &rabbitmq.EventProducerFallback{}
		} else {
			defer eventProducer.Close()
			producer = eventProducer
			log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		}
	}

	// Initialize the licensed partner client. The simulated client is the
	// default; the HTTP client requires a base URL and API key.
	partner, err := buildPartnerClient(cfg)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"vasp client init failed\" err=%v", err)
	}

	// Initialize the core settlement service with its dependencies.
	complianceCfg := app.NewComplianceConfig(cfg.DailyLimit, cfg.LicensedVASPs, cfg.MaxRiskScore)
	settlementService := app.NewService(repository, partner, app.NewAuditLogger(producer), complianceCfg)

	// Initialize the API handlers, with optional Redis-backed rate limiting.
	onrampHandlers := api.NewOnrampHandlers(settlementService)
	if cfg.OnrampRateLimitPerMinute > 0 {
		if redisClient := connectRedis(cfg); redisClient != nil {
			defer redisClient.Close()
			onrampHandlers.SetRateLimiter(
				app.NewRedisSettlementRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
				cfg.OnrampRateLimitPerMinute,
			)
		}
	}

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/onramp", api.OnrampRoutes(onrampHandlers, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
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

// buildRepository selects the persistence layer from STORE_DRIVER. The memory
// driver backs local runs without a database; postgres is the production path.
func buildRepository(cfg config.Config) (store.Repository, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Println("level=warn component=bootstrap msg=\"using in-memory store; state is not durable\"")
		return store.NewMemoryRepository(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database url parse failed: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	repository := store.NewPostgresRepository(dbpool)
	if err := repository.EnsureSchema(context.Background()); err != nil {
		dbpool.Close()
		return nil, nil, err
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return repository, dbpool.Close, nil
}

// buildPartnerClient selects the VASP integration from VASP_CLIENT_MODE.
func buildPartnerClient(cfg config.Config) (app.PartnerClient, error) {
	switch cfg.VASPClientMode {
	case "", "simulated":
		log.Println("level=info component=bootstrap msg=\"using simulated vasp client\"")
		return vaspclient.NewSimulated(), nil
	case "http":
		if strings.TrimSpace(cfg.VASPAPIBaseURL) == "" || strings.TrimSpace(cfg.VASPAPIKey) == "" {
			return nil, fmt.Errorf("VASP_API_BASE_URL and VASP_API_KEY must be set for http mode")
		}
		return vaspclient.NewClient(cfg.VASPAPIBaseURL, cfg.VASPAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown VASP_CLIENT_MODE %q", cfg.VASPClientMode)
	}
}

// connectRedis dials Redis for the settlement rate limiter. Failures disable
// rate limiting rather than preventing the service from booting.
func connectRedis(cfg config.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; settlement rate limiting disabled\" env=REDIS_URL")
		return nil
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; settlement rate limiting disabled\" err=%v", err)
		return nil
	}
	redisClient := redis.NewClient(redisOptions)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; settlement rate limiting disabled\" err=%v", pingErr)
		redisClient.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return redisClient
}
