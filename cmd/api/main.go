package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Astralabs2050/render-backend-sub000/internal/config"
	"github.com/Astralabs2050/render-backend-sub000/internal/db"
	"github.com/Astralabs2050/render-backend-sub000/internal/events"
	apphttp "github.com/Astralabs2050/render-backend-sub000/internal/http"
	"github.com/Astralabs2050/render-backend-sub000/internal/http/handlers"
	"github.com/Astralabs2050/render-backend-sub000/internal/repositories"
	"github.com/Astralabs2050/render-backend-sub000/internal/services"
	"github.com/Astralabs2050/render-backend-sub000/internal/settlement"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Settlement
	if cfg.TONEscrowWalletAddress == "" {
		log.Fatal("TON_ESCROW_WALLET_ADDRESS is required")
	}
	adapter, err := settlement.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}

	// Repositories
	escrowRepo := repositories.NewEscrowRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	escrowService := services.NewEscrowService(escrowRepo, auditRepo, adapter, publisher, cfg, log)
	statsService := services.NewStatsService(escrowRepo, log)

	// Handlers
	escrowHandler := handlers.NewEscrowHandler(escrowService, statsService, log)
	milestoneHandler := handlers.NewMilestoneHandler(escrowService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, escrowHandler, milestoneHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
