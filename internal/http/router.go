package http

import (
	"time"

	"github.com/Astralabs2050/render-backend-sub000/internal/config"
	"github.com/Astralabs2050/render-backend-sub000/internal/http/handlers"
	"github.com/Astralabs2050/render-backend-sub000/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	escrowHandler *handlers.EscrowHandler,
	milestoneHandler *handlers.MilestoneHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Escrows
	protected.Post("/escrows", escrowHandler.CreateEscrow)
	protected.Get("/escrows", escrowHandler.ListEscrows)
	protected.Get("/escrows/:id", escrowHandler.GetEscrow)
	protected.Post("/escrows/:id/fund", escrowHandler.FundEscrow)
	protected.Post("/escrows/:id/cancel", escrowHandler.CancelEscrow)
	protected.Get("/escrows/:id/stats", escrowHandler.GetStats)
	protected.Get("/escrows/:id/events", escrowHandler.GetEscrowEvents)

	// Milestones
	protected.Post("/milestones/:id/complete", milestoneHandler.CompleteMilestone)
	protected.Post("/milestones/:id/approve", milestoneHandler.ApproveMilestone)
	protected.Post("/milestones/:id/dispute", milestoneHandler.DisputeMilestone)

	// Chat-scoped balance view
	protected.Get("/chats/:chatId/balance", escrowHandler.GetBalanceByChat)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
