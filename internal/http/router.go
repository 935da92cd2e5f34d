package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/http/handlers"
	"github.com/seal-agent/backend/internal/middleware"
	"github.com/seal-agent/backend/internal/rbac"
)

// SetupRouter mounts the control API. rdb may be nil, which disables rate
// limiting.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	loopHandler *handlers.LoopHandler,
	campaignHandler *handlers.CampaignHandler,
	walletHandler *handlers.WalletHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(middleware.MetricsMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	if rdb != nil {
		api.Use(middleware.RateLimitMiddleware(rdb, 60, time.Minute, log))
	}

	// Auth (public)
	api.Post("/auth/token", authHandler.IssueToken)

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	view := middleware.RequirePermission(rbac.PermViewLedger, log)
	control := middleware.RequirePermission(rbac.PermControlLoops, log)

	// Loops
	protected.Get("/loops", view, loopHandler.List)
	protected.Post("/loops/:name/start", control, loopHandler.Start)
	protected.Post("/loops/:name/stop", control, loopHandler.Stop)

	// Ledger views
	protected.Get("/campaigns", view, campaignHandler.ListCampaigns)
	protected.Get("/campaigns/open", view, campaignHandler.OpenCampaign)
	protected.Get("/campaigns/:id", view, campaignHandler.GetCampaign)
	protected.Get("/claims", view, campaignHandler.ListClaims)
	protected.Get("/pending", view, campaignHandler.ListPending)
	protected.Get("/payouts", view, campaignHandler.ListPayouts)

	// Wallet
	protected.Get("/wallet/balance", middleware.RequirePermission(rbac.PermViewWallet, log), walletHandler.Balance)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
