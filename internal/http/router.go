package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/config"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/handlers"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/http/middleware"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/storage"
)

// Handlers groups the route handlers NewRouter mounts.
type Handlers struct {
	Webhooks *handlers.WebhookHandler
	Payments *handlers.PaymentsHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
}

func NewRouter(logger *slog.Logger, cfg config.Config, h Handlers) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger, "/healthz"))
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Recovery(logger))

	r.GET("/healthz", h.Health.Healthz)

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == storage.DriverLocal {
		prefix, dir := cfg.Storage.URLPrefix, cfg.Storage.LocalDir
		if prefix == "" {
			prefix = "/qrcodes"
		}
		if dir == "" {
			dir = "./storage/qrcodes"
		}
		r.Static(prefix, dir)
	}

	wh := r.Group("/webhooks")
	wh.POST("/iugu", middleware.RequireSharedSecret("Authorization", cfg.Iugu.WebhookToken), h.Webhooks.Iugu)
	wh.POST("/asaas", middleware.RequireSharedSecret("asaas-access-token", cfg.Asaas.WebhookToken), h.Webhooks.Asaas)

	api := r.Group("/api", middleware.RequireBearer(cfg.Auth.APIToken))
	api.POST("/checkout", h.Payments.StartCheckout)
	api.POST("/payments/:id/card", h.Payments.PayWithCard)
	api.GET("/payments/:id/status", h.Payments.Status)

	admin := r.Group("/admin", middleware.RequireBearer(cfg.Auth.AdminToken))
	admin.POST("/payments/:id/refund", h.Admin.Refund)
	admin.POST("/payments/:id/cancel", h.Admin.Cancel)
	admin.POST("/gateway/tokens/invalidate", h.Admin.InvalidateTokens)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"success": false, "message": "Rota não encontrada.", "request_id": middleware.GetRequestID(c)})
	})
	return r
}
