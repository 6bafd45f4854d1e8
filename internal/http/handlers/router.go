package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "agrobulk/internal/log"
)

// NewApp builds the JSON API. limiter may be nil to disable per-caller limits;
// extra runs on every request right after the request id is assigned.
func NewApp(d *Deps, limiter Limiter, extra ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    1 << 20, // 1 MiB
	})
	app.Use(requestid.New())
	for _, h := range extra {
		app.Use(h)
	}
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		applog.Info(c, "http.access", nil)
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", RequireCaller(), RateLimit(limiter))

	api.Post("/groups", d.GroupHandler.Create)
	api.Get("/groups/:id", d.GroupHandler.Get)
	api.Post("/groups/:id/join", d.GroupHandler.Join)
	api.Post("/groups/:id/leave", d.GroupHandler.Leave)
	api.Post("/groups/:id/admin", d.GroupHandler.TransferAdmin)

	api.Post("/groups/:id/bulk-orders", d.BulkOrderHandler.Create)
	api.Get("/groups/:id/bulk-orders", d.BulkOrderHandler.List)
	api.Get("/bulk-orders/:id", d.BulkOrderHandler.Get)
	api.Post("/bulk-orders/:id/participations", d.BulkOrderHandler.AddParticipation)
	api.Post("/bulk-orders/:id/finalize", d.BulkOrderHandler.Finalize)
	api.Post("/bulk-orders/:id/cancel", d.BulkOrderHandler.Cancel)
	api.Patch("/participations/:id", d.BulkOrderHandler.UpdateParticipation)
	api.Delete("/participations/:id", d.BulkOrderHandler.RemoveParticipation)

	api.Post("/orders", d.OrderHandler.Create)
	api.Get("/orders", d.OrderHandler.List)
	api.Get("/orders/:id", d.OrderHandler.Get)
	api.Patch("/orders/:id/status", d.OrderHandler.UpdateStatus)
	api.Post("/orders/:id/cancel", d.OrderHandler.Cancel)
	api.Post("/orders/:id/payment", d.OrderHandler.RecordPayment)

	api.Get("/products/:id", d.CatalogHandler.Product)
	api.Get("/products/:id/quote", d.CatalogHandler.Quote)
	api.Get("/availability", d.CatalogHandler.Availability)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "NotFound", "message": "no such route"})
	})
	return app
}
