// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"casa/internal/handlers"
	"casa/internal/middleware"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/dispute"
	"casa/internal/services/escrow"
	"casa/internal/services/estimate"
	"casa/internal/services/invoice"
	"casa/internal/services/payout"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Services carries the wired service layer into the router. main builds it
// once so the background jobs share the same instances.
type Services struct {
	Escrow    escrow.Service
	Estimates estimate.Service
	Invoices  invoice.Service
	Disputes  dispute.Service
	Payouts   payout.Service
	Profiles  repositories.PaymentProfileRepository
	FeeSource repositories.FeeConfigSource
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, svcs Services) {
	estimateHandler := handlers.NewEstimateHandler(svcs.Estimates, svcs.Escrow)
	invoiceHandler := handlers.NewInvoiceHandler(svcs.Invoices, svcs.Escrow)
	disputeHandler := handlers.NewDisputeHandler(svcs.Disputes)
	payoutHandler := handlers.NewPayoutHandler(svcs.Payouts)
	profileHandler := handlers.NewProfileHandler(svcs.Profiles)
	adminHandler := handlers.NewAdminHandler(svcs.FeeSource, svcs.Escrow)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Casa API",
			"version": "1.0.0",
			"docs":    "/api",
		})
	})
	app.Get("/health", handlers.HealthCheck)

	api := app.Group("/api")
	protected := api.Use(middleware.Auth)

	// Estimates
	estimates := protected.Group("/estimates")
	estimates.Post("/", middleware.HasPermission(models.PermissionEstimateWrite), estimateHandler.Create)
	estimates.Get("/:id", middleware.HasPermission(models.PermissionEstimateRead), estimateHandler.Get)
	estimates.Post("/:id/send", middleware.HasPermission(models.PermissionEstimateWrite), estimateHandler.Send)
	estimates.Post("/:id/viewed", middleware.HasPermission(models.PermissionEstimateRead), estimateHandler.MarkViewed)
	estimates.Post("/:id/approve", middleware.HasPermission(models.PermissionInvoiceApprove), estimateHandler.Approve)
	estimates.Post("/:id/decline", middleware.HasPermission(models.PermissionInvoiceApprove), estimateHandler.Decline)
	estimates.Post("/:id/release", middleware.HasPermission(models.PermissionInvoiceApprove), estimateHandler.ReleaseHold)

	// Invoices
	invoices := protected.Group("/invoices")
	invoices.Post("/", middleware.HasPermission(models.PermissionInvoiceWrite), invoiceHandler.Submit)
	invoices.Get("/:id", middleware.HasPermission(models.PermissionInvoiceRead), invoiceHandler.Get)
	invoices.Get("/:id/ledger", middleware.HasPermission(models.PermissionInvoiceRead), invoiceHandler.History)
	invoices.Post("/:id/approve", middleware.HasPermission(models.PermissionInvoiceApprove), invoiceHandler.Approve)
	// Dispute filing is rate limited: it is the one endpoint an upset
	// customer will hammer.
	invoices.Post("/:id/dispute",
		middleware.HasPermission(models.PermissionDisputeOpen),
		limiter.New(limiter.Config{Max: 10}),
		invoiceHandler.Dispute)
	invoices.Post("/:id/payout", middleware.HasPermission(models.PermissionPayoutWrite), payoutHandler.Pay)

	// Payment profile (always the caller's own)
	profile := protected.Group("/profile")
	profile.Get("/", profileHandler.Get)
	profile.Put("/", profileHandler.Upsert)

	// Disputes
	disputes := protected.Group("/disputes")
	disputes.Get("/:id", middleware.HasPermission(models.PermissionInvoiceRead), disputeHandler.Get)
	disputes.Post("/:id/resolve", middleware.HasPermission(models.PermissionDisputeResolve), disputeHandler.Resolve)

	// Admin
	admin := api.Group("/admin", middleware.Auth, middleware.AdminOnly)
	admin.Get("/fees", adminHandler.GetFeeSchedule)
	admin.Post("/fees", adminHandler.PublishFeeSchedule)
	admin.Post("/reconcile", adminHandler.Reconcile)
	admin.Post("/invoices/:id/reverse-payout", payoutHandler.Reverse)
	admin.Post("/disputes/:id/advisory", disputeHandler.AttachAdvisory)
	admin.Get("/cache-stats", handlers.CacheStats)
}
