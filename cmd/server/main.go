// Package main is the entry point for the application.
// It initializes all dependencies, sets up the HTTP server,
// and starts the application.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casa/internal/config"
	"casa/internal/gateway"
	"casa/internal/repositories"
	"casa/internal/routes"
	"casa/internal/services/autoapprove"
	"casa/internal/services/dispute"
	"casa/internal/services/escrow"
	"casa/internal/services/estimate"
	"casa/internal/services/invoice"
	"casa/internal/services/ledger"
	"casa/internal/services/payout"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadEnv()

	if err := repositories.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if repositories.DB != nil {
			if sqlDB, err := repositories.DB.DB(); err == nil {
				if err := sqlDB.Close(); err != nil {
					log.Printf("Failed to close database connection: %v", err)
				}
			}
		}
		if repositories.CacheService != nil {
			if err := repositories.CacheService.Close(); err != nil {
				log.Printf("Failed to close Redis connection: %v", err)
			}
		}
	}()

	gw, err := gateway.FromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize payment gateway: %v", err)
	}
	log.Printf("Payment gateway: %s", gw.Name())

	// Repositories
	estimateRepo := repositories.NewEstimateRepository(repositories.DB)
	holdRepo := repositories.NewHoldRepository(repositories.DB)
	invoiceRepo := repositories.NewInvoiceRepository(repositories.DB)
	disputeRepo := repositories.NewDisputeRepository(repositories.DB)
	profileRepo := repositories.NewPaymentProfileRepository(repositories.DB)
	ledgerRepo := repositories.NewLedgerRepository(repositories.DB)
	feeSource := repositories.NewFeeConfigSource(repositories.DB, repositories.CacheService)

	// Services
	ledgerService := ledger.NewService(ledgerRepo)
	escrowService := escrow.NewService(escrow.Config{
		Estimates: estimateRepo,
		Holds:     holdRepo,
		Invoices:  invoiceRepo,
		Disputes:  disputeRepo,
		Profiles:  profileRepo,
		Ledger:    ledgerService,
		Gateway:   gw,
		FeeSource: feeSource,
		Cache:     repositories.CacheService,
	})
	estimateService := estimate.NewService(estimateRepo, escrowService, repositories.CacheService)
	invoiceService := invoice.NewService(invoiceRepo, estimateRepo, holdRepo, profileRepo, ledgerService)
	disputeService := dispute.NewService(disputeRepo, escrowService)
	payoutService := payout.NewService(invoiceRepo, profileRepo, gw, ledgerService)

	// Background jobs share one cancelable context so shutdown stops all of
	// them together.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweepInterval := config.GetDurationEnv("AUTO_APPROVE_SWEEP_INTERVAL", 5*time.Minute)
	scheduler := autoapprove.NewScheduler(invoiceRepo, escrowService, feeSource, sweepInterval)
	go scheduler.Run(ctx)

	go payoutService.Run(ctx, config.GetDurationEnv("PAYOUT_SWEEP_INTERVAL", 15*time.Minute))

	go func() {
		interval := config.GetDurationEnv("RECONCILE_INTERVAL", 10*time.Minute)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := escrowService.Reconcile(ctx, 50); err != nil {
					log.Printf("reconcile: pass failed: %v", err)
				} else if n > 0 {
					log.Printf("reconcile: examined %d invoices", n)
				}
			}
		}
	}()

	go func() {
		interval := config.GetDurationEnv("ESTIMATE_EXPIRY_INTERVAL", time.Hour)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := estimateService.ExpireStale(ctx, 100); err != nil {
					log.Printf("estimate expiry: sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("estimate expiry: expired %d estimates", n)
				}
			}
		}
	}()

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     config.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(app, routes.Services{
		Escrow:    escrowService,
		Estimates: estimateService,
		Invoices:  invoiceService,
		Disputes:  disputeService,
		Payouts:   payoutService,
		Profiles:  profileRepo,
		FeeSource: feeSource,
	})

	go func() {
		if err := app.Listen(":" + config.GetEnv("PORT", "3000")); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
