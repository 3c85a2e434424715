package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/labstock/labstock-backend/internal/stock/events"
	"github.com/labstock/labstock-backend/internal/stock/handler"
	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/internal/stock/service"
	"github.com/labstock/labstock-backend/pkg/config"
	"github.com/labstock/labstock-backend/pkg/database"
	"github.com/labstock/labstock-backend/pkg/httputil"
	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("labstock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("labstock-service", cfg.Server.Environment)
	log.Info().Msg("starting labstock service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ. The broker is optional outside production: the
	// service runs without it and drops events.
	var publisher *events.StockEventPublisher
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		if cfg.Server.Environment == config.EnvProduction {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		log.Warn().Err(err).Msg("RabbitMQ unavailable, events disabled")
	} else {
		defer rmq.Close()

		p, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "labstock-service", log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = events.NewStockEventPublisher(p, log)
	}

	// Initialize repositories
	itemRepo := repository.NewItemRepository(db)
	lotRepo := repository.NewLotRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	distributionRepo := repository.NewDistributionRepository(db)
	wasteRepo := repository.NewWasteRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Initialize services
	allocator := service.NewAllocator(lotRepo)
	stockService := service.NewStockService(itemRepo, lotRepo, reportRepo, publisher, log)
	purchaseService := service.NewPurchaseService(db, purchaseRepo, itemRepo, lotRepo, publisher, log)
	movementService := service.NewMovementService(db, allocator, itemRepo, lotRepo, distributionRepo, wasteRepo, publisher, log)
	importService := service.NewImportService(itemRepo, lotRepo, log)

	// Initialize handlers
	itemHandler := handler.NewItemHandler(stockService, log)
	purchaseHandler := handler.NewPurchaseHandler(purchaseService, log)
	movementHandler := handler.NewMovementHandler(movementService, log)
	reportHandler := handler.NewReportHandler(stockService, log)
	importHandler := handler.NewImportHandler(importService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Auth(cfg.Auth.TokenSecret))
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "labstock-service",
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		// Item and lot routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)
			r.Post("/", itemHandler.Create)
			r.Get("/{id}", itemHandler.Get)
			r.Put("/{id}", itemHandler.Update)
			r.Delete("/{id}", itemHandler.Delete)
			r.Get("/{id}/lots", itemHandler.ListLots)
			r.Post("/{id}/lots", itemHandler.CreateLot)
		})
		r.Get("/lots/{lotID}", itemHandler.GetLot)

		// Purchase lifecycle routes
		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", purchaseHandler.List)
			r.Post("/", purchaseHandler.Request)
			r.Get("/{id}", purchaseHandler.Get)
			r.Post("/{id}/approve", purchaseHandler.Approve)
			r.Post("/{id}/reject", purchaseHandler.Reject)
			r.Post("/{id}/order", purchaseHandler.Order)
			r.Post("/{id}/receive", purchaseHandler.Receive)
		})

		// Distribution routes
		r.Route("/distributions", func(r chi.Router) {
			r.Get("/", movementHandler.ListDistributions)
			r.Post("/", movementHandler.Distribute)
			r.Get("/{id}", movementHandler.GetDistribution)
			r.Post("/{id}/confirm", movementHandler.ConfirmDistribution)
		})

		// Waste routes
		r.Route("/waste", func(r chi.Router) {
			r.Get("/", movementHandler.ListWaste)
			r.Post("/", movementHandler.RecordWaste)
			r.Get("/{id}", movementHandler.GetWaste)
		})

		// Reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", reportHandler.LowStock)
			r.Get("/expiring", reportHandler.Expiring)
			r.Get("/department-usage", reportHandler.DepartmentUsage)
			r.Get("/waste-summary", reportHandler.WasteSummary)
		})

		// Spreadsheet import
		r.Post("/import", importHandler.Upload)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
