package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruralpay/ledger/docs"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/events"
	"github.com/ruralpay/ledger/internal/handlers"
	mW "github.com/ruralpay/ledger/internal/middleware"
	"github.com/ruralpay/ledger/internal/services"
	"github.com/ruralpay/ledger/internal/store/postgres"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Ledger API
// @version 1.0
// @description Multi-tenant double-entry ledger: accounts, balanced transactions, reversals and financial reports
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWT.SecretKey == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}
	tolerance, err := decimal.NewFromString(cfg.Ledger.BalanceTolerance)
	if err != nil {
		log.Fatalf("Invalid LEDGER_BALANCE_TOLERANCE: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize storage
	db := database.InitDatabase(cfg.Database)
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	redisClient := database.InitRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Printf("Publishing ledger events to %s", cfg.Kafka.Topic)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Failed to close event publisher: %v", err)
		}
	}()

	// Initialize services
	deps := services.Deps{
		Store:            postgres.NewStore(db),
		Audit:            audit.NewAuditLogger(),
		Cache:            services.NewReportCache(redisClient, cfg.Ledger.ReportCacheTTL),
		Events:           publisher,
		Currency:         cfg.Ledger.Currency,
		MaxInstallments:  cfg.Ledger.MaxInstallments,
		BalanceTolerance: tolerance,
	}
	registry := services.NewAccountRegistry(deps)
	accountHandler := handlers.NewAccountHandler(registry, services.NewBalanceCalculator(deps))
	ledgerHandler := handlers.NewLedgerHandler(registry)
	transactionHandler := handlers.NewTransactionHandler(services.NewTransactionProcessor(deps), services.NewReversalManager(deps))
	reportHandler := handlers.NewReportHandler(services.NewReportGenerator(deps))

	auth := mW.NewAuthenticator(cfg.JWT, redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(mW.Instrument)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", handlers.ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			log.Printf("Health check failed: %v", err)
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Get("/ledgers", ledgerHandler.ListLedgers)
			r.Post("/ledgers", ledgerHandler.CreateLedger)
			r.Get("/ledger/integrity", reportHandler.VerifyIntegrity)

			r.Post("/accounts", accountHandler.CreateAccount)
			r.Get("/accounts", accountHandler.ListAccounts)
			r.Get("/accounts/{id}", accountHandler.GetAccount)
			r.Put("/accounts/{id}", accountHandler.UpdateAccount)
			r.Delete("/accounts/{id}", accountHandler.DeactivateAccount)
			r.Get("/accounts/{id}/balance", accountHandler.GetBalance)

			r.Post("/transactions", transactionHandler.CreateTransaction)
			r.Get("/transactions", transactionHandler.ListTransactions)
			r.Get("/transactions/{id}", transactionHandler.GetTransaction)
			r.Put("/transactions/{id}", transactionHandler.UpdateTransaction)
			r.Delete("/transactions/{id}", transactionHandler.DeleteTransaction)

			r.Get("/reports/trial-balance", reportHandler.TrialBalance)
			r.Get("/reports/balance-sheet", reportHandler.BalanceSheet)
			r.Get("/reports/income-statement", reportHandler.IncomeStatement)
		})
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
