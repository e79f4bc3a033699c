package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/handler"
	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/provider"
	"github.com/finlink/finlink/internal/provider/openbank"
	"github.com/finlink/finlink/internal/provider/sandbox"
	"github.com/finlink/finlink/internal/repository"
	"github.com/finlink/finlink/internal/scheduler"
	"github.com/finlink/finlink/internal/service"
	"github.com/finlink/finlink/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Register provider adapters
	providers := provider.NewRegistry()
	providers.Register(openbank.NewClient(cfg, logger))
	providers.Register(sandbox.New())

	// Initialize layers
	repo := repository.NewRepository(db)
	notifier := email.NewSender(cfg, logger)
	svc := service.NewService(repo, providers, notifier, logger, cfg)
	h := handler.NewHandler(svc, cfg, logger)

	// Start background jobs
	sched := scheduler.New(svc, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/webhooks/{provider}", h.ProviderWebhook).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/links", h.CreateLink).Methods("POST")
	authRouter.HandleFunc("/links", h.ListLinks).Methods("GET")
	authRouter.HandleFunc("/links/{id}/complete", h.CompleteLink).Methods("POST")
	authRouter.HandleFunc("/links/{id}/sync", h.SyncLink).Methods("POST")
	authRouter.HandleFunc("/links/{id}", h.RevokeLink).Methods("DELETE")
	authRouter.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	authRouter.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	authRouter.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	authRouter.HandleFunc("/accounts/{id}/transactions", h.ListAccountTransactions).Methods("GET")
	authRouter.HandleFunc("/accounts/{id}/sync", h.SyncAccount).Methods("POST")
	authRouter.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	authRouter.HandleFunc("/transactions/{id}", h.UpdateTransaction).Methods("PATCH")
	authRouter.HandleFunc("/transfers/suggestions", h.ListTransferSuggestions).Methods("GET")
	authRouter.HandleFunc("/transfers/suggestions/{id}/confirm", h.ConfirmTransferSuggestion).Methods("POST")
	authRouter.HandleFunc("/transfers/suggestions/{id}/dismiss", h.DismissTransferSuggestion).Methods("POST")
	authRouter.HandleFunc("/transfers/{groupID}", h.UnlinkTransfer).Methods("DELETE")
	authRouter.HandleFunc("/liabilities", h.ListLiabilities).Methods("GET")
	authRouter.HandleFunc("/liabilities", h.DeclareLiability).Methods("POST")
	authRouter.HandleFunc("/scheduled", h.ListScheduled).Methods("GET")
	authRouter.HandleFunc("/categories/{id}/spending", h.CategorySpending).Methods("GET")
	authRouter.HandleFunc("/summary", h.MonthlySummary).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
