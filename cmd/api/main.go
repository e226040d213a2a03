package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/backfill"
	"github.com/taimuradam/sugar-app/internal/config"
	"github.com/taimuradam/sugar-app/internal/events"
	"github.com/taimuradam/sugar-app/internal/events/kafka"
	"github.com/taimuradam/sugar-app/internal/handler"
	"github.com/taimuradam/sugar-app/internal/integrations/kibor"
	"github.com/taimuradam/sugar-app/internal/kiborsync"
	"github.com/taimuradam/sugar-app/internal/ledger"
	"github.com/taimuradam/sugar-app/internal/middleware"
	"github.com/taimuradam/sugar-app/internal/repository"
	"github.com/taimuradam/sugar-app/internal/service"
	"github.com/taimuradam/sugar-app/internal/utils/email"
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

	// Initialize layers
	repo := repository.NewRepository(db)
	kiborClient := kibor.NewClient(cfg, logger)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	engine := ledger.NewEngine(repo, logger)
	scheduler := backfill.NewScheduler(repo, kiborClient, publisher, logger, cfg.Timezone)
	svc := service.NewService(repo, engine, scheduler, logger, cfg)
	h := handler.NewHandler(svc)

	// Periodic KIBOR top-up for all conventional banks
	if cfg.KiborSyncEnabled {
		var mail *email.Sender
		if cfg.SMTPHost != "" {
			mail = email.NewSender(cfg, logger)
		}
		syncer := kiborsync.NewSyncer(repo, kiborClient, mail, cfg, logger)
		c := cron.New()
		if _, err := c.AddFunc(cfg.KiborSyncSpec, syncer.Run); err != nil {
			logger.Fatalf("Failed to schedule kibor sync: %v", err)
		}
		c.Start()
		defer c.Stop()
	}

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/banks", h.ListBanks).Methods("GET")
	authRouter.HandleFunc("/banks", h.CreateBank).Methods("POST")
	authRouter.HandleFunc("/banks/{bankID}/loans", h.ListLoans).Methods("GET")
	authRouter.HandleFunc("/banks/{bankID}/loans", h.CreateLoan).Methods("POST")
	authRouter.HandleFunc("/banks/{bankID}/loans/{loanID}/transactions", h.ListTransactions).Methods("GET")
	authRouter.HandleFunc("/banks/{bankID}/loans/{loanID}/transactions", h.CreateTransaction).Methods("POST")
	authRouter.HandleFunc("/banks/{bankID}/loans/{loanID}/transactions/{txID}", h.DeleteTransaction).Methods("DELETE")
	authRouter.HandleFunc("/banks/{bankID}/rates", h.ListRates).Methods("GET")
	authRouter.HandleFunc("/banks/{bankID}/rates", h.AddRate).Methods("POST")
	authRouter.HandleFunc("/banks/{bankID}/loans/{loanID}/ledger", h.Ledger).Methods("GET")
	authRouter.HandleFunc("/banks/{bankID}/loans/{loanID}/backfill/status", h.BackfillStatus).Methods("GET")
	authRouter.HandleFunc("/banks/{bankID}/loans/{loanID}/backfill/start", h.StartBackfill).Methods("POST")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
