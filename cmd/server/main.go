package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/move-ev/spesen-tool/internal/api"
	"github.com/move-ev/spesen-tool/internal/config"
	"github.com/move-ev/spesen-tool/internal/ratelimit"
	"github.com/move-ev/spesen-tool/internal/repository/mongo"
	"github.com/move-ev/spesen-tool/internal/service"
	"github.com/move-ev/spesen-tool/internal/storage"

	"github.com/gin-gonic/gin"
)

// @title Expense Attachment API
// @version 1.0
// @description API for expense report attachments: presigned uploads, trust validation and reclamation.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	log.Println("Starting expense attachment server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureReportIndexes(ctx, appDB.Collection("reports"))
		mongo.EnsureAttachmentIndexes(ctx, appDB.Collection("attachments"))
		mongo.EnsureMembershipIndexes(ctx, appDB.Collection("memberships"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Storage ---
	log.Println("Initializing file storage service...")
	fileStorage, err := storage.NewS3Storage(cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize S3 storage: %v", err)
	}

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	reportRepo := mongo.NewMongoReportRepository(appDB)
	attachmentRepo := mongo.NewMongoAttachmentRepository(appDB)
	membershipRepo := mongo.NewMongoMembershipRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	attachmentService := service.NewAttachmentService(attachmentRepo, reportRepo, membershipRepo, fileStorage)
	reportService := service.NewReportService(reportRepo, membershipRepo)
	cleanupService := service.NewCleanupService(attachmentRepo, fileStorage)

	// --- Rate Limiter ---
	limiter := ratelimit.New(ratelimit.Config{
		UploadLimit:   cfg.RateLimit.UploadLimit,
		DownloadLimit: cfg.RateLimit.DownloadLimit,
		Window:        cfg.RateLimit.Window,
		SweepInterval: cfg.RateLimit.SweepInterval,
	})

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go limiter.Run(backgroundCtx)

	// --- Cleanup Scheduler ---
	go runCleanupSchedule(backgroundCtx, cleanupService, cfg.Cleanup)

	// --- Initialize Gin Engine ---
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, limiter, authService, attachmentService, reportService, cleanupService)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	stopBackground()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

// runCleanupSchedule runs both sweeps on the configured interval until ctx is
// cancelled. Each run is independent; a failure is logged and the next tick
// tries again.
func runCleanupSchedule(ctx context.Context, cleanup service.CleanupService, cfg config.CleanupConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cleanup.CleanupPendingAttachments(ctx); err != nil {
				log.Printf("ERROR: pending-attachment cleanup failed: %v", err)
			}
			if _, err := cleanup.CleanupDeletedAttachments(ctx, cfg.RetentionDays); err != nil {
				log.Printf("ERROR: deleted-attachment cleanup failed: %v", err)
			}
		}
	}
}
