package api

import (
	"net/http"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/ratelimit"
	"github.com/move-ev/spesen-tool/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires handlers, auth and rate limiting onto the router.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	limiter *ratelimit.Limiter,
	authService service.AuthService,
	attachmentService service.AttachmentService,
	reportService service.ReportService,
	cleanupService service.CleanupService,
) {
	authHandler := NewAuthHandler(authService)
	attachmentHandler := NewAttachmentHandler(attachmentService)
	reportHandler := NewReportHandler(reportService)
	adminHandler := NewAdminHandler(cleanupService)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Attachment Routes ---
		// The broker's entry points are rate limited per principal: the
		// request-upload call counts against the upload class, download-url
		// against the download class.
		attachmentGroup := protected.Group("/attachments")
		{
			attachmentGroup.POST("/request-upload",
				RateLimitMiddleware(limiter, ratelimit.ClassUpload), attachmentHandler.RequestUpload)
			attachmentGroup.POST("/:id/confirm", attachmentHandler.ConfirmUpload)
			attachmentGroup.GET("/:id/download-url",
				RateLimitMiddleware(limiter, ratelimit.ClassDownload), attachmentHandler.GetDownloadURL)
			attachmentGroup.DELETE("/:id", attachmentHandler.Delete)
		}

		// --- Report Routes (boundary collaborator) ---
		reportGroup := protected.Group("/reports")
		{
			reportGroup.POST("", reportHandler.CreateReport)
			reportGroup.GET("", reportHandler.GetMyReports)
			reportGroup.GET("/:id", reportHandler.GetReport)
			reportGroup.PATCH("/:id/status", reportHandler.ChangeStatus)
		}

		// --- Admin Routes ---
		adminGroup := protected.Group("/admin")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.POST("/cleanup", adminHandler.RunCleanup)
		}
	}
}
