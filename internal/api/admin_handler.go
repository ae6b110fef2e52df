package api

import (
	"fmt"
	"net/http"

	"github.com/move-ev/spesen-tool/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes privileged operator endpoints.
type AdminHandler struct {
	cleanupService service.CleanupService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cleanupService service.CleanupService) *AdminHandler {
	return &AdminHandler{cleanupService: cleanupService}
}

// --- Request/Response Structs ---

type RunCleanupRequest struct {
	CleanPending         bool `json:"cleanPending"`
	CleanDeleted         bool `json:"cleanDeleted"`
	DeletedRetentionDays int  `json:"deletedRetentionDays" binding:"omitempty,gt=0"`
}

type RunCleanupResponse struct {
	Pending *service.CleanupResult `json:"pending,omitempty"`
	Deleted *service.CleanupResult `json:"deleted,omitempty"`
}

// RunCleanup godoc
// @Summary Manually trigger the cleanup jobs
// @Description Runs the abandoned-pending and/or deleted-retention sweeps. Partial storage failures are reported, not fatal.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param job body RunCleanupRequest true "Which jobs to run"
// @Success 200 {object} RunCleanupResponse "Per-job batch results"
// @Failure 400 {object} gin.H "Validation error"
// @Failure 403 {object} gin.H "Admin role required"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /admin/cleanup [post]
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req RunCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	if !req.CleanPending && !req.CleanDeleted {
		abortWithError(c, http.StatusBadRequest, "At least one of cleanPending or cleanDeleted must be set.")
		return
	}

	var resp RunCleanupResponse
	if req.CleanPending {
		result, err := h.cleanupService.CleanupPendingAttachments(c.Request.Context())
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "Pending-attachment cleanup failed.")
			return
		}
		resp.Pending = result
	}
	if req.CleanDeleted {
		result, err := h.cleanupService.CleanupDeletedAttachments(c.Request.Context(), req.DeletedRetentionDays)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "Deleted-attachment cleanup failed.")
			return
		}
		resp.Deleted = result
	}

	c.JSON(http.StatusOK, resp)
}
