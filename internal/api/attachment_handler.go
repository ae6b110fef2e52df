package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AttachmentHandler exposes the upload broker over HTTP.
type AttachmentHandler struct {
	attachmentService service.AttachmentService
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(attachmentService service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// --- Request/Response Structs ---

type RequestUploadRequest struct {
	FileName       string            `json:"fileName" binding:"required"`
	FileSize       int64             `json:"fileSize" binding:"required,gt=0"`
	ContentType    string            `json:"contentType" binding:"required"`
	Visibility     domain.Visibility `json:"visibility" binding:"omitempty,oneof=private public"`
	ReportID       string            `json:"reportId" binding:"omitempty"`
	OrganizationID string            `json:"organizationId" binding:"omitempty"`
}

type ConfirmUploadRequest struct {
	Key string `json:"key" binding:"required"`
}

// --- Handler Methods ---

// RequestUpload godoc
// @Summary Request an upload URL
// @Description Validates the declared file and returns a short-lived presigned PUT URL plus a pending attachment id.
// @Tags Attachments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param upload body RequestUploadRequest true "File metadata"
// @Success 200 {object} service.UploadGrant "Upload grant"
// @Failure 400 {object} gin.H "Validation error"
// @Failure 403 {object} gin.H "Permission or report-state error"
// @Failure 404 {object} gin.H "Report not found"
// @Failure 429 {object} gin.H "Rate limited"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /attachments/request-upload [post]
func (h *AttachmentHandler) RequestUpload(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	var req RequestUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	uploadReq := service.UploadRequest{
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		ContentType: req.ContentType,
		Visibility:  visibility,
	}
	if req.ReportID != "" {
		reportID, err := primitive.ObjectIDFromHex(req.ReportID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid report ID format.")
			return
		}
		uploadReq.ReportID = &reportID
	}
	if req.OrganizationID != "" {
		orgID, err := primitive.ObjectIDFromHex(req.OrganizationID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid organization ID format.")
			return
		}
		uploadReq.OrganizationID = &orgID
	}

	grant, err := h.attachmentService.RequestUpload(c.Request.Context(), caller, uploadReq)
	if err != nil {
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// ConfirmUpload godoc
// @Summary Confirm an upload
// @Description Trust-validates an object the client pushed to storage and advances the attachment to uploaded.
// @Tags Attachments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attachment's ObjectID Hex"
// @Param confirm body ConfirmUploadRequest true "The key returned by request-upload"
// @Success 200 {object} gin.H "success"
// @Failure 400 {object} gin.H "Validation or content-mismatch error"
// @Failure 403 {object} gin.H "Permission error"
// @Failure 404 {object} gin.H "Attachment not found"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /attachments/{id}/confirm [post]
func (h *AttachmentHandler) ConfirmUpload(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	attachmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid attachment ID format.")
		return
	}

	var req ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	if err := h.attachmentService.ConfirmUpload(c.Request.Context(), caller, attachmentID, req.Key); err != nil {
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetDownloadURL godoc
// @Summary Get a download URL
// @Description Returns a time-boxed presigned GET URL for a completed upload.
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attachment's ObjectID Hex"
// @Success 200 {object} service.DownloadInfo "Download info"
// @Failure 403 {object} gin.H "Permission error"
// @Failure 404 {object} gin.H "Attachment not found"
// @Failure 429 {object} gin.H "Rate limited"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /attachments/{id}/download-url [get]
func (h *AttachmentHandler) GetDownloadURL(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	attachmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid attachment ID format.")
		return
	}

	info, err := h.attachmentService.GetDownloadURL(c.Request.Context(), caller, attachmentID)
	if err != nil {
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Delete godoc
// @Summary Soft-delete an attachment
// @Description Marks the attachment deleted; the stored object is reclaimed later by the cleanup job.
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Attachment's ObjectID Hex"
// @Success 200 {object} gin.H "success"
// @Failure 403 {object} gin.H "Permission error"
// @Failure 404 {object} gin.H "Attachment not found"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /attachments/{id} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	attachmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid attachment ID format.")
		return
	}

	if err := h.attachmentService.Delete(c.Request.Context(), caller, attachmentID); err != nil {
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// respondAttachmentError maps the service error taxonomy to HTTP codes.
func respondAttachmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrContentMismatch):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAttachmentNotFound), errors.Is(err, service.ErrReportNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAttachmentNotReady), errors.Is(err, service.ErrAttachmentNotPending):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrStorage):
		abortWithError(c, http.StatusBadGateway, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred.")
	}
}

// getPrincipalFromContext assembles the service principal from the values the
// auth middleware stored.
func getPrincipalFromContext(c *gin.Context) (service.Principal, error) {
	idStr, err := getUserIDFromContext(c)
	if err != nil {
		return service.Principal{}, err
	}
	id, err := primitive.ObjectIDFromHex(idStr)
	if err != nil {
		return service.Principal{}, err
	}
	role, err := getUserRoleFromContext(c)
	if err != nil {
		return service.Principal{}, err
	}
	return service.Principal{ID: id, Role: role}, nil
}
