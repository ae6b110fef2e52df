package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReportHandler exposes the boundary report collaborator over HTTP.
type ReportHandler struct {
	reportService service.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// --- Request/Response Structs ---

type CreateReportRequest struct {
	OrganizationID string `json:"organizationId" binding:"required"`
	Title          string `json:"title" binding:"required"`
}

type ChangeReportStatusRequest struct {
	Status domain.ReportStatus `json:"status" binding:"required,oneof=submitted needs_revision accepted rejected"`
}

type ReportResponse struct {
	ID             string              `json:"id"`
	OwnerID        string              `json:"ownerId"`
	OrganizationID string              `json:"organizationId"`
	Title          string              `json:"title"`
	Status         domain.ReportStatus `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// --- Handler Methods ---

// CreateReport godoc
// @Summary Create a draft expense report
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param report body CreateReportRequest true "Report details"
// @Success 201 {object} ReportResponse "Report created"
// @Failure 400 {object} gin.H "Validation error"
// @Failure 403 {object} gin.H "Not an active organization member"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /reports [post]
func (h *ReportHandler) CreateReport(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	orgID, err := primitive.ObjectIDFromHex(req.OrganizationID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid organization ID format.")
		return
	}

	report, err := h.reportService.CreateReport(c.Request.Context(), caller, orgID, req.Title)
	if err != nil {
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapReportToResponse(report))
}

// GetReport godoc
// @Summary Get a report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report's ObjectID Hex"
// @Success 200 {object} ReportResponse "Report"
// @Failure 403 {object} gin.H "Forbidden"
// @Failure 404 {object} gin.H "Not found"
// @Router /reports/{id} [get]
func (h *ReportHandler) GetReport(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid report ID format.")
		return
	}

	report, err := h.reportService.GetReport(c.Request.Context(), caller, reportID)
	if err != nil {
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapReportToResponse(report))
}

// GetMyReports godoc
// @Summary List my reports
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {array} ReportResponse "Reports"
// @Router /reports [get]
func (h *ReportHandler) GetMyReports(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	reports, err := h.reportService.GetMyReports(c.Request.Context(), caller)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to retrieve reports.")
		return
	}

	responses := make([]ReportResponse, len(reports))
	for i := range reports {
		responses[i] = MapReportToResponse(&reports[i])
	}
	c.JSON(http.StatusOK, responses)
}

// ChangeStatus godoc
// @Summary Change a report's status
// @Description Owner submits; admins accept, reject or request revision.
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report's ObjectID Hex"
// @Param status body ChangeReportStatusRequest true "Target status"
// @Success 200 {object} ReportResponse "Updated report"
// @Failure 400 {object} gin.H "Invalid transition"
// @Failure 403 {object} gin.H "Forbidden"
// @Failure 404 {object} gin.H "Not found"
// @Router /reports/{id}/status [patch]
func (h *ReportHandler) ChangeStatus(c *gin.Context) {
	caller, err := getPrincipalFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify caller.")
		return
	}

	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid report ID format.")
		return
	}

	var req ChangeReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	report, err := h.reportService.ChangeStatus(c.Request.Context(), caller, reportID, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondAttachmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapReportToResponse(report))
}

// MapReportToResponse converts a domain Report to a ReportResponse DTO.
func MapReportToResponse(report *domain.Report) ReportResponse {
	if report == nil {
		return ReportResponse{}
	}
	return ReportResponse{
		ID:             report.ID.Hex(),
		OwnerID:        report.OwnerID.Hex(),
		OrganizationID: report.OrganizationID.Hex(),
		Title:          report.Title,
		Status:         report.Status,
		CreatedAt:      report.CreatedAt,
		UpdatedAt:      report.UpdatedAt,
	}
}
