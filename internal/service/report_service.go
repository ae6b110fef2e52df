package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/move-ev/spesen-tool/internal/domain"
	"github.com/move-ev/spesen-tool/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrInvalidTransition = fmt.Errorf("%w: report status transition not allowed", ErrValidation)
)

// reportTransitions lists the allowed status changes and who may make them.
// The owner submits; an admin reviews.
var reportTransitions = map[domain.ReportStatus]map[domain.ReportStatus]domain.Role{
	domain.ReportDraft:         {domain.ReportSubmitted: domain.RoleMember},
	domain.ReportNeedsRevision: {domain.ReportSubmitted: domain.RoleMember},
	domain.ReportSubmitted: {
		domain.ReportAccepted:      domain.RoleAdmin,
		domain.ReportRejected:      domain.RoleAdmin,
		domain.ReportNeedsRevision: domain.RoleAdmin,
	},
}

// ReportService is the boundary collaborator of the upload pipeline: it owns
// just enough of the report lifecycle to drive the broker's ownership and
// editable-state checks.
type ReportService interface {
	CreateReport(ctx context.Context, caller Principal, organizationID primitive.ObjectID, title string) (*domain.Report, error)
	GetReport(ctx context.Context, caller Principal, reportID primitive.ObjectID) (*domain.Report, error)
	GetMyReports(ctx context.Context, caller Principal) ([]domain.Report, error)
	ChangeStatus(ctx context.Context, caller Principal, reportID primitive.ObjectID, next domain.ReportStatus) (*domain.Report, error)
}

type reportService struct {
	reportRepo     repository.ReportRepository
	membershipRepo repository.MembershipRepository
}

// NewReportService creates a new instance of reportService.
func NewReportService(reportRepo repository.ReportRepository, membershipRepo repository.MembershipRepository) ReportService {
	return &reportService{
		reportRepo:     reportRepo,
		membershipRepo: membershipRepo,
	}
}

// CreateReport creates a draft report for the caller in an organization they
// are an active member of.
func (s *reportService) CreateReport(ctx context.Context, caller Principal, organizationID primitive.ObjectID, title string) (*domain.Report, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: report title is required", ErrValidation)
	}
	if organizationID == primitive.NilObjectID {
		return nil, fmt.Errorf("%w: organization id is required", ErrValidation)
	}

	active, err := s.membershipRepo.IsActiveMember(ctx, caller.ID, organizationID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNotOrgMember
	}

	report := &domain.Report{
		OwnerID:        caller.ID,
		OrganizationID: organizationID,
		Title:          title,
		Status:         domain.ReportDraft,
	}
	reportID, err := s.reportRepo.Create(ctx, report)
	if err != nil {
		return nil, err
	}
	return s.reportRepo.GetByID(ctx, reportID)
}

// GetReport retrieves a report; the owner and admins may read it.
func (s *reportService) GetReport(ctx context.Context, caller Principal, reportID primitive.ObjectID) (*domain.Report, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	if report.OwnerID != caller.ID && caller.Role != domain.RoleAdmin {
		return nil, ErrPermissionDenied
	}
	return report, nil
}

// GetMyReports lists the caller's own reports, newest first.
func (s *reportService) GetMyReports(ctx context.Context, caller Principal) ([]domain.Report, error) {
	return s.reportRepo.GetByOwnerID(ctx, caller.ID)
}

// ChangeStatus applies one transition of the review state machine.
func (s *reportService) ChangeStatus(ctx context.Context, caller Principal, reportID primitive.ObjectID, next domain.ReportStatus) (*domain.Report, error) {
	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}

	requiredRole, ok := reportTransitions[report.Status][next]
	if !ok {
		return nil, ErrInvalidTransition
	}
	switch requiredRole {
	case domain.RoleMember:
		if report.OwnerID != caller.ID {
			return nil, ErrNotReportOwner
		}
	case domain.RoleAdmin:
		if caller.Role != domain.RoleAdmin {
			return nil, ErrPermissionDenied
		}
	}

	report.Status = next
	if err := s.reportRepo.Update(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}
