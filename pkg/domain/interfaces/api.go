package interfaces

import (
	"context"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

// RiskAPI is the typed surface of the remote risk management API
type RiskAPI interface {
	ListRisks(ctx context.Context, params model.ListRisksParams) (*model.RiskPage, error)
	GetRisk(ctx context.Context, riskID int64) (*model.Risk, error)

	AssessmentAPI

	ListActionPlans(ctx context.Context, params model.RiskChildParams) (*model.ActionPlanPage, error)
	CreateActionPlan(ctx context.Context, input model.CreateActionPlanInput) (*model.ActionPlan, error)

	ListDocuments(ctx context.Context, params model.RiskChildParams) (*model.DocumentPage, error)
	CreateDocument(ctx context.Context, input model.CreateDocumentInput) (*model.Document, error)

	DownloadRiskReport(ctx context.Context, riskID int64) (*model.Report, error)
}

// AssessmentAPI is the subset of RiskAPI dealing with assessments
type AssessmentAPI interface {
	GetAssessment(ctx context.Context, assessmentID int64) (*model.Assessment, error)
	CreateAssessment(ctx context.Context, input model.CreateAssessmentInput) (*model.Assessment, error)
	// UpdateAssessment is a conditional write: it fails with a 409 APIError
	// when input.UpdatedAt does not match the stored version stamp.
	UpdateAssessment(ctx context.Context, assessmentID int64, input model.UpdateAssessmentInput) (*model.Assessment, error)
}
