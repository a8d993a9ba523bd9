package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/service/autosave"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
	"github.com/secmon-lab/riskdesk/pkg/utils/errutil"
)

// EvaluationUseCase reads and writes assessments of a risk. Writes go through
// the query client so that cached assessments and the risk detail are
// invalidated.
type EvaluationUseCase struct {
	api          interfaces.RiskAPI
	query        *query.Client
	scheduler    interfaces.Scheduler
	autosaveOpts []autosave.Option
}

func NewEvaluationUseCase(api interfaces.RiskAPI, q *query.Client, scheduler interfaces.Scheduler, opts ...autosave.Option) *EvaluationUseCase {
	return &EvaluationUseCase{
		api:          api,
		query:        q,
		scheduler:    scheduler,
		autosaveOpts: opts,
	}
}

// Evaluation is an assessment opened for editing together with its risk
type Evaluation struct {
	Risk *model.Risk
	*autosave.Controller
}

// Open loads the risk and, when assessmentID is not zero, the assessment, and
// returns an autosave controller for it. The caller must Close it.
func (uc *EvaluationUseCase) Open(ctx context.Context, riskID, assessmentID int64, opts ...autosave.Option) (*Evaluation, error) {
	if riskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID must be positive", goerr.V(RiskIDKey, riskID))
	}

	risk, err := query.Fetch(ctx, uc.query, query.RiskDetailKey(riskID), func(ctx context.Context) (*model.Risk, error) {
		return uc.api.GetRisk(ctx, riskID)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load risk", goerr.V(RiskIDKey, riskID))
	}

	var assessment *model.Assessment
	if assessmentID != 0 {
		// the draft must start from the latest version stamp
		if err := uc.query.Invalidate(ctx, query.AssessmentKey(riskID, assessmentID)); err != nil {
			_ = errutil.Handle(ctx, err, "failed to invalidate assessment before editing")
		}
		assessment, err = uc.GetAssessment(ctx, riskID, assessmentID)
		if err != nil {
			return nil, err
		}
	}

	updater := &assessmentUpdater{uc: uc, riskID: riskID}
	ctrlOpts := append([]autosave.Option{autosave.WithContext(ctx)}, uc.autosaveOpts...)
	ctrl := autosave.New(updater, uc.scheduler, append(ctrlOpts, opts...)...)
	if assessment != nil {
		ctrl.Load(assessment)
	} else {
		ctrl.LoadNew(riskID)
	}

	return &Evaluation{Risk: risk, Controller: ctrl}, nil
}

func (uc *EvaluationUseCase) GetAssessment(ctx context.Context, riskID, assessmentID int64) (*model.Assessment, error) {
	a, err := query.Fetch(ctx, uc.query, query.AssessmentKey(riskID, assessmentID), func(ctx context.Context) (*model.Assessment, error) {
		return uc.api.GetAssessment(ctx, assessmentID)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get assessment",
			goerr.V(RiskIDKey, riskID), goerr.V(AssessmentIDKey, assessmentID))
	}
	if a.RiskID != 0 && a.RiskID != riskID {
		return nil, goerr.Wrap(ErrAssessmentMismatch, "assessment belongs to another risk",
			goerr.V(RiskIDKey, riskID), goerr.V(AssessmentIDKey, assessmentID), goerr.V("owner_risk_id", a.RiskID))
	}
	return a, nil
}

func (uc *EvaluationUseCase) CreateAssessment(ctx context.Context, input model.CreateAssessmentInput) (*model.Assessment, error) {
	if input.RiskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID is required", goerr.V(RiskIDKey, input.RiskID))
	}
	values := model.AssessmentValues{Method: input.Method, Score: input.Score, Notes: input.Notes}
	for _, att := range input.Attachments {
		values.Attachments = append(values.Attachments, att.URL)
	}
	if err := values.Validate(); err != nil {
		return nil, err
	}

	created, err := query.Mutate(ctx, uc.query, func(ctx context.Context) (*model.Assessment, error) {
		return uc.api.CreateAssessment(ctx, input)
	}, query.AssessmentsKey(input.RiskID), query.RiskDetailKey(input.RiskID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create assessment", goerr.V(RiskIDKey, input.RiskID))
	}
	return created, nil
}

// UpdateAssessment sends a conditional update. A stale input.UpdatedAt fails
// with a 409 APIError.
func (uc *EvaluationUseCase) UpdateAssessment(ctx context.Context, riskID, assessmentID int64, input model.UpdateAssessmentInput) (*model.Assessment, error) {
	updated, err := query.Mutate(ctx, uc.query, func(ctx context.Context) (*model.Assessment, error) {
		return uc.api.UpdateAssessment(ctx, assessmentID, input)
	}, query.AssessmentsKey(riskID), query.RiskDetailKey(riskID))
	if err != nil {
		if model.IsConflict(err) {
			// someone else saved: cached copies hold a stale version stamp
			if err := uc.query.Invalidate(ctx, query.AssessmentsKey(riskID), query.RiskDetailKey(riskID)); err != nil {
				_ = errutil.Handle(ctx, err, "failed to invalidate queries after conflict")
			}
		}
		return nil, goerr.Wrap(err, "failed to update assessment",
			goerr.V(RiskIDKey, riskID), goerr.V(AssessmentIDKey, assessmentID))
	}
	return updated, nil
}

// assessmentUpdater binds the use case to one risk for an autosave controller
type assessmentUpdater struct {
	uc     *EvaluationUseCase
	riskID int64
}

var _ interfaces.AssessmentAPI = (*assessmentUpdater)(nil)

func (u *assessmentUpdater) GetAssessment(ctx context.Context, assessmentID int64) (*model.Assessment, error) {
	return u.uc.GetAssessment(ctx, u.riskID, assessmentID)
}

func (u *assessmentUpdater) CreateAssessment(ctx context.Context, input model.CreateAssessmentInput) (*model.Assessment, error) {
	return u.uc.CreateAssessment(ctx, input)
}

func (u *assessmentUpdater) UpdateAssessment(ctx context.Context, assessmentID int64, input model.UpdateAssessmentInput) (*model.Assessment, error) {
	return u.uc.UpdateAssessment(ctx, u.riskID, assessmentID, input)
}
