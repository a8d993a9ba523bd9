package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
)

type ActionPlanUseCase struct {
	api   interfaces.RiskAPI
	query *query.Client
}

func NewActionPlanUseCase(api interfaces.RiskAPI, q *query.Client) *ActionPlanUseCase {
	return &ActionPlanUseCase{
		api:   api,
		query: q,
	}
}

func (uc *ActionPlanUseCase) List(ctx context.Context, params model.RiskChildParams) (*model.ActionPlanPage, error) {
	if params.RiskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID must be positive", goerr.V(RiskIDKey, params.RiskID))
	}
	page, err := fetchActionPlans(ctx, uc.api, uc.query, params.Normalize())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list action plans", goerr.V(RiskIDKey, params.RiskID))
	}
	return page, nil
}

// Create validates and posts a new action plan, then invalidates the plans
// and the detail of its risk
func (uc *ActionPlanUseCase) Create(ctx context.Context, input model.CreateActionPlanInput) (*model.ActionPlan, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	plan, err := query.Mutate(ctx, uc.query, func(ctx context.Context) (*model.ActionPlan, error) {
		return uc.api.CreateActionPlan(ctx, input)
	}, query.ActionPlansKey(input.RiskID), query.RiskDetailKey(input.RiskID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create action plan", goerr.V(RiskIDKey, input.RiskID))
	}
	return plan, nil
}

func fetchActionPlans(ctx context.Context, api interfaces.RiskAPI, q *query.Client, params model.RiskChildParams) (*model.ActionPlanPage, error) {
	return query.Fetch(ctx, q, query.ActionPlanListKey(params), func(ctx context.Context) (*model.ActionPlanPage, error) {
		return api.ListActionPlans(ctx, params)
	})
}
