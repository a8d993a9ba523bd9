package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
	"golang.org/x/sync/errgroup"
)

type RiskUseCase struct {
	api   interfaces.RiskAPI
	query *query.Client
}

func NewRiskUseCase(api interfaces.RiskAPI, q *query.Client) *RiskUseCase {
	return &RiskUseCase{
		api:   api,
		query: q,
	}
}

// ListRisks returns one page of risks. Parameters are normalized first so
// that equal requests share a cache entry.
func (uc *RiskUseCase) ListRisks(ctx context.Context, params model.ListRisksParams) (*model.RiskPage, error) {
	params = params.Normalize()
	page, err := query.Fetch(ctx, uc.query, query.RiskListKey(params), func(ctx context.Context) (*model.RiskPage, error) {
		return uc.api.ListRisks(ctx, params)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list risks", goerr.V("page", params.Page), goerr.V("size", params.Size))
	}
	return page, nil
}

func (uc *RiskUseCase) GetRisk(ctx context.Context, riskID int64) (*model.Risk, error) {
	if riskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID must be positive", goerr.V(RiskIDKey, riskID))
	}

	risk, err := query.Fetch(ctx, uc.query, query.RiskDetailKey(riskID), func(ctx context.Context) (*model.Risk, error) {
		return uc.api.GetRisk(ctx, riskID)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get risk", goerr.V(RiskIDKey, riskID))
	}
	return risk, nil
}

// PeekRisk returns the retained risk without a request, even when stale
func (uc *RiskUseCase) PeekRisk(ctx context.Context, riskID int64) (*model.Risk, bool) {
	return query.Peek[*model.Risk](ctx, uc.query, query.RiskDetailKey(riskID))
}

// GetRiskOverview loads a risk with the first page of its action plans and
// documents. The three requests run concurrently.
func (uc *RiskUseCase) GetRiskOverview(ctx context.Context, riskID int64) (*model.RiskOverview, error) {
	if riskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID must be positive", goerr.V(RiskIDKey, riskID))
	}

	var overview model.RiskOverview
	first := model.RiskChildParams{RiskID: riskID}.Normalize()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		risk, err := uc.GetRisk(ctx, riskID)
		overview.Risk = risk
		return err
	})
	eg.Go(func() error {
		page, err := fetchActionPlans(ctx, uc.api, uc.query, first)
		overview.ActionPlans = page
		return err
	})
	eg.Go(func() error {
		page, err := fetchDocuments(ctx, uc.api, uc.query, first)
		overview.Documents = page
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to load risk overview", goerr.V(RiskIDKey, riskID))
	}

	return &overview, nil
}
