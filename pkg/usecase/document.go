package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
)

type DocumentUseCase struct {
	api   interfaces.RiskAPI
	query *query.Client
}

func NewDocumentUseCase(api interfaces.RiskAPI, q *query.Client) *DocumentUseCase {
	return &DocumentUseCase{
		api:   api,
		query: q,
	}
}

func (uc *DocumentUseCase) List(ctx context.Context, params model.RiskChildParams) (*model.DocumentPage, error) {
	if params.RiskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID must be positive", goerr.V(RiskIDKey, params.RiskID))
	}
	page, err := fetchDocuments(ctx, uc.api, uc.query, params.Normalize())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents", goerr.V(RiskIDKey, params.RiskID))
	}
	return page, nil
}

func (uc *DocumentUseCase) Create(ctx context.Context, input model.CreateDocumentInput) (*model.Document, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	doc, err := query.Mutate(ctx, uc.query, func(ctx context.Context) (*model.Document, error) {
		return uc.api.CreateDocument(ctx, input)
	}, query.DocumentsKey(input.RiskID), query.RiskDetailKey(input.RiskID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create document", goerr.V(RiskIDKey, input.RiskID))
	}
	return doc, nil
}

func fetchDocuments(ctx context.Context, api interfaces.RiskAPI, q *query.Client, params model.RiskChildParams) (*model.DocumentPage, error) {
	return query.Fetch(ctx, q, query.DocumentListKey(params), func(ctx context.Context) (*model.DocumentPage, error) {
		return api.ListDocuments(ctx, params)
	})
}
