package usecase

import (
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/service/autosave"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
	"github.com/secmon-lab/riskdesk/pkg/service/scheduler"
)

type UseCases struct {
	api          interfaces.RiskAPI
	query        *query.Client
	scheduler    interfaces.Scheduler
	archive      interfaces.ReportArchive
	autosaveOpts []autosave.Option

	Risk       *RiskUseCase
	Evaluation *EvaluationUseCase
	ActionPlan *ActionPlanUseCase
	Document   *DocumentUseCase
	Report     *ReportUseCase
}

type Option func(*UseCases)

// WithScheduler replaces the timer used by autosave controllers
func WithScheduler(s interfaces.Scheduler) Option {
	return func(uc *UseCases) {
		uc.scheduler = s
	}
}

func WithArchive(archive interfaces.ReportArchive) Option {
	return func(uc *UseCases) {
		uc.archive = archive
	}
}

// WithAutosaveOptions are applied to every controller opened by Evaluation
func WithAutosaveOptions(opts ...autosave.Option) Option {
	return func(uc *UseCases) {
		uc.autosaveOpts = append(uc.autosaveOpts, opts...)
	}
}

// New wires the use cases on api. A nil query client caches in memory.
func New(api interfaces.RiskAPI, q *query.Client, opts ...Option) *UseCases {
	if q == nil {
		q = query.New(nil)
	}
	uc := &UseCases{
		api:       api,
		query:     q,
		scheduler: scheduler.NewTimer(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Risk = NewRiskUseCase(api, q)
	uc.Evaluation = NewEvaluationUseCase(api, q, uc.scheduler, uc.autosaveOpts...)
	uc.ActionPlan = NewActionPlanUseCase(api, q)
	uc.Document = NewDocumentUseCase(api, q)
	uc.Report = NewReportUseCase(api, uc.archive)

	return uc
}

// Query exposes the shared query client, e.g. to invalidate on demand
func (uc *UseCases) Query() *query.Client {
	return uc.query
}
