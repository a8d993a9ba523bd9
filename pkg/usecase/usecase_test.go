package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi/riskapitest"
	"github.com/secmon-lab/riskdesk/pkg/service/scheduler"
	"github.com/secmon-lab/riskdesk/pkg/usecase"
)

type fixture struct {
	srv   *riskapitest.Server
	sched *scheduler.Manual
	uc    *usecase.UseCases
	risk  *model.Risk
}

func setup(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()

	srv := riskapitest.New()
	t.Cleanup(srv.Close)

	api, err := riskapi.New(srv.URL(), riskapi.WithHTTPClient(srv.Client()))
	gt.NoError(t, err).Required()

	q := query.New(nil, query.WithBackoff(0, 0))
	sched := scheduler.NewManual()
	opts = append([]usecase.Option{usecase.WithScheduler(sched)}, opts...)

	risk := srv.AddRisk(model.Risk{
		Code:      "R-1",
		Label:     "Chemical storage leak",
		Score:     42,
		Status:    types.RiskStatusOpen,
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	return &fixture{
		srv:   srv,
		sched: sched,
		uc:    usecase.New(api, q, opts...),
		risk:  risk,
	}
}

func waitSettled(t *testing.T, ev *usecase.Evaluation) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	gt.NoError(t, ev.Wait(ctx)).Required()
}

func riskPath(id int64) string {
	return fmt.Sprintf("/risks/%d", id)
}

func assessmentPath(id int64) string {
	return fmt.Sprintf("/assessments/%d", id)
}
