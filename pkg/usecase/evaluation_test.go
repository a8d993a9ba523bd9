package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/secmon-lab/riskdesk/pkg/service/autosave"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi/riskapitest"
	"github.com/secmon-lab/riskdesk/pkg/usecase"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

func TestEvaluation_Autosave(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.srv.AddAssessment(model.Assessment{RiskID: f.risk.ID, Method: "AMDEC", Score: 30})

	ev, err := f.uc.Evaluation.Open(ctx, f.risk.ID, seeded.ID)
	gt.NoError(t, err).Required()
	t.Cleanup(ev.Close)
	gt.Value(t, ev.Risk.Code).Equal("R-1")
	gt.Value(t, ev.Snapshot().Version).Equal(seeded.UpdatedAt)

	ev.Update(func(v *model.AssessmentValues) { v.Score = 40 })
	ev.Update(func(v *model.AssessmentValues) { v.Score = 45 })
	f.sched.Advance(autosave.DefaultDebounce)
	waitSettled(t, ev)

	stored, ok := f.srv.Assessment(seeded.ID)
	gt.Bool(t, ok).True()
	gt.Value(t, stored.Score).Equal(45)
	gt.Value(t, f.srv.Count(http.MethodPatch, assessmentPath(seeded.ID))).Equal(1)

	snap := ev.Snapshot()
	gt.Value(t, snap.State).Equal(types.SaveStateSaved)
	gt.Value(t, snap.Version).Equal(stored.UpdatedAt)

	// the save invalidated the cached assessment
	a, err := f.uc.Evaluation.GetAssessment(ctx, f.risk.ID, seeded.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, a.Score).Equal(45)
	gt.Value(t, f.srv.Count(http.MethodGet, assessmentPath(seeded.ID))).Equal(2)
}

func TestEvaluation_Conflict(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.srv.AddAssessment(model.Assessment{RiskID: f.risk.ID, Method: "AMDEC", Score: 30})

	ev, err := f.uc.Evaluation.Open(ctx, f.risk.ID, seeded.ID)
	gt.NoError(t, err).Required()
	t.Cleanup(ev.Close)

	f.srv.TouchAssessment(seeded.ID, func(a *model.Assessment) { a.Score = 60 })

	ev.Update(func(v *model.AssessmentValues) { v.Score = 45 })
	err = ev.Submit(ctx)
	gt.Bool(t, model.IsConflict(err)).True()

	snap := ev.Snapshot()
	gt.Value(t, snap.State).Equal(types.SaveStateConflict)
	gt.Value(t, snap.Conflict).Equal(riskapitest.ConflictDetail)
	gt.Value(t, snap.Version).Equal(seeded.UpdatedAt)
	gt.Value(t, snap.Values.Score).Equal(45)
	gt.Value(t, f.srv.Count(http.MethodPatch, assessmentPath(seeded.ID))).Equal(1)

	stored, _ := f.srv.Assessment(seeded.ID)
	gt.Value(t, stored.Score).Equal(60)
}

func TestEvaluation_ReloadAfterConflict(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.srv.AddAssessment(model.Assessment{RiskID: f.risk.ID, Method: "AMDEC", Score: 30})

	ev, err := f.uc.Evaluation.Open(ctx, f.risk.ID, seeded.ID)
	gt.NoError(t, err).Required()

	latest := f.srv.TouchAssessment(seeded.ID, func(a *model.Assessment) { a.Score = 60 })
	ev.Update(func(v *model.AssessmentValues) { v.Score = 45 })
	gt.Bool(t, model.IsConflict(ev.Submit(ctx))).True()
	ev.Close()

	reloaded, err := f.uc.Evaluation.Open(ctx, f.risk.ID, seeded.ID)
	gt.NoError(t, err).Required()
	t.Cleanup(reloaded.Close)
	gt.Value(t, reloaded.Snapshot().Version).Equal(latest)
	gt.Value(t, reloaded.Snapshot().Values.Score).Equal(60)

	reloaded.Update(func(v *model.AssessmentValues) { v.Score = 45 })
	gt.NoError(t, reloaded.Submit(ctx)).Required()
	gt.Value(t, reloaded.Snapshot().State).Equal(types.SaveStateSaved)

	stored, _ := f.srv.Assessment(seeded.ID)
	gt.Value(t, stored.Score).Equal(45)

	t.Run("cached copy is dropped on conflict", func(t *testing.T) {
		_, err := f.uc.Evaluation.GetAssessment(ctx, f.risk.ID, seeded.ID)
		gt.NoError(t, err).Required()

		f.srv.TouchAssessment(seeded.ID, nil)
		_, err = f.uc.Evaluation.UpdateAssessment(ctx, f.risk.ID, seeded.ID, model.UpdateAssessmentInput{
			Method:    "AMDEC",
			Score:     50,
			UpdatedAt: stored.UpdatedAt,
		})
		gt.Bool(t, model.IsConflict(err)).True()

		before := f.srv.Count(http.MethodGet, assessmentPath(seeded.ID))
		_, err = f.uc.Evaluation.GetAssessment(ctx, f.risk.ID, seeded.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, f.srv.Count(http.MethodGet, assessmentPath(seeded.ID))).Equal(before + 1)
	})
}

func TestEvaluation_SavesKeepCallerLogger(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(logging.With(context.Background(), logger))

	f := setup(t)
	seeded := f.srv.AddAssessment(model.Assessment{RiskID: f.risk.ID, Method: "AMDEC", Score: 30})

	ev, err := f.uc.Evaluation.Open(ctx, f.risk.ID, seeded.ID)
	gt.NoError(t, err).Required()
	t.Cleanup(ev.Close)
	cancel()

	ev.Update(func(v *model.AssessmentValues) { v.Score = 45 })
	f.sched.Advance(autosave.DefaultDebounce)
	waitSettled(t, ev)

	gt.Value(t, ev.Snapshot().State).Equal(types.SaveStateSaved)
	gt.String(t, buf.String()).Contains("saving assessment")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEvaluation_Create(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ev, err := f.uc.Evaluation.Open(ctx, f.risk.ID, 0)
	gt.NoError(t, err).Required()
	t.Cleanup(ev.Close)

	ev.Edit(model.AssessmentValues{
		Method:      "HAZOP",
		Score:       20,
		Attachments: []string{"https://docs.example.com/hazop.pdf"},
	})
	gt.Value(t, f.sched.Pending()).Equal(0)
	gt.NoError(t, ev.Submit(ctx)).Required()

	snap := ev.Snapshot()
	gt.Value(t, snap.State).Equal(types.SaveStateSaved)
	gt.Bool(t, snap.AssessmentID > 0).True()

	stored, ok := f.srv.Assessment(snap.AssessmentID)
	gt.Bool(t, ok).True()
	gt.Value(t, stored.RiskID).Equal(f.risk.ID)
	gt.Value(t, stored.Method).Equal("HAZOP")
	gt.Array(t, stored.Attachments).Length(1)
	gt.Value(t, snap.Version).Equal(stored.UpdatedAt)
}

func TestEvaluation_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.uc.Evaluation.CreateAssessment(ctx, model.CreateAssessmentInput{
		RiskID: f.risk.ID,
		Method: "HAZOP",
		Score:  101,
	})
	gt.Bool(t, errors.Is(err, model.ErrInvalidScore)).True()

	_, err = f.uc.Evaluation.CreateAssessment(ctx, model.CreateAssessmentInput{Method: "HAZOP"})
	gt.Bool(t, errors.Is(err, model.ErrInvalidRiskID)).True()

	gt.Value(t, f.srv.Count(http.MethodPost, "/assessments")).Equal(0)
}

func TestEvaluation_Open(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	other := f.srv.AddRisk(model.Risk{Code: "R-2", Status: types.RiskStatusOpen})
	foreign := f.srv.AddAssessment(model.Assessment{RiskID: other.ID, Method: "AMDEC", Score: 10})

	t.Run("assessment of another risk", func(t *testing.T) {
		_, err := f.uc.Evaluation.Open(ctx, f.risk.ID, foreign.ID)
		gt.Bool(t, errors.Is(err, usecase.ErrAssessmentMismatch)).True()
	})

	t.Run("unknown risk", func(t *testing.T) {
		_, err := f.uc.Evaluation.Open(ctx, other.ID+1000, 0)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Value(t, apiErr.Status).Equal(http.StatusNotFound)
	})

	t.Run("invalid risk ID", func(t *testing.T) {
		_, err := f.uc.Evaluation.Open(ctx, -1, 0)
		gt.Bool(t, errors.Is(err, model.ErrInvalidRiskID)).True()
	})
}
