package riskapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi/riskapitest"
)

func newClient(t *testing.T, srv *riskapitest.Server, opts ...riskapi.Option) *riskapi.Client {
	t.Helper()
	client, err := riskapi.New(srv.URL(), opts...)
	gt.NoError(t, err).Required()
	return client
}

func TestNew(t *testing.T) {
	t.Run("rejects empty URL", func(t *testing.T) {
		_, err := riskapi.New("")
		gt.Error(t, err)
	})
	t.Run("rejects relative URL", func(t *testing.T) {
		_, err := riskapi.New("/api")
		gt.Error(t, err)
	})
	t.Run("accepts base path", func(t *testing.T) {
		client, err := riskapi.New("https://risk.example.com/api/v1/")
		gt.NoError(t, err).Required()
		gt.Value(t, client).NotNil()
	})
}

func TestClient_ListRisks(t *testing.T) {
	srv := riskapitest.New()
	defer srv.Close()
	for i := 0; i < 60; i++ {
		status := types.RiskStatusOpen
		if i%2 == 1 {
			status = types.RiskStatusClosed
		}
		srv.AddRisk(model.Risk{Code: "R-" + string(rune('A'+i%26)), Label: "risk", Status: status, Score: float64(i)})
	}

	client := newClient(t, srv)
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		srv.ResetRequests()
		page, err := client.ListRisks(ctx, model.ListRisksParams{})
		gt.NoError(t, err).Required()
		gt.Array(t, page.Data).Length(25)
		gt.Value(t, page.Meta.TotalItems).Equal(60)
		gt.Value(t, page.Meta.TotalPages).Equal(3)

		reqs := srv.Requests()
		gt.Array(t, reqs).Length(1)
		gt.Value(t, reqs[0].Query.Get("page")).Equal("1")
		gt.Value(t, reqs[0].Query.Get("size")).Equal("25")
		gt.Bool(t, reqs[0].Query.Has("query")).False()
		gt.Bool(t, reqs[0].Query.Has("status")).False()
	})

	t.Run("status filter", func(t *testing.T) {
		srv.ResetRequests()
		page, err := client.ListRisks(ctx, model.ListRisksParams{Page: 2, Size: 10, Status: "open"})
		gt.NoError(t, err).Required()
		gt.Value(t, page.Meta.TotalItems).Equal(30)
		gt.Value(t, page.Meta.Page).Equal(2)
		for _, r := range page.Data {
			gt.Value(t, r.Status).Equal(types.RiskStatusOpen)
		}

		req := srv.Requests()[0]
		gt.Value(t, req.Query.Get("status")).Equal("open")
		gt.Value(t, req.Query.Get("filters")).Equal(`{"status":"open"}`)
	})

	t.Run("all means no filter", func(t *testing.T) {
		page, err := client.ListRisks(ctx, model.ListRisksParams{Status: model.StatusFilterAll})
		gt.NoError(t, err).Required()
		gt.Value(t, page.Meta.TotalItems).Equal(60)
	})
}

func TestClient_Headers(t *testing.T) {
	srv := riskapitest.New(riskapitest.WithRequiredAPIKey(riskapi.DefaultAPIKeyHeader, "secret"))
	defer srv.Close()
	risk := srv.AddRisk(model.Risk{Code: "R-1", Label: "Fall", Status: types.RiskStatusOpen})

	session := riskapi.NewSession("")
	client := newClient(t, srv, riskapi.WithSession(session), riskapi.WithUserAgent("riskdesk-test"))
	ctx := context.Background()

	_, err := client.GetRisk(ctx, risk.ID)
	apiErr, ok := model.AsAPIError(err)
	gt.Bool(t, ok).True()
	gt.Value(t, apiErr.Status).Equal(http.StatusUnauthorized)
	gt.Bool(t, srv.Requests()[0].Header.Get(riskapi.DefaultAPIKeyHeader) == "").True()

	session.Login("secret")
	got, err := client.GetRisk(ctx, risk.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Code).Equal("R-1")

	req := srv.Requests()[1]
	gt.Value(t, req.Header.Get(riskapi.DefaultAPIKeyHeader)).Equal("secret")
	gt.Value(t, req.Header.Get("Accept")).Equal("application/json")
	gt.Value(t, req.Header.Get("User-Agent")).Equal("riskdesk-test")
	gt.String(t, req.Header.Get("X-Request-ID")).NotEqual("")

	session.Logout()
	_, err = client.GetRisk(ctx, risk.ID)
	gt.Error(t, err)
}

func TestClient_CustomAPIKeyHeader(t *testing.T) {
	srv := riskapitest.New(riskapitest.WithRequiredAPIKey("X-Api-Key", "k"))
	defer srv.Close()
	risk := srv.AddRisk(model.Risk{Code: "R-1"})

	client := newClient(t, srv, riskapi.WithSession(riskapi.NewSession("k")), riskapi.WithAPIKeyHeader("X-Api-Key"))
	_, err := client.GetRisk(context.Background(), risk.ID)
	gt.NoError(t, err)
}

func TestClient_Assessments(t *testing.T) {
	srv := riskapitest.New()
	defer srv.Close()
	risk := srv.AddRisk(model.Risk{Code: "R-1", Status: types.RiskStatusOpen})
	client := newClient(t, srv)
	ctx := context.Background()

	values := model.AssessmentValues{Method: "AMDEC", Score: 30, Attachments: []string{"https://example.com/a.pdf"}}
	created, err := client.CreateAssessment(ctx, values.CreateInput(risk.ID))
	gt.NoError(t, err).Required()
	gt.Value(t, created.RiskID).Equal(risk.ID)
	gt.String(t, created.UpdatedAt).NotEqual("")
	gt.Array(t, created.Attachments).Length(1)
	gt.Value(t, created.Attachments[0]).Equal(model.Attachment{Name: "https://example.com/a.pdf", URL: "https://example.com/a.pdf"})

	fetched, err := client.GetAssessment(ctx, created.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, fetched.UpdatedAt).Equal(created.UpdatedAt)

	t.Run("update with matching version", func(t *testing.T) {
		values.Score = 45
		updated, err := client.UpdateAssessment(ctx, created.ID, values.UpdateInput(fetched.UpdatedAt))
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Score).Equal(45)
		gt.String(t, updated.UpdatedAt).NotEqual(fetched.UpdatedAt)
	})

	t.Run("update with stale version", func(t *testing.T) {
		values.Score = 50
		_, err := client.UpdateAssessment(ctx, created.ID, values.UpdateInput(fetched.UpdatedAt))
		gt.Error(t, err)
		gt.Bool(t, model.IsConflict(err)).True()

		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Value(t, apiErr.Detail()).Equal(riskapitest.ConflictDetail)
		gt.String(t, apiErr.TraceID()).NotEqual("")
	})

	t.Run("validation failure carries field errors", func(t *testing.T) {
		_, err := client.CreateAssessment(ctx, model.CreateAssessmentInput{RiskID: risk.ID, Method: "A", Score: 120})
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Value(t, apiErr.Status).Equal(http.StatusUnprocessableEntity)
		fields := apiErr.FieldErrors()
		gt.Map(t, fields).HasKey("method")
		gt.Map(t, fields).HasKey("score")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.GetAssessment(ctx, 9999)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Value(t, apiErr.Status).Equal(http.StatusNotFound)
		gt.Bool(t, apiErr.IsClientError()).True()
	})
}

func TestClient_ActionPlansAndDocuments(t *testing.T) {
	srv := riskapitest.New()
	defer srv.Close()
	risk := srv.AddRisk(model.Risk{Code: "R-1"})
	other := srv.AddRisk(model.Risk{Code: "R-2"})
	client := newClient(t, srv)
	ctx := context.Background()

	plan, err := client.CreateActionPlan(ctx, model.CreateActionPlanInput{
		RiskID: risk.ID, Title: "Install guard rails", DueDate: "2026-12-01", Status: types.ActionPlanStatusPlanned,
	})
	gt.NoError(t, err).Required()
	gt.Value(t, plan.Title).Equal("Install guard rails")
	srv.AddActionPlan(model.ActionPlan{RiskID: other.ID, Title: "Other", Status: types.ActionPlanStatusDone})

	plans, err := client.ListActionPlans(ctx, model.RiskChildParams{RiskID: risk.ID})
	gt.NoError(t, err).Required()
	gt.Array(t, plans.Data).Length(1)
	gt.Value(t, plans.Data[0].ID).Equal(plan.ID)

	doc, err := client.CreateDocument(ctx, model.CreateDocumentInput{
		RiskID: risk.ID, Name: "Audit", URL: "https://example.com/audit.pdf", Type: "pdf",
	})
	gt.NoError(t, err).Required()

	docs, err := client.ListDocuments(ctx, model.RiskChildParams{RiskID: risk.ID, Page: 1, Size: 10})
	gt.NoError(t, err).Required()
	gt.Array(t, docs.Data).Length(1)
	gt.Value(t, docs.Data[0].ID).Equal(doc.ID)

	req := srv.Requests()[len(srv.Requests())-1]
	gt.Value(t, req.Query.Get("riskId")).Equal("1")
	gt.Value(t, req.Query.Get("size")).Equal("10")
}

func TestClient_DownloadRiskReport(t *testing.T) {
	srv := riskapitest.New()
	defer srv.Close()
	risk := srv.AddRisk(model.Risk{Code: "R-7"})
	srv.SetReport(risk.ID, []byte("%PDF-1.4 test"))
	client := newClient(t, srv)

	report, err := client.DownloadRiskReport(context.Background(), risk.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, string(report.Data)).Equal("%PDF-1.4 test")
	gt.Value(t, report.ContentType).Equal("application/pdf")
	gt.Value(t, report.Filename).Equal("R-7.pdf")
	gt.Value(t, report.RiskID).Equal(risk.ID)

	_, err = client.DownloadRiskReport(context.Background(), 404)
	gt.Error(t, err)
}

func TestClient_FailureShapes(t *testing.T) {
	srv := riskapitest.New()
	defer srv.Close()
	risk := srv.AddRisk(model.Risk{Code: "R-1"})
	client := newClient(t, srv)
	ctx := context.Background()
	path := "/risks/1"

	t.Run("server error without problem", func(t *testing.T) {
		srv.FailNext(http.MethodGet, path, http.StatusServiceUnavailable, nil)
		_, err := client.GetRisk(ctx, risk.ID)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Value(t, apiErr.Status).Equal(http.StatusServiceUnavailable)
		gt.Value(t, apiErr.Problem).Nil()
		gt.Bool(t, apiErr.IsRetryable()).True()
	})

	t.Run("server error with problem", func(t *testing.T) {
		srv.FailNext(http.MethodGet, path, http.StatusInternalServerError, &model.ProblemDetails{Title: "Boom", Detail: "database down"})
		_, err := client.GetRisk(ctx, risk.ID)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Value(t, apiErr.Detail()).Equal("database down")
	})

	t.Run("network error", func(t *testing.T) {
		closed := riskapitest.New()
		url := closed.URL()
		closed.Close()

		c, err := riskapi.New(url)
		gt.NoError(t, err).Required()
		_, err = c.GetRisk(ctx, 1)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Bool(t, apiErr.IsNetwork()).True()
	})

	t.Run("timeout", func(t *testing.T) {
		slow := riskapitest.New(riskapitest.WithDelay(200 * time.Millisecond))
		defer slow.Close()
		slow.AddRisk(model.Risk{Code: "R-1"})

		c := newClient(t, slow, riskapi.WithTimeout(20*time.Millisecond))
		_, err := c.GetRisk(ctx, 1)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Bool(t, apiErr.IsNetwork()).True()
	})

	t.Run("cancelled rate limiter wait", func(t *testing.T) {
		c := newClient(t, srv, riskapi.WithRateLimit(0.001, 1))
		_, err := c.GetRisk(ctx, risk.ID)
		gt.NoError(t, err).Required()

		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = c.GetRisk(short, risk.ID)
		apiErr, ok := model.AsAPIError(err)
		gt.Bool(t, ok).True()
		gt.Bool(t, apiErr.IsNetwork()).True()
	})

	t.Run("errors keep goerr context", func(t *testing.T) {
		_, err := client.GetRisk(ctx, 4242)
		gt.Error(t, err)
		gt.String(t, err.Error()).Contains("failed to get risk")

		goErr := goerr.Unwrap(err)
		gt.Value(t, goErr).NotNil()
		gt.Value(t, goErr.Values()[model.RiskIDKey]).Equal(any(int64(4242)))
	})
}

func TestSession(t *testing.T) {
	s := riskapi.NewSession("")
	gt.Bool(t, s.IsAuthenticated()).False()
	s.Login("key")
	gt.Bool(t, s.IsAuthenticated()).True()
	gt.Value(t, s.APIKey()).Equal("key")
	s.Logout()
	gt.Value(t, s.APIKey()).Equal("")

	var nilSession *riskapi.Session
	gt.Value(t, nilSession.APIKey()).Equal("")
}
