package riskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
	"github.com/secmon-lab/riskdesk/pkg/utils/safe"
	"golang.org/x/time/rate"
)

const (
	// DefaultAPIKeyHeader is the header carrying the access key
	DefaultAPIKeyHeader = "DOLAPIKEY"
	// DefaultTimeout bounds a single HTTP exchange
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "riskdesk"
	requestIDHeader  = "X-Request-ID"
)

// Client is a typed client of the risk management REST API
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	session      *Session
	apiKeyHeader string
	limiter      *rate.Limiter
	userAgent    string
}

var _ interfaces.RiskAPI = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithSession binds the session whose key is attached to every request
func WithSession(s *Session) Option {
	return func(c *Client) { c.session = s }
}

// WithAPIKeyHeader changes the name of the access key header
func WithAPIKeyHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.apiKeyHeader = name
		}
	}
}

// WithRateLimit throttles outbound requests. A zero limit disables throttling.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.New("API base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse API base URL", goerr.V("base_url", baseURL))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, goerr.New("API base URL must be an absolute http(s) URL", goerr.V("base_url", baseURL))
	}

	c := &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		session:      NewSession(""),
		apiKeyHeader: DefaultAPIKeyHeader,
		userAgent:    defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session bound to the client
func (c *Client) Session() *Session {
	return c.session
}

// ListRisks calls GET /risks
func (c *Client) ListRisks(ctx context.Context, params model.ListRisksParams) (*model.RiskPage, error) {
	params = params.Normalize()
	var out model.RiskPage
	if err := c.doJSON(ctx, http.MethodGet, "/risks", params.Values(), nil, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to list risks", goerr.V("page", params.Page), goerr.V("size", params.Size))
	}
	return &out, nil
}

// GetRisk calls GET /risks/{id}
func (c *Client) GetRisk(ctx context.Context, riskID int64) (*model.Risk, error) {
	var out model.Risk
	if err := c.doJSON(ctx, http.MethodGet, "/risks/"+id(riskID), nil, nil, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to get risk", goerr.V(model.RiskIDKey, riskID))
	}
	return &out, nil
}

// GetAssessment calls GET /assessments/{id}
func (c *Client) GetAssessment(ctx context.Context, assessmentID int64) (*model.Assessment, error) {
	var out model.Assessment
	if err := c.doJSON(ctx, http.MethodGet, "/assessments/"+id(assessmentID), nil, nil, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to get assessment", goerr.V(model.AssessmentIDKey, assessmentID))
	}
	return &out, nil
}

// CreateAssessment calls POST /assessments
func (c *Client) CreateAssessment(ctx context.Context, input model.CreateAssessmentInput) (*model.Assessment, error) {
	var out model.Assessment
	if err := c.doJSON(ctx, http.MethodPost, "/assessments", nil, input, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to create assessment", goerr.V(model.RiskIDKey, input.RiskID))
	}
	return &out, nil
}

// UpdateAssessment calls PATCH /assessments/{id}
func (c *Client) UpdateAssessment(ctx context.Context, assessmentID int64, input model.UpdateAssessmentInput) (*model.Assessment, error) {
	var out model.Assessment
	if err := c.doJSON(ctx, http.MethodPatch, "/assessments/"+id(assessmentID), nil, input, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to update assessment",
			goerr.V(model.AssessmentIDKey, assessmentID),
			goerr.V("updated_at", input.UpdatedAt),
		)
	}
	return &out, nil
}

// ListActionPlans calls GET /action-plans
func (c *Client) ListActionPlans(ctx context.Context, params model.RiskChildParams) (*model.ActionPlanPage, error) {
	params = params.Normalize()
	var out model.ActionPlanPage
	if err := c.doJSON(ctx, http.MethodGet, "/action-plans", params.Values(), nil, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to list action plans", goerr.V(model.RiskIDKey, params.RiskID))
	}
	return &out, nil
}

// CreateActionPlan calls POST /action-plans
func (c *Client) CreateActionPlan(ctx context.Context, input model.CreateActionPlanInput) (*model.ActionPlan, error) {
	var out model.ActionPlan
	if err := c.doJSON(ctx, http.MethodPost, "/action-plans", nil, input, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to create action plan", goerr.V(model.RiskIDKey, input.RiskID))
	}
	return &out, nil
}

// ListDocuments calls GET /documents
func (c *Client) ListDocuments(ctx context.Context, params model.RiskChildParams) (*model.DocumentPage, error) {
	params = params.Normalize()
	var out model.DocumentPage
	if err := c.doJSON(ctx, http.MethodGet, "/documents", params.Values(), nil, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to list documents", goerr.V(model.RiskIDKey, params.RiskID))
	}
	return &out, nil
}

// CreateDocument calls POST /documents
func (c *Client) CreateDocument(ctx context.Context, input model.CreateDocumentInput) (*model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, http.MethodPost, "/documents", nil, input, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to create document", goerr.V(model.RiskIDKey, input.RiskID))
	}
	return &out, nil
}

// DownloadRiskReport calls GET /reports/{riskId}/pdf and returns the raw payload
func (c *Client) DownloadRiskReport(ctx context.Context, riskID int64) (*model.Report, error) {
	resp, err := c.send(ctx, http.MethodGet, "/reports/"+id(riskID)+"/pdf", nil, nil, "application/pdf")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download risk report", goerr.V(model.RiskIDKey, riskID))
	}
	defer safe.Close(ctx, resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(Normalize(nil, err), "failed to read risk report", goerr.V(model.RiskIDKey, riskID))
	}

	report := &model.Report{
		RiskID:      riskID,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    model.DefaultReportFilename(riskID),
		Data:        data,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		report.Filename = params["filename"]
	}
	return report, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body, "application/json")
	if err != nil {
		return err
	}
	defer safe.Close(ctx, resp.Body)

	if out == nil {
		safe.Drain(ctx, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.APIError{
			Status:  resp.StatusCode,
			Title:   http.StatusText(resp.StatusCode),
			Message: "failed to decode response body: " + err.Error(),
		}
	}
	return nil
}

// send performs one exchange. It returns either a 2xx response, whose body
// the caller must close, or a normalized *model.APIError.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal request body", goerr.V("path", path))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("method", method), goerr.V("path", path))
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", accept)
	req.Header.Set(requestIDHeader, requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.session.APIKey(); key != "" {
		req.Header.Set(c.apiKeyHeader, key)
	}

	logger := logging.From(ctx).With("method", method, "path", path, "request_id", requestID)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, Normalize(nil, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("api request failed", "error", err.Error(), "duration", time.Since(start))
		return nil, Normalize(nil, err)
	}
	logger.Debug("api request", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer safe.Close(ctx, resp.Body)
		return nil, Normalize(resp, nil)
	}
	return resp, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
