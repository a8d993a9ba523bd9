// Package riskapitest provides an in-process fake of the risk management REST
// API for tests. It keeps its state in memory, enforces optimistic
// concurrency on assessment updates and answers errors with problem
// documents.
package riskapitest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

// Request is a request observed by the server
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

const traceIDHeader = "X-Trace-ID"

type failure struct {
	method  string
	path    string
	status  int
	problem *model.ProblemDetails
}

// Server is a fake API served over a local listener
type Server struct {
	router *chi.Mux
	ts     *httptest.Server

	apiKeyHeader string
	apiKey       string
	delay        time.Duration
	hook         func(r *http.Request)

	mu             sync.Mutex
	risks          map[int64]*model.Risk
	assessments    map[int64]*model.Assessment
	actionPlans    map[int64]*model.ActionPlan
	documents      map[int64]*model.Document
	reports        map[int64][]byte
	nextID         int64
	versionSeq     int
	pinnedVersions []string
	requests       []Request
	failures       []failure
}

type Option func(*Server)

// WithRequiredAPIKey rejects requests whose header does not carry key
func WithRequiredAPIKey(header, key string) Option {
	return func(s *Server) {
		s.apiKeyHeader = header
		s.apiKey = key
	}
}

// WithDelay delays every response
func WithDelay(d time.Duration) Option {
	return func(s *Server) {
		s.delay = d
	}
}

// WithHook calls hook before a request is handled. It runs outside of the
// server lock, so it may block to hold a request in flight.
func WithHook(hook func(r *http.Request)) Option {
	return func(s *Server) {
		s.hook = hook
	}
}

// New starts a fake server. Close must be called when done.
func New(opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		risks:       make(map[int64]*model.Risk),
		assessments: make(map[int64]*model.Assessment),
		actionPlans: make(map[int64]*model.ActionPlan),
		documents:   make(map[int64]*model.Document),
		reports:     make(map[int64][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.authenticate)
	r.Use(s.injectFailure)

	r.Get("/risks", s.listRisks)
	r.Get("/risks/{id}", s.getRisk)
	r.Get("/assessments/{id}", s.getAssessment)
	r.Post("/assessments", s.createAssessment)
	r.Patch("/assessments/{id}", s.updateAssessment)
	r.Get("/action-plans", s.listActionPlans)
	r.Post("/action-plans", s.createActionPlan)
	r.Get("/documents", s.listDocuments)
	r.Post("/documents", s.createDocument)
	r.Get("/reports/{id}/pdf", s.downloadReport)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path, nil)
	})

	s.ts = httptest.NewServer(s)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// URL is the base URL of the server
func (s *Server) URL() string {
	return s.ts.URL
}

// Client returns an HTTP client configured for the server
func (s *Server) Client() *http.Client {
	return s.ts.Client()
}

func (s *Server) Close() {
	s.ts.Close()
}

// FailNext makes the next request matching method and path fail with status.
// A nil problem sends a plain text body. Calls stack up in FIFO order.
func (s *Server) FailNext(method, path string, status int, problem *model.ProblemDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, path: path, status: status, problem: problem})
}

// Requests returns every request observed so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Request, len(s.requests))
	copy(result, s.requests)
	return result
}

// Count returns how many requests matched method and path
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Method == method && req.Path == path {
			n++
		}
	}
	return n
}

// ResetRequests forgets observed requests
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Debug("fake api access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readBody(r)
		w.Header().Set(traceIDHeader, middleware.GetReqID(r.Context()))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		if s.hook != nil {
			s.hook(r)
		}
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get(s.apiKeyHeader) != s.apiKey {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f, ok := s.popFailure(r.Method, r.URL.Path); ok {
			if f.problem == nil {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(f.status)
				_, _ = w.Write([]byte(strings.ToLower(http.StatusText(f.status))))
				return
			}
			p := *f.problem
			if p.Status == 0 {
				p.Status = f.status
			}
			writeJSON(w, f.status, problemContentType, p)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) popFailure(method, path string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.failures {
		if f.method == method && f.path == path {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			return f, true
		}
	}
	return failure{}, false
}
