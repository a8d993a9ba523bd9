package query_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/secmon-lab/riskdesk/pkg/repository/memory"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi/riskapitest"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newQueryClient(opts ...query.Option) (*query.Client, *clock) {
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewCacheStore(memory.WithClock(clk.Now))
	opts = append([]query.Option{query.WithClock(clk.Now), query.WithBackoff(0, 0)}, opts...)
	return query.New(store, opts...), clk
}

type counted struct {
	calls atomic.Int32
	value string
}

func (c *counted) fetch(ctx context.Context) (string, error) {
	c.calls.Add(1)
	return c.value, nil
}

func TestKeys(t *testing.T) {
	page2 := query.RiskListKey(model.ListRisksParams{Page: 2, Size: 25, Status: "open"})
	page5 := query.RiskListKey(model.ListRisksParams{Page: 5, Size: 25, Status: "open"})
	gt.String(t, page2.String()).NotEqual(page5.String())

	defaults := query.RiskListKey(model.ListRisksParams{})
	explicit := query.RiskListKey(model.ListRisksParams{Page: 1, Size: 25, Status: model.StatusFilterAll})
	gt.Value(t, defaults.String()).Equal(explicit.String())

	gt.Value(t, query.RiskDetailKey(7).String()).Equal("risks/detail/7")
	gt.Value(t, query.AssessmentKey(7, 3).String()).Equal("risks/detail/7/assessments/3")
	gt.Value(t, query.DocumentListKey(model.RiskChildParams{RiskID: 7}).String()).Equal("risks/detail/7/documents/page=1&size=25")
	gt.Value(t, query.ActionPlansKey(7).String()).Equal("risks/detail/7/action-plans")

	gt.Bool(t, query.DocumentsKey(7).HasPrefix(query.RiskDetailKey(7))).True()
	gt.Bool(t, query.RiskDetailKey(70).HasPrefix(query.RiskDetailKey(7))).False()
	gt.Bool(t, query.RisksKey().HasPrefix(query.RiskDetailKey(7))).False()
}

func TestBackoff_Delay(t *testing.T) {
	b := query.Backoff{Base: time.Second, Max: 30 * time.Second}
	gt.Value(t, b.Delay(0)).Equal(time.Second)
	gt.Value(t, b.Delay(1)).Equal(2 * time.Second)
	gt.Value(t, b.Delay(2)).Equal(4 * time.Second)
	gt.Value(t, b.Delay(4)).Equal(16 * time.Second)
	gt.Value(t, b.Delay(5)).Equal(30 * time.Second)
	gt.Value(t, b.Delay(50)).Equal(30 * time.Second)
	gt.Value(t, query.Backoff{}.Delay(3)).Equal(time.Duration(0))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "network", err: &model.APIError{Status: 0}, want: true},
		{name: "server error", err: &model.APIError{Status: http.StatusBadGateway}, want: true},
		{name: "too many requests", err: &model.APIError{Status: http.StatusTooManyRequests}, want: true},
		{name: "conflict", err: &model.APIError{Status: http.StatusConflict}, want: false},
		{name: "validation", err: &model.APIError{Status: http.StatusUnprocessableEntity}, want: false},
		{name: "wrapped network", err: goerr.Wrap(&model.APIError{Status: 0}, "failed"), want: true},
		{name: "plain error", err: goerr.New("boom"), want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, query.IsRetryable(tt.err)).Equal(tt.want)
		})
	}
}

func TestFetch_Freshness(t *testing.T) {
	c, clk := newQueryClient()
	ctx := context.Background()
	key := query.RiskDetailKey(1)
	src := &counted{value: "v1"}

	got, err := query.Fetch(ctx, c, key, src.fetch)
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal("v1")

	src.value = "v2"
	clk.Advance(29 * time.Second)
	got, err = query.Fetch(ctx, c, key, src.fetch)
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal("v1")
	gt.Value(t, src.calls.Load()).Equal(int32(1))

	clk.Advance(2 * time.Second)
	got, err = query.Fetch(ctx, c, key, src.fetch)
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal("v2")
	gt.Value(t, src.calls.Load()).Equal(int32(2))
}

func TestPeek(t *testing.T) {
	c, clk := newQueryClient()
	ctx := context.Background()
	key := query.RiskDetailKey(2)

	_, ok := query.Peek[string](ctx, c, key)
	gt.Bool(t, ok).False()

	_, err := query.Fetch(ctx, c, key, (&counted{value: "cached"}).fetch)
	gt.NoError(t, err).Required()

	clk.Advance(time.Minute)
	got, ok := query.Peek[string](ctx, c, key)
	gt.Bool(t, ok).True()
	gt.Value(t, got).Equal("cached")

	clk.Advance(5 * time.Minute)
	_, ok = query.Peek[string](ctx, c, key)
	gt.Bool(t, ok).False()
}

func TestFetch_SharesInFlightRequest(t *testing.T) {
	c, _ := newQueryClient()
	ctx := context.Background()
	key := query.RiskDetailKey(3)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (*model.Risk, error) {
		calls.Add(1)
		<-release
		return &model.Risk{ID: 3, Code: "R-3"}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*model.Risk, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := query.Fetch(ctx, c, key, fn)
			if err == nil {
				results[i] = r
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	gt.Value(t, calls.Load()).Equal(int32(1))
	for _, r := range results {
		gt.Value(t, r).NotNil()
		gt.Value(t, r.Code).Equal("R-3")
	}
	results[0].Code = "mutated"
	gt.Value(t, results[1].Code).Equal("R-3")
}

func TestFetch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c, _ := newQueryClient()
	key := query.RiskDetailKey(4)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var fnErr atomic.Value
	fn := func(ctx context.Context) (*model.Risk, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			fnErr.Store(err)
			return nil, err
		}
		return &model.Risk{ID: 4, Code: "R-4"}, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := query.Fetch(ctxA, c, key, fn)
		errA <- err
	}()
	<-started

	type fetched struct {
		risk *model.Risk
		err  error
	}
	resB := make(chan fetched, 1)
	go func() {
		r, err := query.Fetch(context.Background(), c, key, fn)
		resB <- fetched{risk: r, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		gt.Bool(t, errors.Is(err, context.Canceled)).True()
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case res := <-resB:
		gt.NoError(t, res.err).Required()
		gt.Value(t, res.risk.Code).Equal("R-4")
	case <-time.After(time.Second):
		t.Fatal("shared caller did not get the result")
	}
	gt.Value(t, calls.Load()).Equal(int32(1))
	gt.Value(t, fnErr.Load()).Nil()
}

func TestFetch_RetryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("network errors are retried three times", func(t *testing.T) {
		c, _ := newQueryClient()
		var calls atomic.Int32
		_, err := query.Fetch(ctx, c, query.RiskDetailKey(1), func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", &model.APIError{Status: 0, Message: "connection refused"}
		})
		gt.Error(t, err)
		gt.Value(t, calls.Load()).Equal(int32(4))
	})

	t.Run("recovers after a transient failure", func(t *testing.T) {
		c, _ := newQueryClient()
		var calls atomic.Int32
		got, err := query.Fetch(ctx, c, query.RiskDetailKey(1), func(ctx context.Context) (string, error) {
			if calls.Add(1) < 3 {
				return "", &model.APIError{Status: http.StatusServiceUnavailable}
			}
			return "ok", nil
		})
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal("ok")
		gt.Value(t, calls.Load()).Equal(int32(3))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		c, _ := newQueryClient()
		var calls atomic.Int32
		_, err := query.Fetch(ctx, c, query.RiskDetailKey(1), func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", &model.APIError{Status: http.StatusNotFound}
		})
		gt.Error(t, err)
		gt.Value(t, calls.Load()).Equal(int32(1))
	})

	t.Run("failures are not cached", func(t *testing.T) {
		c, _ := newQueryClient(query.WithRetry(0, 0))
		key := query.RiskDetailKey(9)
		_, err := query.Fetch(ctx, c, key, func(ctx context.Context) (string, error) {
			return "", &model.APIError{Status: http.StatusInternalServerError}
		})
		gt.Error(t, err)

		got, err := query.Fetch(ctx, c, key, (&counted{value: "back"}).fetch)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal("back")
	})

	t.Run("cancelled caller stops waiting on the backoff", func(t *testing.T) {
		c := query.New(nil, query.WithBackoff(time.Hour, time.Hour))
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		var calls atomic.Int32
		_, err := query.Fetch(cctx, c, query.RiskDetailKey(1), func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", &model.APIError{Status: 0}
		})
		gt.Error(t, err)
		gt.Value(t, calls.Load()).Equal(int32(1))
	})
}

func TestMutate(t *testing.T) {
	ctx := context.Background()

	t.Run("writes are retried once", func(t *testing.T) {
		c, _ := newQueryClient()
		var calls atomic.Int32
		_, err := query.Mutate(ctx, c, func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", &model.APIError{Status: http.StatusBadGateway}
		})
		gt.Error(t, err)
		gt.Value(t, calls.Load()).Equal(int32(2))
	})

	t.Run("conflicts are not retried", func(t *testing.T) {
		c, _ := newQueryClient()
		var calls atomic.Int32
		_, err := query.Mutate(ctx, c, func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", &model.APIError{Status: http.StatusConflict}
		})
		gt.Bool(t, model.IsConflict(err)).True()
		gt.Value(t, calls.Load()).Equal(int32(1))
	})

	t.Run("success invalidates the given keys", func(t *testing.T) {
		c, _ := newQueryClient()
		detail := &counted{value: "risk"}
		docs := &counted{value: "docs"}
		other := &counted{value: "other"}
		docsKey := query.DocumentListKey(model.RiskChildParams{RiskID: 1})

		for _, f := range []struct {
			key query.Key
			src *counted
		}{{query.RiskDetailKey(1), detail}, {docsKey, docs}, {query.RiskDetailKey(2), other}} {
			_, err := query.Fetch(ctx, c, f.key, f.src.fetch)
			gt.NoError(t, err).Required()
		}

		_, err := query.Mutate(ctx, c, func(ctx context.Context) (int, error) { return 1, nil },
			query.DocumentsKey(1), query.RiskDetailKey(1))
		gt.NoError(t, err).Required()

		_, _ = query.Fetch(ctx, c, query.RiskDetailKey(1), detail.fetch)
		_, _ = query.Fetch(ctx, c, docsKey, docs.fetch)
		_, _ = query.Fetch(ctx, c, query.RiskDetailKey(2), other.fetch)
		gt.Value(t, detail.calls.Load()).Equal(int32(2))
		gt.Value(t, docs.calls.Load()).Equal(int32(2))
		gt.Value(t, other.calls.Load()).Equal(int32(1))
	})

	t.Run("failure keeps the cache", func(t *testing.T) {
		c, _ := newQueryClient()
		src := &counted{value: "risk"}
		_, err := query.Fetch(ctx, c, query.RiskDetailKey(1), src.fetch)
		gt.NoError(t, err).Required()

		_, err = query.Mutate(ctx, c, func(ctx context.Context) (int, error) {
			return 0, &model.APIError{Status: http.StatusUnprocessableEntity}
		}, query.RiskDetailKey(1))
		gt.Error(t, err)

		_, _ = query.Fetch(ctx, c, query.RiskDetailKey(1), src.fetch)
		gt.Value(t, src.calls.Load()).Equal(int32(1))
	})
}

func TestRiskListPagesAreDistinctQueries(t *testing.T) {
	srv := riskapitest.New()
	defer srv.Close()
	for i := 0; i < 100; i++ {
		srv.AddRisk(model.Risk{Code: "R", Status: types.RiskStatusOpen})
	}
	for i := 0; i < 5; i++ {
		srv.AddRisk(model.Risk{Code: "C", Status: types.RiskStatusClosed})
	}

	api, err := riskapi.New(srv.URL())
	gt.NoError(t, err).Required()
	c, _ := newQueryClient()
	ctx := context.Background()

	list := func(page int) (*model.RiskPage, error) {
		params := model.ListRisksParams{Page: page, Size: 25, Status: "open"}
		return query.Fetch(ctx, c, query.RiskListKey(params), func(ctx context.Context) (*model.RiskPage, error) {
			return api.ListRisks(ctx, params)
		})
	}

	page2, err := list(2)
	gt.NoError(t, err).Required()
	gt.Value(t, page2.Meta.TotalPages).Equal(4)
	gt.Array(t, page2.Data).Length(25)
	gt.Value(t, srv.Count(http.MethodGet, "/risks")).Equal(1)

	page5, err := list(5)
	gt.NoError(t, err).Required()
	gt.Array(t, page5.Data).Length(0)
	gt.Value(t, page5.Meta.Page).Equal(5)
	gt.Value(t, srv.Count(http.MethodGet, "/risks")).Equal(2)

	_, err = list(2)
	gt.NoError(t, err).Required()
	gt.Value(t, srv.Count(http.MethodGet, "/risks")).Equal(2)
}
