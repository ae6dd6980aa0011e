package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/engine/internal/model"
)

type fakeDispatcher struct {
	submitID  string
	submitErr error
	gotReq    model.BacktestRequest

	state    model.TaskState
	fetchErr error
}

func (d *fakeDispatcher) Submit(_ context.Context, req model.BacktestRequest) (string, error) {
	d.gotReq = req
	return d.submitID, d.submitErr
}

func (d *fakeDispatcher) Fetch(context.Context, string) (model.TaskState, error) {
	return d.state, d.fetchErr
}

type fakeHealth struct {
	pingErr  error
	alive    int
	aliveErr error
}

func (h *fakeHealth) Ping(context.Context) error {
	return h.pingErr
}

func (h *fakeHealth) WorkersAlive(context.Context) (int, error) {
	return h.alive, h.aliveErr
}

// allowAll is the pass-through limiter used by most handler tests.
type allowAll struct{}

func (allowAll) RateAllow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

// countingLimiter enforces real fixed windows in memory.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{counts: make(map[string]int)}
}

func (l *countingLimiter) RateAllow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

func newTestRouter(d *fakeDispatcher, h *fakeHealth, l Limiter) http.Handler {
	handler := NewHandler(d, h, zerolog.Nop())
	return NewRouter(handler, l, zerolog.Nop())
}

func submitBody(code string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"backtest": map[string]interface{}{
			"name": "AAPL",
			"code": code,
			"params": map[string]float64{
				"initialCapital":     100000,
				"investmentPerTrade": 10000,
			},
			"range": map[string]string{"from": "2024-01-01", "to": "2024-06-30"},
		},
	})
	return string(b)
}

func TestExecuteAccepted(t *testing.T) {
	d := &fakeDispatcher{submitID: "task-123"}
	router := newTestRouter(d, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodPost, "/engine/execute/", strings.NewReader(submitBody("code")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "task-123", body["task_id"])
	assert.Equal(t, "/engine/task/task-123/", body["status_url"])
	assert.NotEmpty(t, body["message"])

	assert.Equal(t, "AAPL", d.gotReq.Symbol)
	assert.Equal(t, "2024-01-01", d.gotReq.Range.From)
}

func TestExecuteRejectsMissingCode(t *testing.T) {
	router := newTestRouter(&fakeDispatcher{}, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodPost, "/engine/execute/", strings.NewReader(submitBody("")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no code provided", body["error"])
}

func TestExecuteRejectsInvalidJSON(t *testing.T) {
	router := newTestRouter(&fakeDispatcher{}, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodPost, "/engine/execute/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteMapsDispatcherErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: no symbol provided", model.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: no job workers available", model.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		router := newTestRouter(&fakeDispatcher{submitErr: c.err}, &fakeHealth{alive: 1}, allowAll{})
		req := httptest.NewRequest(http.MethodPost, "/engine/execute/", strings.NewReader(submitBody("code")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, c.code, rec.Code, "error %v", c.err)
	}
}

func TestTaskPending(t *testing.T) {
	d := &fakeDispatcher{state: model.TaskState{Status: model.StatePending}}
	router := newTestRouter(d, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodGet, "/engine/task/task-123/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.StatePending, body["status"])
}

func TestTaskCompletedEmbedsReport(t *testing.T) {
	d := &fakeDispatcher{state: model.TaskState{
		Status: model.StateCompleted,
		Result: json.RawMessage(`{"finalCapital":10027}`),
	}}
	router := newTestRouter(d, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodGet, "/engine/task/task-123/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.StateCompleted, body.Status)
	assert.JSONEq(t, `{"finalCapital":10027}`, string(body.Result))
}

func TestTaskErrorState(t *testing.T) {
	d := &fakeDispatcher{state: model.TaskState{
		Status: model.StateError,
		Error:  "sandbox exited with code 1",
	}}
	router := newTestRouter(d, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodGet, "/engine/task/task-123/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sandbox exited with code 1", body["error"])
}

func TestTaskStoreUnavailable(t *testing.T) {
	d := &fakeDispatcher{fetchErr: errors.New("refused")}
	router := newTestRouter(d, &fakeHealth{alive: 1}, allowAll{})

	req := httptest.NewRequest(http.MethodGet, "/engine/task/task-123/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAllHealthy(t *testing.T) {
	router := newTestRouter(&fakeDispatcher{}, &fakeHealth{alive: 2}, allowAll{})

	req := httptest.NewRequest(http.MethodGet, "/engine/health/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["redis"].Status)
	assert.Equal(t, "healthy", body["celery"].Status)
}

func TestHealthDegraded(t *testing.T) {
	t.Run("store down", func(t *testing.T) {
		router := newTestRouter(&fakeDispatcher{}, &fakeHealth{pingErr: errors.New("refused"), alive: 2}, allowAll{})
		req := httptest.NewRequest(http.MethodGet, "/engine/health/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body["redis"].Status)
		assert.Equal(t, "healthy", body["celery"].Status)
	})

	t.Run("no workers", func(t *testing.T) {
		router := newTestRouter(&fakeDispatcher{}, &fakeHealth{alive: 0}, allowAll{})
		req := httptest.NewRequest(http.MethodGet, "/engine/health/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body["celery"].Status)
		assert.Contains(t, body["celery"].Message, "no workers")
	})
}

func TestExecuteThrottledPerUser(t *testing.T) {
	limiter := newCountingLimiter()
	router := newTestRouter(&fakeDispatcher{submitID: "t"}, &fakeHealth{alive: 1}, limiter)

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/engine/execute/", strings.NewReader(submitBody("code")))
		req.Header.Set("X-User-Id", user)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	// a different submitter has their own window
	assert.Equal(t, http.StatusAccepted, send("bob"))
}

func TestTaskThrottledPerClient(t *testing.T) {
	limiter := newCountingLimiter()
	d := &fakeDispatcher{state: model.TaskState{Status: model.StatePending}}
	router := newTestRouter(d, &fakeHealth{alive: 1}, limiter)

	var last int
	for i := 0; i < 31; i++ {
		req := httptest.NewRequest(http.MethodGet, "/engine/task/task-123/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRateLimiterFailureFailsOpen(t *testing.T) {
	limiter := newCountingLimiter()
	limiter.err = errors.New("counter down")
	router := newTestRouter(&fakeDispatcher{submitID: "t"}, &fakeHealth{alive: 1}, limiter)

	req := httptest.NewRequest(http.MethodPost, "/engine/execute/", strings.NewReader(submitBody("code")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRecoveryMiddlewareCatchesPanics(t *testing.T) {
	d := &fakeDispatcher{}
	handler := NewHandler(d, &fakeHealth{alive: 1}, zerolog.Nop())
	router := NewRouter(handler, panicLimiter{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/engine/health/", nil)
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { router.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicLimiter struct{}

func (panicLimiter) RateAllow(context.Context, string, int, time.Duration) (bool, error) {
	panic("limiter blew up")
}
