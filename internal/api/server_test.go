package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/ledger"
	"github.com/JakeFAU/ycrawler/internal/poller"
)

type fakeLoop struct {
	state  poller.State
	cycles int64
	report *crawler.CycleReport
}

func (f *fakeLoop) State() poller.State { return f.state }
func (f *fakeLoop) Cycles() int64       { return f.cycles }

func (f *fakeLoop) LastReport() (crawler.CycleReport, bool) {
	if f.report == nil {
		return crawler.CycleReport{}, false
	}
	return *f.report, true
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzWaitsForFirstCycle(t *testing.T) {
	t.Parallel()

	loop := &fakeLoop{state: poller.StateRunning}
	s := NewServer(ledger.New(), loop, nil)

	rec := serve(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	loop.cycles = 1
	rec = serve(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLedgerEndpoint(t *testing.T) {
	t.Parallel()

	l := ledger.New()
	l.Add("1002", "1001")
	rec := serve(t, NewServer(l, &fakeLoop{}, nil), "/v1/ledger")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"size":2,"ids":["1001","1002"]}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	l := ledger.New()
	l.Add("1")
	rec := serve(t, NewServer(l, &fakeLoop{state: poller.StateIdle, cycles: 3}, nil), "/v1/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"idle","cycles":3,"ledger_size":1}`, rec.Body.String())
}

func TestLastCycleEndpoint(t *testing.T) {
	t.Parallel()

	loop := &fakeLoop{}
	s := NewServer(ledger.New(), loop, nil)

	rec := serve(t, s, "/v1/cycles/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	start := time.Unix(1700000000, 0).UTC()
	loop.report = &crawler.CycleReport{
		CycleID:    "cycle-1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Listed:     30,
		New:        2,
		Marked:     2,
	}
	rec = serve(t, s, "/v1/cycles/last")
	require.Equal(t, http.StatusOK, rec.Code)

	var got crawler.CycleReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.Equal(t, 2, got.New)
}

func TestUnconfiguredDependencies(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	for _, path := range []string{"/v1/status", "/v1/ledger", "/v1/cycles/last", "/readyz"} {
		rec := serve(t, s, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(ledger.New(), &fakeLoop{}, nil)
	_ = serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
