package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := fetchTotal
	Init()
	if fetchTotal != first || fetchTotal == nil {
		t.Fatal("Init() must create collectors once")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	okBefore := testutil.ToFloat64(fetchTotal.WithLabelValues("article", ResultOK))
	errBefore := testutil.ToFloat64(fetchTotal.WithLabelValues("article", ResultError))
	bytesBefore := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("article"))

	ObserveFetch("article", nil, 128, 10*time.Millisecond)
	ObserveFetch("article", errors.New("boom"), 0, time.Millisecond)

	if got := testutil.ToFloat64(fetchTotal.WithLabelValues("article", ResultOK)); got != okBefore+1 {
		t.Errorf("expected ok counter +1, got %f", got-okBefore)
	}
	if got := testutil.ToFloat64(fetchTotal.WithLabelValues("article", ResultError)); got != errBefore+1 {
		t.Errorf("expected error counter +1, got %f", got-errBefore)
	}
	if got := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("article")); got != bytesBefore+128 {
		t.Errorf("expected 128 more bytes, got %f", got-bytesBefore)
	}
}

func TestInFlightAndLedgerGauges(t *testing.T) {
	Init()
	base := testutil.ToFloat64(fetchInFlight)
	IncInFlight()
	IncInFlight()
	DecInFlight()
	if got := testutil.ToFloat64(fetchInFlight); got != base+1 {
		t.Errorf("expected in-flight %f, got %f", base+1, got)
	}
	DecInFlight()

	SetLedgerSize(42)
	if got := testutil.ToFloat64(ledgerSize); got != 42 {
		t.Errorf("expected ledger size 42, got %f", got)
	}
}

func TestObserveCycleAndStory(t *testing.T) {
	Init()
	idleBefore := testutil.ToFloat64(cyclesTotal.WithLabelValues(ResultIdle))
	partialBefore := testutil.ToFloat64(storiesTotal.WithLabelValues("partial"))
	catalogBefore := testutil.ToFloat64(sideChannelErrorsTotal.WithLabelValues("catalog"))

	ObserveCycle(ResultIdle, time.Second)
	ObserveStory(false)
	ObserveSideChannelError("catalog")

	if got := testutil.ToFloat64(cyclesTotal.WithLabelValues(ResultIdle)); got != idleBefore+1 {
		t.Errorf("expected idle cycle +1, got %f", got-idleBefore)
	}
	if got := testutil.ToFloat64(storiesTotal.WithLabelValues("partial")); got != partialBefore+1 {
		t.Errorf("expected partial story +1, got %f", got-partialBefore)
	}
	if got := testutil.ToFloat64(sideChannelErrorsTotal.WithLabelValues("catalog")); got != catalogBefore+1 {
		t.Errorf("expected catalog error +1, got %f", got-catalogBefore)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://news.ycombinator.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
