package client

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/o-tero/service-control-client/sccfg"
	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
	"github.com/o-tero/service-control-client/transport"
)

func testOptions(checkCalls, quotaCalls *atomic.Int64) sccfg.ClientOptions {
	return sccfg.ClientOptions{
		ServiceName: "svc",
		CheckOptions: sccfg.CheckAggregationOptions{
			NumEntries: 10, FlushIntervalMs: 1000, ExpirationMs: 2000,
		},
		QuotaOptions: sccfg.QuotaAggregationOptions{
			NumEntries: 10, RefreshIntervalMs: 1000, ExpirationIntervalMs: 2000,
		},
		ReportOptions: sccfg.ReportAggregationOptions{
			NumEntries: 10, FlushIntervalMs: 1000,
		},
		CheckTransport: func(req *sctypes.CheckRequest, done func(*scerr.Status, *sctypes.CheckResponse)) {
			if checkCalls != nil {
				checkCalls.Add(1)
			}
			done(scerr.Ok(), &sctypes.CheckResponse{})
		},
		QuotaTransport: func(req *sctypes.AllocateQuotaRequest, done func(*scerr.Status, *sctypes.AllocateQuotaResponse)) {
			if quotaCalls != nil {
				quotaCalls.Add(1)
			}
			done(scerr.Ok(), &sctypes.AllocateQuotaResponse{})
		},
		ReportTransport: func(req *sctypes.ReportRequest, done func(*scerr.Status, *sctypes.ReportResponse)) {
			done(scerr.Ok(), &sctypes.ReportResponse{})
		},
	}
}

func checkRequest() *sctypes.CheckRequest {
	return &sctypes.CheckRequest{
		ServiceName: "svc",
		Operation:   &sctypes.Operation{OperationName: "op", ConsumerID: "project:foo"},
	}
}

// fakeTimer hands the façade's periodic callback back to the test so it
// can be fired on demand instead of waiting on a real ticker.
type fakeTimer struct {
	callback func()
}

func (f *fakeTimer) Start(intervalMillis int, callback func()) transport.StoppableTimer {
	f.callback = callback
	return f
}

func (f *fakeTimer) Stop() {}

// TestPeriodicTimerDrivesPartialFlushNotFlushAll is the maintainer's
// regression for the periodic-timer wiring bug: a tick must evict only
// aged entries (Flush), not wipe the whole cache (FlushAll). A positive
// Check entry fresher than flush_interval must still be a cache hit
// right after the timer fires.
func TestPeriodicTimerDrivesPartialFlushNotFlushAll(t *testing.T) {
	var calls atomic.Int64
	timer := &fakeTimer{}
	opts := testOptions(&calls, nil)
	opts.CheckOptions = sccfg.CheckAggregationOptions{NumEntries: 10, FlushIntervalMs: 10_000, ExpirationMs: 20_000}
	opts.Timer = timer

	c, err := New(opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if timer.callback == nil {
		t.Fatal("expected client to register a periodic callback")
	}

	status, _ := c.Check(checkRequest())
	if !status.IsOK() {
		t.Fatalf("expected OK after warming the cache, got %v", status)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one transport call priming the cache, got %d", got)
	}

	// Fire the periodic tick. flush_interval is far in the future, so a
	// correct Flush must not touch this entry at all.
	timer.callback()

	status, resp := c.Check(checkRequest())
	if !status.IsOK() || !resp.IsPositive() {
		t.Fatalf("expected entry to survive a periodic tick well within flush_interval, got status=%v resp=%+v", status, resp)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no additional transport call, got %d calls", got)
	}
}

// TestSingleFlightCoalescesConcurrentColdChecks is spec §8's single-flight
// property: many concurrent callers racing a cold cache for the same
// signature must produce exactly one transport round trip.
func TestSingleFlightCoalescesConcurrentColdChecks(t *testing.T) {
	var calls atomic.Int64
	c, err := New(testOptions(&calls, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c.Check(checkRequest())
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one transport call, got %d", got)
	}
}

// TestQuotaFailOpenViaFlush drives a quota through a forced refresh
// failure and checks the entry is not left stuck negative (spec §7).
func TestQuotaFailOpenViaFlush(t *testing.T) {
	var failing atomic.Bool
	opts := testOptions(nil, nil)
	opts.QuotaTransport = func(req *sctypes.AllocateQuotaRequest, done func(*scerr.Status, *sctypes.AllocateQuotaResponse)) {
		if failing.Load() {
			done(scerr.New(scerr.Unavailable, "simulated outage"), nil)
			return
		}
		done(scerr.Ok(), &sctypes.AllocateQuotaResponse{})
	}
	c, err := New(opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	req := &sctypes.AllocateQuotaRequest{
		ServiceName: "svc",
		AllocateOperation: &sctypes.QuotaOperation{
			MethodName: "m",
			ConsumerID: "project:foo",
			QuotaMetrics: []sctypes.MetricValueSet{
				{MetricName: "tokens", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 1}}},
			},
		},
	}

	failing.Store(true)
	status, resp := c.Quota(req)
	if !status.IsOK() || !resp.IsPositive() {
		t.Fatalf("expected optimistic positive admission on miss, got status=%v resp=%+v", status, resp)
	}

	// Give the async refresh goroutine (which will fail) a moment to land.
	time.Sleep(20 * time.Millisecond)

	status, resp = c.Quota(req)
	if !status.IsOK() || !resp.IsPositive() {
		t.Fatalf("expected fail-open to keep entry positive after refresh failure, got status=%v resp=%+v", status, resp)
	}
}

func TestReportDoesNotBlockOnTransport(t *testing.T) {
	opts := testOptions(nil, nil)
	c, err := New(opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	status := c.Report(&sctypes.ReportRequest{
		Operations: []*sctypes.Operation{{
			ConsumerID:    "project:foo",
			OperationName: "op",
			MetricValueSets: []sctypes.MetricValueSet{
				{MetricName: "requests", MetricValues: []sctypes.MetricValue{{Kind: sctypes.ValueInt64, Int64Value: 1}}},
			},
		}},
	})
	if !status.IsOK() {
		t.Fatalf("expected OK, got %v", status)
	}

	stats := c.GetStatistics()
	if stats.TotalCalledReports != 1 {
		t.Fatalf("expected TotalCalledReports=1, got %d", stats.TotalCalledReports)
	}
}

func TestGetStatisticsCountsCalls(t *testing.T) {
	var calls atomic.Int64
	c, err := New(testOptions(&calls, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Check(checkRequest())
	c.Check(checkRequest())

	stats := c.GetStatistics()
	if stats.TotalCalledChecks != 2 {
		t.Fatalf("expected TotalCalledChecks=2, got %d", stats.TotalCalledChecks)
	}
}
