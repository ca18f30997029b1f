// Package client implements the Client façade (spec §4.6): it binds the
// three aggregators to their transports, drives periodic flush, and
// exposes sync and async Check/Quota/Report, following the wiring in
// src/service_control_client_impl.cc.
package client

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/o-tero/service-control-client/checkaggregator"
	"github.com/o-tero/service-control-client/quotaaggregator"
	"github.com/o-tero/service-control-client/reportaggregator"
	"github.com/o-tero/service-control-client/sccfg"
	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
	"github.com/o-tero/service-control-client/signature"
	"github.com/o-tero/service-control-client/transport"
)

// Statistics is a read-only snapshot of call counters, spec §6.
type Statistics struct {
	TotalCalledChecks  int64
	SentChecksByFlush  int64
	SentChecksInFlight int64

	TotalCalledQuotas  int64
	SentQuotasByFlush  int64
	SentQuotasInFlight int64

	TotalCalledReports  int64
	SentReportsByFlush  int64
	SentReportsInFlight int64
	SentReportOperations int64
}

type counters struct {
	totalCalledChecks  atomic.Int64
	sentChecksByFlush  atomic.Int64
	sentChecksInFlight atomic.Int64

	totalCalledQuotas  atomic.Int64
	sentQuotasByFlush  atomic.Int64
	sentQuotasInFlight atomic.Int64

	totalCalledReports   atomic.Int64
	sentReportsByFlush   atomic.Int64
	sentReportsInFlight  atomic.Int64
	sentReportOperations atomic.Int64
}

func (c *counters) snapshot() Statistics {
	return Statistics{
		TotalCalledChecks:  c.totalCalledChecks.Load(),
		SentChecksByFlush:  c.sentChecksByFlush.Load(),
		SentChecksInFlight: c.sentChecksInFlight.Load(),

		TotalCalledQuotas:  c.totalCalledQuotas.Load(),
		SentQuotasByFlush:  c.sentQuotasByFlush.Load(),
		SentQuotasInFlight: c.sentQuotasInFlight.Load(),

		TotalCalledReports:   c.totalCalledReports.Load(),
		SentReportsByFlush:   c.sentReportsByFlush.Load(),
		SentReportsInFlight:  c.sentReportsInFlight.Load(),
		SentReportOperations: c.sentReportOperations.Load(),
	}
}

// Client is the Service Control client façade.
type Client struct {
	opts sccfg.ClientOptions

	check  *checkaggregator.Aggregator
	quota  *quotaaggregator.Aggregator
	report *reportaggregator.Aggregator

	stats counters

	// flightGroup coalesces concurrent cold-cache Check calls that share a
	// signature into a single transport round trip (spec §8's single-flight
	// property), keyed by request signature. Quota needs no such group: its
	// aggregator answers a miss with a placeholder and one refresh.
	flightGroup singleflight.Group

	limiter *rate.Limiter
	logger  *log.Logger

	timerMu sync.Mutex
	timer   transport.StoppableTimer
}

// New constructs a Client and starts its periodic flush timer.
func New(opts sccfg.ClientOptions, logger *log.Logger) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &Client{
		opts: opts,
		check: checkaggregator.New(opts.ServiceName, opts.ServiceConfigID, checkaggregator.Options{
			NumEntries:     opts.CheckOptions.NumEntries,
			FlushInterval:  opts.CheckFlushInterval(),
			ExpirationTime: opts.CheckExpiration(),
		}, logger),
		quota: quotaaggregator.New(opts.ServiceName, opts.ServiceConfigID, quotaaggregator.Options{
			NumEntries:         opts.QuotaOptions.NumEntries,
			RefreshInterval:    opts.QuotaRefreshInterval(),
			ExpirationInterval: opts.QuotaExpiration(),
		}, logger),
		report: reportaggregator.New(reportaggregator.Options{
			NumEntries:    opts.ReportOptions.NumEntries,
			FlushInterval: opts.ReportFlushInterval(),
		}, logger),
		limiter: opts.RefreshLimiter,
		logger:  logger,
	}

	if opts.Timer != nil {
		minMs := opts.MinFlushIntervalMs()
		if minMs > 0 {
			// The periodic tick drives age-based partial eviction (Flush),
			// never the unconditional drain (FlushAll) — that is reserved
			// for Close, matching how service_control_client_impl.cc wires
			// its own periodic callback to Flush() and calls FlushAll()
			// only from its destructor.
			c.timer = opts.Timer.Start(minMs, func() { c.Flush() })
		}
	}

	return c, nil
}

// Close stops the periodic flush timer and emits everything pending.
func (c *Client) Close() {
	c.timerMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerMu.Unlock()
	c.FlushAll()
}

func (c *Client) throttle() {
	if c.limiter == nil {
		return
	}
	c.limiter.Wait(context.Background())
}

// Check consults the cache and, on a miss, calls the transport
// synchronously before returning.
func (c *Client) Check(req *sctypes.CheckRequest) (*scerr.Status, *sctypes.CheckResponse) {
	c.stats.totalCalledChecks.Add(1)

	status, resp, refreshes := c.check.Check(req)
	c.emitCheckRefreshes(refreshes)
	if scerr.CodeOf(status) != scerr.NotFound {
		return status, resp
	}

	v, _, _ := c.flightGroup.Do("check:"+signature.GenerateCheckRequestSignature(req), func() (interface{}, error) {
		c.stats.sentChecksInFlight.Add(1)
		return c.callCheckTransport(req)
	})
	result := v.(checkResult)
	if result.status.IsOK() {
		c.check.CacheResponse(req, result.resp)
	}
	return result.status, result.resp
}

type checkResult struct {
	status *scerr.Status
	resp   *sctypes.CheckResponse
}

func (c *Client) callCheckTransport(req *sctypes.CheckRequest) (interface{}, error) {
	var wg sync.WaitGroup
	var out checkResult
	wg.Add(1)
	c.opts.CheckTransport(req, func(status *scerr.Status, resp *sctypes.CheckResponse) {
		out = checkResult{status: status, resp: resp}
		wg.Done()
	})
	wg.Wait()
	return out, nil
}

// CheckAsync is the asynchronous form: it never blocks on the transport,
// invoking onDone from whatever goroutine the transport completes on.
func (c *Client) CheckAsync(req *sctypes.CheckRequest, onDone func(status *scerr.Status, resp *sctypes.CheckResponse)) {
	c.stats.totalCalledChecks.Add(1)

	status, resp, refreshes := c.check.Check(req)
	c.emitCheckRefreshes(refreshes)
	if scerr.CodeOf(status) != scerr.NotFound {
		onDone(status, resp)
		return
	}

	c.stats.sentChecksInFlight.Add(1)
	reqCopy := *req
	correlationID := uuid.NewString()
	c.opts.CheckTransport(&reqCopy, func(status *scerr.Status, resp *sctypes.CheckResponse) {
		if status.IsOK() {
			c.check.CacheResponse(&reqCopy, resp)
		} else {
			c.logger.Printf("check transport %s failed: %v", correlationID, status)
		}
		onDone(status, resp)
	})
}

func (c *Client) emitCheckRefreshes(refreshes []checkaggregator.RefreshRequest) {
	for _, r := range refreshes {
		req := r.Request
		go func(req *sctypes.CheckRequest) {
			c.throttle()
			c.stats.sentChecksByFlush.Add(1)
			c.opts.CheckTransport(req, func(status *scerr.Status, resp *sctypes.CheckResponse) {
				if status.IsOK() {
					c.check.CacheResponse(req, resp)
				}
			})
		}(req)
	}
}

// Quota consults the cache and, on a miss or due refresh, calls the
// transport.
func (c *Client) Quota(req *sctypes.AllocateQuotaRequest) (*scerr.Status, *sctypes.AllocateQuotaResponse) {
	c.stats.totalCalledQuotas.Add(1)

	status, resp, refreshes := c.quota.Quota(req)
	c.emitQuotaRefreshes(refreshes)
	return status, resp
}

// QuotaAsync is the asynchronous form of Quota.
func (c *Client) QuotaAsync(req *sctypes.AllocateQuotaRequest, onDone func(status *scerr.Status, resp *sctypes.AllocateQuotaResponse)) {
	c.stats.totalCalledQuotas.Add(1)

	status, resp, refreshes := c.quota.Quota(req)
	c.emitQuotaRefreshes(refreshes)
	onDone(status, resp)
}

func (c *Client) emitQuotaRefreshes(refreshes []quotaaggregator.RefreshRequest) {
	for _, r := range refreshes {
		req := r.Request
		go func(req *sctypes.AllocateQuotaRequest) {
			c.throttle()
			c.stats.sentQuotasByFlush.Add(1)
			c.opts.QuotaTransport(req, func(status *scerr.Status, resp *sctypes.AllocateQuotaResponse) {
				if status.IsOK() {
					c.quota.CacheResponse(req, resp)
					return
				}
				// Fail open: a refresh failure must not strand the entry
				// in a stale negative state (spec §4.4/§7).
				c.quota.CacheFailedRefresh(req)
			})
		}(req)
	}
}

// Report merges req's operations into the report aggregator and returns
// its status (NotFound when report caching is disabled, in which case the
// report is not sent). Only batches forced out by capacity eviction are
// sent to the transport here, asynchronously.
func (c *Client) Report(req *sctypes.ReportRequest) *scerr.Status {
	c.stats.totalCalledReports.Add(1)
	status, batches := c.report.Report(req)
	c.emitReportBatches(batches)
	return status
}

func (c *Client) emitReportBatches(batches []*sctypes.ReportRequest) {
	for _, batch := range batches {
		batch := batch
		go func() {
			c.throttle()
			c.stats.sentReportsByFlush.Add(1)
			c.stats.sentReportOperations.Add(int64(len(batch.Operations)))
			batch.ServiceName = c.opts.ServiceName
			batch.ServiceConfigID = c.opts.ServiceConfigID
			c.opts.ReportTransport(batch, func(status *scerr.Status, resp *sctypes.ReportResponse) {
				if !status.IsOK() {
					c.logger.Printf("report flush failed: %v", status)
				}
			})
		}()
	}
}

// Flush drives LRU expiration across all three aggregators concurrently
// and forwards every resulting refresh/batch to its transport.
func (c *Client) Flush() *scerr.Status {
	var eg errgroup.Group
	eg.Go(func() error {
		c.emitCheckRefreshes(c.check.Flush())
		return nil
	})
	eg.Go(func() error {
		c.emitQuotaRefreshes(c.quota.Flush())
		return nil
	})
	eg.Go(func() error {
		c.emitReportBatches(c.report.Flush())
		return nil
	})
	eg.Wait()
	return scerr.Ok()
}

// FlushAll drains every aggregator unconditionally. Close calls it at
// shutdown; the periodic timer calls Flush instead.
func (c *Client) FlushAll() {
	var eg errgroup.Group
	eg.Go(func() error {
		c.emitCheckRefreshes(c.check.FlushAll())
		return nil
	})
	eg.Go(func() error {
		c.emitQuotaRefreshes(c.quota.FlushAll())
		return nil
	})
	eg.Go(func() error {
		c.emitReportBatches(c.report.Flush())
		return nil
	})
	eg.Wait()
}

// GetStatistics returns a snapshot of call counters.
func (c *Client) GetStatistics() Statistics {
	return c.stats.snapshot()
}
