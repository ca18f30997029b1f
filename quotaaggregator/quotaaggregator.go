// Package quotaaggregator implements QuotaAggregator (spec §4.4), ported
// directly from src/quota_aggregator_impl.{h,cc}: the richest of the
// three state machines, since allocate-quota responses can be positive
// or negative and a stale entry must probe for recovery rather than
// simply re-fetch.
package quotaaggregator

import (
	"log"
	"time"

	"github.com/o-tero/service-control-client/lrucache"
	"github.com/o-tero/service-control-client/quotaop"
	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
	"github.com/o-tero/service-control-client/signature"
)

type cacheElem struct {
	aggregator      *quotaop.Aggregator
	request         *sctypes.AllocateQuotaRequest
	response        *sctypes.AllocateQuotaResponse
	signature       string
	lastRefreshTime time.Time
	inFlight        bool
}

func (e *cacheElem) isPositiveResponse() bool {
	return e.response.IsPositive()
}

func (e *cacheElem) isAggregated() bool {
	return e.aggregator != nil && !e.aggregator.IsEmpty()
}

// returnRequestAndClear mirrors ReturnAllocateQuotaRequestAndClear: emits
// the aggregated operation if one accumulated, else falls back to the
// stored initial request (so a never-aggregated entry still refreshes
// with its original cost).
func (e *cacheElem) returnRequestAndClear(serviceName, serviceConfigID string, mode sctypes.QuotaMode) *sctypes.AllocateQuotaRequest {
	req := &sctypes.AllocateQuotaRequest{
		ServiceName:     serviceName,
		ServiceConfigID: serviceConfigID,
	}
	if e.aggregator != nil {
		req.AllocateOperation = e.aggregator.ToQuotaOperation(mode)
		e.aggregator = nil
		return req
	}
	op := *e.request.AllocateOperation
	op.QuotaMode = mode
	req.AllocateOperation = &op
	return req
}

// Options configures QuotaAggregator.
type Options struct {
	NumEntries         int
	RefreshInterval    time.Duration
	ExpirationInterval time.Duration
}

// RefreshRequest is a refresh/probe AllocateQuotaRequest the façade must
// forward to the quota transport.
type RefreshRequest struct {
	Signature string
	Request   *sctypes.AllocateQuotaRequest
}

// Aggregator is QuotaAggregator. It is safe for concurrent use.
type Aggregator struct {
	cache           *lrucache.Cache[string, *cacheElem]
	serviceName     string
	serviceConfigID string
	opts            Options
	logger          *log.Logger
	inFlushAll      bool
}

func New(serviceName, serviceConfigID string, opts Options, logger *log.Logger) *Aggregator {
	return &Aggregator{
		cache:           lrucache.New[string, *cacheElem](opts.NumEntries, opts.RefreshInterval),
		serviceName:     serviceName,
		serviceConfigID: serviceConfigID,
		opts:            opts,
		logger:          logger,
	}
}

// GetNextFlushInterval returns refresh_interval_ms, or -1 ("never") when
// caching is disabled.
func (a *Aggregator) GetNextFlushInterval() time.Duration {
	if a.cache.Disabled() {
		return -1
	}
	return a.opts.RefreshInterval
}

func (a *Aggregator) shouldDrop(age time.Duration) bool {
	return age >= a.opts.ExpirationInterval
}

// refreshMode picks the quota-mode a stale entry's refresh request is
// sent in: BEST_EFFORT for a PositiveStale entry (we already know it was
// admitted, so don't spend a real allocation just to refresh the cost),
// CHECK_ONLY for a Negative entry (probe for recovery without either
// granting or re-denying against the current cost).
func refreshMode(elem *cacheElem) sctypes.QuotaMode {
	if elem.isPositiveResponse() {
		return sctypes.QuotaModeBestEffort
	}
	return sctypes.QuotaModeCheckOnly
}

// Quota implements the §4.4 state machine.
func (a *Aggregator) Quota(req *sctypes.AllocateQuotaRequest) (*scerr.Status, *sctypes.AllocateQuotaResponse, []RefreshRequest) {
	if req.ServiceName != a.serviceName {
		return scerr.New(scerr.InvalidArgument, "invalid service name: %s, expecting %s", req.ServiceName, a.serviceName), nil, nil
	}
	if req.AllocateOperation == nil {
		return scerr.New(scerr.InvalidArgument, "allocate operation field is required"), nil, nil
	}
	if a.cache.Disabled() {
		return scerr.New(scerr.NotFound, ""), nil, nil
	}

	sig := signature.GenerateAllocateQuotaRequestSignature(req)

	elem, age, found := a.cache.GetWithAge(sig)
	if !found {
		// Optimistic admission: insert an in-flight placeholder with a
		// synthesized positive response so a burst of first-time
		// concurrent requests coalesces into a single refresh.
		placeholder := &cacheElem{
			request:         req,
			response:        &sctypes.AllocateQuotaResponse{},
			signature:       sig,
			lastRefreshTime: time.Now(),
			inFlight:        true,
		}
		var staging lrucache.Staging[string, *cacheElem]
		a.cache.Put(sig, placeholder, &staging)
		refresh := RefreshRequest{Signature: sig, Request: req}
		return scerr.Ok(), placeholder.response, append(a.toRefreshRequests(staging.Drain()), refresh)
	}

	var refreshes []RefreshRequest
	if !elem.inFlight && age >= a.opts.RefreshInterval {
		elem.inFlight = true
		elem.lastRefreshTime = time.Now()

		mode := refreshMode(elem)
		refreshReq := elem.returnRequestAndClear(a.serviceName, a.serviceConfigID, mode)
		refreshes = append(refreshes, RefreshRequest{Signature: sig, Request: refreshReq})
	}

	if elem.isPositiveResponse() {
		if elem.aggregator == nil {
			elem.aggregator = quotaop.New(*req.AllocateOperation, a.logger)
		} else {
			elem.aggregator.Merge(*req.AllocateOperation)
		}
	}

	return scerr.Ok(), elem.response, refreshes
}

// CacheResponse implements §4.4's CacheResponse: positive results clear
// in_flight and retain the pending aggregate for subsequent merges;
// allocate-errors discard it, moving the entry to Negative.
func (a *Aggregator) CacheResponse(req *sctypes.AllocateQuotaRequest, resp *sctypes.AllocateQuotaResponse) {
	if a.cache.Disabled() {
		return
	}
	sig := signature.GenerateAllocateQuotaRequestSignature(req)
	elem, found := a.cache.Get(sig)
	if !found {
		return
	}
	elem.inFlight = false
	elem.response = resp
	if !resp.IsPositive() {
		elem.aggregator = nil
	}
}

// CacheFailedRefresh implements the fail-open policy of §4.4/§7: a
// transport failure on a refresh path must not leave the entry stuck
// showing a stale negative state, so an empty synthetic positive
// response is cached instead of propagating the error.
func (a *Aggregator) CacheFailedRefresh(req *sctypes.AllocateQuotaRequest) {
	a.CacheResponse(req, &sctypes.AllocateQuotaResponse{})
}

// Flush evicts entries whose age has crossed refresh_interval. Per
// OnCacheEntryDelete in the original: an evicted entry that has not yet
// crossed expiration_interval and is not being dropped by FlushAll is
// reinserted; if it is aggregated and not already in flight, reinsertion
// also triggers a refresh.
func (a *Aggregator) Flush() []RefreshRequest {
	var staging lrucache.Staging[string, *cacheElem]
	a.cache.EvictAged(&staging)
	return a.reconcileEvicted(staging.Drain())
}

// FlushAll drains every entry, emitting pending aggregates and resetting
// the cache (spec: "drain everything; emit pending aggregates; reset").
func (a *Aggregator) FlushAll() []RefreshRequest {
	a.inFlushAll = true
	defer func() { a.inFlushAll = false }()

	var staging lrucache.Staging[string, *cacheElem]
	a.cache.DrainAll(&staging)
	return a.reconcileEvicted(staging.Drain())
}

func (a *Aggregator) reconcileEvicted(evicted []lrucache.Evicted[string, *cacheElem]) []RefreshRequest {
	var out []RefreshRequest
	for _, ev := range evicted {
		elem := ev.Value
		now := time.Now()
		age := now.Sub(elem.lastRefreshTime)

		if !a.inFlushAll && !a.shouldDrop(age) {
			var staging lrucache.Staging[string, *cacheElem]
			a.cache.Put(ev.Key, elem, &staging)
			out = append(out, a.reconcileEvicted(staging.Drain())...)

			if !elem.inFlight && elem.isAggregated() {
				elem.inFlight = true
				elem.lastRefreshTime = now
				req := elem.returnRequestAndClear(a.serviceName, a.serviceConfigID, refreshMode(elem))
				out = append(out, RefreshRequest{Signature: ev.Key, Request: req})
			}
			continue
		}

		if elem.isAggregated() {
			req := elem.returnRequestAndClear(a.serviceName, a.serviceConfigID, refreshMode(elem))
			out = append(out, RefreshRequest{Signature: ev.Key, Request: req})
		}
	}
	return out
}

func (a *Aggregator) toRefreshRequests(evicted []lrucache.Evicted[string, *cacheElem]) []RefreshRequest {
	return a.reconcileEvicted(evicted)
}
