// Package reportaggregator implements ReportAggregator (spec §4.5):
// write-only accumulation of Operations by signature, with no response
// caching. Grounded the same way checkaggregator/quotaaggregator are, on
// quota_aggregator_impl.{h,cc}'s cache-and-flush shape, narrowed to the
// write-only case spec §4.5 describes.
package reportaggregator

import (
	"log"
	"time"

	"github.com/o-tero/service-control-client/lrucache"
	"github.com/o-tero/service-control-client/reportop"
	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
	"github.com/o-tero/service-control-client/signature"
)

// Options configures ReportAggregator.
type Options struct {
	NumEntries    int
	FlushInterval time.Duration
}

// Aggregator is ReportAggregator. It is safe for concurrent use.
type Aggregator struct {
	cache  *lrucache.Cache[string, *reportop.Aggregator]
	opts   Options
	logger *log.Logger
}

func New(opts Options, logger *log.Logger) *Aggregator {
	return &Aggregator{
		cache:  lrucache.New[string, *reportop.Aggregator](opts.NumEntries, 0),
		opts:   opts,
		logger: logger,
	}
}

// Report merges every operation in req into its matching accumulator,
// keyed by the operation's own signature, and returns OK. Capacity
// eviction may force out entries early; those are returned as partial
// batches for the caller to emit immediately.
func (a *Aggregator) Report(req *sctypes.ReportRequest) (*scerr.Status, []*sctypes.ReportRequest) {
	if a.cache.Disabled() {
		return scerr.New(scerr.NotFound, "report cache disabled"), nil
	}

	var staging lrucache.Staging[string, *reportop.Aggregator]
	for _, op := range req.Operations {
		if op == nil {
			continue
		}
		sig := signature.GenerateReportOperationSignature(op)
		if existing, ok := a.cache.Get(sig); ok {
			existing.Merge(*op)
			continue
		}
		agg := reportop.New(*op, a.logger)
		a.cache.Put(sig, agg, &staging)
	}

	return scerr.Ok(), a.toPartialBatches(staging.Drain())
}

// Flush emits one outbound ReportRequest containing every accumulated
// operation and clears the accumulators.
func (a *Aggregator) Flush() []*sctypes.ReportRequest {
	var staging lrucache.Staging[string, *reportop.Aggregator]
	a.cache.DrainAll(&staging)
	return a.toPartialBatches(staging.Drain())
}

func (a *Aggregator) toPartialBatches(evicted []lrucache.Evicted[string, *reportop.Aggregator]) []*sctypes.ReportRequest {
	if len(evicted) == 0 {
		return nil
	}
	ops := make([]*sctypes.Operation, 0, len(evicted))
	for _, ev := range evicted {
		ops = append(ops, ev.Value.ToOperation())
	}
	return []*sctypes.ReportRequest{{Operations: ops}}
}
