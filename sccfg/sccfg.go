// Package sccfg holds the configuration structs for each aggregator and
// the overall client, plus the Validate methods that enforce spec §6's
// invariants before a Client is built.
package sccfg

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/transport"
)

// CheckAggregationOptions configures CheckAggregator. NumEntries <= 0
// disables caching entirely.
type CheckAggregationOptions struct {
	NumEntries      int
	FlushIntervalMs int
	ExpirationMs    int
}

func (o CheckAggregationOptions) Validate() error {
	if o.NumEntries > 0 && o.ExpirationMs < o.FlushIntervalMs {
		return scerr.New(scerr.InvalidArgument,
			"check expiration_ms (%d) must be >= flush_interval_ms (%d)", o.ExpirationMs, o.FlushIntervalMs)
	}
	return nil
}

// CacheEnabled reports whether caching is enabled for this configuration.
func (o CheckAggregationOptions) CacheEnabled() bool { return o.NumEntries > 0 }

// QuotaAggregationOptions configures QuotaAggregator.
type QuotaAggregationOptions struct {
	NumEntries           int
	RefreshIntervalMs    int
	ExpirationIntervalMs int
}

func (o QuotaAggregationOptions) Validate() error {
	if o.NumEntries > 0 && o.ExpirationIntervalMs < o.RefreshIntervalMs {
		return scerr.New(scerr.InvalidArgument,
			"quota expiration_interval_ms (%d) must be >= refresh_interval_ms (%d)", o.ExpirationIntervalMs, o.RefreshIntervalMs)
	}
	return nil
}

func (o QuotaAggregationOptions) CacheEnabled() bool { return o.NumEntries > 0 }

// ReportAggregationOptions configures ReportAggregator.
type ReportAggregationOptions struct {
	NumEntries      int
	FlushIntervalMs int
}

func (o ReportAggregationOptions) Validate() error {
	return nil
}

func (o ReportAggregationOptions) CacheEnabled() bool { return o.NumEntries > 0 }

// MetricKind labels a metric name in ClientOptions.MetricKinds. The client
// does not pass MetricKinds to ReportAggregator: report merging treats
// every metric as a delta and sums it, whatever kind is listed here.
type MetricKind int

const (
	MetricKindDelta MetricKind = iota
	MetricKindGauge
)

// ClientOptions wraps everything a Client needs to construct its three
// aggregators and wire them to transports.
type ClientOptions struct {
	ServiceName     string
	ServiceConfigID string

	CheckOptions  CheckAggregationOptions
	QuotaOptions  QuotaAggregationOptions
	ReportOptions ReportAggregationOptions

	CheckTransport  transport.CheckFunc
	QuotaTransport  transport.QuotaFunc
	ReportTransport transport.ReportFunc

	Timer transport.PeriodicTimer

	MetricKinds map[string]MetricKind

	// RefreshLimiter throttles how often the client is willing to issue
	// background refresh/flush calls, independent of how many cache
	// entries become due at once. A nil limiter means unlimited.
	RefreshLimiter *rate.Limiter
}

func (o ClientOptions) Validate() error {
	if o.ServiceName == "" {
		return scerr.New(scerr.InvalidArgument, "service_name is required")
	}
	if err := o.CheckOptions.Validate(); err != nil {
		return err
	}
	if err := o.QuotaOptions.Validate(); err != nil {
		return err
	}
	if err := o.ReportOptions.Validate(); err != nil {
		return err
	}
	if o.CheckTransport == nil || o.QuotaTransport == nil || o.ReportTransport == nil {
		return scerr.New(scerr.InvalidArgument, "all three transports are required")
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// CheckExpiration returns CheckOptions.ExpirationMs as a Duration.
func (o ClientOptions) CheckExpiration() time.Duration { return millis(o.CheckOptions.ExpirationMs) }

// CheckFlushInterval returns CheckOptions.FlushIntervalMs as a Duration.
func (o ClientOptions) CheckFlushInterval() time.Duration {
	return millis(o.CheckOptions.FlushIntervalMs)
}

// QuotaRefreshInterval returns QuotaOptions.RefreshIntervalMs as a Duration.
func (o ClientOptions) QuotaRefreshInterval() time.Duration {
	return millis(o.QuotaOptions.RefreshIntervalMs)
}

// QuotaExpiration returns QuotaOptions.ExpirationIntervalMs as a Duration.
func (o ClientOptions) QuotaExpiration() time.Duration {
	return millis(o.QuotaOptions.ExpirationIntervalMs)
}

// ReportFlushInterval returns ReportOptions.FlushIntervalMs as a Duration.
func (o ClientOptions) ReportFlushInterval() time.Duration {
	return millis(o.ReportOptions.FlushIntervalMs)
}

// MinFlushIntervalMs computes the minimum of the three aggregators'
// requested intervals, per spec §5: "the minimum of the three
// aggregators' requested intervals (value -1 from an aggregator is
// treated as 'never' and excluded from the min)".
func (o ClientOptions) MinFlushIntervalMs() int {
	best := -1
	consider := func(ms int, enabled bool) {
		if !enabled || ms <= 0 {
			return
		}
		if best == -1 || ms < best {
			best = ms
		}
	}
	consider(o.CheckOptions.FlushIntervalMs, o.CheckOptions.CacheEnabled())
	consider(o.QuotaOptions.RefreshIntervalMs, o.QuotaOptions.CacheEnabled())
	consider(o.ReportOptions.FlushIntervalMs, o.ReportOptions.CacheEnabled())
	return best
}
