// Package transport declares the function types the client façade uses to
// reach the remote Service Control plane, and the periodic-timer
// collaborator that drives flush cadence. Both are pure interfaces: the
// core aggregation/caching packages depend only on these, never on a
// concrete transport. Implementers hand the status and response to done
// rather than filling an out-parameter.
package transport

import (
	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
)

// CheckFunc issues one Check RPC. The implementation must eventually call
// done exactly once, with status OK and a populated response on success.
type CheckFunc func(req *sctypes.CheckRequest, done func(status *scerr.Status, resp *sctypes.CheckResponse))

// QuotaFunc issues one AllocateQuota RPC.
type QuotaFunc func(req *sctypes.AllocateQuotaRequest, done func(status *scerr.Status, resp *sctypes.AllocateQuotaResponse))

// ReportFunc issues one Report RPC.
type ReportFunc func(req *sctypes.ReportRequest, done func(status *scerr.Status, resp *sctypes.ReportResponse))

// PeriodicTimer is the collaborator the façade uses to drive flush
// cadence, so the core never owns a ticker or depends on wall-clock
// timers directly (spec §5's "Flush cadence is driven by the external
// periodic timer").
type PeriodicTimer interface {
	// Start arranges for callback to run roughly every interval until
	// Stop is called, and returns a handle to stop it.
	Start(intervalMillis int, callback func()) StoppableTimer
}

// StoppableTimer is a running timer started by a PeriodicTimer.
type StoppableTimer interface {
	Stop()
}
