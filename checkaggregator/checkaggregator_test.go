package checkaggregator

import (
	"testing"
	"time"

	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
)

func basicRequest() *sctypes.CheckRequest {
	return &sctypes.CheckRequest{
		ServiceName: "svc",
		Operation: &sctypes.Operation{
			OperationName: "op",
			ConsumerID:    "project:foo",
		},
	}
}

// TestCacheMissThenHit is spec §8 scenario 1: a miss returns NotFound, the
// caller calls the transport, CacheResponse makes the next Check a hit.
func TestCacheMissThenHit(t *testing.T) {
	a := New("svc", "config-1", Options{NumEntries: 10, FlushInterval: 500 * time.Millisecond, ExpirationTime: time.Second}, nil)
	req := basicRequest()

	status, resp, _ := a.Check(req)
	if scerr.CodeOf(status) != scerr.NotFound {
		t.Fatalf("expected NotFound on cold cache, got %v", status)
	}
	if resp != nil {
		t.Fatalf("expected nil response on miss, got %+v", resp)
	}

	positive := &sctypes.CheckResponse{}
	a.CacheResponse(req, positive)

	status, resp, _ = a.Check(req)
	if !status.IsOK() {
		t.Fatalf("expected OK on hit, got %v", status)
	}
	if !resp.IsPositive() {
		t.Fatalf("expected positive cached response, got %+v", resp)
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	a := New("svc", "config-1", Options{NumEntries: 0}, nil)
	status, _, _ := a.Check(basicRequest())
	if scerr.CodeOf(status) != scerr.NotFound {
		t.Fatalf("expected NotFound for disabled cache, got %v", status)
	}
}

func TestServiceNameMismatchIsInvalidArgument(t *testing.T) {
	a := New("svc", "config-1", Options{NumEntries: 10, FlushInterval: time.Second, ExpirationTime: 2 * time.Second}, nil)
	req := basicRequest()
	req.ServiceName = "other-service"
	status, _, _ := a.Check(req)
	if scerr.CodeOf(status) != scerr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", status)
	}
}

func TestNegativeResponseNotMergedForward(t *testing.T) {
	a := New("svc", "config-1", Options{NumEntries: 10, FlushInterval: time.Second, ExpirationTime: 2 * time.Second}, nil)
	req := basicRequest()
	a.Check(req)

	negative := &sctypes.CheckResponse{CheckErrors: []sctypes.CheckError{{Code: "PERMISSION_DENIED"}}}
	a.CacheResponse(req, negative)

	status, resp, _ := a.Check(req)
	if !status.IsOK() {
		t.Fatalf("expected OK with cached negative response, got %v", status)
	}
	if resp.IsPositive() {
		t.Fatal("expected negative response to remain negative")
	}
}

// TestAgedEntryReinsertedAndTriggersRefresh is spec §4.3's third bullet:
// an entry older than flush_interval but younger than expiration_time is
// marked for refresh at the next flush, not served stale forever, and
// the refresh request carries the service name/config id.
func TestAgedEntryReinsertedAndTriggersRefresh(t *testing.T) {
	a := New("svc", "config-1", Options{NumEntries: 10, FlushInterval: time.Millisecond, ExpirationTime: time.Hour}, nil)
	req := basicRequest()

	a.Check(req)
	a.CacheResponse(req, &sctypes.CheckResponse{})
	a.Check(req) // merge one more operation into the pending aggregate

	time.Sleep(5 * time.Millisecond)

	refreshes := a.Flush()
	if len(refreshes) != 1 {
		t.Fatalf("expected exactly one refresh request from Flush, got %d", len(refreshes))
	}
	got := refreshes[0].Request
	if got.ServiceName != "svc" || got.ServiceConfigID != "config-1" {
		t.Fatalf("expected refresh request stamped with service name/config id, got %+v", got)
	}

	// The entry must still be cached (reinserted), so the next Check is a
	// hit rather than a cold miss.
	status, resp, _ := a.Check(req)
	if !status.IsOK() || !resp.IsPositive() {
		t.Fatalf("expected entry to remain cached after flush-triggered refresh, got status=%v resp=%+v", status, resp)
	}
}

// TestExpiredEntryDroppedNotReinserted is spec §4.3: once an entry
// crosses expiration_time it is dropped for good, not kept refreshing
// forever.
func TestExpiredEntryDroppedNotReinserted(t *testing.T) {
	a := New("svc", "config-1", Options{NumEntries: 10, FlushInterval: time.Millisecond, ExpirationTime: time.Millisecond}, nil)
	req := basicRequest()

	a.Check(req)
	a.CacheResponse(req, &sctypes.CheckResponse{})

	time.Sleep(5 * time.Millisecond)

	a.Flush()

	status, _, _ := a.Check(req)
	if scerr.CodeOf(status) != scerr.NotFound {
		t.Fatalf("expected expired entry to be dropped (cold miss), got %v", status)
	}
}
