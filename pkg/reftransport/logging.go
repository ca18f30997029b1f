// Adapted from pkg/middleware/logging.go: that file logs inbound HTTP
// requests to a server, generating or propagating an X-Request-ID header
// and writing one structured log line per request. Client is an outbound
// caller, not a server, so the same correlation-ID-and-structured-log
// idea is rewired as an http.RoundTripper decorator instead of a
// http.Handler decorator.
package reftransport

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// loggingTransport wraps an http.RoundTripper, stamping every outbound
// request with an X-Request-ID (generating one if the caller hasn't set
// one) and logging method/path/status/duration as a single JSON line.
type loggingTransport struct {
	next   http.RoundTripper
	logger *log.Logger
}

func newLoggingTransport(next http.RoundTripper, logger *log.Logger) *loggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = log.Default()
	}
	return &loggingTransport{next: next, logger: logger}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	entry := map[string]interface{}{
		"timestamp":   start.UTC().Format(time.RFC3339),
		"request_id":  requestID,
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		t.logger.Printf("[ERROR] failed to marshal transport log entry: %v", marshalErr)
	} else if err != nil || status >= 500 {
		t.logger.Printf("[ERROR] %s", data)
	} else if status >= 400 {
		t.logger.Printf("[WARN] %s", data)
	} else {
		t.logger.Printf("[INFO] %s", data)
	}

	return resp, err
}
