// Package reftransport provides a reference net/http-backed implementation
// of the three transport.CheckFunc/QuotaFunc/ReportFunc types, so this
// module is runnable end-to-end without requiring callers to write their
// own wire client. It is a port of sample/transport/http_transport.cc's
// status-code mapping and POST-then-decode flow onto net/http and
// encoding/json, in place of libcurl and protobuf wire encoding: this
// module has no protoc-generated bindings (see sctypes' doc comment), so
// JSON is the serialization this transport actually has available.
package reftransport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/o-tero/service-control-client/scerr"
	"github.com/o-tero/service-control-client/sctypes"
)

// statusFromHTTPCode mirrors ConvertHttpCodeToStatus, collapsed onto the
// smaller scerr.Code set this module actually defines.
func statusFromHTTPCode(code int) *scerr.Status {
	switch {
	case code >= 200 && code < 300:
		return scerr.Ok()
	case code == 400:
		return scerr.New(scerr.InvalidArgument, "bad request")
	case code == 404:
		return scerr.New(scerr.NotFound, "not found")
	case code == 416:
		return scerr.New(scerr.OutOfRange, "requested range not satisfiable")
	case code == 429, code == 503:
		return scerr.New(scerr.Unavailable, "service unavailable (%d)", code)
	case code >= 400 && code < 500:
		return scerr.New(scerr.InvalidArgument, "client error (%d)", code)
	default:
		return scerr.New(scerr.Internal, "server error (%d)", code)
	}
}

// Client is a reference HTTP transport. Endpoint is the base URL of the
// Service Control plane (e.g. "https://servicecontrol.googleapis.com").
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// New returns a Client with a sane default timeout, matching the original
// sample transport's synchronous-curl-call-on-a-detached-thread model:
// here, the "detached thread" is simply the goroutine the caller's
// CheckFunc/QuotaFunc/ReportFunc is invoked from. Every outbound request
// is stamped with a correlation ID and logged by loggingTransport.
func New(endpoint string) *Client {
	return &Client{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: newLoggingTransport(nil, nil),
		},
	}
}

func post(c *Client, path string, body, out interface{}) *scerr.Status {
	payload, err := json.Marshal(body)
	if err != nil {
		return scerr.New(scerr.InvalidArgument, "encoding request: %v", err)
	}
	resp, err := c.HTTPClient.Post(c.Endpoint+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return scerr.New(scerr.Unavailable, "http post failed: %v", err)
	}
	defer resp.Body.Close()

	status := statusFromHTTPCode(resp.StatusCode)
	if !status.IsOK() {
		return status
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return scerr.New(scerr.Internal, "reading response: %v", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return scerr.New(scerr.Internal, "decoding response: %v", err)
	}
	return scerr.Ok()
}

// Check implements transport.CheckFunc.
func (c *Client) Check(req *sctypes.CheckRequest, done func(status *scerr.Status, resp *sctypes.CheckResponse)) {
	resp := &sctypes.CheckResponse{}
	status := post(c, "/v1/services/"+req.ServiceName+":check", req, resp)
	done(status, resp)
}

// Quota implements transport.QuotaFunc.
func (c *Client) Quota(req *sctypes.AllocateQuotaRequest, done func(status *scerr.Status, resp *sctypes.AllocateQuotaResponse)) {
	resp := &sctypes.AllocateQuotaResponse{}
	status := post(c, "/v1/services/"+req.ServiceName+":allocateQuota", req, resp)
	done(status, resp)
}

// Report implements transport.ReportFunc.
func (c *Client) Report(req *sctypes.ReportRequest, done func(status *scerr.Status, resp *sctypes.ReportResponse)) {
	resp := &sctypes.ReportResponse{}
	status := post(c, "/v1/services/"+req.ServiceName+":report", req, resp)
	done(status, resp)
}
