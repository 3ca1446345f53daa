// Package forwarder is the outbound HTTP client collaborator used by
// the admission pipeline: something that takes an inbound request and
// an upstream base URL and returns a response or a transport error.
package forwarder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is what the admission pipeline needs back from a forward
// attempt to report an outcome to the breaker and the metrics store.
type Result struct {
	StatusCode int // 0 if the transport itself failed
	Err        error
}

// Forwarder forwards an inbound request to the named upstream's base
// URL and returns the result. Implementations must respect ctx's
// deadline.
type Forwarder interface {
	Forward(ctx context.Context, baseURL string, r *http.Request, w http.ResponseWriter) Result
}

// HTTPForwarder is the default Forwarder, built on net/http.Client. It
// is intentionally minimal: no retries, no body transformation —
// just a reverse proxy with a hard per-call timeout.
type HTTPForwarder struct {
	client *http.Client
}

// New creates an HTTPForwarder. The caller is expected to set the
// per-call timeout via context (see Pipeline), not via client.Timeout,
// so each upstream can carry its own configured timeout.
func New() *HTTPForwarder {
	return &HTTPForwarder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Forward builds an outbound request to baseURL+r.URL.Path (query
// preserved), copies headers and body through unchanged, and streams
// the response back onto w.
func (f *HTTPForwarder) Forward(ctx context.Context, baseURL string, r *http.Request, w http.ResponseWriter) Result {
	target := strings.TrimSuffix(baseURL, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return Result{Err: fmt.Errorf("building upstream request: %w", err)}
	}
	outReq.Header = r.Header.Clone()

	resp, err := f.client.Do(outReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	return Result{StatusCode: resp.StatusCode}
}
