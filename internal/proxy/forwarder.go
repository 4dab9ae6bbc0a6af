package proxy

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"relay/proxy/internal/metrics"
	"relay/proxy/internal/policy"
)

// UpstreamError is a network-level failure reaching the shape service.
// Non-2xx upstream responses are not errors here; they pass through verbatim
// so callers see the real upstream diagnostic.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// forwardedParams are the Electric protocol parameters copied from the
// inbound request. Anything else the caller sends is dropped, never
// forwarded blind.
var forwardedParams = []string{
	"offset",
	"handle",
	"live",
	"cursor",
	"replica",
	"columns",
	"experimental_live_sse",
}

// Headers whose values stop being true once the body is re-streamed.
var strippedHeaders = []string{"Content-Encoding", "Content-Length"}

type Forwarder struct {
	upstream *url.URL
	sourceID string
	secret   string
	client   *http.Client
	metrics  *metrics.Metrics

	warnMissingCreds sync.Once
}

func NewForwarder(upstreamURL, sourceID, secret string, timeout time.Duration, m *metrics.Metrics) (*Forwarder, error) {
	parsed, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upstream url %q missing scheme or host", upstreamURL)
	}
	return &Forwarder{
		upstream: parsed,
		sourceID: sourceID,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
		metrics:  m,
	}, nil
}

// shapeURL rewrites the inbound request into the upstream shape fetch:
// whitelisted protocol params, the computed predicate as where/params[N],
// and service credentials when configured.
func (f *Forwarder) shapeURL(inbound *url.URL, table policy.Table, predicate policy.Predicate) string {
	target := *f.upstream
	target.Path = strings.TrimRight(target.Path, "/") + "/v1/shape"

	query := url.Values{}
	query.Set("table", string(table))
	inboundQuery := inbound.Query()
	for _, name := range forwardedParams {
		for _, value := range inboundQuery[name] {
			query.Add(name, value)
		}
	}
	query.Set("where", predicate.Where)
	for i, param := range predicate.Params {
		query.Set(fmt.Sprintf("params[%d]", i+1), fmt.Sprint(param))
	}

	if f.sourceID != "" {
		query.Set("source_id", f.sourceID)
	}
	if f.secret != "" {
		query.Set("secret", f.secret)
	} else {
		// A missing secret is the most common deployment mistake; make it
		// diagnosable without flooding the log.
		f.warnMissingCreds.Do(func() {
			log.Printf("upstream source credentials not configured; forwarding shape requests unauthenticated")
		})
	}

	target.RawQuery = query.Encode()
	return target.String()
}

// Forward issues the upstream fetch and streams the response back. The
// inbound request context is threaded through, so a dropped client
// connection aborts the upstream call instead of leaving it running.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, table policy.Table, predicate policy.Predicate) {
	target := f.shapeURL(r.URL, table, predicate)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		log.Printf("build upstream request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
		return
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.RecordUpstream(0, time.Since(started))
		if r.Context().Err() != nil {
			log.Printf("shape fetch aborted, client disconnected: table=%s", table)
			return
		}
		upstreamErr := &UpstreamError{Op: "fetch", Err: err}
		log.Printf("%v url=%s", upstreamErr, RedactURL(target))
		writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Upstream shape service unavailable", nil)
		return
	}
	defer resp.Body.Close()
	f.metrics.RecordUpstream(resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Pass the upstream diagnostic through verbatim: a predicate the
		// query planner rejected must be distinguishable from an outage.
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			log.Printf("read upstream error body failed: %v", readErr)
		}
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		log.Printf("upstream rejected shape request: table=%s status=%d url=%s", table, resp.StatusCode, RedactURL(target))
		return
	}

	copyHeaders(w.Header(), resp.Header)
	// Per-user filtered responses must never be shared across sessions by an
	// intermediary cache, and long-lived shape streams must not be buffered
	// by a fronting reverse proxy.
	w.Header().Set("Vary", "cookie")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(newFlushWriter(w), resp.Body); err != nil && r.Context().Err() == nil {
		log.Printf("stream shape response failed: table=%s err=%v", table, err)
	}
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isStrippedHeader(name) {
			continue
		}
		dst[name] = values
	}
}

func isStrippedHeader(name string) bool {
	for _, stripped := range strippedHeaders {
		if http.CanonicalHeaderKey(name) == stripped {
			return true
		}
	}
	return false
}

// RedactURL masks the upstream secret before a URL reaches any log line.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	query := parsed.Query()
	if query.Has("secret") {
		query.Set("secret", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newFlushWriter(w http.ResponseWriter) flushWriter {
	flusher, _ := w.(http.Flusher)
	return flushWriter{w: w, flusher: flusher}
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}
