package proxy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"relay/proxy/internal/authn"
	"relay/proxy/internal/metrics"
	"relay/proxy/internal/policy"
)

// Authenticator is satisfied by *authn.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, header http.Header) (authn.UserWithContext, error)
}

// Pinger reports store reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	auth       Authenticator
	forwarder  *Forwarder
	pinger     Pinger
	metrics    *metrics.Metrics
	corsOrigin string
	devMode    bool
}

func NewHTTPServer(auth Authenticator, forwarder *Forwarder, pinger Pinger, m *metrics.Metrics, corsOrigin string, devMode bool) *HTTPServer {
	return &HTTPServer{
		auth:       auth,
		forwarder:  forwarder,
		pinger:     pinger,
		metrics:    m,
		corsOrigin: corsOrigin,
		devMode:    devMode,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/healthz" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/readyz" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":     false,
				"status": "not_ready",
				"checks": map[string]any{"database": map[string]any{"status": "error", "error": err.Error()}},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"status": "ready",
			"checks": map[string]any{"database": map[string]any{"status": "ok"}},
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		writeJSON(w, http.StatusOK, s.metrics.Snapshot())
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/v1/shape" {
		s.handleShape(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleShape(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Authenticate(r.Context(), r.Header)
	if err != nil {
		s.metrics.RecordAuthFailure()
		// Full cause stays server-side; the client gets the generic message.
		log.Printf("shape request unauthorized: %v", err)
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	tableName := r.URL.Query().Get("table")
	if tableName == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TABLE", "table parameter is required", nil)
		return
	}

	table, ok := policy.Lookup(tableName)
	if !ok {
		s.metrics.RecordTableRejection()
		log.Printf("shape request for non-whitelisted table: table=%s user=%s", tableName, user.ID)
		writeError(w, http.StatusForbidden, "TABLE_NOT_ALLOWED", fmt.Sprintf("table not allowed: %s", tableName), nil)
		return
	}

	predicate, err := policy.For(table, user.ID, user.Scope)
	if err != nil {
		// Whitelisted but unmapped: server misconfiguration, never the
		// caller's fault.
		log.Printf("policy mapping missing: %v", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
		return
	}

	if s.devMode {
		if err := policy.Validate(predicate); err != nil {
			log.Printf("generated predicate failed validation: table=%s err=%v", table, err)
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
			return
		}
	}

	s.forwarder.Forward(w, r, table, predicate)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.metrics.RecordRequest(writer.status)
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "electric-handle, electric-offset, electric-schema, electric-cursor, electric-up-to-date")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}
