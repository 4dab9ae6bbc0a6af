package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relay/proxy/internal/access"
	"relay/proxy/internal/authn"
	"relay/proxy/internal/metrics"
)

type fakeAuth struct {
	user authn.UserWithContext
	err  error
}

func (f *fakeAuth) Authenticate(_ context.Context, _ http.Header) (authn.UserWithContext, error) {
	return f.user, f.err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error {
	return f.err
}

func authedUser() authn.UserWithContext {
	return authn.UserWithContext{
		User: authn.User{ID: "internal-1", ExternalID: "workos-user-1", Email: "avery@relay.chat"},
		Scope: access.Context{
			OrganizationIDs: []string{"org-a"},
			ChannelIDs:      []string{"chan-1"},
			MemberIDs:       []string{"member-1"},
			CoOrgUserIDs:    []string{"internal-1", "internal-2"},
		},
	}
}

func testServer(t *testing.T, auth Authenticator, upstreamURL string) *HTTPServer {
	t.Helper()
	forwarder, err := NewForwarder(upstreamURL, "", "", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	return NewHTTPServer(auth, forwarder, &fakePinger{}, metrics.New(), "*", false)
}

func TestShapeRejectsUnauthenticated(t *testing.T) {
	server := testServer(t, &fakeAuth{err: &authn.AuthenticationError{Message: "session expired"}}, "http://electric:3000")

	req := httptest.NewRequest(http.MethodGet, "/v1/shape?table=messages", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["error"] != "Authentication required" {
		t.Fatalf("expected generic message, got %v", payload["error"])
	}
	if strings.Contains(rr.Body.String(), "session expired") {
		t.Fatalf("internal cause must not reach the client")
	}
}

func TestShapeRequiresTableParam(t *testing.T) {
	server := testServer(t, &fakeAuth{user: authedUser()}, "http://electric:3000")

	req := httptest.NewRequest(http.MethodGet, "/v1/shape", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestShapeRejectsNonWhitelistedTable(t *testing.T) {
	server := testServer(t, &fakeAuth{user: authedUser()}, "http://electric:3000")

	req := httptest.NewRequest(http.MethodGet, "/v1/shape?table=refresh_sessions", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	// The table name is safe to disclose; the whitelist is not secret.
	if !strings.Contains(rr.Body.String(), "refresh_sessions") {
		t.Fatalf("expected offending table named in response, got %q", rr.Body.String())
	}
}

func TestShapeForwardsScopedPredicate(t *testing.T) {
	var gotTable, gotWhere, gotParam string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTable = r.URL.Query().Get("table")
		gotWhere = r.URL.Query().Get("where")
		gotParam = r.URL.Query().Get("params[1]")
		_, _ = w.Write([]byte("[]"))
	}))
	defer upstream.Close()

	server := testServer(t, &fakeAuth{user: authedUser()}, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/shape?table=channels&offset=-1", nil)
	req.Header.Set("Cookie", "workos-session=sealed")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if gotTable != "channels" {
		t.Fatalf("expected channels forwarded, got %q", gotTable)
	}
	if !strings.Contains(gotWhere, "channel_access") {
		t.Fatalf("expected channel_access predicate, got %q", gotWhere)
	}
	if gotParam != "internal-1" {
		t.Fatalf("expected internal user id as param, got %q", gotParam)
	}
}

func TestHealthz(t *testing.T) {
	server := testServer(t, &fakeAuth{user: authedUser()}, "http://electric:3000")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyzReportsDatabaseFailure(t *testing.T) {
	forwarder, err := NewForwarder("http://electric:3000", "", "", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	server := NewHTTPServer(&fakeAuth{}, forwarder, &fakePinger{err: context.DeadlineExceeded}, metrics.New(), "*", false)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsSnapshotCountsRequests(t *testing.T) {
	server := testServer(t, &fakeAuth{err: &authn.AuthenticationError{Message: "no cookie header"}}, "http://electric:3000")
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/shape?table=messages", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var snapshot map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if snapshot["auth_failures"] != 1 {
		t.Fatalf("expected one auth failure recorded, got %d", snapshot["auth_failures"])
	}
	if snapshot["requests_total"] < 1 {
		t.Fatalf("expected request counted, got %d", snapshot["requests_total"])
	}
}

func TestRequestIDPropagatedToResponse(t *testing.T) {
	server := testServer(t, &fakeAuth{user: authedUser()}, "http://electric:3000")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("expected inbound request id echoed, got %q", rr.Header().Get("X-Request-ID"))
	}
}
