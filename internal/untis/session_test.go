package untis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"berichtsheft/internal/domain"
)

func rpcOK(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(map[string]any{
		"id": "authenticate", "jsonrpc": "2.0", "result": result,
	}); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func rpcFail(t *testing.T, w http.ResponseWriter, code int, message string) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(map[string]any{
		"id": "authenticate", "jsonrpc": "2.0",
		"error": map[string]any{"code": code, "message": message},
	}); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

// hostOf strips the scheme so a httptest URL can pose as a candidate server.
func hostOf(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func candidatesFor(server *httptest.Server, tenants ...string) []domain.TenantCandidate {
	var out []domain.TenantCandidate
	for _, tenant := range tenants {
		out = append(out, domain.TenantCandidate{
			DisplayName: tenant,
			TenantID:    tenant,
			Server:      hostOf(server),
		})
	}
	return out
}

func TestAcquireShortCircuitsOnFirstSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.URL.Query().Get("school") == "c3" {
			rpcOK(t, w, map[string]string{"sessionId": "sess-42"})
			return
		}
		rpcFail(t, w, rpcCodeBadSchool, "invalid schoolname")
	}))
	defer server.Close()

	client := NewClient()
	client.HTTPClient = server.Client()
	client.Scheme = "http"

	session, trail, err := client.Acquire(context.Background(), domain.Credentials{Username: "u", Secret: "p"},
		candidatesFor(server, "c1", "c2", "c3", "c4", "c5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
	if session.Token != "sess-42" || session.TenantID != "c3" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", len(trail))
	}
	for _, a := range trail {
		if a.Kind != FailureTenant {
			t.Fatalf("expected tenant mismatch in trail, got %s", a.Kind)
		}
	}
}

func TestAcquireStopsOnCredentialsRejection(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		rpcFail(t, w, rpcCodeBadCredentials, "bad credentials")
	}))
	defer server.Close()

	client := NewClient()
	client.HTTPClient = server.Client()
	client.Scheme = "http"

	_, trail, err := client.Acquire(context.Background(), domain.Credentials{Username: "u", Secret: "wrong"},
		candidatesFor(server, "c1", "c2", "c3"))

	var credErr *CredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialsError, got %T: %v", err, err)
	}
	var exhausted *AuthExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatalf("credentials rejection must not report exhaustion")
	}
	if attempts != 1 {
		t.Fatalf("expected the walk to stop after 1 attempt, got %d", attempts)
	}
	if len(trail) != 1 || trail[0].Kind != FailureCredentials {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestAcquireExhaustionCarriesOrderedTrail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcFail(t, w, rpcCodeBadSchool, fmt.Sprintf("invalid schoolname %s", r.URL.Query().Get("school")))
	}))
	defer server.Close()

	client := NewClient()
	client.HTTPClient = server.Client()
	client.Scheme = "http"

	_, trail, err := client.Acquire(context.Background(), domain.Credentials{Username: "u", Secret: "p"},
		candidatesFor(server, "first", "second", "third"))

	var exhausted *AuthExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AuthExhaustedError, got %T: %v", err, err)
	}
	if len(exhausted.Attempts) != 3 {
		t.Fatalf("expected 3 attempts in trail, got %d", len(exhausted.Attempts))
	}
	for i, want := range []string{"first", "second", "third"} {
		if exhausted.Attempts[i].Candidate.TenantID != want {
			t.Fatalf("attempt %d: expected tenant %q, got %q", i, want, exhausted.Attempts[i].Candidate.TenantID)
		}
	}
	if len(trail) != 3 {
		t.Fatalf("expected returned trail to match, got %d entries", len(trail))
	}
}

func TestAcquireTransportErrorContinuesToNextCandidate(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcOK(t, w, map[string]string{"sessionId": "sess-7"})
	}))
	defer good.Close()

	client := NewClient()
	client.HTTPClient = good.Client()
	client.Scheme = "http"

	candidates := []domain.TenantCandidate{
		{TenantID: "dead", Server: "127.0.0.1:1"},
		{TenantID: "alive", Server: hostOf(good)},
	}
	session, trail, err := client.Acquire(context.Background(), domain.Credentials{Username: "u", Secret: "p"}, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.TenantID != "alive" {
		t.Fatalf("expected the second candidate to win, got %q", session.TenantID)
	}
	if len(trail) != 1 || trail[0].Kind != FailureTransport {
		t.Fatalf("expected one transport failure in trail, got %+v", trail)
	}
}

func TestAcquireTenantHintTriedFirst(t *testing.T) {
	var order []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		school := r.URL.Query().Get("school")
		order = append(order, school)
		if school == "hinted" {
			rpcOK(t, w, map[string]string{"sessionId": "sess-1"})
			return
		}
		rpcFail(t, w, rpcCodeBadSchool, "invalid schoolname")
	}))
	defer server.Close()

	client := NewClient()
	client.HTTPClient = server.Client()
	client.Scheme = "http"

	creds := domain.Credentials{Username: "u", Secret: "p", TenantHint: "hinted", ServerHint: hostOf(server)}
	session, _, err := client.Acquire(context.Background(), creds, candidatesFor(server, "resolved-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.TenantID != "hinted" {
		t.Fatalf("expected hinted tenant, got %q", session.TenantID)
	}
	if len(order) != 1 || order[0] != "hinted" {
		t.Fatalf("hint must be tried first, order: %v", order)
	}
}

func TestAcquireEmptyCandidateList(t *testing.T) {
	client := NewClient()
	_, _, err := client.Acquire(context.Background(), domain.Credentials{Username: "u", Secret: "p"}, nil)
	if !errors.Is(err, ErrResolutionEmpty) {
		t.Fatalf("expected ErrResolutionEmpty, got %v", err)
	}
}

func TestAcquireRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient()
	client.Scheme = "http"
	_, _, err := client.Acquire(ctx, domain.Credentials{Username: "u", Secret: "p"},
		[]domain.TenantCandidate{{TenantID: "c1", Server: "127.0.0.1:1"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
