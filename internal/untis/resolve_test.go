package untis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"berichtsheft/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient()
	client.HTTPClient = server.Client()
	client.DirectoryURL = server.URL
	client.Scheme = "http"
	return client, server
}

func directoryResponse(t *testing.T, w http.ResponseWriter, schools []map[string]string) {
	t.Helper()
	resp := map[string]any{
		"id":      "schoolquery",
		"jsonrpc": "2.0",
		"result":  map[string]any{"schools": schools},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encoding directory response: %v", err)
	}
}

func TestResolveRanksLocalityFirst(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Method != "searchSchool" {
			t.Fatalf("unexpected method %q", req.Method)
		}
		directoryResponse(t, w, []map[string]string{
			{"displayName": "Example-School Shelbyville", "loginName": "example-shelbyville", "server": "ajax.example.com", "address": "Shelbyville, Main St 1"},
			{"displayName": "Example-School Springfield", "loginName": "example-springfield", "server": "ajax.example.com", "address": "12345 Springfield, Elm St 2"},
		})
	})

	got := client.Resolve(context.Background(), "Example-School", "Springfield", nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].TenantID != "example-springfield" {
		t.Fatalf("locality match must rank first, got %q", got[0].TenantID)
	}
	if got[1].TenantID != "example-shelbyville" {
		t.Fatalf("non-match must keep directory order, got %q", got[1].TenantID)
	}
}

func TestResolveKeepsDirectoryOrderOnTies(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		directoryResponse(t, w, []map[string]string{
			{"displayName": "A", "loginName": "a", "server": "s1", "address": "Springfield North"},
			{"displayName": "B", "loginName": "b", "server": "s2", "address": "Springfield South"},
			{"displayName": "C", "loginName": "c", "server": "s3", "address": "Shelbyville"},
		})
	})

	got := client.Resolve(context.Background(), "x", "Springfield", nil)
	if len(got) != 3 || got[0].TenantID != "a" || got[1].TenantID != "b" || got[2].TenantID != "c" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestResolveFallsBackOnDirectoryError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	fallback := []domain.TenantCandidate{
		{TenantID: "example-school", Server: "ajax.example.com"},
	}

	got := client.Resolve(context.Background(), "Example-School", "", fallback)
	if len(got) != 1 || got[0].TenantID != "example-school" {
		t.Fatalf("expected fallback candidates, got %+v", got)
	}
}

func TestResolveFallsBackOnEmptyResult(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		directoryResponse(t, w, nil)
	})
	fallback := []domain.TenantCandidate{
		{TenantID: "known-variant", Server: "ajax.example.com"},
	}

	got := client.Resolve(context.Background(), "Example-School", "", fallback)
	if len(got) != 1 || got[0].TenantID != "known-variant" {
		t.Fatalf("expected fallback candidates, got %+v", got)
	}
}

func TestResolveEmptyWithoutFallbackIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		directoryResponse(t, w, nil)
	})

	got := client.Resolve(context.Background(), "Nowhere-School", "", nil)
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestResolveSkipsIncompleteDirectoryEntries(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		directoryResponse(t, w, []map[string]string{
			{"displayName": "No login name", "server": "s1", "address": "Springfield"},
			{"displayName": "Complete", "loginName": "complete", "server": "s2", "address": "Springfield"},
		})
	})

	got := client.Resolve(context.Background(), "x", "", nil)
	if len(got) != 1 || got[0].TenantID != "complete" {
		t.Fatalf("expected only the complete entry, got %+v", got)
	}
}
