package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagopa/interop-platform-state/internal/api"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

func TestIssueToken_RejectedCarriesSteps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.IssueTokenRoute || r.PostFormValue(api.FormClientID) != "c1" {
			t.Errorf("unexpected request %s %v", r.URL.Path, r.PostForm)
		}
		w.Header().Set("X-Correlation-ID", "req-1")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"rejected","correlation_id":"req-1","steps":[{"name":"clientAssertionValidation","status":"PASSED"},{"name":"publicKeyRetrieval","status":"FAILED","failures":[{"code":"tokenGenerationStatesEntryNotFound","message":"no key"}]}]}`))
	}))
	defer srv.Close()

	_, correlation, err := New(srv.URL).IssueToken(context.Background(), validation.Request{ClientID: "c1"})
	if correlation != "req-1" {
		t.Errorf("expected correlation req-1, got %q", correlation)
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || len(apiErr.Steps) != 2 {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if apiErr.Steps[1].Failures[0].Code != validation.CodeEntryNotFound {
		t.Errorf("unexpected failure code %q", apiErr.Steps[1].Failures[0].Code)
	}
}

func TestPlatformState_EscapesKey(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"pk":"AGREEMENT#a1","state":"ACTIVE"}`))
	}))
	defer srv.Close()

	item, _, err := New(srv.URL+"/", WithAuthToken("op")).PlatformState(context.Background(), "AGREEMENT#a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != api.AdminPlatformStates+"AGREEMENT%23a1" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer op" {
		t.Errorf("unexpected authorization %q", gotAuth)
	}
	if item["state"] != "ACTIVE" {
		t.Errorf("unexpected item %v", item)
	}
}

func TestListAudits_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "5" || q.Get("client_id") != "c1" || q.Has("fingerprint") {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	entries, _, err := New(srv.URL).ListAudits(context.Background(), ListAuditsOpts{Limit: 5, ClientID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestHealth_DecodesDegradedReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.HealthCheckRoute {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded","consumers":{"agreement":false,"catalog":true}}`))
	}))
	defer srv.Close()

	health, err := New(srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.Status != api.HealthDegraded {
		t.Errorf("unexpected status %q", health.Status)
	}
	if health.Consumers["agreement"] || !health.Consumers["catalog"] {
		t.Errorf("unexpected consumers %v", health.Consumers)
	}
}

func TestAbout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"interop-platform-state","version":"v1.2.0","commit":"abc","go_version":"go1.23.0"}`))
	}))
	defer srv.Close()

	info, _, err := New(srv.URL).About(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Version != "v1.2.0" || info.Commit != "abc" {
		t.Errorf("unexpected info %+v", info)
	}
}
