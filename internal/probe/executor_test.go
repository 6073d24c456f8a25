package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingTransport struct {
	calls atomic.Int64
	next  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return t.next.RoundTrip(req)
}

func TestProbeEmptyTargetsReportsUnreachable(t *testing.T) {
	transport := &countingTransport{next: http.DefaultTransport}
	exec, err := NewExecutor(nil, Dependencies{HTTPClient: &http.Client{Transport: transport}})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if exec.Probe(context.Background()) {
		t.Fatalf("expected unreachable with no targets")
	}
	if calls := transport.calls.Load(); calls != 0 {
		t.Fatalf("expected no requests, got %d", calls)
	}
}

func TestProbeDefaultPredicateAcceptsOnly2xx(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okServer.Close()
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer failServer.Close()

	exec, err := NewExecutor([]Target{{URL: okServer.URL, Timeout: time.Second}}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if !exec.Probe(context.Background()) {
		t.Fatalf("expected 204 to count as reachable")
	}

	exec, err = NewExecutor([]Target{{URL: failServer.URL, Timeout: time.Second}}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if exec.Probe(context.Background()) {
		t.Fatalf("expected 404 to count as unreachable")
	}
}

func TestProbeFirstSuccessWins(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	exec, err := NewExecutor([]Target{
		{URL: slow.URL, Timeout: 5 * time.Second},
		{URL: fast.URL, Timeout: 5 * time.Second},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	started := time.Now()
	if !exec.Probe(context.Background()) {
		t.Fatalf("expected reachable")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("expected first success to win, probe took %s", elapsed)
	}
}

func TestProbeAllFailuresReportUnreachable(t *testing.T) {
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failServer.Close()

	// Second target points at a closed port; transport errors are absorbed.
	refused := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	refusedURL := refused.URL
	refused.Close()

	exec, err := NewExecutor([]Target{
		{URL: failServer.URL, Timeout: time.Second},
		{URL: refusedURL, Timeout: time.Second},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if exec.Probe(context.Background()) {
		t.Fatalf("expected unreachable when every target fails")
	}
}

func TestProbeTimeoutAbsorbed(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	exec, err := NewExecutor([]Target{{URL: slow.URL, Timeout: 50 * time.Millisecond}}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	started := time.Now()
	if exec.Probe(context.Background()) {
		t.Fatalf("expected timeout to count as unreachable")
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("expected per-target timeout to bound the probe, took %s", elapsed)
	}
}

func TestProbeSendsConfiguredHeaders(t *testing.T) {
	var gotToken atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("X-Probe-Token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec, err := NewExecutor([]Target{{
		URL:     server.URL,
		Timeout: time.Second,
		Headers: map[string]string{"X-Probe-Token": "tok-1"},
	}}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if !exec.Probe(context.Background()) {
		t.Fatalf("expected reachable")
	}
	if token, _ := gotToken.Load().(string); token != "tok-1" {
		t.Fatalf("expected header to be sent, got %q", token)
	}
}

func TestProbeCustomPredicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"captive":true}`))
	}))
	defer server.Close()

	predicate := func(resp Response) bool {
		return resp.StatusCode == http.StatusOK && !strings.Contains(string(resp.Body), "captive")
	}
	exec, err := NewExecutor([]Target{{URL: server.URL, Timeout: time.Second, Predicate: predicate}}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if exec.Probe(context.Background()) {
		t.Fatalf("expected captive portal body to fail the predicate")
	}
}

func TestProbePredicatePanicCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec, err := NewExecutor([]Target{{
		URL:       server.URL,
		Timeout:   time.Second,
		Predicate: func(Response) bool { panic("bad predicate") },
	}}, Dependencies{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if exec.Probe(context.Background()) {
		t.Fatalf("expected panicking predicate to count as not reachable")
	}
}

func TestNewExecutorRejectsMalformedTarget(t *testing.T) {
	if _, err := NewExecutor([]Target{{URL: "ftp://example.com", Timeout: time.Second}}, Dependencies{}); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := NewExecutor([]Target{{URL: "http://example.com", Timeout: 0}}, Dependencies{}); err == nil {
		t.Fatalf("expected error for missing timeout")
	}
}
