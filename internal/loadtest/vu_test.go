package loadtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gustload/gust/internal/loadtest/metrics"
)

func newTestCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	c := metrics.NewCollector()
	t.Cleanup(c.Stop)
	return c
}

func TestVirtualUser_RunIteration(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	scenario := &Scenario{
		Name: "basic",
		Requests: []*RequestSpec{
			{
				Name:   "first",
				Method: "GET",
				URL:    server.URL + "/a",
				Checks: []CheckSpec{
					{Name: "status is 200", Type: "status", Equals: "200"},
					{Name: "status ok", Type: "json", Path: "status", Equals: "ok"},
				},
			},
			{Name: "second", Method: "GET", URL: server.URL + "/b"},
		},
	}

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, scenario, server.Client(), collector, nil)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
	if vu.Iteration() != 1 {
		t.Errorf("Iteration() = %d, want 1", vu.Iteration())
	}
	if vu.State() != VUStateIdle {
		t.Errorf("State() = %v, want idle", vu.State())
	}

	snap := collector.Snapshot()
	if snap.TotalRequests != 2 || snap.FailedRequests != 0 {
		t.Errorf("collector = %d total / %d failed", snap.TotalRequests, snap.FailedRequests)
	}

	checks := collector.CheckStats()
	if len(checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(checks))
	}
	for _, ch := range checks {
		if ch.Failed != 0 {
			t.Errorf("check %q failed %d times", ch.Name, ch.Failed)
		}
	}
}

func TestVirtualUser_FailedRequestCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	scenario := &Scenario{
		Name: "failing",
		Requests: []*RequestSpec{
			{Name: "boom", Method: "GET", URL: server.URL},
		},
	}

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, scenario, server.Client(), collector, nil)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	snap := collector.Snapshot()
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snap.FailedRequests)
	}
}

func TestVirtualUser_VariableExtraction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-42")
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc123"})
	})
	var gotAuth string
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	scenario := &Scenario{
		Name:      "extract",
		Variables: map[string]string{"baseUrl": server.URL},
		Requests: []*RequestSpec{
			{
				Name:   "get token",
				Method: "GET",
				URL:    "{{baseUrl}}/login",
				Extract: []ExtractSpec{
					{Name: "token", Source: "body", Path: "token"},
					{Name: "requestId", Source: "header", Path: "X-Request-Id"},
					{Name: "loginStatus", Source: "status"},
				},
			},
			{
				Name:    "use token",
				Method:  "GET",
				URL:     "{{baseUrl}}/profile",
				Headers: map[string]string{"Authorization": "Bearer {{token}}"},
			},
		},
	}

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, scenario, server.Client(), collector, nil)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if gotAuth != "Bearer tok-abc123" {
		t.Errorf("Authorization = %q, want the extracted token", gotAuth)
	}
	if v, _ := vu.GetData("requestId"); v != "req-42" {
		t.Errorf("requestId = %q", v)
	}
	if v, _ := vu.GetData("loginStatus"); v != "200" {
		t.Errorf("loginStatus = %q", v)
	}
}

func TestVirtualUser_RegexExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<input name="csrf" value="token-xyz-789">`))
	}))
	defer server.Close()

	scenario := &Scenario{
		Name: "regex",
		Requests: []*RequestSpec{
			{
				Name:   "form",
				Method: "GET",
				URL:    server.URL,
				Extract: []ExtractSpec{
					{Name: "csrf", Source: "body", Regex: `value="([^"]+)"`},
				},
			},
		},
	}

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, scenario, server.Client(), collector, nil)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if v, _ := vu.GetData("csrf"); v != "token-xyz-789" {
		t.Errorf("csrf = %q, want the first capture group", v)
	}
}

func sessionScenario(baseURL string, loginPath string) *Scenario {
	return &Scenario{
		Name: "with session",
		Session: &SessionSpec{
			Login: &RequestSpec{
				Name:   "login",
				Method: "POST",
				URL:    baseURL + loginPath,
				Body:   `{"username":"tester","password":"secret"}`,
			},
			Cookie:        "sessionid",
			FallbackValue: "fallback-session-value",
			ExpectStatus:  200,
		},
		Requests: []*RequestSpec{
			{Name: "dashboard", Method: "GET", URL: baseURL + "/dashboard"},
		},
	}
}

func jarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func TestVirtualUser_SessionLogin(t *testing.T) {
	var loginCount atomic.Int64
	var gotCookie string

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		loginCount.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "server-issued", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sessionid"); err == nil {
			gotCookie = c.Value
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, sessionScenario(server.URL, "/login"), jarClient(t), collector, nil)

	// Two iterations: login must run exactly once.
	for i := 0; i < 2; i++ {
		if err := vu.RunIteration(context.Background()); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
	}

	if loginCount.Load() != 1 {
		t.Errorf("login executed %d times, want 1", loginCount.Load())
	}
	if gotCookie != "server-issued" {
		t.Errorf("dashboard saw cookie %q, want server-issued", gotCookie)
	}

	for _, ch := range collector.CheckStats() {
		if ch.Name == "login succeeded" && ch.Passed != 1 {
			t.Errorf("login check = %d passed / %d failed", ch.Passed, ch.Failed)
		}
	}
}

func TestVirtualUser_SessionFallbackOnRejectedLogin(t *testing.T) {
	var gotCookie string

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sessionid"); err == nil {
			gotCookie = c.Value
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, sessionScenario(server.URL, "/login"), jarClient(t), collector, nil)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if gotCookie != "fallback-session-value" {
		t.Errorf("dashboard saw cookie %q, want the fallback value", gotCookie)
	}

	found := false
	for _, ch := range collector.CheckStats() {
		if ch.Name == "login succeeded" {
			found = true
			if ch.Failed != 1 || ch.Passed != 0 {
				t.Errorf("login check = %d passed / %d failed, want 0/1", ch.Passed, ch.Failed)
			}
		}
	}
	if !found {
		t.Error("login check was not recorded")
	}
}

func TestVirtualUser_SessionFallbackOnMissingCookie(t *testing.T) {
	// Login succeeds but never sets the session cookie.
	var gotCookie string

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sessionid"); err == nil {
			gotCookie = c.Value
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	collector := newTestCollector(t)
	vu := NewVirtualUser(1, sessionScenario(server.URL, "/login"), jarClient(t), collector, nil)

	if err := vu.RunIteration(context.Background()); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}

	if gotCookie != "fallback-session-value" {
		t.Errorf("dashboard saw cookie %q, want the fallback value", gotCookie)
	}
}

func TestVirtualUser_StopLifecycle(t *testing.T) {
	scenario := &Scenario{Name: "lifecycle", Requests: []*RequestSpec{}}
	collector := newTestCollector(t)
	vu := NewVirtualUser(1, scenario, &http.Client{}, collector, nil)

	if vu.State() != VUStateIdle {
		t.Errorf("initial State() = %v, want idle", vu.State())
	}

	vu.RequestStop()
	if vu.State() != VUStateStopping {
		t.Errorf("State() after RequestStop = %v, want stopping", vu.State())
	}

	if err := vu.RunIteration(context.Background()); err == nil {
		t.Error("RunIteration() on a stopping VU should fail")
	}

	vu.MarkStopped()
	if vu.State() != VUStateStopped {
		t.Errorf("State() = %v, want stopped", vu.State())
	}
	if !vu.WaitForStop(time.Second) {
		t.Error("WaitForStop() timed out for a stopped VU")
	}
}

func TestVirtualUser_MarkStoppedConcurrent(t *testing.T) {
	scenario := &Scenario{Name: "lifecycle", Requests: []*RequestSpec{}}
	collector := newTestCollector(t)
	vu := NewVirtualUser(1, scenario, &http.Client{}, collector, nil)

	// Racing callers must not panic on a double close.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vu.MarkStopped()
		}()
	}
	wg.Wait()

	if vu.State() != VUStateStopped {
		t.Errorf("State() = %v, want stopped", vu.State())
	}
	if !vu.WaitForStop(time.Second) {
		t.Error("WaitForStop() timed out for a stopped VU")
	}
}
