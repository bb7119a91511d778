package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/quocanhngo/eventspot/internal/cache"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/task"
)

var errOffline = errors.New("network unreachable")

// fakeNetwork answers every request with a body derived from its URL and
// counts calls. When offline is set every call fails.
type fakeNetwork struct {
	mu      sync.Mutex
	calls   int
	offline bool
	status  int
	body    string
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.offline {
		return nil, errOffline
	}
	status := n.status
	if status == 0 {
		status = http.StatusOK
	}
	body := n.body
	if body == "" {
		body = "live " + req.URL.Path
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (n *fakeNetwork) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	n.offline = v
	n.mu.Unlock()
}

type brokenCache struct{}

func (brokenCache) Match(context.Context, string) (*model.CacheEntry, error) {
	return nil, errors.New("quota exceeded")
}

func (brokenCache) Put(context.Context, model.CacheEntry) error {
	return errors.New("quota exceeded")
}

type fixture struct {
	router  *Router
	net     *fakeNetwork
	store   *cache.MemoryStore
	manager *cache.Manager
	tasks   *task.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := cache.NewMemoryStore()
	m := cache.NewManager(store, "v1", nil)
	tasks := task.NewRunner(context.Background(), 0)
	t.Cleanup(tasks.Close)
	n := &fakeNetwork{}
	return &fixture{
		router:  New(testClassifier, m, n, tasks),
		net:     n,
		store:   store,
		manager: m,
		tasks:   tasks,
	}
}

var testClassifier = Classifier{
	APIPrefix:   "/api/",
	BypassHosts: []string{"firestore.googleapis.com", "firebaseio.com"},
	OfflinePage: "/offline.html",
}

func do(t *testing.T, rt http.RoundTripper, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestClassify(t *testing.T) {
	nav := func(r *http.Request) *http.Request { r.Header.Set("Sec-Fetch-Mode", "navigate"); return r }
	dest := func(d string) func(*http.Request) *http.Request {
		return func(r *http.Request) *http.Request { r.Header.Set("Sec-Fetch-Dest", d); return r }
	}
	none := func(r *http.Request) *http.Request { return r }

	tests := []struct {
		name     string
		method   string
		url      string
		decorate func(*http.Request) *http.Request
		want     Strategy
		fallback string
	}{
		{"post is bypassed", http.MethodPost, "http://app.local/api/messages", none, Bypass, ""},
		{"realtime host is bypassed", http.MethodGet, "https://firestore.googleapis.com/v1/docs", none, Bypass, ""},
		{"realtime subdomain is bypassed", http.MethodGet, "https://eventspot-default.firebaseio.com/a.json", none, Bypass, ""},
		{"api is network first", http.MethodGet, "http://app.local/api/v1/events", none, NetworkFirst, "/offline.html"},
		{"api wins over image ext", http.MethodGet, "http://app.local/api/v1/avatar.png", none, NetworkFirst, "/offline.html"},
		{"image ext is cache first", http.MethodGet, "http://app.local/img/map.PNG", none, CacheFirst, ""},
		{"image dest is cache first", http.MethodGet, "http://app.local/media/123", dest("image"), CacheFirst, ""},
		{"navigation is network first", http.MethodGet, "http://app.local/events/42", nav, NetworkFirst, "/offline.html"},
		{"document dest is network first", http.MethodGet, "http://app.local/", dest("document"), NetworkFirst, "/offline.html"},
		{"script is cache first", http.MethodGet, "http://app.local/app.js", dest("script"), CacheFirst, ""},
		{"font is cache first", http.MethodGet, "http://app.local/f.woff2", dest("font"), CacheFirst, ""},
		{"default is cache first", http.MethodGet, "http://app.local/manifest.json", none, CacheFirst, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.decorate(httptest.NewRequest(tt.method, tt.url, nil))
			got := testClassifier.Classify(req)
			if got.Strategy != tt.want {
				t.Errorf("strategy = %s, want %s", got.Strategy, tt.want)
			}
			if got.Fallback != tt.fallback {
				t.Errorf("fallback = %q, want %q", got.Fallback, tt.fallback)
			}
		})
	}
}

func TestKindFromContextOverridesHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.local/thumb", nil)
	req.Header.Set("Sec-Fetch-Dest", "script")
	req = req.WithContext(WithKind(req.Context(), KindImage))
	if got := KindOf(req); got != KindImage {
		t.Errorf("KindOf = %q, want image", got)
	}
}

func TestCacheFirstServesSecondRequestFromCache(t *testing.T) {
	f := newFixture(t)

	_, first := do(t, f.router, httptest.NewRequest(http.MethodGet, "http://app.local/app.js", nil))
	f.tasks.Wait()

	f.net.body = "changed on server"
	resp, second := do(t, f.router, httptest.NewRequest(http.MethodGet, "http://app.local/app.js", nil))

	if first != second {
		t.Errorf("second body = %q, want byte-identical %q", second, first)
	}
	if got := f.net.Calls(); got != 1 {
		t.Errorf("network calls = %d, want 1", got)
	}
	if resp.Header.Get(CacheHeader) != "hit" {
		t.Errorf("%s header = %q, want hit", CacheHeader, resp.Header.Get(CacheHeader))
	}
}

func TestCacheFirstImageFailureReturnsPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.net.setOffline(true)

	resp, body := do(t, f.router, httptest.NewRequest(http.MethodGet, "http://app.local/img/poster.jpg", nil))
	if !bytes.Equal([]byte(body), PlaceholderSVG) {
		t.Errorf("body is not the placeholder: %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("content type = %q", ct)
	}
}

func TestCacheFirstNonImageFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.net.setOffline(true)

	_, err := f.router.RoundTrip(httptest.NewRequest(http.MethodGet, "http://app.local/app.css", nil))
	if !errors.Is(err, errOffline) {
		t.Errorf("err = %v, want %v", err, errOffline)
	}
}

func TestNetworkFirstFallsBackToLastCachedCopy(t *testing.T) {
	f := newFixture(t)
	url := "http://app.local/api/v1/events"

	f.net.body = "events v1"
	do(t, f.router, httptest.NewRequest(http.MethodGet, url, nil))
	f.tasks.Wait()
	f.net.body = "events v2"
	do(t, f.router, httptest.NewRequest(http.MethodGet, url, nil))
	f.tasks.Wait()

	f.net.setOffline(true)
	resp, body := do(t, f.router, httptest.NewRequest(http.MethodGet, url, nil))
	if body != "events v2" {
		t.Errorf("offline body = %q, want most recent copy", body)
	}
	if resp.Header.Get(CacheHeader) != "hit" {
		t.Errorf("expected cached response")
	}
}

func TestNetworkFirstNavigationMissServesOfflinePage(t *testing.T) {
	f := newFixture(t)
	f.store.Put(context.Background(), f.manager.PrecacheName(), model.CacheEntry{
		RequestKey: "http://app.local/offline.html",
		Status:     http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<h1>Sin conexión</h1>"),
	})
	f.net.setOffline(true)

	req := httptest.NewRequest(http.MethodGet, "http://app.local/events/42?tab=chat", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	_, body := do(t, f.router, req)
	if body != "<h1>Sin conexión</h1>" {
		t.Errorf("body = %q, want offline page", body)
	}

	// A non-navigation API miss propagates instead.
	_, err := f.router.RoundTrip(httptest.NewRequest(http.MethodGet, "http://app.local/api/v1/events/42", nil))
	if !errors.Is(err, errOffline) {
		t.Errorf("api miss err = %v, want %v", err, errOffline)
	}
}

func TestNonGetIsNeverCached(t *testing.T) {
	f := newFixture(t)
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		do(t, f.router, httptest.NewRequest(method, "http://app.local/api/v1/messages", strings.NewReader("{}")))
	}
	f.tasks.Wait()

	names, _ := f.store.Partitions(context.Background())
	for _, name := range names {
		if n, _ := f.store.Len(context.Background(), name); n > 0 {
			t.Errorf("partition %s has %d entries after non-GET traffic", name, n)
		}
	}
}

func TestBypassHostSkipsCache(t *testing.T) {
	f := newFixture(t)
	url := "https://firestore.googleapis.com/v1/projects/p/databases/(default)/documents/events"
	f.manager.Put(context.Background(), model.CacheEntry{RequestKey: url, Status: 200, Body: []byte("stale")})

	_, body := do(t, f.router, httptest.NewRequest(http.MethodGet, url, nil))
	if body == "stale" {
		t.Errorf("realtime request was served from cache")
	}
	if f.net.Calls() != 1 {
		t.Errorf("network calls = %d, want 1", f.net.Calls())
	}
}

func TestCacheFailuresNeverSurface(t *testing.T) {
	tasks := task.NewRunner(context.Background(), 0)
	var failures int
	var mu sync.Mutex
	tasks.Observe(func(task.Failure) { mu.Lock(); failures++; mu.Unlock() })

	n := &fakeNetwork{}
	r := New(testClassifier, brokenCache{}, n, tasks)

	_, body := do(t, r, httptest.NewRequest(http.MethodGet, "http://app.local/app.js", nil))
	if body != "live /app.js" {
		t.Errorf("body = %q", body)
	}
	tasks.Close()

	mu.Lock()
	defer mu.Unlock()
	if failures != 1 {
		t.Errorf("background failures = %d, want 1", failures)
	}
}

func TestNonOKResponsesAreNotStored(t *testing.T) {
	f := newFixture(t)
	f.net.status = http.StatusNotFound
	do(t, f.router, httptest.NewRequest(http.MethodGet, "http://app.local/missing.js", nil))
	f.tasks.Wait()

	if n, _ := f.store.Len(context.Background(), f.manager.DynamicName()); n != 0 {
		t.Errorf("dynamic entries = %d, want 0", n)
	}
}

func TestDirectorKeepsBypassHosts(t *testing.T) {
	origin, _ := url.Parse("http://origin.internal:3000")
	direct := testClassifier.Director(origin)

	tests := []struct {
		name       string
		target     string
		wantHost   string
		wantScheme string
		want       Strategy
	}{
		{"app page goes to origin", "http://localhost:8081/events", "origin.internal:3000", "http", NetworkFirst},
		{"app asset goes to origin", "http://localhost:8081/app.js", "origin.internal:3000", "http", CacheFirst},
		{"realtime host keeps its host", "http://firestore.googleapis.com/v1/docs", "firestore.googleapis.com", "https", Bypass},
		{"realtime subdomain keeps its host", "http://eventspot.firebaseio.com/a.json", "eventspot.firebaseio.com", "https", Bypass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if strings.HasSuffix(tt.target, "/events") {
				req.Header.Set("Sec-Fetch-Mode", "navigate")
			}
			// Server-side requests carry only a path
			req.URL.Scheme, req.URL.Host = "", ""
			direct(req)

			if req.URL.Host != tt.wantHost {
				t.Errorf("host = %q, want %q", req.URL.Host, tt.wantHost)
			}
			if req.URL.Scheme != tt.wantScheme {
				t.Errorf("scheme = %q, want %q", req.URL.Scheme, tt.wantScheme)
			}
			if got := testClassifier.Classify(req).Strategy; got != tt.want {
				t.Errorf("strategy = %s, want %s", got, tt.want)
			}
		})
	}
}
