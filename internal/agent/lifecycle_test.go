package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/quocanhngo/eventspot/internal/cache"
	"github.com/quocanhngo/eventspot/internal/model"
)

var testManifest = []string{"/", "/offline.html"}

type fakeFetcher struct {
	mu      sync.Mutex
	failing map[string]bool
	// gate, when set, holds every fetch until it is closed
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) hold() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, len(testManifest))
	gate := f.gate
	return func() { close(gate) }
}

func (f *fakeFetcher) fail(path string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing == nil {
		f.failing = map[string]bool{}
	}
	f.failing[path] = on
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) (model.CacheEntry, error) {
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return model.CacheEntry{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[path] {
		return model.CacheEntry{}, fmt.Errorf("GET %s: 404", path)
	}
	return model.CacheEntry{RequestKey: "http://app.test" + path, Status: 200, Body: []byte(path)}, nil
}

func newLifecycle() (*Lifecycle, *cache.MemoryStore, *fakeFetcher, *int) {
	store := cache.NewMemoryStore()
	fetcher := &fakeFetcher{}
	l := NewLifecycle(store, fetcher, testManifest)
	open := 0
	l.OnSessions(func() int { return open })
	return l, store, fetcher, &open
}

func partitions(t *testing.T, store cache.Store) []string {
	t.Helper()
	names, err := store.Partitions(context.Background())
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	return names
}

func TestFirstDeployActivates(t *testing.T) {
	l, store, _, open := newLifecycle()
	*open = 2
	var claimed []string
	l.OnClaim(func(v string) { claimed = append(claimed, v) })

	state, err := l.Deploy(context.Background(), "v1")
	if err != nil || state != cache.StateActive {
		t.Fatalf("Deploy = %s, %v; want active", state, err)
	}
	if l.Active() != "v1" {
		t.Errorf("active = %q", l.Active())
	}
	if !reflect.DeepEqual(claimed, []string{"v1"}) {
		t.Errorf("claimed = %v, want [v1]", claimed)
	}
	if got := partitions(t, store); !reflect.DeepEqual(got, []string{"precache-v1"}) {
		t.Errorf("partitions = %v", got)
	}
}

func TestNewVersionWaitsForSessions(t *testing.T) {
	l, store, _, open := newLifecycle()
	ctx := context.Background()
	if _, err := l.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Put(ctx, model.CacheEntry{RequestKey: "http://app.test/img.png", Status: 200}); err != nil {
		t.Fatal(err)
	}

	*open = 1
	state, err := l.Deploy(ctx, "v2")
	if err != nil || state != cache.StateWaiting {
		t.Fatalf("Deploy v2 = %s, %v; want waiting", state, err)
	}
	if l.Active() != "v1" {
		t.Errorf("active = %q, want v1 while waiting", l.Active())
	}

	if activated, _ := l.ActivateWaiting(ctx); activated {
		t.Error("activated while a session is open")
	}

	*open = 0
	activated, err := l.ActivateWaiting(ctx)
	if err != nil || !activated {
		t.Fatalf("ActivateWaiting = %v, %v", activated, err)
	}
	if l.Active() != "v2" {
		t.Errorf("active = %q, want v2", l.Active())
	}
	if got := partitions(t, store); !reflect.DeepEqual(got, []string{"precache-v2"}) {
		t.Errorf("partitions = %v, want only precache-v2", got)
	}
}

func TestSkipWaiting(t *testing.T) {
	l, store, _, open := newLifecycle()
	ctx := context.Background()
	*open = 1
	if _, err := l.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Deploy(ctx, "v2"); err != nil {
		t.Fatal(err)
	}

	if err := l.SkipWaiting(ctx); err != nil {
		t.Fatalf("SkipWaiting: %v", err)
	}
	if l.Active() != "v2" {
		t.Errorf("active = %q, want v2", l.Active())
	}
	if got := partitions(t, store); !reflect.DeepEqual(got, []string{"precache-v2"}) {
		t.Errorf("partitions = %v", got)
	}

	// Nothing waiting: no-op
	if err := l.SkipWaiting(ctx); err != nil {
		t.Errorf("SkipWaiting without waiting version: %v", err)
	}
}

func TestFailedInstallKeepsActiveVersion(t *testing.T) {
	l, store, fetcher, _ := newLifecycle()
	ctx := context.Background()
	if _, err := l.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}

	fetcher.fail("/offline.html", true)
	state, err := l.Deploy(ctx, "v2")
	if !errors.Is(err, cache.ErrPrecache) {
		t.Fatalf("err = %v, want ErrPrecache", err)
	}
	if state != cache.StateDiscarded {
		t.Errorf("state = %s, want discarded", state)
	}
	if l.Active() != "v1" {
		t.Errorf("active = %q, want v1", l.Active())
	}
	if got := partitions(t, store); !reflect.DeepEqual(got, []string{"precache-v1"}) {
		t.Errorf("partitions = %v, want precache-v1 only", got)
	}
	e, err := l.Match(ctx, "http://app.test/offline.html")
	if err != nil || string(e.Body) != "/offline.html" {
		t.Errorf("v1 offline page lost: %v", err)
	}
}

func TestLifecycleBeforeActivation(t *testing.T) {
	l, _, fetcher, _ := newLifecycle()
	ctx := context.Background()
	fetcher.fail("/", true)
	if _, err := l.Deploy(ctx, "v1"); err == nil {
		t.Fatal("expected install error")
	}

	if _, err := l.Match(ctx, "http://app.test/"); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Match = %v, want ErrMiss", err)
	}
	if err := l.Put(ctx, model.CacheEntry{RequestKey: "k"}); !errors.Is(err, ErrNoActiveVersion) {
		t.Errorf("Put = %v, want ErrNoActiveVersion", err)
	}
	if l.Sweeper() != nil {
		t.Error("Sweeper() should be nil without an active version")
	}

	st, err := l.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "idle" || st.Active != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestRedeploySameVersion(t *testing.T) {
	l, _, _, _ := newLifecycle()
	ctx := context.Background()
	if _, err := l.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	claims := 0
	l.OnClaim(func(string) { claims++ })
	state, err := l.Deploy(ctx, "v1")
	if err != nil || state != cache.StateActive {
		t.Errorf("Deploy = %s, %v", state, err)
	}
	if claims != 0 {
		t.Errorf("redeploy reactivated the version")
	}
}

func TestSweepKeepsWaitingPrecache(t *testing.T) {
	l, store, _, open := newLifecycle()
	ctx := context.Background()
	if _, err := l.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Put(ctx, model.CacheEntry{RequestKey: "http://app.test/img.png", Status: 200}); err != nil {
		t.Fatal(err)
	}
	store.Put(ctx, "dynamic-v0", model.CacheEntry{RequestKey: "stale"})

	*open = 1
	if state, err := l.Deploy(ctx, "v2"); err != nil || state != cache.StateWaiting {
		t.Fatalf("Deploy v2 = %s, %v; want waiting", state, err)
	}

	dropped, err := l.Sweeper().Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !reflect.DeepEqual(dropped, []string{"dynamic-v0"}) {
		t.Errorf("dropped = %v, want [dynamic-v0]", dropped)
	}

	*open = 0
	if activated, err := l.ActivateWaiting(ctx); err != nil || !activated {
		t.Fatalf("ActivateWaiting = %v, %v", activated, err)
	}
	e, err := l.Match(ctx, "http://app.test/offline.html")
	if err != nil || string(e.Body) != "/offline.html" {
		t.Fatalf("offline page after activation: %v", err)
	}
}

func TestInstallDoesNotBlockActiveVersion(t *testing.T) {
	l, _, fetcher, open := newLifecycle()
	ctx := context.Background()
	if _, err := l.Deploy(ctx, "v1"); err != nil {
		t.Fatal(err)
	}

	*open = 1
	release := fetcher.hold()
	deployed := make(chan error, 1)
	go func() {
		_, err := l.Deploy(ctx, "v2")
		deployed <- err
	}()
	<-fetcher.started

	matched := make(chan error, 1)
	go func() {
		_, err := l.Match(ctx, "http://app.test/offline.html")
		if err == nil {
			err = l.Put(ctx, model.CacheEntry{RequestKey: "http://app.test/a.css", Status: 200})
		}
		matched <- err
	}()
	select {
	case err := <-matched:
		if err != nil {
			t.Errorf("Match on v1 during install: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("lookup on the active version blocked while v2 installs")
	}

	if activated, err := l.ActivateWaiting(ctx); err != nil || activated {
		t.Errorf("ActivateWaiting during install = %v, %v; want no-op", activated, err)
	}

	release()
	if err := <-deployed; err != nil {
		t.Fatalf("Deploy v2: %v", err)
	}
	if l.Active() != "v1" {
		t.Errorf("active = %q, want v1 while the session is open", l.Active())
	}
}
