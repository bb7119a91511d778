package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/quocanhngo/eventspot/internal/cache"
	"github.com/quocanhngo/eventspot/internal/model"
)

// ErrNoActiveVersion is returned by cache operations before the first activation.
var ErrNoActiveVersion = errors.New("no active cache version")

// Lifecycle owns the deployed cache versions of the agent. Installs,
// activations and sweeps run one at a time under op. mu only guards the
// version pointers, so lookups on the active version never wait on an
// install in progress.
type Lifecycle struct {
	store    cache.Store
	fetcher  cache.Fetcher
	manifest []string

	op sync.Mutex

	mu       sync.Mutex
	active   *cache.Manager
	waiting  *cache.Manager
	sessions func() int
	claim    func(version string)
}

// NewLifecycle creates a lifecycle with no active version. sessions reports
// how many foreground sessions the active version controls.
func NewLifecycle(store cache.Store, fetcher cache.Fetcher, manifest []string) *Lifecycle {
	return &Lifecycle{
		store:    store,
		fetcher:  fetcher,
		manifest: manifest,
		sessions: func() int { return 0 },
		claim:    func(string) {},
	}
}

// OnSessions sets the controlled-session counter
func (l *Lifecycle) OnSessions(count func() int) {
	l.mu.Lock()
	l.sessions = count
	l.mu.Unlock()
}

// OnClaim sets the callback run right after a version activates
func (l *Lifecycle) OnClaim(fn func(version string)) {
	l.mu.Lock()
	l.claim = fn
	l.mu.Unlock()
}

func (l *Lifecycle) versions() (active, waiting *cache.Manager) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.waiting
}

func (l *Lifecycle) openSessions() int {
	l.mu.Lock()
	count := l.sessions
	l.mu.Unlock()
	return count()
}

// Deploy installs version. It activates right away when nothing is active,
// no session is open, or skip-waiting was requested; otherwise the version
// waits. A failed install leaves the active version untouched.
func (l *Lifecycle) Deploy(ctx context.Context, version string) (cache.State, error) {
	l.op.Lock()
	defer l.op.Unlock()

	active, waiting := l.versions()
	if active != nil && active.Version() == version {
		return cache.StateActive, nil
	}
	if waiting != nil && waiting.Version() == version {
		return cache.StateWaiting, nil
	}

	m := cache.NewManager(l.store, version, l.manifest)
	log.Printf("📦 Installing cache %s (%d assets)", version, len(l.manifest))
	if err := m.Install(ctx, l.fetcher); err != nil {
		log.Printf("❌ Install of %s discarded: %v", version, err)
		// Sessions may have closed while the install ran
		if _, aerr := l.activateIdle(ctx); aerr != nil {
			log.Printf("❌ Activation after failed install: %v", aerr)
		}
		return m.State(), err
	}

	l.mu.Lock()
	if l.waiting != nil {
		// An older waiting version never activated; its precache is dropped
		// by the next activation sweep.
		l.waiting.Supersede()
	}
	l.waiting = m
	l.mu.Unlock()

	if active == nil || l.openSessions() == 0 || m.SkipRequested() {
		if err := l.activate(ctx); err != nil {
			return m.State(), err
		}
		return cache.StateActive, nil
	}

	log.Printf("⏳ Cache %s waiting for %d session(s) to close", version, l.openSessions())
	return cache.StateWaiting, nil
}

// SkipWaiting activates the waiting version immediately. Without a waiting
// version it is a no-op.
func (l *Lifecycle) SkipWaiting(ctx context.Context) error {
	l.op.Lock()
	defer l.op.Unlock()

	_, waiting := l.versions()
	if waiting == nil {
		return nil
	}
	waiting.SkipWaiting()
	return l.activate(ctx)
}

// ActivateWaiting activates the waiting version once no session is left.
// It reports whether an activation happened. While another transition runs
// it returns at once; a running install re-checks the sessions when it
// finishes.
func (l *Lifecycle) ActivateWaiting(ctx context.Context) (bool, error) {
	if !l.op.TryLock() {
		return false, nil
	}
	defer l.op.Unlock()
	return l.activateIdle(ctx)
}

// activateIdle must be called with op held
func (l *Lifecycle) activateIdle(ctx context.Context) (bool, error) {
	active, waiting := l.versions()
	if waiting == nil || (active != nil && l.openSessions() > 0) {
		return false, nil
	}
	if err := l.activate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// activate must be called with op held
func (l *Lifecycle) activate(ctx context.Context) error {
	_, next := l.versions()
	if err := next.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", next.Version(), err)
	}

	l.mu.Lock()
	if l.active != nil {
		l.active.Supersede()
	}
	l.active = next
	l.waiting = nil
	claim := l.claim
	l.mu.Unlock()

	log.Printf("✅ Cache %s active", next.Version())
	claim(next.Version())
	return nil
}

func (l *Lifecycle) current() *cache.Manager {
	active, _ := l.versions()
	return active
}

// Active returns the active version, or "" before the first activation
func (l *Lifecycle) Active() string {
	if m := l.current(); m != nil {
		return m.Version()
	}
	return ""
}

// Match looks key up in the active version
func (l *Lifecycle) Match(ctx context.Context, key string) (*model.CacheEntry, error) {
	m := l.current()
	if m == nil {
		return nil, cache.ErrMiss
	}
	return m.Match(ctx, key)
}

// Put stores e in the active version's dynamic partition
func (l *Lifecycle) Put(ctx context.Context, e model.CacheEntry) error {
	m := l.current()
	if m == nil {
		return ErrNoActiveVersion
	}
	return m.Put(ctx, e)
}

// Sweeper returns the lifecycle for the janitor, or nil before the first
// activation
func (l *Lifecycle) Sweeper() cache.Sweeper {
	if l.current() == nil {
		return nil
	}
	return l
}

// Sweep drops every partition that belongs neither to the active version
// nor to the version waiting to activate
func (l *Lifecycle) Sweep(ctx context.Context) ([]string, error) {
	l.op.Lock()
	defer l.op.Unlock()

	active, waiting := l.versions()
	if active == nil {
		return nil, nil
	}
	keep := []string{active.PrecacheName(), active.DynamicName()}
	if waiting != nil {
		keep = append(keep, waiting.PrecacheName(), waiting.DynamicName())
	}
	return cache.SweepExcept(ctx, l.store, keep...)
}

// Status describes the deployed versions
type Status struct {
	Active     string                 `json:"active,omitempty"`
	Waiting    string                 `json:"waiting,omitempty"`
	State      string                 `json:"state"`
	Partitions []model.CachePartition `json:"partitions"`
	Stored     []string               `json:"stored"`
}

// Status reports the versions and the partitions present in storage
func (l *Lifecycle) Status(ctx context.Context) (Status, error) {
	active, waiting := l.versions()

	st := Status{State: "idle", Partitions: []model.CachePartition{}}
	if active != nil {
		st.Active = active.Version()
		st.State = active.State().String()
		st.Partitions = active.Partitions()
	}
	if waiting != nil {
		st.Waiting = waiting.Version()
	}

	stored, err := l.store.Partitions(ctx)
	if err != nil {
		return st, fmt.Errorf("list partitions: %w", err)
	}
	st.Stored = stored
	return st, nil
}
