package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/quocanhngo/eventspot/internal/model"
)

// State is the lifecycle phase of one cache version.
type State int

const (
	StateInstalling State = iota
	StateWaiting
	StateActivating
	StateActive
	StateSuperseded
	// StateDiscarded marks a version whose install failed. It never activates.
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	case StateDiscarded:
		return "discarded"
	}
	return "unknown"
}

// ErrState is returned when a lifecycle step is attempted out of order.
var ErrState = errors.New("invalid lifecycle state")

// Fetcher retrieves one manifest asset for precaching.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (model.CacheEntry, error)
}

// Key is the cache key of a request: its absolute URL without fragment.
func Key(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// HTTPFetcher fetches manifest assets from the app origin.
type HTTPFetcher struct {
	Client *http.Client
	Origin string
}

func (f HTTPFetcher) Fetch(ctx context.Context, path string) (model.CacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(f.Origin, "/")+path, nil)
	if err != nil {
		return model.CacheEntry{}, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return model.CacheEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.CacheEntry{}, fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CacheEntry{}, fmt.Errorf("read %s: %w", path, err)
	}
	return model.CacheEntry{
		RequestKey: Key(req),
		Status:     resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// Manager drives one deployed version through install and activation and
// serves lookups from its two partitions.
type Manager struct {
	store    Store
	version  string
	manifest []string

	mu    sync.RWMutex
	state State
	skip  bool
}

func NewManager(store Store, version string, manifest []string) *Manager {
	return &Manager{
		store:    store,
		version:  version,
		manifest: manifest,
		state:    StateInstalling,
	}
}

func (m *Manager) Version() string { return m.version }

// PrecacheName is the name of this version's precache partition.
func (m *Manager) PrecacheName() string {
	return model.PartitionName(model.PartitionPrecache, m.version)
}

// DynamicName is the name of this version's runtime partition.
func (m *Manager) DynamicName() string {
	return model.PartitionName(model.PartitionDynamic, m.version)
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Install fetches the whole manifest and only then writes the precache
// partition. Any asset failure discards this version and leaves storage
// untouched.
func (m *Manager) Install(ctx context.Context, f Fetcher) error {
	if st := m.State(); st != StateInstalling {
		return fmt.Errorf("%w: install from %s", ErrState, st)
	}

	entries := make([]model.CacheEntry, 0, len(m.manifest))
	for _, path := range m.manifest {
		e, err := f.Fetch(ctx, path)
		if err != nil {
			m.setState(StateDiscarded)
			return fmt.Errorf("%w: %s: %v", ErrPrecache, path, err)
		}
		entries = append(entries, e)
	}

	if err := m.store.Put(ctx, m.PrecacheName(), entries...); err != nil {
		m.setState(StateDiscarded)
		_ = m.store.Drop(ctx, m.PrecacheName())
		return fmt.Errorf("%w: write %s: %v", ErrPrecache, m.PrecacheName(), err)
	}

	m.setState(StateWaiting)
	return nil
}

// SkipWaiting marks this version to activate as soon as it is installed.
func (m *Manager) SkipWaiting() {
	m.mu.Lock()
	m.skip = true
	m.mu.Unlock()
}

func (m *Manager) SkipRequested() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skip
}

// Activate removes every partition of other versions and makes this one active.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateWaiting {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: activate from %s", ErrState, st)
	}
	m.state = StateActivating
	m.mu.Unlock()

	if _, err := m.Sweep(ctx); err != nil {
		m.setState(StateWaiting)
		return err
	}
	m.setState(StateActive)
	return nil
}

// Supersede retires an active version after a newer one took over.
func (m *Manager) Supersede() {
	m.setState(StateSuperseded)
}

// Sweep drops every partition that does not belong to this version and
// returns the dropped names.
func (m *Manager) Sweep(ctx context.Context) ([]string, error) {
	return SweepExcept(ctx, m.store, m.PrecacheName(), m.DynamicName())
}

// SweepExcept drops every partition of store whose name is not in keep and
// returns the dropped names.
func SweepExcept(ctx context.Context, store Store, keep ...string) ([]string, error) {
	names, err := store.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}

	var dropped []string
	var errs []error
	for _, name := range names {
		if kept[name] {
			continue
		}
		if err := store.Drop(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("drop %s: %w", name, err))
			continue
		}
		dropped = append(dropped, name)
	}
	return dropped, errors.Join(errs...)
}

// Match looks the key up in the precache, then in the dynamic partition.
func (m *Manager) Match(ctx context.Context, key string) (*model.CacheEntry, error) {
	e, err := m.store.Get(ctx, m.PrecacheName(), key)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrMiss) {
		return nil, err
	}
	return m.store.Get(ctx, m.DynamicName(), key)
}

// Put stores a runtime response in the dynamic partition.
func (m *Manager) Put(ctx context.Context, e model.CacheEntry) error {
	return m.store.Put(ctx, m.DynamicName(), e)
}

// Partitions describes this version's partitions.
func (m *Manager) Partitions() []model.CachePartition {
	return []model.CachePartition{
		{Name: m.PrecacheName(), VersionTag: m.version, Kind: model.PartitionPrecache},
		{Name: m.DynamicName(), VersionTag: m.version, Kind: model.PartitionDynamic},
	}
}
