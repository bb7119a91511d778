package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/quocanhngo/eventspot/internal/cache"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/task"
)

// CacheHeader is set on every response the router served from cache.
const CacheHeader = "X-Agent-Cache"

// PlaceholderSVG is the degraded image returned when an image is neither
// cached nor reachable.
var PlaceholderSVG = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200">` +
	`<rect width="200" height="200" fill="#e5e7eb"/>` +
	`<path d="M60 130l30-35 25 28 15-18 25 25H60z" fill="#9ca3af"/>` +
	`<circle cx="125" cy="75" r="12" fill="#9ca3af"/></svg>`)

// CacheSet is the active precache ∪ dynamic view of the current version.
type CacheSet interface {
	Match(ctx context.Context, key string) (*model.CacheEntry, error)
	Put(ctx context.Context, e model.CacheEntry) error
}

// Router is an http.RoundTripper that applies the caching strategy chosen
// by its Classifier before handing requests to the network transport.
type Router struct {
	classifier Classifier
	cache      CacheSet
	next       http.RoundTripper
	tasks      *task.Runner
}

func New(classifier Classifier, cacheSet CacheSet, next http.RoundTripper, tasks *task.Runner) *Router {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Router{
		classifier: classifier,
		cache:      cacheSet,
		next:       next,
		tasks:      tasks,
	}
}

// RoundTrip serves req according to its route.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	route := r.classifier.Classify(req)
	switch route.Strategy {
	case CacheFirst:
		return r.cacheFirst(req, route)
	case NetworkFirst:
		return r.networkFirst(req, route)
	default:
		return r.next.RoundTrip(req)
	}
}

func (r *Router) cacheFirst(req *http.Request, route Route) (*http.Response, error) {
	if e := r.match(req.Context(), cache.Key(req)); e != nil {
		return fromEntry(req, e), nil
	}

	resp, err := r.fetch(req)
	if err == nil {
		return resp, nil
	}
	if route.Kind == KindImage {
		return placeholder(req), nil
	}
	return nil, err
}

func (r *Router) networkFirst(req *http.Request, route Route) (*http.Response, error) {
	resp, err := r.fetch(req)
	if err == nil {
		return resp, nil
	}

	if e := r.match(req.Context(), cache.Key(req)); e != nil {
		return fromEntry(req, e), nil
	}
	if route.Navigation && route.Fallback != "" {
		if e := r.match(req.Context(), fallbackKey(req, route.Fallback)); e != nil {
			return fromEntry(req, e), nil
		}
	}
	return nil, err
}

// fetch forwards req to the network. A successful GET is buffered so the
// caller gets the live body while a copy is written to the dynamic
// partition in the background.
func (r *Router) fetch(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if req.Method != http.MethodGet || resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	entry := model.CacheEntry{
		RequestKey: cache.Key(req),
		Status:     resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
	r.tasks.Go("cache put "+entry.RequestKey, func(ctx context.Context) error {
		return r.cache.Put(ctx, entry)
	})
	return resp, nil
}

// match returns the cached entry for key, or nil. Read failures are logged
// and treated as a miss.
func (r *Router) match(ctx context.Context, key string) *model.CacheEntry {
	e, err := r.cache.Match(ctx, key)
	if err == nil {
		return e
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Printf("⚠️  cache read %s: %v", key, err)
	}
	return nil
}

func fallbackKey(req *http.Request, page string) string {
	u := *req.URL
	u.Path = page
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func fromEntry(req *http.Request, e *model.CacheEntry) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(CacheHeader, "hit")
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return newResponse(req, e.Status, header, e.Body)
}

func placeholder(req *http.Request) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "image/svg+xml")
	header.Set(CacheHeader, "placeholder")
	return newResponse(req, http.StatusOK, header, PlaceholderSVG)
}

func newResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
