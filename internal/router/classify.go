// Package router decides, per outgoing request, whether the agent serves
// it from cache, fetches it fresh, or falls back to a degraded response.
package router

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
)

// Kind is the resource-kind hint of a request.
type Kind string

const (
	KindUnknown  Kind = ""
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindScript   Kind = "script"
	KindStyle    Kind = "style"
	KindFont     Kind = "font"
)

// Strategy is how a request is served.
type Strategy int

const (
	Bypass Strategy = iota
	NetworkFirst
	CacheFirst
)

func (s Strategy) String() string {
	switch s {
	case Bypass:
		return "bypass"
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	}
	return "unknown"
}

// Route is the result of classifying one request.
type Route struct {
	Strategy   Strategy
	Kind       Kind
	Navigation bool
	// Fallback is the offline page served when a network-first
	// navigation misses both network and cache.
	Fallback string
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true,
}

type kindKey struct{}

// WithKind attaches an explicit resource-kind hint to ctx. It takes
// precedence over the Sec-Fetch-Dest header.
func WithKind(ctx context.Context, k Kind) context.Context {
	return context.WithValue(ctx, kindKey{}, k)
}

// KindOf returns the resource-kind hint of req.
func KindOf(req *http.Request) Kind {
	if k, ok := req.Context().Value(kindKey{}).(Kind); ok {
		return k
	}
	switch dest := req.Header.Get("Sec-Fetch-Dest"); dest {
	case "document", "iframe":
		return KindDocument
	case "image":
		return KindImage
	case "script", "worker", "sharedworker":
		return KindScript
	case "style":
		return KindStyle
	case "font":
		return KindFont
	}
	return KindUnknown
}

// IsNavigation reports whether req loads a document into a session.
func IsNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return KindOf(req) == KindDocument
}

// Classifier evaluates the classification table top-down.
type Classifier struct {
	APIPrefix   string
	BypassHosts []string
	OfflinePage string
}

func (c Classifier) Classify(req *http.Request) Route {
	kind := KindOf(req)
	nav := IsNavigation(req)
	route := Route{Kind: kind, Navigation: nav}

	switch {
	case req.Method != http.MethodGet:
		route.Strategy = Bypass
	case c.bypassHost(req.URL.Hostname()):
		route.Strategy = Bypass
	case c.APIPrefix != "" && strings.HasPrefix(req.URL.Path, c.APIPrefix):
		route.Strategy = NetworkFirst
		route.Fallback = c.OfflinePage
	case kind == KindImage || imageExts[strings.ToLower(path.Ext(req.URL.Path))]:
		route.Strategy = CacheFirst
		route.Kind = KindImage
	case nav:
		route.Strategy = NetworkFirst
		route.Fallback = c.OfflinePage
	case kind == KindScript || kind == KindStyle || kind == KindFont:
		route.Strategy = CacheFirst
	default:
		route.Strategy = CacheFirst
	}
	return route
}

func (c Classifier) bypassHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range c.BypassHosts {
		h = strings.ToLower(strings.TrimPrefix(h, "."))
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Director rewrites requests for the reverse proxy. Requests addressed to a
// bypass host keep their own host so the router still sees and passes them
// through; everything else goes to origin.
func (c Classifier) Director(origin *url.URL) func(*http.Request) {
	toOrigin := httputil.NewSingleHostReverseProxy(origin).Director
	return func(req *http.Request) {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		if c.bypassHost((&url.URL{Host: host}).Hostname()) {
			if req.URL.Scheme == "" {
				req.URL.Scheme = "https"
			}
			req.URL.Host = host
			return
		}
		toOrigin(req)
		req.Host = origin.Host
	}
}
