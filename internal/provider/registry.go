// Package provider holds the ordered extraction strategies for each
// supported platform and builds the default set from configuration.
package provider

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"postfetch/internal/config"
	"postfetch/internal/extract"
	"postfetch/internal/httputil"
	"postfetch/internal/logging"
	"postfetch/internal/media"
)

// Entry is one strategy in a platform's fallback order together with the
// time it is allowed before the pipeline abandons it.
type Entry struct {
	Strategy extract.Strategy
	Timeout  time.Duration
}

// Registry maps each platform to its strategies in the order they are tried.
type Registry struct {
	mu      sync.RWMutex
	entries map[media.Platform][]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[media.Platform][]Entry)}
}

// Register appends s to the end of p's order.
func (r *Registry) Register(p media.Platform, s extract.Strategy, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p] = append(r.entries[p], Entry{Strategy: s, Timeout: timeout})
}

// Strategies returns a copy of p's order. Unknown platforms yield nil.
func (r *Registry) Strategies(p media.Platform) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.entries[p]
	if len(src) == 0 {
		return nil
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Platforms returns the platforms that have at least one strategy, in
// classification order.
func (r *Registry) Platforms() []media.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []media.Platform
	for _, p := range media.Platforms {
		if len(r.entries[p]) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Describe renders p's order as "api(20s) -> browser(50s) -> http(15s)".
func (r *Registry) Describe(p media.Platform) string {
	entries := r.Strategies(p)
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s(%s)", e.Strategy.Name(), e.Timeout)
	}
	return strings.Join(parts, " -> ")
}

// NewDefault builds the standard strategy orders:
//
//	instagram: api, browser, instagram-embed, http (crawler identity)
//	facebook:  api, browser, http (crawler identity)
//	linkedin:  browser, http (search-bot identity, readability caption)
func NewDefault(cfg *config.Config, renderer extract.Renderer, log *zap.Logger) *Registry {
	log = logging.OrNop(log)
	t := cfg.Timeouts
	key := cfg.API.RapidAPIKey

	httpClient := httputil.NewClient(httputil.WithTimeout(t.HTTP.Duration), httputil.WithMaxRedirects(5))
	apiClient := httputil.NewClient(httputil.WithTimeout(t.API.Duration))

	r := NewRegistry()

	r.Register(media.Instagram, extract.NewInstagramAPI(key, extract.WithAPIClient(apiClient)), t.API.Duration)
	r.Register(media.Instagram, extract.NewBrowser(renderer, extract.DismissSelectors[media.Instagram], log), t.Browser.Duration)
	r.Register(media.Instagram, extract.NewHTTP("instagram-embed",
		extract.WithHTTPClient(httpClient),
		extract.WithRewrite(extract.InstagramEmbedURL),
		extract.WithHTTPLogger(log),
	), t.HTTP.Duration)
	r.Register(media.Instagram, extract.NewHTTP("http",
		extract.WithHTTPClient(httpClient),
		extract.WithUserAgent(httputil.CrawlerUserAgent),
		extract.WithHTTPLogger(log),
	), t.HTTP.Duration)

	r.Register(media.Facebook, extract.NewFacebookAPI(key, extract.WithAPIClient(apiClient)), t.API.Duration)
	r.Register(media.Facebook, extract.NewBrowser(renderer, extract.DismissSelectors[media.Facebook], log), t.Browser.Duration)
	r.Register(media.Facebook, extract.NewHTTP("http",
		extract.WithHTTPClient(httpClient),
		extract.WithUserAgent(httputil.CrawlerUserAgent),
		extract.WithHTTPLogger(log),
	), t.HTTP.Duration)

	r.Register(media.LinkedIn, extract.NewBrowser(renderer, extract.DismissSelectors[media.LinkedIn], log), t.Browser.Duration)
	r.Register(media.LinkedIn, extract.NewHTTP("http",
		extract.WithHTTPClient(httpClient),
		extract.WithUserAgent(httputil.SearchBotUserAgent),
		extract.WithReadabilityCaption(),
		extract.WithHTTPLogger(log),
	), t.HTTP.Duration)

	return r
}
