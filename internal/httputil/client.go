// Package httputil provides a hardened HTTP client, request helpers that
// present a browser or crawler identity, and filename sanitization.
package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"postfetch/internal/failure"
)

// Identification headers sent by the scraping strategies.
const (
	BrowserUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	CrawlerUserAgent   = "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)"
	SearchBotUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// MaxPageSize caps how much of an HTML or JSON response is read into memory.
const MaxPageSize = 5 * 1024 * 1024

// ClientOption customises a client built by NewClient.
type ClientOption func(*http.Client)

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *http.Client) { c.Timeout = d }
}

// WithMaxRedirects stops following redirects after n hops.
func WithMaxRedirects(n int) ClientOption {
	return func(c *http.Client) {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) > n {
				return fmt.Errorf("stopped after %d redirects", n)
			}
			return nil
		}
	}
}

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient(opts ...ClientOption) *http.Client {
	c := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			DisableCompression:  false,
			MaxIdleConnsPerHost: 5,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest builds a GET request carrying browser-like headers. userAgent
// falls back to BrowserUserAgent when empty.
func NewRequest(ctx context.Context, rawURL, userAgent string) (*http.Request, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if userAgent == "" {
		userAgent = BrowserUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	return req, nil
}

// GetPage fetches an HTML page and returns at most MaxPageSize bytes of it.
// Non-200 responses are reported with the matching failure code.
func GetPage(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := NewRequest(ctx, rawURL, userAgent)
	if err != nil {
		return nil, err
	}
	return do(client, req)
}

// GetJSON performs a GET with a JSON accept header plus any extra headers.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, header http.Header) ([]byte, error) {
	req, err := NewRequest(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, failure.StatusError("get", resp.StatusCode, req.URL.String())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return body, nil
}
