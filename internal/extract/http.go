package extract

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"postfetch/internal/classify"
	"postfetch/internal/httputil"
	"postfetch/internal/logging"
	"postfetch/internal/media"
)

// DefaultHTTPTimeout bounds a single heuristic page request.
const DefaultHTTPTimeout = 15 * time.Second

const maxReadabilityCaption = 1000

// HTTPStrategy fetches the post page with a plain GET and runs the
// extraction cascade over the static markup.
type HTTPStrategy struct {
	name        string
	client      *http.Client
	userAgent   string
	rewrite     func(string) (string, error)
	readability bool
	log         *zap.Logger
}

// HTTPOption configures an HTTPStrategy.
type HTTPOption func(*HTTPStrategy)

// WithUserAgent sets the identification header sent with the request.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPStrategy) { s.userAgent = ua }
}

// WithRewrite maps the post URL to the page actually requested. A rewrite
// returning ErrSkipped skips the strategy for that URL.
func WithRewrite(fn func(string) (string, error)) HTTPOption {
	return func(s *HTTPStrategy) { s.rewrite = fn }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStrategy) { s.client = c }
}

// WithReadabilityCaption fills a missing caption from the page's main text.
func WithReadabilityCaption() HTTPOption {
	return func(s *HTTPStrategy) { s.readability = true }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(s *HTTPStrategy) { s.log = logging.OrNop(l) }
}

// NewHTTP returns a heuristic strategy identified by name.
func NewHTTP(name string, opts ...HTTPOption) *HTTPStrategy {
	s := &HTTPStrategy{
		name:      name,
		client:    httputil.NewClient(httputil.WithTimeout(DefaultHTTPTimeout), httputil.WithMaxRedirects(5)),
		userAgent: httputil.BrowserUserAgent,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPStrategy) Name() string { return s.name }

func (s *HTTPStrategy) Attempt(ctx context.Context, postURL string) (*media.Descriptor, error) {
	target := postURL
	if s.rewrite != nil {
		t, err := s.rewrite(postURL)
		if err != nil {
			return nil, err
		}
		target = t
	}

	body, err := httputil.GetPage(ctx, s.client, target, s.userAgent)
	if err != nil {
		return nil, err
	}

	page, err := NewPage(body, target)
	if err != nil {
		return nil, err
	}

	d, step, err := fromPage(s.name, page)
	if d == nil {
		return nil, err
	}
	if d.Caption == "" && s.readability {
		d.Caption = readableText(body, page.Base)
	}

	s.log.Debug("media found", zap.String("strategy", s.name), zap.String("step", step),
		zap.Stringer("kind", d.Kind))
	return d, nil
}

func readableText(body []byte, base *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if utf8.RuneCountInString(text) <= maxReadabilityCaption {
		return text
	}
	return string([]rune(text)[:maxReadabilityCaption])
}

// InstagramEmbedURL rewrites an Instagram post URL to its embed page, which
// is served without a login wall. Stories have no embed page.
func InstagramEmbedURL(postURL string) (string, error) {
	if strings.Contains(postURL, "/stories/") {
		return "", ErrSkipped
	}
	id := classify.PostID(media.Instagram, postURL)
	if id == "" {
		return "", ErrSkipped
	}
	return "https://www.instagram.com/p/" + id + "/embed/", nil
}
