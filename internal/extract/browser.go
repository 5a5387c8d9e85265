package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"postfetch/internal/httputil"
	"postfetch/internal/logging"
	"postfetch/internal/media"
)

// Browser timing defaults.
const (
	DefaultPageLoadTimeout = 30 * time.Second
	DefaultSettleDelay     = 5 * time.Second
	DefaultMaxSessions     = 3
)

// DismissSelectors are consent dialog buttons clicked before extraction.
var DismissSelectors = map[media.Platform][]string{
	media.Instagram: {`button._a9--._a9_1`},
	media.Facebook:  {`[data-testid="cookie-policy-dialog-accept-button"]`, `[aria-label="Allow all cookies"]`},
	media.LinkedIn:  {`button[action-type="ACCEPT"]`},
}

// Renderer loads a page in a browser and returns the rendered markup and
// the URL the page ended up at.
type Renderer interface {
	Render(ctx context.Context, pageURL string, dismiss []string) (html, finalURL string, err error)
}

// Sessions runs isolated headless Chrome sessions, a bounded number at a time.
// Callers beyond the limit wait for a slot or for their context to end.
type Sessions struct {
	sem       *semaphore.Weighted
	allocOpts []chromedp.ExecAllocatorOption
	pageLoad  time.Duration
	settle    time.Duration
	log       *zap.Logger
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithExecPath uses a specific Chrome binary.
func WithExecPath(path string) SessionOption {
	return func(s *Sessions) {
		if path != "" {
			s.allocOpts = append(s.allocOpts, chromedp.ExecPath(path))
		}
	}
}

// WithHeadless toggles headless mode.
func WithHeadless(headless bool) SessionOption {
	return func(s *Sessions) { s.allocOpts = append(s.allocOpts, chromedp.Flag("headless", headless)) }
}

// WithPageLoadTimeout bounds navigation.
func WithPageLoadTimeout(d time.Duration) SessionOption {
	return func(s *Sessions) { s.pageLoad = d }
}

// WithSettleDelay sets how long dynamic content gets to appear after load.
func WithSettleDelay(d time.Duration) SessionOption {
	return func(s *Sessions) { s.settle = d }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Sessions) { s.log = logging.OrNop(l).Named("browser") }
}

// NewSessions returns a session pool allowing limit concurrent browsers.
func NewSessions(limit int, opts ...SessionOption) *Sessions {
	if limit <= 0 {
		limit = DefaultMaxSessions
	}
	s := &Sessions{
		sem:      semaphore.NewWeighted(int64(limit)),
		pageLoad: DefaultPageLoadTimeout,
		settle:   DefaultSettleDelay,
		log:      zap.NewNop(),
	}
	s.allocOpts = append(s.allocOpts, chromedp.DefaultExecAllocatorOptions[:]...)
	s.allocOpts = append(s.allocOpts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 768),
		chromedp.UserAgent(httputil.BrowserUserAgent),
	)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With acquires a slot and a fresh browser, runs fn with the browser
// context, and tears the browser down and releases the slot when fn returns,
// fails or ctx ends.
func (s *Sessions) With(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for browser session: %w", err)
	}
	defer s.sem.Release(1)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	return fn(browserCtx)
}

// Render implements Renderer.
func (s *Sessions) Render(ctx context.Context, pageURL string, dismiss []string) (string, string, error) {
	var html, finalURL string
	err := s.With(ctx, func(bctx context.Context) error {
		// Start the browser on the session context so the navigation
		// timeout below only cancels the tab's navigation.
		if err := chromedp.Run(bctx); err != nil {
			return fmt.Errorf("starting browser: %w", err)
		}

		navCtx, cancel := context.WithTimeout(bctx, s.pageLoad)
		defer cancel()
		if err := chromedp.Run(navCtx, chromedp.Navigate(pageURL)); err != nil {
			return fmt.Errorf("loading page: %w", err)
		}

		actions := make([]chromedp.Action, 0, len(dismiss)+3)
		for _, sel := range dismiss {
			var clicked bool
			actions = append(actions, chromedp.Evaluate(clickScript(sel), &clicked))
		}
		actions = append(actions,
			chromedp.Sleep(s.settle),
			chromedp.Location(&finalURL),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		return chromedp.Run(bctx, actions...)
	})
	if err != nil {
		return "", "", err
	}
	s.log.Debug("page rendered", zap.String("url", finalURL), zap.Int("bytes", len(html)))
	return html, finalURL, nil
}

func clickScript(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (el) { el.click(); return true; } return false; })()`, selector)
}

// BrowserStrategy renders the post in a real browser so client-side
// content is present, then runs the extraction cascade.
type BrowserStrategy struct {
	renderer Renderer
	dismiss  []string
	log      *zap.Logger
}

// NewBrowser returns an automation strategy using r.
func NewBrowser(r Renderer, dismiss []string, log *zap.Logger) *BrowserStrategy {
	return &BrowserStrategy{renderer: r, dismiss: dismiss, log: logging.OrNop(log)}
}

func (b *BrowserStrategy) Name() string { return "browser" }

func (b *BrowserStrategy) Attempt(ctx context.Context, postURL string) (*media.Descriptor, error) {
	html, finalURL, err := b.renderer.Render(ctx, postURL, b.dismiss)
	if err != nil {
		return nil, err
	}
	if finalURL == "" {
		finalURL = postURL
	}

	page, err := NewPage([]byte(html), finalURL)
	if err != nil {
		return nil, err
	}

	d, step, err := fromPage(b.Name(), page)
	if d != nil {
		b.log.Debug("media found", zap.String("strategy", b.Name()), zap.String("step", step),
			zap.Stringer("kind", d.Kind))
	}
	return d, err
}
