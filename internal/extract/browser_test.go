package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postfetch/internal/failure"
	"postfetch/internal/media"
)

type fakeRenderer struct {
	html     string
	finalURL string
	err      error
	dismiss  []string
}

func (f *fakeRenderer) Render(ctx context.Context, pageURL string, dismiss []string) (string, string, error) {
	f.dismiss = dismiss
	return f.html, f.finalURL, f.err
}

func TestBrowserStrategy(t *testing.T) {
	r := &fakeRenderer{html: `<html><body><div role="presentation"><video src="https://video.fbcdn.net/v.mp4"></video></div></body></html>`}
	b := NewBrowser(r, DismissSelectors[media.Facebook], nil)
	assert.Equal(t, "browser", b.Name())

	d, err := b.Attempt(context.Background(), "https://www.facebook.com/reel/1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "https://video.fbcdn.net/v.mp4", d.SourceURL)
	assert.Equal(t, media.Video, d.Kind)
	assert.Equal(t, DismissSelectors[media.Facebook], r.dismiss)
}

func TestBrowserStrategyFailures(t *testing.T) {
	boom := errors.New("chrome crashed")
	_, err := NewBrowser(&fakeRenderer{err: boom}, nil, nil).Attempt(context.Background(), "https://x.example/")
	assert.ErrorIs(t, err, boom)

	d, err := NewBrowser(&fakeRenderer{html: `<title>Sign Up | LinkedIn</title>`}, nil, nil).
		Attempt(context.Background(), "https://www.linkedin.com/posts/x")
	assert.Nil(t, d)
	assert.Equal(t, failure.UpstreamBlocked, failure.CodeOf(err))
}

func TestSessionsBoundConcurrency(t *testing.T) {
	s := NewSessions(2)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.With(context.Background(), func(ctx context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSessionsReleaseOnError(t *testing.T) {
	s := NewSessions(1)
	boom := errors.New("boom")

	assert.ErrorIs(t, s.With(context.Background(), func(context.Context) error { return boom }), boom)

	// The slot must be free again.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.With(ctx, func(context.Context) error { return nil }))
}

func TestSessionsQueueHonoursContext(t *testing.T) {
	s := NewSessions(1)
	hold := make(chan struct{})
	started := make(chan struct{})
	go s.With(context.Background(), func(context.Context) error {
		close(started)
		<-hold
		return nil
	})
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.With(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
