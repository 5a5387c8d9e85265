package resolve

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postfetch/internal/extract"
	"postfetch/internal/failure"
	"postfetch/internal/media"
	"postfetch/internal/provider"
)

// stubStrategy returns a fixed result, optionally after blocking.
type stubStrategy struct {
	name  string
	d     *media.Descriptor
	err   error
	block chan struct{} // When set, Attempt waits on it and ignores ctx
	calls atomic.Int32
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, postURL string) (*media.Descriptor, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.d, s.err
}

var instagramPost = &media.ClassifiedURL{
	Platform: media.Instagram,
	URL:      "https://www.instagram.com/p/ABC123/",
}

func registryOf(timeout time.Duration, strategies ...extract.Strategy) *provider.Registry {
	r := provider.NewRegistry()
	for _, s := range strategies {
		r.Register(media.Instagram, s, timeout)
	}
	return r
}

func TestPipelineFailuresThenSuccess(t *testing.T) {
	found := &media.Descriptor{SourceURL: "https://cdn.example.com/v.mp4", Kind: media.Video}
	tests := []struct {
		name     string
		failures int
	}{
		{"first succeeds", 0},
		{"one failure", 1},
		{"three failures", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var strategies []extract.Strategy
			for i := 0; i < tt.failures; i++ {
				if i%2 == 0 {
					strategies = append(strategies, &stubStrategy{name: "failing", err: errors.New("boom")})
				} else {
					strategies = append(strategies, &stubStrategy{name: "empty"})
				}
			}
			winner := &stubStrategy{name: "winner", d: found}
			after := &stubStrategy{name: "after", d: found}
			strategies = append(strategies, winner, after)

			d, name, attempts, err := NewPipeline(registryOf(time.Second, strategies...), nil).
				Run(context.Background(), instagramPost)
			require.NoError(t, err)
			assert.Equal(t, found, d)
			assert.Equal(t, "winner", name)
			assert.Len(t, attempts, tt.failures+1)
			assert.Equal(t, int32(0), after.calls.Load(), "strategies after a success must not run")
		})
	}
}

func TestPipelineAllFail(t *testing.T) {
	a := &stubStrategy{name: "a", err: failure.New(failure.UpstreamBlocked, "a", nil)}
	b := &stubStrategy{name: "b"}
	c := &stubStrategy{name: "c", err: errors.New("parse error")}

	_, _, attempts, err := NewPipeline(registryOf(time.Second, a, b, c), nil).
		Run(context.Background(), instagramPost)
	require.Error(t, err)
	assert.Equal(t, failure.NoMediaFound, failure.CodeOf(err))
	require.Len(t, attempts, 3)
	assert.Equal(t, failure.UpstreamBlocked, attempts[0].Code)
	assert.Nil(t, attempts[1].Err)
	assert.Equal(t, failure.NetworkError, attempts[2].Code)
	assert.Contains(t, err.Error(), "parse error")
}

func TestPipelineNoStrategies(t *testing.T) {
	_, _, attempts, err := NewPipeline(provider.NewRegistry(), nil).Run(context.Background(), instagramPost)
	assert.Equal(t, failure.NoMediaFound, failure.CodeOf(err))
	assert.Empty(t, attempts)
}

func TestPipelineTimeoutAbandonsStrategy(t *testing.T) {
	hung := &stubStrategy{name: "hung", block: make(chan struct{})}
	defer close(hung.block)

	_, _, attempts, err := NewPipeline(registryOf(30*time.Millisecond, hung), nil).
		Run(context.Background(), instagramPost)
	assert.Equal(t, failure.NoMediaFound, failure.CodeOf(err))
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Skipped)
	assert.Equal(t, failure.NetworkTimeout, attempts[0].Code)
	assert.Less(t, attempts[0].Elapsed, time.Second)
}

func TestPipelineTimeoutThenFallback(t *testing.T) {
	hung := &stubStrategy{name: "hung", block: make(chan struct{})}
	defer close(hung.block)
	next := &stubStrategy{name: "next", d: &media.Descriptor{SourceURL: "https://cdn.example.com/i.jpg"}}

	d, name, attempts, err := NewPipeline(registryOf(30*time.Millisecond, hung, next), nil).
		Run(context.Background(), instagramPost)
	require.NoError(t, err)
	assert.Equal(t, "next", name)
	assert.NotNil(t, d)
	require.Len(t, attempts, 2)
	assert.Equal(t, failure.NetworkTimeout, attempts[0].Code)
}

func TestPipelineSkippedNotCounted(t *testing.T) {
	skipped := &stubStrategy{name: "api", err: extract.ErrSkipped}
	empty := &stubStrategy{name: "http"}

	_, _, attempts, err := NewPipeline(registryOf(time.Second, skipped, empty), nil).
		Run(context.Background(), instagramPost)
	assert.Equal(t, failure.NoMediaFound, failure.CodeOf(err))
	require.Len(t, attempts, 2)
	assert.True(t, attempts[0].Skipped)
	assert.Nil(t, attempts[0].Err)
	assert.False(t, attempts[1].Skipped)
	assert.NotContains(t, err.Error(), "api")
}

func TestPipelineEmptySourceIsNull(t *testing.T) {
	blank := &stubStrategy{name: "blank", d: &media.Descriptor{}}

	_, _, attempts, err := NewPipeline(registryOf(time.Second, blank), nil).
		Run(context.Background(), instagramPost)
	assert.Equal(t, failure.NoMediaFound, failure.CodeOf(err))
	assert.Len(t, attempts, 1)
}

func TestPipelineCancelledContext(t *testing.T) {
	s := &stubStrategy{name: "never"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := NewPipeline(registryOf(time.Second, s), nil).Run(ctx, instagramPost)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), s.calls.Load())
}
