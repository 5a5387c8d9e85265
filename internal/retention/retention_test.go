package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"postfetch/internal/schedule"
	"postfetch/internal/store"
)

func writeAged(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweep(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	old := writeAged(t, s.Dir(), "instagram_1_1.mp4", now.Add(-2*time.Hour))
	fresh := writeAged(t, s.Dir(), "facebook_1_2.jpg", now.Add(-10*time.Minute))

	m := New(s, time.Hour, WithClock(func() time.Time { return now }), WithLogger(zaptest.NewLogger(t)))

	n, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	n, err = m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepToleratesConcurrentDelete(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	path := writeAged(t, s.Dir(), "linkedin_1_1.jpg", now.Add(-3*time.Hour))
	require.NoError(t, s.Remove(path))

	n, err := New(s, time.Hour).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStartRunsInitialSweep(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	old := writeAged(t, s.Dir(), "instagram_9_9.jpg", time.Now().Add(-2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := schedule.New(nil)
	m := New(s, time.Hour, WithInitialDelay(10*time.Millisecond))
	require.NoError(t, m.Start(ctx, sched))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 20*time.Millisecond)
}
