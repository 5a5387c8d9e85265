package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postfetch/internal/failure"
	"postfetch/internal/media"
	"postfetch/internal/resolve"
)

func TestSpinWithoutTerminal(t *testing.T) {
	out, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer out.Close()

	boom := errors.New("boom")
	var statuses int
	err = Spin(context.Background(), out, "Resolving link", func(ctx context.Context, status func(string)) error {
		status("ignored")
		statuses++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, statuses)

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "Resolving link\n", string(data))
}

func TestSpinModel(t *testing.T) {
	m := newSpinModel("Resolving")

	next, cmd := m.Update(statusMsg("trying browser"))
	assert.Nil(t, cmd)
	assert.Contains(t, next.View(), "Resolving")
	assert.Contains(t, next.View(), "trying browser")

	next, cmd = next.Update(doneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, next.View())
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "1.2 MB / 3.4 MB", FormatProgress(1_200_000, 3_400_000))
	assert.Equal(t, "512 B", FormatProgress(512, -1))
}

func TestRenderResult(t *testing.T) {
	ok := &resolve.Result{
		Success:   true,
		Platform:  media.Instagram,
		Kind:      media.Video,
		FilePath:  "/srv/downloads/instagram_1_2.mp4",
		SizeBytes: 2_000_000,
		Strategy:  "http",
		Caption:   "sunset",
		Attempts: []resolve.Attempt{
			{Strategy: "api", Skipped: true},
			{Strategy: "browser", Err: errors.New("x"), Code: failure.NetworkTimeout, Elapsed: 50 * time.Second},
			{Strategy: "http", Elapsed: 1500 * time.Millisecond},
		},
	}

	out := RenderResult(ok, false)
	assert.Contains(t, out, "Saved video")
	assert.Contains(t, out, "Instagram")
	assert.Contains(t, out, "/srv/downloads/instagram_1_2.mp4")
	assert.Contains(t, out, "2.0 MB")
	assert.Contains(t, out, "sunset")
	assert.NotContains(t, out, "skipped")

	verbose := RenderResult(ok, true)
	assert.Contains(t, verbose, "skipped")
	assert.Contains(t, verbose, "network_timeout after 50s")
	assert.Contains(t, verbose, "found media in 1.5s")

	failed := RenderResult(&resolve.Result{
		Code:    failure.NoMediaFound,
		Message: failure.Message(failure.NoMediaFound),
	}, false)
	assert.Contains(t, failed, failure.Message(failure.NoMediaFound))
	assert.Contains(t, failed, "no_media_found")
}
