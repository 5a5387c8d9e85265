package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postfetch/internal/failure"
	"postfetch/internal/media"
	"postfetch/internal/resolve"
)

func TestToJSON(t *testing.T) {
	res := &resolve.Result{
		RequestID: "r1",
		Success:   true,
		Platform:  media.Facebook,
		PostURL:   "https://www.facebook.com/watch/?v=1",
		Kind:      media.Video,
		FilePath:  "/d/facebook_cli_1.mp4",
		SizeBytes: 10,
		Strategy:  "http",
		Attempts: []resolve.Attempt{
			{Strategy: "api", Skipped: true},
			{Strategy: "browser", Err: errors.New("timed out"), Code: failure.NetworkTimeout, Elapsed: 2 * time.Second},
			{Strategy: "http", Elapsed: 300 * time.Millisecond},
		},
	}

	out := toJSON(res)
	assert.Equal(t, "facebook", out.Platform)
	assert.Equal(t, "video", out.Kind)
	assert.Len(t, out.Attempts, 3)
	assert.True(t, out.Attempts[0].Skipped)
	assert.Equal(t, "network_timeout", out.Attempts[1].Code)
	assert.Equal(t, "timed out", out.Attempts[1].Error)
	assert.Equal(t, int64(2000), out.Attempts[1].ElapsedMS)
}

func TestToJSONFailure(t *testing.T) {
	out := toJSON(&resolve.Result{
		RequestID: "r2",
		Code:      failure.InvalidURL,
		Message:   "bad link",
	})
	assert.False(t, out.Success)
	assert.Empty(t, out.Platform)
	assert.Empty(t, out.Kind)
	assert.Equal(t, "invalid_url", out.Code)
	assert.NotNil(t, out.Attempts)
}
