package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postfetch/internal/failure"
	"postfetch/internal/httputil"
	"postfetch/internal/media"
)

func TestHTTPStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, httputil.CrawlerUserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/post":
			fmt.Fprint(w, `<meta property="og:video" content="/media/v.mp4"><meta property="og:description" content="hi">`)
		case "/empty":
			fmt.Fprint(w, `<html><title>A post</title></html>`)
		case "/login":
			fmt.Fprint(w, `<html><title>Log in to Facebook</title></html>`)
		case "/gone":
			http.NotFound(w, r)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	s := NewHTTP("http", WithHTTPClient(srv.Client()), WithUserAgent(httputil.CrawlerUserAgent))
	assert.Equal(t, "http", s.Name())

	d, err := s.Attempt(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, srv.URL+"/media/v.mp4", d.SourceURL)
	assert.Equal(t, media.Video, d.Kind)
	assert.Equal(t, "hi", d.Caption)

	d, err = s.Attempt(context.Background(), srv.URL+"/empty")
	assert.NoError(t, err)
	assert.Nil(t, d)

	_, err = s.Attempt(context.Background(), srv.URL+"/login")
	assert.Equal(t, failure.UpstreamBlocked, failure.CodeOf(err))

	_, err = s.Attempt(context.Background(), srv.URL+"/gone")
	assert.Equal(t, failure.NotFound, failure.CodeOf(err))

	_, err = s.Attempt(context.Background(), srv.URL+"/forbidden")
	assert.Equal(t, failure.UpstreamBlocked, failure.CodeOf(err))
}

func TestHTTPStrategyRewrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/p/ABC/embed/", r.URL.Path)
		fmt.Fprint(w, `<img class="EmbeddedMediaImage" src="https://cdn.example.com/e.jpg"><div class="Caption">embed caption</div>`)
	}))
	defer srv.Close()

	rewrite := func(u string) (string, error) { return srv.URL + "/p/ABC/embed/", nil }
	s := NewHTTP("instagram-embed", WithHTTPClient(srv.Client()), WithRewrite(rewrite))

	d, err := s.Attempt(context.Background(), "https://www.instagram.com/p/ABC/")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "https://cdn.example.com/e.jpg", d.SourceURL)
	assert.Equal(t, "embed caption", d.Caption)
}

func TestHTTPStrategyReadabilityCaption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Article</title>
			<meta property="og:image" content="https://cdn.example.com/cover.jpg"></head>
			<body><article><h1>Article</h1>
			<p>This is a long enough paragraph of article text so that readability treats it as the main content of the page.</p>
			<p>It continues with a second paragraph that adds more words, commas, and sentences to look like real prose.</p>
			</article></body></html>`)
	}))
	defer srv.Close()

	s := NewHTTP("http", WithHTTPClient(srv.Client()), WithReadabilityCaption())
	d, err := s.Attempt(context.Background(), srv.URL+"/pulse/article")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Contains(t, d.Caption, "main content")
}

func TestInstagramEmbedURL(t *testing.T) {
	got, err := InstagramEmbedURL("https://www.instagram.com/reel/ABC123/")
	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/p/ABC123/embed/", got)

	_, err = InstagramEmbedURL("https://www.instagram.com/stories/user/123/")
	assert.ErrorIs(t, err, ErrSkipped)
}
