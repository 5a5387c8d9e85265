package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"postfetch/internal/httputil"
	"postfetch/internal/media"
)

// DefaultAPITimeout bounds a single lookup against the download API.
const DefaultAPITimeout = 20 * time.Second

const (
	instagramAPIHost = "instagram-downloader-download-instagram-videos-stories.p.rapidapi.com"
	facebookAPIHost  = "facebook-video-downloader.p.rapidapi.com"
)

var errNoAPIMedia = errors.New("no media in API response")

type decodeFunc func([]byte) (*media.Descriptor, error)

// APIStrategy looks the post up through a third-party RapidAPI download
// service. It is skipped when no credential is configured.
type APIStrategy struct {
	key      string
	host     string
	endpoint string
	decode   decodeFunc
	client   *http.Client
}

// APIOption configures an APIStrategy.
type APIOption func(*APIStrategy)

// WithAPIClient replaces the HTTP client.
func WithAPIClient(c *http.Client) APIOption {
	return func(s *APIStrategy) { s.client = c }
}

// WithEndpoint points the strategy at a different base URL.
func WithEndpoint(endpoint string) APIOption {
	return func(s *APIStrategy) { s.endpoint = endpoint }
}

func newAPI(key, host, path string, decode decodeFunc, opts []APIOption) *APIStrategy {
	s := &APIStrategy{
		key:      key,
		host:     host,
		endpoint: "https://" + host + path,
		decode:   decode,
		client:   httputil.NewClient(httputil.WithTimeout(DefaultAPITimeout)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInstagramAPI returns the API strategy for Instagram posts.
func NewInstagramAPI(key string, opts ...APIOption) *APIStrategy {
	return newAPI(key, instagramAPIHost, "/index", decodeInstagram, opts)
}

// NewFacebookAPI returns the API strategy for Facebook posts.
func NewFacebookAPI(key string, opts ...APIOption) *APIStrategy {
	return newAPI(key, facebookAPIHost, "/download", decodeFacebook, opts)
}

func (s *APIStrategy) Name() string { return "api" }

func (s *APIStrategy) Attempt(ctx context.Context, postURL string) (*media.Descriptor, error) {
	if s.key == "" {
		return nil, ErrSkipped
	}

	header := http.Header{}
	header.Set("X-RapidAPI-Key", s.key)
	header.Set("X-RapidAPI-Host", s.host)

	body, err := httputil.GetJSON(ctx, s.client, s.endpoint+"?url="+url.QueryEscape(postURL), header)
	if err != nil {
		return nil, err
	}

	d, err := s.decode(body)
	if errors.Is(err, errNoAPIMedia) {
		return nil, nil
	}
	return d, err
}

func kindOf(t string) media.Kind {
	if strings.Contains(strings.ToLower(t), "video") {
		return media.Video
	}
	return media.Image
}

func decodeInstagram(body []byte) (*media.Descriptor, error) {
	var resp struct {
		Media []struct {
			URL  string `json:"url"`
			Type string `json:"type"`
		} `json:"media"`
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding instagram API response: %w", err)
	}
	if len(resp.Media) == 0 || resp.Media[0].URL == "" {
		return nil, errNoAPIMedia
	}
	return &media.Descriptor{
		SourceURL: resp.Media[0].URL,
		Kind:      kindOf(resp.Media[0].Type),
		Caption:   clean(resp.Caption),
	}, nil
}

func decodeFacebook(body []byte) (*media.Descriptor, error) {
	var resp struct {
		DownloadURL string `json:"download_url"`
		Type        string `json:"type"`
		Title       string `json:"title"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding facebook API response: %w", err)
	}
	if resp.DownloadURL == "" {
		return nil, errNoAPIMedia
	}
	kind := media.Video
	if resp.Type != "" {
		kind = kindOf(resp.Type)
	}
	return &media.Descriptor{SourceURL: resp.DownloadURL, Kind: kind, Caption: clean(resp.Title)}, nil
}
