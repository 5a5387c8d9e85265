package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"postfetch/internal/httputil"
	"postfetch/internal/media"
)

// Page is fetched or rendered markup ready for extraction.
type Page struct {
	Doc  *goquery.Document
	Raw  string
	Base *url.URL
}

// NewPage parses body as HTML. pageURL resolves relative media references.
func NewPage(body []byte, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	base, _ := url.Parse(pageURL)
	return &Page{Doc: doc, Raw: string(body), Base: base}, nil
}

type step struct {
	name string
	find func(*Page) *media.Descriptor
}

// Steps in order of reliability. The first step that yields a descriptor wins.
var cascade = []step{
	{"json-ld", fromJSONLD},
	{"meta", fromMetaTags},
	{"dom", fromElements},
	{"script", fromScripts},
}

// Extract runs the cascade over p. It returns the descriptor and the name of
// the step that produced it, or nil and "" when every step came up empty.
func Extract(p *Page) (*media.Descriptor, string) {
	for _, s := range cascade {
		d := s.find(p)
		if d == nil {
			continue
		}
		if d.Caption == "" {
			d.Caption = pageCaption(p)
		}
		return d, s.name
	}
	return nil, ""
}

// Substrings marking site chrome rather than post content.
var rejectMarkers = []string{"avatar", "profile", "logo", "rsrc.php", "/static/images/"}

func rejected(u string) bool {
	lower := strings.ToLower(u)
	for _, m := range rejectMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// firstImage returns the first usable image among candidates.
func firstImage(p *Page, candidates []string) string {
	for _, c := range candidates {
		if u := httputil.ResolveReference(p.Base, c); u != "" && !rejected(u) {
			return u
		}
	}
	return ""
}

func firstVideo(p *Page, candidates []string) string {
	for _, c := range candidates {
		if u := httputil.ResolveReference(p.Base, c); u != "" {
			return u
		}
	}
	return ""
}

func pick(p *Page, videos, images []string, caption string) *media.Descriptor {
	if u := firstVideo(p, videos); u != "" {
		return &media.Descriptor{SourceURL: u, Kind: media.Video, Caption: caption}
	}
	if u := firstImage(p, images); u != "" {
		return &media.Descriptor{SourceURL: u, Kind: media.Image, Caption: caption}
	}
	return nil
}

// --- JSON-LD ---

type ldHits struct {
	videos  []string
	images  []string
	caption string
}

// Keys whose objects describe people or organisations, not the post.
var ldSkipKeys = map[string]bool{"author": true, "creator": true, "publisher": true, "interactionStatistic": true}

func fromJSONLD(p *Page) *media.Descriptor {
	var hits ldHits
	p.Doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		hits.walk(v)
	})
	return pick(p, hits.videos, hits.images, clean(hits.caption))
}

func (h *ldHits) walk(v any) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			h.walk(e)
		}
	case map[string]any:
		switch ldString(t["@type"]) {
		case "VideoObject":
			h.videos = append(h.videos, ldURLs(t["contentUrl"])...)
		case "ImageObject":
			h.images = append(h.images, ldURLs(t["contentUrl"])...)
			h.images = append(h.images, ldURLs(t["url"])...)
		}
		if vid, ok := t["video"]; ok {
			h.collectVideos(vid)
		}
		if img, ok := t["image"]; ok {
			h.images = append(h.images, ldURLs(img)...)
		}
		if h.caption == "" {
			for _, k := range []string{"articleBody", "caption", "description"} {
				if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
					h.caption = s
					break
				}
			}
		}
		for k, child := range t {
			if ldSkipKeys[k] || k == "video" || k == "image" {
				continue
			}
			h.walk(child)
		}
	}
}

func (h *ldHits) collectVideos(v any) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			h.collectVideos(e)
		}
	case map[string]any:
		h.videos = append(h.videos, ldURLs(t["contentUrl"])...)
	case string:
		h.videos = append(h.videos, t)
	}
}

// ldURLs flattens the shapes schema.org allows for a URL-valued property.
func ldURLs(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case map[string]any:
		if s := ldString(t["contentUrl"]); s != "" {
			return []string{s}
		}
		if s := ldString(t["url"]); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, ldURLs(e)...)
		}
		return out
	}
	return nil
}

func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return ldString(t[0])
		}
	}
	return ""
}

// --- social meta tags ---

var (
	videoMetaKeys = []string{"og:video:secure_url", "og:video:url", "og:video", "twitter:player:stream"}
	imageMetaKeys = []string{"og:image:secure_url", "og:image:url", "og:image", "twitter:image", "twitter:image:src"}
)

func metaContent(p *Page, key string) []string {
	var out []string
	p.Doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).Each(func(_ int, s *goquery.Selection) {
		if c := strings.TrimSpace(s.AttrOr("content", "")); c != "" {
			out = append(out, c)
		}
	})
	return out
}

func fromMetaTags(p *Page) *media.Descriptor {
	var videos, images []string
	for _, k := range videoMetaKeys {
		videos = append(videos, metaContent(p, k)...)
	}
	for _, k := range imageMetaKeys {
		images = append(images, metaContent(p, k)...)
	}
	return pick(p, videos, images, "")
}

// --- rendered or static DOM ---

var (
	videoSelectors = []string{"video[src]", "video source[src]"}
	imageSelectors = []string{
		"img.EmbeddedMediaImage",
		"article img",
		`img[src*="scontent"]`,
		`img[data-testid="photo"]`,
		`img[alt*="Photo"]`,
		".feed-shared-image img",
		`[data-test-id="feed-images-hook"] img`,
		`img[src*="media.licdn.com/dms/image"]`,
		`img[data-delayed-url*="media.licdn.com"]`,
	}
)

func elementURLs(p *Page, selector string, attrs ...string) []string {
	var out []string
	p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		// Profile pictures sit next to post media and their CDN URLs carry no marker.
		if strings.Contains(strings.ToLower(s.AttrOr("alt", "")), "profile picture") {
			return
		}
		for _, a := range attrs {
			if v := s.AttrOr(a, ""); v != "" {
				out = append(out, v)
				return
			}
		}
	})
	return out
}

func fromElements(p *Page) *media.Descriptor {
	var videos, images []string
	for _, sel := range videoSelectors {
		videos = append(videos, elementURLs(p, sel, "src")...)
	}
	for _, sel := range imageSelectors {
		images = append(images, elementURLs(p, sel, "src", "data-delayed-url", "data-src")...)
	}
	return pick(p, videos, images, "")
}

// --- embedded script payloads ---

const jsonString = `"((?:[^"\\]|\\.)+)"`

var (
	videoScriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"video_url"\s*:\s*` + jsonString),
		regexp.MustCompile(`"playable_url_quality_hd"\s*:\s*` + jsonString),
		regexp.MustCompile(`"browser_native_hd_url"\s*:\s*` + jsonString),
		regexp.MustCompile(`"playable_url"\s*:\s*` + jsonString),
		regexp.MustCompile(`"browser_native_sd_url"\s*:\s*` + jsonString),
	}
	imageScriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"display_url"\s*:\s*` + jsonString),
		regexp.MustCompile(`"photo_image"\s*:\s*\{\s*"uri"\s*:\s*` + jsonString),
		regexp.MustCompile(`"image"\s*:\s*\{\s*"uri"\s*:\s*` + jsonString),
	}
)

func scriptMatches(raw string, patterns []*regexp.Regexp) []string {
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(raw, -1) {
			if s := unescapeJSON(m[1]); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// unescapeJSON decodes a JSON string body such as `https:\/\/x&y`.
func unescapeJSON(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return ""
	}
	return out
}

func fromScripts(p *Page) *media.Descriptor {
	return pick(p, scriptMatches(p.Raw, videoScriptPatterns), scriptMatches(p.Raw, imageScriptPatterns), "")
}

// --- captions ---

var captionSelectors = []string{
	`[data-testid="post-text"]`,
	`[data-ad-preview="message"]`,
	`[data-testid="post_message"]`,
	".feed-shared-text",
	".feed-shared-update-v2__description",
	".Caption",
}

var captionMetaKeys = []string{"og:description", "twitter:description", "description"}

var spaceRun = regexp.MustCompile(`\s+`)

func clean(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// pageCaption finds the post text, preferring visible markup over meta tags.
func pageCaption(p *Page) string {
	for _, sel := range captionSelectors {
		if c := clean(p.Doc.Find(sel).First().Text()); c != "" {
			return c
		}
	}
	for _, k := range captionMetaKeys {
		if cs := metaContent(p, k); len(cs) > 0 {
			return clean(cs[0])
		}
	}
	return ""
}
