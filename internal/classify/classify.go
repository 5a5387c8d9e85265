// Package classify finds social media post links in free-form text, tags
// them with their platform and reduces them to a canonical form.
package classify

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"postfetch/internal/failure"
	"postfetch/internal/media"
)

var (
	// ErrNoURL means the text contained no http(s) link at all.
	ErrNoURL = errors.New("no URL in text")

	// ErrUnsupported means links were found but none belongs to a supported platform.
	ErrUnsupported = errors.New("URL does not belong to a supported platform")
)

// urlPattern picks http(s) tokens out of chat text. Trailing punctuation is trimmed afterwards.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"'\x60]+`)

const trailingPunct = `.,;:!?)]}'"`

type rule struct {
	platform media.Platform
	patterns []*regexp.Regexp // Evaluated in order, first match wins
}

const (
	igHost = `(?:www\.|m\.)?instagram\.com`
	fbHost = `(?:www\.|m\.|web\.|mbasic\.)?facebook\.com`
	liHost = `(?:www\.|m\.)?linkedin\.com`
)

var rules = []rule{
	{
		platform: media.Instagram,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^https?://` + igHost + `/(?:[A-Za-z0-9_.]+/)?(?:p|reels?|tv)/[A-Za-z0-9_-]+`),
			regexp.MustCompile(`(?i)^https?://` + igHost + `/stories/[A-Za-z0-9_.]+/\d+`),
		},
	},
	{
		platform: media.Facebook,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^https?://` + fbHost + `/[^?#\s]+/(?:posts|videos|photos)/[^/?#\s]+`),
			regexp.MustCompile(`(?i)^https?://fb\.watch/[A-Za-z0-9_-]+`),
			regexp.MustCompile(`(?i)^https?://` + fbHost + `/photo(?:\.php)?/?\?(?:.*&)?fbid=\d+`),
			regexp.MustCompile(`(?i)^https?://` + fbHost + `/reels?/\d+`),
			regexp.MustCompile(`(?i)^https?://` + fbHost + `/watch/?\?(?:.*&)?v=\d+`),
			regexp.MustCompile(`(?i)^https?://` + fbHost + `/share/[vrp]/[A-Za-z0-9]+`),
			regexp.MustCompile(`(?i)^https?://` + fbHost + `/permalink\.php\?(?:.*&)?story_fbid=`),
		},
	},
	{
		platform: media.LinkedIn,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^https?://` + liHost + `/(?:posts|feed)/[A-Za-z0-9_:%.-]+`),
			regexp.MustCompile(`(?i)^https?://` + liHost + `/pulse/[A-Za-z0-9_%.-]+`),
		},
	},
}

// Query parameters that carry meaning rather than tracking, per platform.
var keepParams = map[media.Platform][]string{
	media.Instagram: {"img_index"},
	media.Facebook:  {"fbid", "id", "story_fbid", "v"},
}

var canonicalHost = map[media.Platform]string{
	media.Instagram: "www.instagram.com",
	media.Facebook:  "www.facebook.com",
	media.LinkedIn:  "www.linkedin.com",
}

// ExtractURLs returns every parseable http(s) link in text, in order of appearance.
func ExtractURLs(text string) []string {
	var urls []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, trailingPunct)
		u, err := url.Parse(m)
		if err != nil || u.Host == "" {
			continue
		}
		urls = append(urls, m)
	}
	return urls
}

// Match reports the platform whose patterns recognise rawURL.
func Match(rawURL string) (media.Platform, bool) {
	for _, r := range rules {
		for _, re := range r.patterns {
			if re.MatchString(rawURL) {
				return r.platform, true
			}
		}
	}
	return 0, false
}

// Classify extracts the first supported post link from text. Candidates are
// considered in order of appearance and each is tested against the platforms
// in fixed order. Failures carry failure.InvalidURL and wrap either ErrNoURL
// or ErrUnsupported.
func Classify(text string) (*media.ClassifiedURL, error) {
	candidates := ExtractURLs(text)
	if len(candidates) == 0 {
		return nil, failure.New(failure.InvalidURL, "classify", ErrNoURL).
			WithMessage("No link found in your message. Please send an Instagram, Facebook or LinkedIn post URL.")
	}

	for _, c := range candidates {
		p, ok := Match(c)
		if !ok {
			continue
		}
		normalized, err := Normalize(p, c)
		if err != nil {
			continue
		}
		return &media.ClassifiedURL{Platform: p, URL: normalized, OriginalURL: c}, nil
	}

	return nil, failure.New(failure.InvalidURL, "classify", ErrUnsupported).
		WithMessage("That link is not supported. Only Instagram, Facebook and LinkedIn posts can be downloaded.")
}

// Normalize reduces rawURL to the canonical form for platform p: https, the
// platform's www host, no fragment and only meaningful query parameters.
// fb.watch short links are opaque and returned unchanged.
func Normalize(p media.Platform, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if p == media.Facebook && strings.EqualFold(u.Hostname(), "fb.watch") {
		return rawURL, nil
	}

	u.Scheme = "https"
	u.User = nil
	u.Host = canonicalHost[p]
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	u.RawQuery = filterQuery(u.Query(), keepParams[p])

	return u.String(), nil
}

func filterQuery(q url.Values, keep []string) string {
	if len(keep) == 0 {
		return ""
	}
	out := url.Values{}
	for _, k := range keep {
		if v, ok := q[k]; ok {
			out[k] = v
		}
	}
	return out.Encode()
}

var postIDPatterns = map[media.Platform][]*regexp.Regexp{
	media.Instagram: {
		regexp.MustCompile(`/(?:p|reels?|tv)/([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`/stories/[^/]+/(\d+)`),
	},
	media.Facebook: {
		regexp.MustCompile(`/(?:posts|videos|photos|reels?)/([A-Za-z0-9]+)`),
		regexp.MustCompile(`/share/[vrp]/([A-Za-z0-9]+)`),
		regexp.MustCompile(`fb\.watch/([A-Za-z0-9_-]+)`),
	},
	media.LinkedIn: {
		regexp.MustCompile(`activity[:-](\d+)`),
		regexp.MustCompile(`/(?:posts|pulse)/([^/?#]+)`),
	},
}

var facebookIDParams = []string{"fbid", "story_fbid", "v", "id"}

// PostID extracts the platform's post identifier from rawURL, or "" when the
// URL does not carry one.
func PostID(p media.Platform, rawURL string) string {
	for _, re := range postIDPatterns[p] {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}
	if p == media.Facebook {
		if u, err := url.Parse(rawURL); err == nil {
			q := u.Query()
			for _, k := range facebookIDParams {
				if v := q.Get(k); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// Patterns returns the recognition patterns for p in priority order.
func Patterns(p media.Platform) []string {
	var out []string
	for _, r := range rules {
		if r.platform != p {
			continue
		}
		for _, re := range r.patterns {
			out = append(out, re.String())
		}
	}
	return out
}
