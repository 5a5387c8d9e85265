package extract

import (
	"errors"
	"strings"

	"postfetch/internal/failure"
	"postfetch/internal/media"
)

var (
	blockTitleWords = []string{"log in", "login", "sign in", "sign up", "security check", "checkpoint"}
	blockRawMarkers = []string{"challenge_required", "checkpoint_required", "authwall", "login_required"}
	blockSelectors  = `form#login_form, form[action*="/login"], input[name="pass"]`
)

// Blocked reports whether p looks like a login wall or bot challenge
// instead of the requested post.
func Blocked(p *Page) bool {
	title := strings.ToLower(p.Doc.Find("title").First().Text())
	for _, w := range blockTitleWords {
		if strings.Contains(title, w) {
			return true
		}
	}
	if p.Doc.Find(blockSelectors).Length() > 0 {
		return true
	}
	raw := strings.ToLower(p.Raw)
	for _, m := range blockRawMarkers {
		if strings.Contains(raw, m) {
			return true
		}
	}
	return false
}

// fromPage runs the cascade and, when it finds nothing on a page that is a
// login wall, reports the block instead of a plain miss.
func fromPage(strategy string, p *Page) (*media.Descriptor, string, error) {
	d, step := Extract(p)
	if d != nil {
		return d, step, nil
	}
	if Blocked(p) {
		return nil, "", failure.New(failure.UpstreamBlocked, strategy, errors.New("login wall or challenge page"))
	}
	return nil, "", nil
}
