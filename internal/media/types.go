// Package media defines shared types for the postfetch application.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a supported social network. The zero value means
// the platform is not known yet.
type Platform int

const (
	Instagram Platform = iota + 1
	Facebook
	LinkedIn
)

// Platforms lists every supported platform in classification order.
var Platforms = []Platform{Instagram, Facebook, LinkedIn}

func (p Platform) String() string {
	switch p {
	case Instagram:
		return "instagram"
	case Facebook:
		return "facebook"
	case LinkedIn:
		return "linkedin"
	default:
		return "unknown"
	}
}

// DisplayName returns the capitalised platform name shown to users.
func (p Platform) DisplayName() string {
	switch p {
	case Instagram:
		return "Instagram"
	case Facebook:
		return "Facebook"
	case LinkedIn:
		return "LinkedIn"
	default:
		return "Unknown"
	}
}

// Referer returns the origin sent with media requests for this platform.
func (p Platform) Referer() string {
	switch p {
	case Instagram:
		return "https://www.instagram.com/"
	case Facebook:
		return "https://www.facebook.com/"
	case LinkedIn:
		return "https://www.linkedin.com/"
	default:
		return ""
	}
}

// ParsePlatform maps an identifier such as "instagram" back to a Platform.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown platform %q", s)
}

// Kind is the type of media a post carries.
type Kind int

const (
	Image Kind = iota
	Video
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case Video:
		return "video"
	default:
		return "unknown"
	}
}

// Ext returns the file extension used when storing this kind.
func (k Kind) Ext() string {
	if k == Video {
		return "mp4"
	}
	return "jpg"
}

// ClassifiedURL is a user-supplied link recognised as belonging to a platform.
type ClassifiedURL struct {
	Platform    Platform
	URL         string // Canonical form, tracking parameters stripped
	OriginalURL string // As found in the input text
}

// Descriptor points at the binary media behind a post.
type Descriptor struct {
	SourceURL string // Direct media URL
	Kind      Kind
	Caption   string // Empty when the post has none
}

// File is a media binary retrieved to local storage.
type File struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}
