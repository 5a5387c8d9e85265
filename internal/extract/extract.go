// Package extract turns a post URL into a media descriptor. Each Strategy
// is one independent way of doing so; all of them feed the markup they
// obtain through the same extraction cascade.
package extract

import (
	"context"
	"errors"

	"postfetch/internal/media"
)

// Strategy resolves a normalized post URL to a media descriptor.
//
// Attempt returns (nil, nil) when the strategy ran but found no media. Any
// error is a failed attempt; ErrSkipped means the strategy could not run at
// all (missing credential, URL shape it cannot handle).
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, postURL string) (*media.Descriptor, error)
}

// ErrSkipped reports that a strategy's precondition was not met.
var ErrSkipped = errors.New("strategy not applicable")
