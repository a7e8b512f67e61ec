// Package provider talks to the upstream video platform: metadata lookup,
// signing key material and playback URLs.
package provider

import (
	"context"

	"bilirelay/internal/media"
)

// Provider is the interface the resolution pipeline depends on.
type Provider interface {
	// Metadata returns title, cover, author and sub-parts for a video.
	Metadata(ctx context.Context, bvid media.BVID) (*media.Metadata, error)

	// WbiImages returns the two image URLs the signing keys are derived from.
	WbiImages(ctx context.Context) (imgURL, subURL string, err error)

	// PlayURL calls the playback endpoint with an already signed query.
	PlayURL(ctx context.Context, signedQuery string) (*media.Playback, error)
}
