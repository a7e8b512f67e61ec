package wbi

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"bilirelay/internal/errs"
)

// KeySource publishes the two image URLs the key material is derived from.
type KeySource interface {
	WbiImages(ctx context.Context) (imgURL, subURL string, err error)
}

// Signer fetches key material and signs request parameters.
type Signer struct {
	source KeySource
	now    func() time.Time
}

// NewSigner creates a Signer backed by source.
func NewSigner(source KeySource) *Signer {
	return &Signer{source: source, now: time.Now}
}

// Keys fetches fresh key material. There is a single attempt; any failure,
// including malformed URLs in the response, is reported as errs.ErrKeyFetch.
func (s *Signer) Keys(ctx context.Context) (Keys, error) {
	imgURL, subURL, err := s.source.WbiImages(ctx)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: %v", errs.ErrKeyFetch, err)
	}
	keys, err := KeysFromURLs(imgURL, subURL)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: %v", errs.ErrKeyFetch, err)
	}
	return keys, nil
}

// Sign fetches key material and returns the signed query for params.
func (s *Signer) Sign(ctx context.Context, params url.Values) (string, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return "", err
	}
	return s.SignWith(keys, params)
}

// SignWith signs params with already fetched keys at the current time.
func (s *Signer) SignWith(keys Keys, params url.Values) (string, error) {
	return keys.Sign(params, s.now())
}
