package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bilirelay/internal/errs"
	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
)

// DefaultAPIBase is the upstream API origin.
const DefaultAPIBase = "https://api.bilibili.com"

const (
	viewPath    = "/x/web-interface/view"
	navPath     = "/x/web-interface/nav"
	playURLPath = "/x/player/wbi/playurl"
)

// Bilibili implements Provider against the public web API.
type Bilibili struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

// NewBilibili creates a provider for the API at base. Every call is bounded
// by timeout; a nil client gets a hardened default.
func NewBilibili(base string, client *http.Client, timeout time.Duration) *Bilibili {
	if base == "" {
		base = DefaultAPIBase
	}
	if client == nil {
		client = httputil.NewClient(timeout)
	}
	return &Bilibili{
		base:    strings.TrimRight(base, "/"),
		client:  client,
		timeout: timeout,
	}
}

// Metadata returns the video metadata for bvid.
func (b *Bilibili) Metadata(ctx context.Context, bvid media.BVID) (*media.Metadata, error) {
	q := url.Values{}
	q.Set("bvid", bvid.String())

	var resp viewResponse
	if err := b.getJSON(ctx, viewPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", bvid, err)
	}
	if resp.Code != 0 {
		return nil, codeError(resp.Code, resp.Message)
	}
	if resp.Data == nil {
		return nil, &errs.UpstreamError{Message: "metadata response has no data", Kind: errs.ErrUpstream}
	}

	d := resp.Data
	meta := &media.Metadata{
		BVID:     media.BVID(d.BVID),
		AID:      d.AID,
		CID:      d.CID,
		Title:    d.Title,
		Cover:    secureURL(d.Pic),
		Author:   d.Owner.Name,
		Duration: d.Duration,
	}
	if meta.BVID == "" {
		meta.BVID = bvid
	}
	for _, p := range d.Pages {
		meta.Parts = append(meta.Parts, media.Part{
			Page:     p.Page,
			CID:      p.CID,
			Title:    p.Part,
			Duration: p.Duration,
		})
	}

	logrus.WithFields(logrus.Fields{
		"bvid":  meta.BVID,
		"parts": len(meta.Parts),
	}).Debug("metadata fetched")

	return meta, nil
}

// WbiImages returns the key image URLs from the navigation endpoint. The
// endpoint reports -101 for anonymous sessions but still carries the keys,
// so the code is only consulted when the keys are missing.
func (b *Bilibili) WbiImages(ctx context.Context) (string, string, error) {
	var resp navResponse
	if err := b.getJSON(ctx, navPath, &resp); err != nil {
		return "", "", fmt.Errorf("fetching nav: %w", err)
	}
	if resp.Data == nil || resp.Data.WbiImg.ImgURL == "" || resp.Data.WbiImg.SubURL == "" {
		return "", "", fmt.Errorf("nav response has no wbi_img (code %d: %s)", resp.Code, resp.Message)
	}
	return resp.Data.WbiImg.ImgURL, resp.Data.WbiImg.SubURL, nil
}

// PlayURL requests a direct media URL using a signed query.
func (b *Bilibili) PlayURL(ctx context.Context, signedQuery string) (*media.Playback, error) {
	var resp playURLResponse
	if err := b.getJSON(ctx, playURLPath+"?"+signedQuery, &resp); err != nil {
		return nil, fmt.Errorf("fetching playurl: %w", err)
	}
	if resp.Code != 0 {
		return nil, codeError(resp.Code, resp.Message)
	}
	if resp.Data == nil || len(resp.Data.Durl) == 0 || resp.Data.Durl[0].URL == "" {
		return nil, &errs.UpstreamError{Message: "no playable stream in response", Kind: errs.ErrUpstream}
	}

	first := resp.Data.Durl[0]
	return &media.Playback{
		URL:     first.URL,
		Backups: first.BackupURL,
		Quality: media.Quality(resp.Data.Quality),
		Size:    first.Size,
	}, nil
}

// getJSON performs one bounded GET against the API and decodes the body into v.
// Timeouts and transport failures are reported as upstream errors.
func (b *Bilibili) getJSON(ctx context.Context, pathAndQuery string, v any) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	body, err := httputil.GetJSON(ctx, b.client, b.base+pathAndQuery)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}

	logrus.WithFields(logrus.Fields{
		"path":        strings.SplitN(pathAndQuery, "?", 2)[0],
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("upstream call")

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decoding response: %v", errs.ErrUpstream, err)
	}
	return nil
}

// secureURL upgrades protocol-relative and http image URLs to https.
func secureURL(u string) string {
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "http://"):
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
