// Package resolve runs the link-resolution pipeline: identifier
// extraction, metadata lookup, request signing and the quality fallback
// ladder against the playback endpoint.
package resolve

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bilirelay/internal/errs"
	"bilirelay/internal/media"
	"bilirelay/internal/provider"
	"bilirelay/internal/wbi"
)

// Extractor parses user input into an identifier and sub-part index.
type Extractor interface {
	Extract(ctx context.Context, text string) (media.BVID, int, error)
}

// Resolver turns user input into a playable media URL.
type Resolver struct {
	extractor Extractor
	provider  provider.Provider
	signer    *wbi.Signer
	publicURL string
}

// New creates a Resolver. publicURL is the externally visible origin of the
// relay used to build playable proxy URLs; empty yields relative URLs.
func New(ex Extractor, p provider.Provider, publicURL string) *Resolver {
	return &Resolver{
		extractor: ex,
		provider:  p,
		signer:    wbi.NewSigner(p),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Resolve extracts an identifier from text and resolves it at the requested
// quality ceiling.
func (r *Resolver) Resolve(ctx context.Context, text string, quality media.Quality) (*media.Resolution, error) {
	bvid, page, err := r.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	return r.ResolveID(ctx, bvid, page, quality)
}

// ResolveID resolves a known identifier and sub-part index. Any failure is
// a full failure; there are no partial results.
func (r *Resolver) ResolveID(ctx context.Context, bvid media.BVID, page int, quality media.Quality) (*media.Resolution, error) {
	start := time.Now()
	log := logrus.WithFields(logrus.Fields{
		"bvid":    bvid,
		"page":    page,
		"quality": int(quality),
	})

	meta, err := r.provider.Metadata(ctx, bvid)
	if err != nil {
		log.WithError(err).Info("metadata lookup failed")
		return nil, err
	}

	cid, title := meta.CID, meta.Title
	if part, ok := meta.Part(page); ok {
		cid, page = part.CID, part.Page
		if part.Title != "" {
			title = part.Title
		}
	}
	if cid == 0 {
		return nil, &errs.UpstreamError{Message: "video has no playable stream id", Kind: errs.ErrUpstream}
	}
	if page <= 0 {
		page = 1
	}

	pb, err := r.Playback(ctx, meta.BVID, cid, quality)
	if err != nil {
		log.WithError(err).Info("playback resolution failed")
		return nil, err
	}

	res := &media.Resolution{
		BVID:        meta.BVID,
		Page:        page,
		CID:         cid,
		Title:       title,
		Cover:       meta.Cover,
		Author:      meta.Author,
		MediaURL:    pb.URL,
		PlayableURL: r.PlayableURL(pb.URL, title),
		Quality:     pb.Quality,
		QualityName: pb.Quality.String(),
	}

	log.WithFields(logrus.Fields{
		"achieved":    int(res.Quality),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("resolved")

	return res, nil
}

// Playback walks the fallback ladder for the requested ceiling and returns
// the first playable rendition. Key material is fetched once; every rung is
// signed freshly. The achieved tier never exceeds the requested one.
func (r *Resolver) Playback(ctx context.Context, bvid media.BVID, cid int64, requested media.Quality) (*media.Playback, error) {
	keys, err := r.signer.Keys(ctx)
	if err != nil {
		return nil, err
	}

	ladder := BuildLadder(requested)
	tried := make([]int, 0, len(ladder))
	var lastErr error

	for _, tier := range ladder {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		tried = append(tried, int(tier))

		query, err := r.signer.SignWith(keys, playParams(bvid, cid, tier))
		if err != nil {
			lastErr = err
			continue
		}

		pb, err := r.provider.PlayURL(ctx, query)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"bvid": bvid,
				"tier": int(tier),
			}).WithError(err).Debug("tier unavailable")
			lastErr = err
			continue
		}

		if pb.Quality <= 0 {
			pb.Quality = tier
		}
		if pb.Quality > tier {
			lastErr = fmt.Errorf("upstream returned tier %d above ceiling %d", pb.Quality, tier)
			continue
		}
		return pb, nil
	}

	return nil, &errs.PlaybackError{Tried: tried, LastErr: lastErr}
}

// PlayableURL wraps a media URL in the relay's proxy endpoint.
func (r *Resolver) PlayableURL(mediaURL, title string) string {
	q := url.Values{}
	q.Set("url", mediaURL)
	if title != "" {
		q.Set("name", title)
	}
	return r.publicURL + "/proxy?" + q.Encode()
}

// playParams builds the playback request for one rung. fnval=1 asks for a
// progressive (durl) rendition.
func playParams(bvid media.BVID, cid int64, tier media.Quality) url.Values {
	fourk := "0"
	if tier >= media.Q4K {
		fourk = "1"
	}
	return url.Values{
		"bvid":  {bvid.String()},
		"cid":   {strconv.FormatInt(cid, 10)},
		"qn":    {strconv.Itoa(int(tier))},
		"fnval": {"1"},
		"fnver": {"0"},
		"fourk": {fourk},
	}
}
