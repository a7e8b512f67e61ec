// Package extract turns free-form user input (a pasted link, a share text
// blob or a bare identifier) into a video identifier and sub-part index.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"bilirelay/internal/errs"
	"bilirelay/internal/media"
)

var (
	// urlPattern isolates the first URL-shaped token of a text blob.
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>()\[\]{}【】（）]+`)

	// bvidPattern matches the fixed 12-character identifier form.
	bvidPattern = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)

	// shortLinkPattern matches redirector links, with or without scheme.
	shortLinkPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:b23\.tv|bili2233\.cn|b23\.wtf)/[0-9A-Za-z]+`)

	// videoPathPattern matches canonical video pages; the identifier is taken verbatim.
	videoPathPattern = regexp.MustCompile(`bilibili\.com/(?:s/)?video/(BV[0-9A-Za-z]+)`)

	pageQueryPattern = regexp.MustCompile(`[?&]p=(\d+)`)
	pagePathPattern  = regexp.MustCompile(`/p(\d+)(?:[/?#\s]|$)`)
)

// Redirector resolves a short link to its final destination.
type Redirector interface {
	Resolve(ctx context.Context, shortURL string) (string, error)
}

// Extractor parses user input into an identifier.
type Extractor struct {
	redirector Redirector
}

// New creates an Extractor that uses r for short links.
func New(r Redirector) *Extractor {
	return &Extractor{redirector: r}
}

// Extract returns the identifier and sub-part index found in text.
//
// The first URL-shaped token is examined first, then the whole text. For
// each candidate the fixed-format identifier, a short link and a canonical
// video-page URL are tried in that order. A failing short link is logged and
// does not abort the remaining attempts. errs.ErrNoIdentifier is returned
// once every attempt is exhausted.
func (e *Extractor) Extract(ctx context.Context, text string) (media.BVID, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, errs.ErrNoIdentifier
	}

	candidates := []string{text}
	if token := urlPattern.FindString(text); token != "" && token != text {
		candidates = []string{token, text}
	}

	for _, c := range candidates {
		if id := bvidPattern.FindString(c); id != "" {
			return media.BVID(id), pageOf(c, id), nil
		}

		if short := shortLinkPattern.FindString(c); short != "" && e.redirector != nil {
			id, page, err := e.followShortLink(ctx, short)
			if err == nil {
				return id, page, nil
			}
			logrus.WithFields(logrus.Fields{
				"short_link": short,
				"error":      err,
			}).Warn("short link resolution failed")
		}

		if m := videoPathPattern.FindStringSubmatch(c); m != nil {
			return media.BVID(m[1]), pageOf(c, m[1]), nil
		}
	}

	return "", 0, errs.ErrNoIdentifier
}

func (e *Extractor) followShortLink(ctx context.Context, short string) (media.BVID, int, error) {
	// The redirectors all serve https; plain http is upgraded.
	switch lower := strings.ToLower(short); {
	case strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "http://"):
		short = "https://" + short[len("http://"):]
	default:
		short = "https://" + short
	}

	final, err := e.redirector.Resolve(ctx, short)
	if err != nil {
		return "", 0, err
	}

	id := Identifier(final)
	if id == "" {
		return "", 0, fmt.Errorf("no identifier in resolved URL %q", final)
	}
	return id, ParsePage(final), nil
}

// pageOf reads the sub-part index from the whitespace-delimited token of
// text that holds id, so page markers elsewhere in a blob are ignored.
func pageOf(text, id string) int {
	for _, field := range strings.Fields(text) {
		if strings.Contains(field, id) {
			return ParsePage(field)
		}
	}
	return 1
}

// Identifier returns the identifier contained in s, either in fixed form or
// as the path of a canonical video page, or "" when there is none.
func Identifier(s string) media.BVID {
	if id := bvidPattern.FindString(s); id != "" {
		return media.BVID(id)
	}
	if m := videoPathPattern.FindStringSubmatch(s); m != nil {
		return media.BVID(m[1])
	}
	return ""
}

// ParsePage returns the sub-part index carried by s: the "p" query
// parameter when it is a positive integer, otherwise a "/pNN" path segment,
// otherwise 1.
func ParsePage(s string) int {
	for _, re := range []*regexp.Regexp{pageQueryPattern, pagePathPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}
