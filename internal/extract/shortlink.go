package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bilirelay/internal/httputil"
)

// HTTPRedirector follows short links over HTTP.
type HTTPRedirector struct {
	client  *http.Client
	timeout time.Duration
}

// NewRedirector creates an HTTPRedirector. Each resolution is bounded by timeout.
func NewRedirector(client *http.Client, timeout time.Duration) *HTTPRedirector {
	if client == nil {
		client = httputil.NewClient(timeout)
	}
	return &HTTPRedirector{client: client, timeout: timeout}
}

// Resolve follows redirects from shortURL with a HEAD request and returns
// the final URL. Redirectors that refuse HEAD get a GET instead. When the
// final URL carries no identifier, the landing page's canonical URL is used.
func (r *HTTPRedirector) Resolve(ctx context.Context, shortURL string) (string, error) {
	if err := httputil.ValidateURL(shortURL); err != nil {
		return "", fmt.Errorf("invalid short link: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	final, err := r.follow(ctx, http.MethodHead, shortURL)
	if err != nil {
		final, err = r.follow(ctx, http.MethodGet, shortURL)
		if err != nil {
			return "", err
		}
	}

	if Identifier(final) != "" {
		return final, nil
	}

	// Mobile share pages sometimes land on a URL without the identifier.
	canonical, err := r.canonicalURL(ctx, final)
	if err != nil || canonical == "" {
		return final, nil
	}
	return canonical, nil
}

func (r *HTTPRedirector) follow(ctx context.Context, method, target string) (string, error) {
	req, err := httputil.NewRequest(ctx, method, target)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("following %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s %s: unexpected status %d", method, target, resp.StatusCode)
	}
	return resp.Request.URL.String(), nil
}

// canonicalURL fetches a landing page and reads its canonical link.
func (r *HTTPRedirector) canonicalURL(ctx context.Context, pageURL string) (string, error) {
	req, err := httputil.NewRequest(ctx, http.MethodGet, pageURL)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching landing page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("landing page status %d", resp.StatusCode)
	}

	body, err := httputil.ReadBody(resp)
	if err != nil {
		return "", err
	}
	return parseCanonical(body)
}

// parseCanonical returns the first canonical-looking URL in an HTML page
// that carries an identifier.
func parseCanonical(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	selectors := []struct {
		sel  string
		attr string
	}{
		{`link[rel="canonical"]`, "href"},
		{`meta[property="og:url"]`, "content"},
		{`meta[itemprop="url"]`, "content"},
	}

	for _, s := range selectors {
		var found string
		doc.Find(s.sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			v := strings.TrimSpace(el.AttrOr(s.attr, ""))
			if v != "" && Identifier(v) != "" {
				found = v
				return false
			}
			return true
		})
		if found != "" {
			if strings.HasPrefix(found, "//") {
				found = "https:" + found
			}
			return found, nil
		}
	}

	return "", nil
}
