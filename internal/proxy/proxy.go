// Package proxy relays upstream media to clients with the headers the CDN
// insists on, so players that cannot set a Referer can still stream.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"bilirelay/internal/errs"
	"bilirelay/internal/httputil"
)

// DefaultAllowedHosts are the media CDN domains the relay will fetch from.
var DefaultAllowedHosts = []string{
	"bilivideo.com",
	"bilivideo.cn",
	"akamaized.net",
	"hdslb.com",
}

const (
	headerRange              = "Range"
	headerContentDisposition = "Content-Disposition"
	headerAllowOrigin        = "Access-Control-Allow-Origin"

	defaultName = "video"
	extension   = "mp4"

	maxRedirects = 10
)

// copiedHeaders are passed from the upstream response to the client.
var copiedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Last-Modified",
	"ETag",
	"Cache-Control",
}

// Proxy streams allow-listed media URLs.
type Proxy struct {
	client  *http.Client
	allowed []string
}

// New creates a Proxy. An empty allow-list uses DefaultAllowedHosts.
// The client is copied so every redirect hop can be held to the allow-list.
func New(client *http.Client, allowed []string) *Proxy {
	if len(allowed) == 0 {
		allowed = DefaultAllowedHosts
	}
	if client == nil {
		client = http.DefaultClient
	}

	p := &Proxy{allowed: allowed}
	c := *client
	c.CheckRedirect = p.checkRedirect
	p.client = &c
	return p
}

// checkRedirect rejects any hop that leaves the allow-list.
func (p *Proxy) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if _, err := p.Target(req.URL.String()); err != nil {
		return fmt.Errorf("redirect: %w", err)
	}
	return nil
}

// Target validates raw against the allow-list and returns the URL to fetch.
func (p *Proxy) Target(raw string) (string, error) {
	u, err := httputil.ValidateMediaURL(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidProxyTarget, err)
	}
	if !httputil.HostAllowed(u.Hostname(), p.allowed) {
		return "", fmt.Errorf("%w: host %q is not allowed", errs.ErrInvalidProxyTarget, u.Hostname())
	}
	return u.String(), nil
}

// ServeHTTP handles GET /proxy?url=&name=&download=.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	raw := q.Get("url")
	if raw == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	target, err := p.Target(raw)
	if err != nil {
		logrus.WithField("url", raw).WithError(err).Warn("rejected proxy target")
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	name := q.Get("name")
	if name == "" {
		name = defaultName
	}
	download, _ := strconv.ParseBool(q.Get("download"))

	if err := p.stream(r.Context(), w, target, r.Header.Get(headerRange), name, download); err != nil {
		logrus.WithField("url", target).WithError(err).Warn("proxy stream failed")
	}
}

func (p *Proxy) stream(ctx context.Context, w http.ResponseWriter, target, rangeHdr, name string, download bool) error {
	req, err := httputil.NewRequest(ctx, http.MethodGet, target)
	if err != nil {
		http.Error(w, "bad upstream request", http.StatusBadGateway)
		return err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	if rangeHdr != "" {
		req.Header.Set(headerRange, rangeHdr)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidProxyTarget) {
			http.Error(w, errs.ErrInvalidProxyTarget.Error(), http.StatusForbidden)
		} else {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		}
		return fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()

	h := w.Header()
	for _, k := range copiedHeaders {
		if v := resp.Header.Get(k); v != "" {
			h.Set(k, v)
		}
	}
	h.Set(headerContentDisposition, httputil.ContentDisposition(name, extension, download))
	h.Set(headerAllowOrigin, "*")
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("relaying media after %d bytes: %w", n, err)
	}

	logrus.WithFields(logrus.Fields{
		"status": resp.StatusCode,
		"bytes":  n,
		"range":  rangeHdr,
	}).Debug("proxied media")
	return nil
}
