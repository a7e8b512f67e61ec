package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"bilirelay/internal/cache"
	"bilirelay/internal/errs"
	"bilirelay/internal/media"
)

var bvidPath = regexp.MustCompile(`^BV[0-9A-Za-z]+$`)

type resolveResponse struct {
	Status string `json:"status"`
	*media.Resolution
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("encoding response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Status: "error", Message: errs.Message(err)})
}

// statusFor maps a pipeline error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNoIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrVideoNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAccessDenied), errors.Is(err, errs.ErrUnderReview):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrRegionRestricted):
		return http.StatusUnavailableForLegalReasons
	case errors.Is(err, errs.ErrInvalidProxyTarget):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// qualityParam returns the first positive integer among the named query
// parameters, or the server default.
func (s *Server) qualityParam(r *http.Request, names ...string) media.Quality {
	q := r.URL.Query()
	for _, name := range names {
		if n, err := strconv.Atoi(q.Get(name)); err == nil && n > 0 {
			return media.Quality(n)
		}
	}
	return s.quality
}

func pageParam(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("p")); err == nil && n > 0 {
		return n
	}
	return 1
}

func (s *Server) resolveKey(r *http.Request) (string, bool) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		return "", false
	}
	return cache.Key(text, int(s.qualityParam(r, "qualityTier", "qn"))), true
}

func (s *Server) jsonKey(r *http.Request) (string, bool) {
	bvid := chi.URLParam(r, "bvid")
	if !bvidPath.MatchString(bvid) {
		return "", false
	}
	text := "json:" + bvid + ":" + strconv.Itoa(pageParam(r))
	return cache.Key(text, int(s.qualityParam(r, "qn", "qualityTier"))), true
}

// absolute turns a relative playable URL into one on the request's origin.
func absolute(r *http.Request, res *media.Resolution) *media.Resolution {
	if !strings.HasPrefix(res.PlayableURL, "/") {
		return res
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	out := *res
	out.PlayableURL = scheme + "://" + r.Host + res.PlayableURL
	return &out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name": "bilirelay",
		"endpoints": []string{
			"GET /resolve?text=<link>&qualityTier=<qn>",
			"GET /json/{bvid}?qn=<qn>&p=<page>",
			"GET /proxy?url=<media url>&name=<filename>&download=<bool>",
			"GET /{link or bvid}",
			"GET /health",
		},
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		writeError(w, errs.ErrNoIdentifier)
		return
	}

	res, err := s.resolver.Resolve(r.Context(), text, s.qualityParam(r, "qualityTier", "qn"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Status: "success", Resolution: absolute(r, res)})
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	bvid := chi.URLParam(r, "bvid")
	if !bvidPath.MatchString(bvid) {
		writeError(w, errs.ErrNoIdentifier)
		return
	}

	res, err := s.resolver.ResolveID(r.Context(), media.BVID(bvid), pageParam(r), s.qualityParam(r, "qn", "qualityTier"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Status: "success", Resolution: absolute(r, res)})
}

// handleRedirect treats the raw path and query as input and redirects to
// the playable URL. A bare identifier path is resolved directly.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	quality := s.qualityParam(r, "qn", "qualityTier")

	var (
		res *media.Resolution
		err error
	)
	if bvidPath.MatchString(path) {
		res, err = s.resolver.ResolveID(r.Context(), media.BVID(path), pageParam(r), quality)
	} else {
		text := path
		if r.URL.RawQuery != "" {
			text += "?" + r.URL.RawQuery
		}
		res, err = s.resolver.Resolve(r.Context(), text, quality)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrNoIdentifier) {
			status = http.StatusNotFound
		}
		http.Error(w, errs.Message(err), status)
		return
	}

	http.Redirect(w, r, absolute(r, res).PlayableURL, http.StatusFound)
}
