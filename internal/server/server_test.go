package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bilirelay/internal/cache"
	"bilirelay/internal/errs"
	"bilirelay/internal/media"
	"bilirelay/internal/proxy"
)

type fakeResolver struct {
	calls int32
	err   error

	gotText    string
	gotBVID    media.BVID
	gotPage    int
	gotQuality media.Quality
}

func (f *fakeResolver) result(bvid media.BVID, page int, q media.Quality) *media.Resolution {
	mediaURL := "https://upos-sz-mirrorcos.bilivideo.com/" + bvid.String() + ".mp4"
	return &media.Resolution{
		BVID:        bvid,
		Page:        page,
		CID:         1000 + int64(page),
		Title:       "title",
		MediaURL:    mediaURL,
		PlayableURL: "/proxy?url=" + url.QueryEscape(mediaURL),
		Quality:     q,
		QualityName: q.String(),
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, text string, q media.Quality) (*media.Resolution, error) {
	atomic.AddInt32(&f.calls, 1)
	f.gotText, f.gotQuality = text, q
	if f.err != nil {
		return nil, f.err
	}
	if !strings.Contains(text, "BV") {
		return nil, errs.ErrNoIdentifier
	}
	return f.result("BV1GJ411x7h7", 1, q), nil
}

func (f *fakeResolver) ResolveID(ctx context.Context, bvid media.BVID, page int, q media.Quality) (*media.Resolution, error) {
	atomic.AddInt32(&f.calls, 1)
	f.gotBVID, f.gotPage, f.gotQuality = bvid, page, q
	if f.err != nil {
		return nil, f.err
	}
	return f.result(bvid, page, q), nil
}

func newTestServer(res Resolver) (*Server, *cache.Cache) {
	c := cache.New(cache.NewMemoryStore(), time.Minute)
	px := proxy.New(http.DefaultClient, []string{"bilivideo.com"})
	return New(res, c, px, media.Q1080P), c
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestHealthAndIndex(t *testing.T) {
	s, _ := newTestServer(&fakeResolver{})

	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("/health = %d %s", rec.Code, rec.Body.String())
	}

	rec = get(t, s, "/")
	if rec.Code != http.StatusOK || decode(t, rec)["name"] != "bilirelay" {
		t.Errorf("/ = %d %s", rec.Code, rec.Body.String())
	}
}

func TestResolveSuccess(t *testing.T) {
	f := &fakeResolver{}
	s, _ := newTestServer(f)

	text := "看这个 https://www.bilibili.com/video/BV1GJ411x7h7"
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resolve?qualityTier=64&text="+url.QueryEscape(text), nil)
	req.Header.Set("Origin", "https://player.example.com")
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["status"] != "success" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["identifier"] != "BV1GJ411x7h7" {
		t.Errorf("identifier = %v", body["identifier"])
	}
	if body["achievedQualityTier"] != float64(64) {
		t.Errorf("achievedQualityTier = %v", body["achievedQualityTier"])
	}
	if body["qualityLabel"] != "720p" {
		t.Errorf("qualityLabel = %v", body["qualityLabel"])
	}
	if p, _ := body["playableUrl"].(string); !strings.HasPrefix(p, "http://example.com/proxy?url=") {
		t.Errorf("playableUrl = %v", body["playableUrl"])
	}
	if f.gotText != text {
		t.Errorf("resolver got text %q", f.gotText)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestResolveDefaultQuality(t *testing.T) {
	f := &fakeResolver{}
	s, _ := newTestServer(f)

	get(t, s, "/resolve?qualityTier=abc&text=BV1GJ411x7h7")
	if f.gotQuality != media.Q1080P {
		t.Errorf("quality = %d, want default 80", f.gotQuality)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"no identifier", errs.ErrNoIdentifier, http.StatusBadRequest, "no video identifier found"},
		{"not found", &errs.UpstreamError{Code: -404, Message: "video not found", Kind: errs.ErrVideoNotFound}, http.StatusNotFound, "video not found"},
		{"access denied", &errs.UpstreamError{Code: -403, Message: "access denied", Kind: errs.ErrAccessDenied}, http.StatusForbidden, "access denied"},
		{"under review", &errs.UpstreamError{Code: 62004, Message: "video is under review", Kind: errs.ErrUnderReview}, http.StatusForbidden, "video is under review"},
		{"region", &errs.UpstreamError{Code: -10403, Message: "region", Kind: errs.ErrRegionRestricted}, http.StatusUnavailableForLegalReasons, "region"},
		{"key fetch", fmt.Errorf("%w: timeout", errs.ErrKeyFetch), http.StatusBadGateway, "upstream key fetch failed"},
		{"playback", &errs.PlaybackError{Tried: []int{80, 64}, LastErr: &errs.UpstreamError{Code: -500, Message: "busy", Kind: errs.ErrUpstream}}, http.StatusBadGateway, "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(&fakeResolver{err: tt.err})
			rec := get(t, s, "/resolve?text=BV1GJ411x7h7")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode(t, rec)
			if body["status"] != "error" {
				t.Errorf("status field = %v", body["status"])
			}
			if body["message"] != tt.wantMsg {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMsg)
			}
		})
	}
}

func TestResolveMissingText(t *testing.T) {
	f := &fakeResolver{}
	s, _ := newTestServer(f)

	rec := get(t, s, "/resolve?text=%20%20")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.calls != 0 {
		t.Errorf("resolver called %d times", f.calls)
	}
}

func TestResolveCached(t *testing.T) {
	f := &fakeResolver{}
	s, c := newTestServer(f)

	first := get(t, s, "/resolve?qualityTier=80&text=BV1GJ411x7h7")
	c.Wait()
	second := get(t, s, "/resolve?qualityTier=80&text=%20BV1GJ411x7h7%20")

	if f.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", f.calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("cached body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	get(t, s, "/resolve?qualityTier=64&text=BV1GJ411x7h7")
	c.Wait()
	if f.calls != 2 {
		t.Errorf("different tier should miss, calls = %d", f.calls)
	}
}

func TestResolveErrorsNotCached(t *testing.T) {
	f := &fakeResolver{err: errs.ErrUpstream}
	s, c := newTestServer(f)

	get(t, s, "/resolve?text=BV1GJ411x7h7")
	c.Wait()
	get(t, s, "/resolve?text=BV1GJ411x7h7")

	if f.calls != 2 {
		t.Errorf("resolver called %d times, want 2", f.calls)
	}
}

func TestJSONRoute(t *testing.T) {
	f := &fakeResolver{}
	s, c := newTestServer(f)

	rec := get(t, s, "/json/BV1xx411c7x?qn=64&p=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.gotBVID != "BV1xx411c7x" || f.gotPage != 2 || f.gotQuality != 64 {
		t.Errorf("resolver got %s p%d q%d", f.gotBVID, f.gotPage, f.gotQuality)
	}
	if decode(t, rec)["subPartIndex"] != float64(2) {
		t.Errorf("subPartIndex = %v", decode(t, rec)["subPartIndex"])
	}

	c.Wait()
	get(t, s, "/json/BV1xx411c7x?qn=64&p=2")
	if f.calls != 1 {
		t.Errorf("second request should be cached, calls = %d", f.calls)
	}

	rec = get(t, s, "/json/notabvid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid bvid status = %d, want 400", rec.Code)
	}
}

func TestRedirect(t *testing.T) {
	t.Run("bare identifier", func(t *testing.T) {
		f := &fakeResolver{}
		s, _ := newTestServer(f)

		rec := get(t, s, "/BV1xx411c7x?p=2&qn=32")
		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "http://example.com/proxy?url=") {
			t.Errorf("Location = %q", loc)
		}
		if f.gotBVID != "BV1xx411c7x" || f.gotPage != 2 || f.gotQuality != 32 {
			t.Errorf("resolver got %s p%d q%d", f.gotBVID, f.gotPage, f.gotQuality)
		}
	})

	t.Run("embedded link", func(t *testing.T) {
		f := &fakeResolver{}
		s, _ := newTestServer(f)

		rec := get(t, s, "/https://www.bilibili.com/video/BV1GJ411x7h7?p=3")
		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d", rec.Code)
		}
		if f.gotText != "https://www.bilibili.com/video/BV1GJ411x7h7?p=3" {
			t.Errorf("resolver got text %q", f.gotText)
		}
	})

	t.Run("no identifier", func(t *testing.T) {
		s, _ := newTestServer(&fakeResolver{})
		if rec := get(t, s, "/hello-world"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("resolution failure", func(t *testing.T) {
		s, _ := newTestServer(&fakeResolver{err: errs.ErrUpstream})
		if rec := get(t, s, "/BV1GJ411x7h7"); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestProxyRoute(t *testing.T) {
	s, _ := newTestServer(&fakeResolver{})

	if rec := get(t, s, "/proxy"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing url status = %d, want 400", rec.Code)
	}
	if rec := get(t, s, "/proxy?url="+url.QueryEscape("https://evil.example.com/a.mp4")); rec.Code != http.StatusForbidden {
		t.Errorf("foreign host status = %d, want 403", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(fmt.Errorf("wrapped: %w", errs.ErrInvalidProxyTarget)); got != http.StatusForbidden {
		t.Errorf("statusFor(invalid proxy target) = %d", got)
	}
	if got := statusFor(fmt.Errorf("boom")); got != http.StatusBadGateway {
		t.Errorf("statusFor(other) = %d", got)
	}
}
