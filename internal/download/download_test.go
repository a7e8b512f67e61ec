package download

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
)

func TestDownload(t *testing.T) {
	const payload = "not really an mp4"

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != httputil.Referer {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		io.WriteString(w, payload)
	}))
	defer ts.Close()

	dir := t.TempDir()
	res := &media.Resolution{
		BVID:     "BV1GJ411x7h7",
		Title:    "../part/one",
		MediaURL: ts.URL + "/v.mp4",
	}

	path, err := Download(context.Background(), ts.Client(), res, dir)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("file written outside %s: %s", dir, path)
	}
	if filepath.Base(path) != "one.mp4" {
		t.Errorf("file name = %q, want one.mp4", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != payload {
		t.Errorf("content = %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the final file, found %d entries", len(entries))
	}
}

func TestDownloadFailureLeavesNothing(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	dir := t.TempDir()
	res := &media.Resolution{BVID: "BV1GJ411x7h7", MediaURL: ts.URL + "/v.mp4"}

	if _, err := Download(context.Background(), ts.Client(), res, dir); err == nil {
		t.Fatal("Download() should fail on 403")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("failed download left %d entries", len(entries))
	}
}
