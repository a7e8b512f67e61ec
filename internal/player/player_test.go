package player

import (
	"slices"
	"testing"

	"bilirelay/internal/httputil"
	"bilirelay/internal/media"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{"", "mpv", false},
		{"mpv", "mpv", false},
		{"VLC", "vlc", false},
		{"notepad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestArgs(t *testing.T) {
	res := &media.Resolution{
		Title:    "--evil-flag",
		MediaURL: "https://upos.bilivideo.com/v.mp4",
	}

	mpv := mpvArgs(res)
	if mpv[len(mpv)-1] != res.MediaURL || mpv[len(mpv)-2] != "--" {
		t.Errorf("mpv args should end with -- and the URL: %v", mpv)
	}
	if !slices.Contains(mpv, "--referrer="+httputil.Referer) {
		t.Errorf("mpv args missing referrer: %v", mpv)
	}
	if !slices.Contains(mpv, "--force-media-title=--evil-flag") {
		t.Errorf("title should stay inside its option: %v", mpv)
	}

	vlc := vlcArgs(res)
	if vlc[len(vlc)-1] != res.MediaURL {
		t.Errorf("vlc args should end with the URL: %v", vlc)
	}
	if !slices.Contains(vlc, "--http-referrer="+httputil.Referer) {
		t.Errorf("vlc args missing referrer: %v", vlc)
	}
}
