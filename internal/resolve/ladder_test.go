package resolve

import (
	"reflect"
	"testing"

	"bilirelay/internal/media"
)

func TestBuildLadder(t *testing.T) {
	tests := []struct {
		name      string
		requested media.Quality
		want      []media.Quality
	}{
		{"1080p", 80, []media.Quality{80, 64, 32, 16}},
		{"720p", 64, []media.Quality{64, 32, 16}},
		{"480p", 32, []media.Quality{32, 16}},
		{"360p", 16, []media.Quality{16}},
		{"4K ceiling", 120, []media.Quality{120, 80, 64, 32, 16}},
		{"720p60 between standard tiers", 74, []media.Quality{74, 64, 32, 16}},
		{"below lowest standard tier", 6, []media.Quality{6}},
		{"zero uses default", 0, []media.Quality{80, 64, 32, 16}},
		{"negative uses default", -5, []media.Quality{80, 64, 32, 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildLadder(tt.requested)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildLadder(%d) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}

func TestBuildLadderMonotonic(t *testing.T) {
	for q := media.Quality(1); q <= 130; q++ {
		ladder := BuildLadder(q)
		if ladder[0] != q {
			t.Fatalf("BuildLadder(%d) starts at %d", q, ladder[0])
		}
		for i := 1; i < len(ladder); i++ {
			if ladder[i] >= ladder[i-1] {
				t.Fatalf("BuildLadder(%d) = %v is not strictly descending", q, ladder)
			}
			if ladder[i] > q {
				t.Fatalf("BuildLadder(%d) = %v exceeds the ceiling", q, ladder)
			}
		}
	}
}
