package wbi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"bilirelay/internal/errs"
)

const (
	testImgURL = "https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png"
	testSubURL = "https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png"
)

func TestKeysFromURLs(t *testing.T) {
	k, err := KeysFromURLs(testImgURL, testSubURL)
	if err != nil {
		t.Fatalf("KeysFromURLs() error: %v", err)
	}
	if k.Img != "7cd084941338484aae1ad9425b84077c" {
		t.Errorf("Img = %q", k.Img)
	}
	if k.Sub != "4932caff0ff746eab6f01bf08b70ac45" {
		t.Errorf("Sub = %q", k.Sub)
	}
}

func TestKeysFromURLsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		img    string
		sub    string
	}{
		{"empty img", "", testSubURL},
		{"empty sub", testImgURL, ""},
		{"too short", "https://i0.hdslb.com/bfs/wbi/abc.png", "https://i0.hdslb.com/bfs/wbi/def.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := KeysFromURLs(tt.img, tt.sub); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMixinKey(t *testing.T) {
	k := Keys{Img: "7cd084941338484aae1ad9425b84077c", Sub: "4932caff0ff746eab6f01bf08b70ac45"}

	got, err := k.MixinKey()
	if err != nil {
		t.Fatalf("MixinKey() error: %v", err)
	}
	if got != "ea1db124af3c7062474693fa704f4ff8" {
		t.Errorf("MixinKey() = %q", got)
	}

	again, _ := k.MixinKey()
	if again != got {
		t.Error("MixinKey() is not deterministic")
	}
}

func TestMixinKeyLength(t *testing.T) {
	for _, n := range []int{64, 65, 100, 512} {
		got, err := MixinKey(strings.Repeat("abcdefghij", n/10+1)[:n])
		if err != nil {
			t.Fatalf("MixinKey(len %d) error: %v", n, err)
		}
		if len(got) != mixinKeyLen {
			t.Errorf("MixinKey(len %d) length = %d, want %d", n, len(got), mixinKeyLen)
		}
	}

	if _, err := MixinKey(strings.Repeat("a", 63)); err == nil {
		t.Error("expected error for 63-byte input")
	}
}

func TestSignKnownVector(t *testing.T) {
	k := Keys{Img: "7cd084941338484aae1ad9425b84077c", Sub: "4932caff0ff746eab6f01bf08b70ac45"}
	params := url.Values{}
	params.Set("foo", "114")
	params.Set("bar", "514")
	params.Set("zab", "1919810")

	got, err := k.Sign(params, time.Unix(1702204169, 0))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	want := "bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4"
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestSignOrderIndependent(t *testing.T) {
	k := Keys{Img: "7cd084941338484aae1ad9425b84077c", Sub: "4932caff0ff746eab6f01bf08b70ac45"}
	now := time.Unix(1700000000, 0)

	pairs := [][2]string{{"bvid", "BV1GJ411x7h7"}, {"cid", "190597915"}, {"qn", "80"}, {"fnval", "1"}}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}

	var first string
	for i, order := range orders {
		params := url.Values{}
		for _, idx := range order {
			params.Add(pairs[idx][0], pairs[idx][1])
		}
		got, err := k.Sign(params, now)
		if err != nil {
			t.Fatalf("Sign() error: %v", err)
		}
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Errorf("order %v produced %q, want %q", order, got, first)
		}
	}
}

func TestCanonicalEncoding(t *testing.T) {
	params := url.Values{}
	params.Set("keyword", "hello world (test)!")
	params.Set("a", "中")

	got := Canonical(params, time.Unix(1, 0))
	want := "a=%E4%B8%AD&keyword=hello%20world%20test&wts=1"
	if got != want {
		t.Errorf("Canonical() = %q, want %q", got, want)
	}
}

func TestSignDigest(t *testing.T) {
	k := Keys{Img: strings.Repeat("a", 32), Sub: strings.Repeat("b", 32)}
	params := url.Values{"x": {"1"}}
	now := time.Unix(42, 0)

	got, err := k.Sign(params, now)
	if err != nil {
		t.Fatal(err)
	}

	mixin, _ := k.MixinKey()
	sum := md5.Sum([]byte("wts=42&x=1" + mixin))
	want := "wts=42&x=1&w_rid=" + hex.EncodeToString(sum[:])
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

type fakeSource struct {
	img, sub string
	err      error
	calls    int
}

func (f *fakeSource) WbiImages(ctx context.Context) (string, string, error) {
	f.calls++
	return f.img, f.sub, f.err
}

func TestSignerKeyFetchFailure(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{"transport error", &fakeSource{err: errors.New("connection reset")}},
		{"malformed urls", &fakeSource{img: "https://i0.hdslb.com/", sub: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSigner(tt.src)
			_, err := s.Sign(context.Background(), url.Values{"a": {"1"}})
			if !errors.Is(err, errs.ErrKeyFetch) {
				t.Errorf("Sign() error = %v, want ErrKeyFetch", err)
			}
			if tt.src.calls != 1 {
				t.Errorf("key source called %d times, want exactly 1", tt.src.calls)
			}
		})
	}
}

func TestSignerSign(t *testing.T) {
	src := &fakeSource{img: testImgURL, sub: testSubURL}
	s := NewSigner(src)
	s.now = func() time.Time { return time.Unix(1702204169, 0) }

	params := url.Values{}
	params.Set("zab", "1919810")
	params.Set("foo", "114")
	params.Set("bar", "514")

	got, err := s.Sign(context.Background(), params)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !strings.HasSuffix(got, "&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4") {
		t.Errorf("Sign() = %q", got)
	}
}
