// Package wbi implements the request signing scheme required by the upstream
// metadata and playback endpoints.
//
// Every signed request carries a "wts" timestamp and a "w_rid" digest. The
// digest is the MD5 of the sorted, percent-encoded query concatenated with a
// 32-character mixin key. The mixin key is derived from two key strings that
// the navigation endpoint publishes as image URLs.
package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// mixinKeyEncTab is the fixed permutation applied to imgKey+subKey.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

const mixinKeyLen = 32

// Keys is the signing key material for one signing operation.
type Keys struct {
	Img string
	Sub string
}

// KeysFromURLs derives the key strings from the two image URLs served by the
// navigation endpoint: the last path segment without its extension.
func KeysFromURLs(imgURL, subURL string) (Keys, error) {
	img, err := keyFromURL(imgURL)
	if err != nil {
		return Keys{}, fmt.Errorf("img_url: %w", err)
	}
	sub, err := keyFromURL(subURL)
	if err != nil {
		return Keys{}, fmt.Errorf("sub_url: %w", err)
	}
	k := Keys{Img: img, Sub: sub}
	if _, err := k.MixinKey(); err != nil {
		return Keys{}, err
	}
	return k, nil
}

func keyFromURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty key URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing key URL: %w", err)
	}
	base := path.Base(u.Path)
	key := strings.TrimSuffix(base, path.Ext(base))
	if key == "" || key == "." || key == "/" {
		return "", fmt.Errorf("no key in %q", raw)
	}
	return key, nil
}

// MixinKey returns the 32-character key mixed from Img+Sub via the permutation table.
func (k Keys) MixinKey() (string, error) {
	return MixinKey(k.Img + k.Sub)
}

// MixinKey permutes orig through the fixed table and truncates to 32 characters.
// orig must be at least 64 bytes long.
func MixinKey(orig string) (string, error) {
	if len(orig) < len(mixinKeyEncTab) {
		return "", fmt.Errorf("key material too short: %d bytes, need %d", len(orig), len(mixinKeyEncTab))
	}
	var b strings.Builder
	b.Grow(mixinKeyLen)
	for _, n := range mixinKeyEncTab[:mixinKeyLen] {
		b.WriteByte(orig[n])
	}
	return b.String(), nil
}

// Sign returns the canonical signed query for params at the given time.
// The result does not depend on the order params were inserted in.
func (k Keys) Sign(params url.Values, now time.Time) (string, error) {
	mixin, err := k.MixinKey()
	if err != nil {
		return "", err
	}

	query := Canonical(params, now)
	sum := md5.Sum([]byte(query + mixin))
	return query + "&w_rid=" + hex.EncodeToString(sum[:]), nil
}

// Canonical serializes params plus the wts timestamp sorted by key.
// Only the first value of each key is used.
func Canonical(params url.Values, now time.Time) string {
	all := make(map[string]string, len(params)+1)
	for k, v := range params {
		if k == "w_rid" || len(v) == 0 {
			continue
		}
		all[k] = v[0]
	}
	all["wts"] = strconv.FormatInt(now.Unix(), 10)

	keys := lo.Keys(all)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, encodeComponent(k)+"="+encodeComponent(filterValue(all[k])))
	}
	return strings.Join(parts, "&")
}

// filterValue drops the characters the upstream strips before verifying.
func filterValue(v string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune("!'()*", r) {
			return -1
		}
		return r
	}, v)
}

// encodeComponent percent-encodes like encodeURIComponent: spaces become %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
