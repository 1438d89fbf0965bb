// Package signcodec implements the request-signing algorithms and
// brace-balanced HTML/JSON extraction shared by the site adapters.
package signcodec

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
)

// mixinKeyTable is the fixed 64-entry permutation used to derive the WBI
// mixin key from img_key+sub_key.
var mixinKeyTable = []int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// WBIKeys holds the two key fragments published via the nav endpoint.
type WBIKeys struct {
	ImgKey string
	SubKey string
}

// KeyFromURL extracts the last path component without its extension, the
// shape both img_url and sub_url are published in.
func KeyFromURL(rawURL string) string {
	base := path.Base(rawURL)
	return strings.TrimSuffix(base, path.Ext(base))
}

// MixinKey derives the 32-char signing key from the two WBI key fragments.
func MixinKey(keys WBIKeys) string {
	raw := keys.ImgKey + keys.SubKey
	var b strings.Builder
	for _, idx := range mixinKeyTable {
		if idx < len(raw) {
			b.WriteByte(raw[idx])
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}

// sanitizeWbiValue strips the characters WBI signing treats as illegal in
// a parameter value before URL-encoding it.
func sanitizeWbiValue(v string) string {
	return strings.NewReplacer("!", "", "'", "", "(", "", ")", "", "*", "").Replace(v)
}

// SignWBI signs params with the mixin key derived from keys, inserting
// wts=nowSeconds, and returns the full signed query string including
// w_rid.
func SignWBI(params map[string]string, keys WBIKeys, nowSeconds int64) string {
	mixin := MixinKey(keys)

	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["wts"] = strconv.FormatInt(nowSeconds, 10)

	names := make([]string, 0, len(merged))
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	var q strings.Builder
	for i, k := range names {
		if i > 0 {
			q.WriteByte('&')
		}
		q.WriteString(url.QueryEscape(k))
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(sanitizeWbiValue(merged[k])))
	}

	sum := md5.Sum([]byte(q.String() + mixin))
	q.WriteString("&w_rid=")
	q.WriteString(hex.EncodeToString(sum[:]))
	return q.String()
}
