// Package variant implements the "best playable URL" selection policy
// shared by every manifest resolver, plus the variant-id codec.
package variant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MatchaCake/livecore/internal/model"
)

// MakeID formats a variant id as "{site}:{qn_or_rate}:{label}".
func MakeID(site model.Site, qnOrRate int, label string) string {
	return fmt.Sprintf("%s:%d:%s", site, qnOrRate, label)
}

// ParseID is the inverse of MakeID: it recovers (qnOrRate, label) from an
// id, ignoring the site prefix (callers already know which adapter they
// asked).
func ParseID(id string) (qnOrRate int, label string, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return 0, "", model.New(model.KindParse, "malformed variant id: "+id)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", model.Wrap(model.KindParse, "malformed variant id quality: "+id, err)
	}
	return n, parts[2], nil
}

var playableSubstrings = []string{".m3u8", ".mp4", ".ism/", ".ism?", "manifest(format=m3u8)"}

// IsMediaPlayerPlayableURL reports whether url is a format the embedded
// media player tolerates (it typically rejects bare FLV).
func IsMediaPlayerPlayableURL(url string) bool {
	lower := strings.ToLower(url)
	for _, sub := range playableSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// ResolveVariantFunc re-resolves a single variant id to a populated URL;
// implemented per site adapter.
type ResolveVariantFunc func(variantID string) (model.StreamVariant, error)

// SelectAndResolveVariant picks a variant via a two-pass policy: first
// look for an already-resolved URL that plays, then probe-resolve
// candidates in order, falling back to the first-seen URL.
// An explicit variantIDOverride short-circuits straight to a single
// resolve call.
func SelectAndResolveVariant(variants []model.StreamVariant, preferLowest bool, variantIDOverride string, resolve ResolveVariantFunc) (model.StreamVariant, error) {
	if variantIDOverride != "" {
		return resolve(variantIDOverride)
	}

	named := make([]model.StreamVariant, 0, len(variants))
	for _, v := range variants {
		if v.ID != "" {
			named = append(named, v)
		}
	}
	if len(named) == 0 {
		return model.StreamVariant{}, model.New(model.KindLivestream, "no variants")
	}

	sort.SliceStable(named, func(i, j int) bool {
		if preferLowest {
			return named[i].Quality < named[j].Quality
		}
		return named[i].Quality > named[j].Quality
	})

	var fallback model.StreamVariant
	haveFallback := false

	// Pass 1: already-resolved URLs.
	for _, v := range named {
		if v.URL == "" {
			continue
		}
		if !haveFallback {
			fallback = v
			haveFallback = true
		}
		if IsMediaPlayerPlayableURL(v.URL) {
			return v, nil
		}
	}

	// Pass 2: probe-resolve variants lacking a URL.
	for _, v := range named {
		if v.URL != "" {
			continue
		}
		resolved, err := resolve(v.ID)
		if err != nil {
			continue
		}
		if resolved.URL == "" {
			continue
		}
		if !haveFallback {
			fallback = resolved
			haveFallback = true
		}
		if IsMediaPlayerPlayableURL(resolved.URL) {
			return resolved, nil
		}
	}

	if haveFallback {
		return fallback, nil
	}
	return model.StreamVariant{}, model.New(model.KindLivestream, "missing url")
}

// MBGAHostClass buckets a CDN host into the mirror-best-guess-ahead
// preference policy. Lower return value sorts earlier.
func MBGAHostClass(host string) int {
	switch {
	case strings.HasPrefix(host, "up-mirror.bilivideo.com"):
		return 0
	case strings.HasPrefix(host, "cn-gotcha"):
		return 1
	case strings.HasPrefix(host, "mcdn.bilivideo.cn"):
		return 2
	default:
		return 3
	}
}

// SortMBGA orders candidate (host, url) pairs by MBGA host-class,
// preserving relative order within a class (stable).
func SortMBGA(urls []string, hostOf func(url string) string) {
	sort.SliceStable(urls, func(i, j int) bool {
		return MBGAHostClass(hostOf(urls[i])) < MBGAHostClass(hostOf(urls[j]))
	})
}
