// Package imagefetch implements the SSRF-guarded, cached image proxy
// used to re-fetch hot-linked emotes and avatars on behalf of callers
// that can't set platform-specific referers themselves.
package imagefetch

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/registry"
)

type Config struct {
	Timeout         time.Duration
	MaxBytes        int64
	CacheMaxEntries int
	CacheMaxBytes   int64
}

func DefaultConfig() Config {
	return Config{
		Timeout:         12 * time.Second,
		MaxBytes:        2_500_000,
		CacheMaxEntries: 256,
		CacheMaxBytes:   64 * 1024 * 1024,
	}
}

// Image is the decoded, size-bounded result of a fetch.
type Image struct {
	Mime   string
	Base64 string
}

type Fetcher struct {
	http      *http.Client
	userAgent string
	cfg       Config
	sessions  *registry.Registry
	bytes     *byteLRU
	mimes     *mimeLRU
}

func New(sessions *registry.Registry, cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Fetcher{
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: httpx.DefaultUserAgent,
		cfg:       cfg,
		sessions:  sessions,
		bytes:     newByteLRU(cfg.CacheMaxEntries, cfg.CacheMaxBytes),
		mimes:     newMimeLRU(cfg.CacheMaxEntries),
	}
}

// FetchImage implements the §4.8 algorithm: URL/scheme validation, SSRF
// guard, session lookup, cache check, site-aware referer, size-bounded
// GET, and cache insert.
func (f *Fetcher) FetchImage(ctx context.Context, sessionID, rawURL string) (Image, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Image{}, model.Wrap(model.KindUnsupportedURLScheme, "invalid image url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Image{}, model.New(model.KindUnsupportedURLScheme, "image url scheme must be http or https")
	}
	if isBlockedHost(ctx, parsed.Hostname()) {
		return Image{}, model.New(model.KindBlockedHost, "image host is blocked: "+parsed.Hostname())
	}

	meta, ok := f.sessions.Meta(sessionID)
	if !ok {
		return Image{}, model.New(model.KindSessionNotFound, "session not found: "+sessionID)
	}

	key := cacheKey{sessionID: sessionID, url: rawURL}
	if data, ok := f.bytes.Get(key); ok {
		mime, _ := f.mimes.Get(key)
		if mime == "" {
			mime = "image/png"
		}
		return Image{Mime: mime, Base64: base64.StdEncoding.EncodeToString(data)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Image{}, model.Wrap(model.KindHTTP, "build image request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if referer := siteReferer(meta); referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return Image{}, model.Wrap(model.KindHTTP, "GET "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Image{}, model.New(model.KindHTTP, "http "+strconv.Itoa(resp.StatusCode)+" when fetching image")
	}
	if resp.ContentLength > 0 && resp.ContentLength > f.cfg.MaxBytes {
		return Image{}, model.New(model.KindImageTooLarge, "content-length exceeds image_max_bytes")
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return Image{}, model.Wrap(model.KindHTTP, "read image body", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return Image{}, model.New(model.KindImageTooLarge, "image body exceeds image_max_bytes")
	}

	mime := firstMediaType(resp.Header.Get("Content-Type"))
	if mime == "" {
		mime = firstMediaType(mimetype.Detect(data).String())
	}
	if mime == "" {
		mime = "image/png"
	}

	f.bytes.Add(key, data)
	f.mimes.Add(key, mime)

	return Image{Mime: mime, Base64: base64.StdEncoding.EncodeToString(data)}, nil
}

func firstMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

// siteReferer applies the site-aware referer rule: BiliLive always gets
// a live.bilibili.com referer (room-scoped when known); other sites get
// none by default.
func siteReferer(meta registry.Meta) string {
	if meta.Site != model.SiteBiliLive {
		return ""
	}
	if meta.RoomID == "" {
		return "https://live.bilibili.com/"
	}
	return "https://live.bilibili.com/" + meta.RoomID + "/"
}
