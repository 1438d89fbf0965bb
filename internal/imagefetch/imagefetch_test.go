package imagefetch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/registry"
)

func openTestSession(t *testing.T, site model.Site, roomID string) (*registry.Registry, string) {
	t.Helper()
	reg := registry.New(nil)
	run := func(ctx context.Context, sink *model.EventChannel) error {
		<-ctx.Done()
		return nil
	}
	sessionID, _, err := reg.OpenLive(site, roomID, run)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.CloseLive(sessionID) })
	return reg, sessionID
}

// publicImageBase is a documentation-range public address (TEST-NET-3)
// that passes the SSRF guard; the test server's own 127.0.0.1 address is
// blocked, so newTestFetcher's transport dials the test server for it.
const publicImageBase = "http://203.0.113.10"

func newTestFetcher(reg *registry.Registry, cfg Config, srv *httptest.Server) *Fetcher {
	f := New(reg, cfg)
	addr := srv.Listener.Addr().String()
	f.http.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	return f
}

func TestFetchImageSetsBiliLiveReferer(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	reg, sessionID := openTestSession(t, model.SiteBiliLive, "12345")
	f := newTestFetcher(reg, DefaultConfig(), srv)

	img, err := f.FetchImage(t.Context(), sessionID, publicImageBase+"/emote.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", img.Mime)
	require.NotEmpty(t, img.Base64)
	require.Equal(t, "https://live.bilibili.com/12345/", gotReferer)
}

func TestFetchImageNoRefererForNonBiliLive(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	defer srv.Close()

	reg, sessionID := openTestSession(t, model.SiteDouyu, "1")
	f := newTestFetcher(reg, DefaultConfig(), srv)

	_, err := f.FetchImage(t.Context(), sessionID, publicImageBase+"/emote.jpg")
	require.NoError(t, err)
	require.Empty(t, gotReferer)
}

func TestFetchImageCachesSecondRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	reg, sessionID := openTestSession(t, model.SiteBiliLive, "1")
	f := newTestFetcher(reg, DefaultConfig(), srv)

	url := publicImageBase + "/emote.png"
	_, err := f.FetchImage(t.Context(), sessionID, url)
	require.NoError(t, err)
	_, err = f.FetchImage(t.Context(), sessionID, url)
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}

func TestFetchImageRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	reg, sessionID := openTestSession(t, model.SiteBiliLive, "1")
	cfg := DefaultConfig()
	cfg.MaxBytes = 8
	f := newTestFetcher(reg, cfg, srv)

	_, err := f.FetchImage(t.Context(), sessionID, publicImageBase+"/big.png")
	require.Error(t, err)
	k, ok := model.KindOf(err)
	require.True(t, ok)
	require.Equal(t, model.KindImageTooLarge, k)
}

func TestFetchImageBlocksPrivateHost(t *testing.T) {
	reg, sessionID := openTestSession(t, model.SiteBiliLive, "1")
	f := New(reg, DefaultConfig())

	_, err := f.FetchImage(t.Context(), sessionID, "http://127.0.0.1:1/image.png")
	require.Error(t, err)
	k, ok := model.KindOf(err)
	require.True(t, ok)
	require.Equal(t, model.KindBlockedHost, k)
}

func TestFetchImageUnknownSession(t *testing.T) {
	reg := registry.New(nil)
	f := New(reg, DefaultConfig())

	_, err := f.FetchImage(t.Context(), "no-such-session", "https://example.com/a.png")
	require.Error(t, err)
	k, ok := model.KindOf(err)
	require.True(t, ok)
	require.Equal(t, model.KindSessionNotFound, k)
}

func TestFetchImageRejectsNonHTTPScheme(t *testing.T) {
	reg, sessionID := openTestSession(t, model.SiteBiliLive, "1")
	f := New(reg, DefaultConfig())

	_, err := f.FetchImage(t.Context(), sessionID, "ftp://example.com/a.png")
	require.Error(t, err)
	k, ok := model.KindOf(err)
	require.True(t, ok)
	require.Equal(t, model.KindUnsupportedURLScheme, k)
}
