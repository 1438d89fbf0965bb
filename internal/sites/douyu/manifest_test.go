package douyu

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/httpx"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Endpoints {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return Endpoints{Base: srv.URL, P2PScheme: "https", CDNScheme: "https"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestParseRoomIDFromHTML(t *testing.T) {
	html := `<html><script>var $ROOM = "roomInfo":{"room":{"room_id":54321,"show_status":1}};</script></html>`
	rid, isLiving, err := parseRoomIDFromHTML(html)
	require.NoError(t, err)
	require.Equal(t, int64(54321), rid)
	require.True(t, isLiving)
}

func TestParseRoomIDFromHTMLFallback(t *testing.T) {
	html := `var data = { room_id: 99887 };`
	rid, isLiving, err := parseRoomIDFromHTML(html)
	require.NoError(t, err)
	require.Equal(t, int64(99887), rid)
	require.False(t, isLiving)
}

func TestDecodeManifestEndToEnd(t *testing.T) {
	ep := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/54321":
			fmt.Fprint(w, `<html>"roomInfo":{"room":{"room_id":54321,"show_status":1}}</html>`)
		case r.URL.Path == "/betard/54321":
			writeJSON(w, map[string]any{"room": map[string]any{
				"room_name": "测试弹幕间", "nickname": "主播", "avatar": map[string]any{"big": "https://img.example.com/a.jpg"},
				"room_pic": "https://img.example.com/c.jpg", "show_status": float64(1),
			}})
		case strings.HasPrefix(r.URL.Path, "/wgapi/livenc/liveweb/websec/getEncryption"):
			writeJSON(w, map[string]any{"error": float64(0), "data": map[string]any{
				"key": "k", "rand_str": "r", "enc_time": float64(1700000000), "enc_data": "encoded==", "is_special": float64(0),
			}})
		case r.URL.Path == "/lapi/live/getH5PlayV1/54321":
			writeJSON(w, map[string]any{"data": map[string]any{
				"rate": float64(0), "rtmp_url": "https://cdn.example.com/live", "rtmp_live": "54321.flv",
				"multirates": []any{
					map[string]any{"name": "高清", "rate": float64(0), "bit": float64(4000)},
					map[string]any{"name": "标清", "rate": float64(1), "bit": float64(1000)},
				},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	h := httpx.New(0)
	m := NewManifest(h, ep)
	manifest, err := m.DecodeManifest(t.Context(), "54321", "douyu:54321", ResolveOptions{})
	require.NoError(t, err)
	require.Equal(t, "54321", manifest.RoomID)
	require.Equal(t, "测试弹幕间", manifest.Info.Title)
	require.True(t, manifest.Info.IsLiving)
	require.Len(t, manifest.Variants, 2)
	require.Equal(t, "高清", manifest.Variants[0].Label)
	require.Equal(t, "https://cdn.example.com/live/54321.flv", manifest.Variants[0].URL)
}

func TestBuildPlayURLsNoP2PMeta(t *testing.T) {
	ep := DefaultEndpoints()
	flv, p2p := buildPlayURLs(ep, "https://cdn.example.com/live", "54321.flv", nil, nil)
	require.Equal(t, "https://cdn.example.com/live/54321.flv", flv)
	require.Empty(t, p2p)
}

func TestBuildCDNURL(t *testing.T) {
	ep := DefaultEndpoints()
	u, ok := buildCDNURL(ep, "cdn.example.com", "54321.flv")
	require.True(t, ok)
	require.Equal(t, "https://cdn.example.com/54321.xs", u)

	_, ok = buildCDNURL(ep, "", "54321.flv")
	require.False(t, ok)
}
