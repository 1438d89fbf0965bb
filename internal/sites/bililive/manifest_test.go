package bililive

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Endpoints) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, Endpoints{APIBase: srv.URL, LiveBase: srv.URL}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestDecodeManifestGetRoomPlayInfo(t *testing.T) {
	srv, ep := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/room/v1/Room/get_info":
			writeJSON(w, map[string]any{"data": map[string]any{
				"room_id": 12345, "title": "测试直播间", "live_status": 1, "user_cover": "https://img.example.com/cover.jpg",
			}})
		case r.URL.Path == "/live_user/v1/UserInfo/get_anchor_in_room":
			writeJSON(w, map[string]any{"data": map[string]any{"info": map[string]any{"uname": "主播", "face": "https://img.example.com/face.jpg"}}})
		case r.URL.Path == "/xlive/web-room/v2/index/getRoomPlayInfo":
			writeJSON(w, map[string]any{"data": map[string]any{
				"encrypted": false,
				"playurl_info": map[string]any{"playurl": map[string]any{
					"g_qn_desc": []any{
						map[string]any{"qn": 10000, "desc": "原画"},
						map[string]any{"qn": 400, "desc": "蓝光"},
					},
					"stream": []any{
						map[string]any{"protocol_name": "http_stream", "format": []any{
							map[string]any{"format_name": "flv", "codec": []any{
								map[string]any{
									"codec_name": "avc", "current_qn": 10000, "accept_qn": []any{10000, 400},
									"base_url": "/live-bvc/test.flv", "url_info": []any{
										map[string]any{"host": "https://cn-gotcha01.bilivideo.com", "extra": "?expires=1"},
										map[string]any{"host": "https://up-mirror.bilivideo.com", "extra": "?expires=1"},
									},
								},
							}},
						}},
					},
				}},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	_ = srv

	h := httpx.New(0)
	m := NewManifest(h, ep)
	manifest, err := m.DecodeManifest(t.Context(), "12345", "bililive:12345", ResolveOptions{})
	require.NoError(t, err)
	require.Equal(t, "12345", manifest.RoomID)
	require.Equal(t, "测试直播间", manifest.Info.Title)
	require.True(t, manifest.Info.IsLiving)
	require.Len(t, manifest.Variants, 2)

	var top model.StreamVariant
	for _, v := range manifest.Variants {
		if v.Quality == 10000 {
			top = v
		}
	}
	require.NotEmpty(t, top.URL)
	require.Contains(t, top.URL, "up-mirror.bilivideo.com")
	require.Len(t, top.BackupURLs, 1)
}

func TestDecodeManifestNeedPassword(t *testing.T) {
	_, ep := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/room/v1/Room/get_info":
			writeJSON(w, map[string]any{"data": map[string]any{"room_id": 777, "live_status": 1}})
		case "/live_user/v1/UserInfo/get_anchor_in_room":
			writeJSON(w, map[string]any{"data": map[string]any{"info": map[string]any{}}})
		case "/xlive/web-room/v2/index/getRoomPlayInfo":
			writeJSON(w, map[string]any{"data": map[string]any{"encrypted": true, "pwd_verified": false}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	h := httpx.New(0)
	m := NewManifest(h, ep)
	_, err := m.DecodeManifest(t.Context(), "777", "bililive:777", ResolveOptions{})
	require.Error(t, err)
	k, ok := model.KindOf(err)
	require.True(t, ok)
	require.Equal(t, model.KindNeedPassword, k)
}

func TestDecodeManifestEmptyRoomID(t *testing.T) {
	h := httpx.New(0)
	m := NewManifest(h, DefaultEndpoints())
	_, err := m.DecodeManifest(t.Context(), "  ", "bililive:", ResolveOptions{})
	require.Error(t, err)
}
