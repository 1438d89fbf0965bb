// Package bililive implements the BiliLive manifest and danmaku
// adapters: three-tier playinfo fallback, WBI-signed danmaku token
// fetch, and the zlib/brotli-layered binary danmaku connector.
package bililive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/variant"
)

// Endpoints groups the production hosts; test harnesses substitute local
// ones.
type Endpoints struct {
	APIBase  string // https://api.live.bilibili.com
	LiveBase string // https://live.bilibili.com
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		APIBase:  "https://api.live.bilibili.com",
		LiveBase: "https://live.bilibili.com",
	}
}

// ResolveOptions carries the knobs decode_manifest callers may tune.
type ResolveOptions struct {
	DropInaccessibleHighQualities bool
}

const defaultQn = 30000

func makeVariantID(qn int, label string) string {
	return variant.MakeID(model.SiteBiliLive, qn, label)
}

func getJSON(ctx context.Context, http *httpx.Client, url string) (map[string]any, error) {
	var v map[string]any
	if err := http.GetJSON(ctx, url, nil, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func ptr(v map[string]any, path ...string) any {
	var cur any = v
	for _, p := range path {
		switch c := cur.(type) {
		case map[string]any:
			cur = c[p]
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			cur = c[i]
		default:
			return nil
		}
	}
	return cur
}

func ptrStr(v map[string]any, path ...string) (string, bool) {
	s, ok := ptr(v, path...).(string)
	return s, ok
}

func ptrBool(v map[string]any, path ...string) (bool, bool) {
	b, ok := ptr(v, path...).(bool)
	return b, ok
}

func ptrInt64(v map[string]any, path ...string) (int64, bool) {
	switch n := ptr(v, path...).(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func ptrArray(v map[string]any, path ...string) ([]any, bool) {
	a, ok := ptr(v, path...).([]any)
	return a, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// parseRoomPlayinfoValue implements the exact Tier-A/Tier-C parsing logic:
// NeedPassword short-circuit, codec priority search, qn_desc -> variants.
func parseRoomPlayinfoValue(v map[string]any) ([]model.StreamVariant, error) {
	encrypted, _ := ptrBool(v, "data", "encrypted")
	pwdVerified, hasPwdVerified := ptrBool(v, "data", "pwd_verified")
	if encrypted && hasPwdVerified && !pwdVerified {
		return nil, model.New(model.KindNeedPassword, "room requires password")
	}

	qnDesc, ok := ptrArray(v, "data", "playurl_info", "playurl", "g_qn_desc")
	if !ok {
		return nil, model.New(model.KindParse, "missing g_qn_desc")
	}
	streams, ok := ptrArray(v, "data", "playurl_info", "playurl", "stream")
	if !ok {
		return nil, model.New(model.KindParse, "missing stream")
	}

	codec := findCodec(streams, "http_stream", "flv", "avc")
	if codec == nil {
		codec = findCodec(streams, "http_hls", "fmp4", "avc")
	}
	if codec == nil {
		return nil, model.New(model.KindParse, "no suitable codec")
	}

	currentQn, ok := asInt(codec["current_qn"])
	if !ok {
		return nil, model.New(model.KindParse, "missing current_qn")
	}
	acceptQn := map[int]bool{}
	if arr, ok := codec["accept_qn"].([]any); ok {
		for _, a := range arr {
			if n, ok := asInt(a); ok {
				acceptQn[n] = true
			}
		}
	}
	baseURL, ok := codec["base_url"].(string)
	if !ok {
		return nil, model.New(model.KindParse, "missing base_url")
	}
	urlInfo, ok := codec["url_info"].([]any)
	if !ok {
		return nil, model.New(model.KindParse, "missing url_info")
	}

	var urls []string
	for _, ui := range urlInfo {
		m, ok := asMap(ui)
		if !ok {
			continue
		}
		host, _ := m["host"].(string)
		extra, _ := m["extra"].(string)
		if host == "" {
			continue
		}
		urls = append(urls, host+baseURL+extra)
	}
	urls = sortMBGA(urls)

	var out []model.StreamVariant
	for _, item := range qnDesc {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		qn, _ := asInt(m["qn"])
		label, _ := m["desc"].(string)
		if qn <= 0 || label == "" {
			continue
		}
		if !acceptQn[qn] {
			continue
		}
		sv := model.StreamVariant{
			ID:      makeVariantID(qn, label),
			Label:   label,
			Quality: qn,
		}
		if qn == currentQn && len(urls) > 0 {
			sv.URL = urls[0]
			sv.BackupURLs = append([]string(nil), urls[1:]...)
		}
		out = append(out, sv)
	}
	return out, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func findCodec(streams []any, protocol, formatName, codecName string) map[string]any {
	for _, s := range streams {
		sm, ok := asMap(s)
		if !ok {
			continue
		}
		if pn, _ := sm["protocol_name"].(string); pn != protocol {
			continue
		}
		formats, ok := sm["format"].([]any)
		if !ok {
			continue
		}
		for _, f := range formats {
			fm, ok := asMap(f)
			if !ok {
				continue
			}
			if fn, _ := fm["format_name"].(string); fn != formatName {
				continue
			}
			codecs, ok := fm["codec"].([]any)
			if !ok {
				continue
			}
			for _, c := range codecs {
				cm, ok := asMap(c)
				if !ok {
					continue
				}
				if cn, _ := cm["codec_name"].(string); cn == codecName {
					return cm
				}
			}
		}
	}
	return nil
}

func fetchRoomPlayInfo(ctx context.Context, h *httpx.Client, ep Endpoints, rid int64, qn int) ([]model.StreamVariant, error) {
	url := fmt.Sprintf("%s/xlive/web-room/v2/index/getRoomPlayInfo?room_id=%d&protocol=0,1&format=0,1,2&codec=0,1&qn=%d&platform=web&ptype=8&dolby=5",
		strings.TrimRight(ep.APIBase, "/"), rid, qn)
	v, err := getJSON(ctx, h, url)
	if err != nil {
		return nil, err
	}
	return parseRoomPlayinfoValue(v)
}

func fetchPlayURL(ctx context.Context, h *httpx.Client, ep Endpoints, rid int64, qn int) ([]model.StreamVariant, error) {
	url := fmt.Sprintf("%s/room/v1/Room/playUrl?cid=%d&qn=%d&platform=web", strings.TrimRight(ep.APIBase, "/"), rid, qn)
	v, err := getJSON(ctx, h, url)
	if err != nil {
		return nil, err
	}
	currentQn, ok := ptrInt64(v, "data", "current_qn")
	if !ok {
		return nil, model.New(model.KindParse, "missing data.current_qn")
	}
	qnDesc, ok := ptrArray(v, "data", "quality_description")
	if !ok {
		return nil, model.New(model.KindParse, "missing data.quality_description")
	}
	var urls []string
	if durl, ok := ptrArray(v, "data", "durl"); ok {
		for _, d := range durl {
			dm, ok := asMap(d)
			if !ok {
				continue
			}
			if u, ok := dm["url"].(string); ok {
				urls = append(urls, u)
			}
		}
	}
	urls = sortMBGA(urls)

	var out []model.StreamVariant
	for _, item := range qnDesc {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		qnVal, _ := asInt(m["qn"])
		label, _ := m["desc"].(string)
		if qnVal <= 0 || label == "" {
			continue
		}
		sv := model.StreamVariant{ID: makeVariantID(qnVal, label), Label: label, Quality: qnVal}
		if int64(qnVal) == currentQn && len(urls) > 0 {
			sv.URL = urls[0]
			sv.BackupURLs = append([]string(nil), urls[1:]...)
		}
		out = append(out, sv)
	}
	return out, nil
}

func fetchHTMLFallback(ctx context.Context, h *httpx.Client, ep Endpoints, rid int64) ([]model.StreamVariant, error) {
	url := fmt.Sprintf("%s/%d", strings.TrimRight(ep.LiveBase, "/"), rid)
	text, err := h.GetText(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	const marker = "<script>window.__NEPTUNE_IS_MY_WAIFU__="
	idx := strings.Index(text, marker)
	if idx < 0 {
		return nil, model.New(model.KindParse, "missing __NEPTUNE_IS_MY_WAIFU__")
	}
	rest := text[idx+len(marker):]
	end := strings.Index(rest, "</script>")
	if end < 0 {
		return nil, model.New(model.KindParse, "missing __NEPTUNE_IS_MY_WAIFU__ closing tag")
	}
	blob := strings.TrimSpace(rest[:end])

	var doc map[string]any
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, model.Wrap(model.KindParse, "decode __NEPTUNE_IS_MY_WAIFU__", err)
	}
	roomInit, ok := asMap(doc["roomInitRes"])
	if !ok {
		return nil, model.New(model.KindParse, "missing roomInitRes")
	}

	vars, err := parseRoomPlayinfoValue(roomInit)
	if err != nil {
		return nil, err
	}
	for i := range vars {
		vars[i].ID = makeVariantID(vars[i].Quality, vars[i].Label)
	}
	return vars, nil
}

func fetchPlayinfo(ctx context.Context, h *httpx.Client, ep Endpoints, rid int64, qn int) ([]model.StreamVariant, error) {
	vars, err := fetchRoomPlayInfo(ctx, h, ep, rid, qn)
	if err == nil {
		return vars, nil
	}
	if k, ok := model.KindOf(err); ok && k == model.KindNeedPassword {
		return nil, err
	}
	vars, err = fetchPlayURL(ctx, h, ep, rid, qn)
	if err == nil {
		return vars, nil
	}
	return fetchHTMLFallback(ctx, h, ep, rid)
}

func applyDropInaccessible(vars []model.StreamVariant, opt ResolveOptions) []model.StreamVariant {
	if !opt.DropInaccessibleHighQualities {
		return vars
	}
	resolvedQ := -1
	for _, v := range vars {
		if v.URL != "" && v.Quality > resolvedQ {
			resolvedQ = v.Quality
		}
	}
	if resolvedQ < 0 {
		return vars
	}
	out := vars[:0:0]
	for _, v := range vars {
		if v.Quality <= resolvedQ {
			out = append(out, v)
		}
	}
	return out
}

// Manifest resolves a BiliLive short/long room id into a LiveManifest.
type Manifest struct {
	HTTP *httpx.Client
	Ep   Endpoints
}

func NewManifest(h *httpx.Client, ep Endpoints) *Manifest { return &Manifest{HTTP: h, Ep: ep} }

func (m *Manifest) DecodeManifest(ctx context.Context, roomID, rawInput string, opt ResolveOptions) (model.LiveManifest, error) {
	rid := strings.TrimSpace(roomID)
	if rid == "" {
		return model.LiveManifest{}, model.New(model.KindInvalidInput, "empty room id")
	}

	infoURL := fmt.Sprintf("%s/room/v1/Room/get_info?room_id=%s", strings.TrimRight(m.Ep.APIBase, "/"), rid)
	info, err := getJSON(ctx, m.HTTP, infoURL)
	if err != nil {
		return model.LiveManifest{}, err
	}
	canonicalRid, ok := ptrInt64(info, "data", "room_id")
	if !ok {
		return model.LiveManifest{}, model.New(model.KindParse, "missing data.room_id")
	}
	title, _ := ptrStr(info, "data", "title")
	liveStatus, _ := ptrInt64(info, "data", "live_status")
	cover, _ := ptrStr(info, "data", "user_cover")

	var name, avatar string
	anchorURL := fmt.Sprintf("%s/live_user/v1/UserInfo/get_anchor_in_room?roomid=%d", strings.TrimRight(m.Ep.APIBase, "/"), canonicalRid)
	if anchor, aerr := getJSON(ctx, m.HTTP, anchorURL); aerr == nil {
		name, _ = ptrStr(anchor, "data", "info", "uname")
		avatar, _ = ptrStr(anchor, "data", "info", "face")
	}

	vars, err := fetchPlayinfo(ctx, m.HTTP, m.Ep, canonicalRid, defaultQn)
	if err != nil {
		return model.LiveManifest{}, err
	}
	vars = applyDropInaccessible(vars, opt)
	sort.SliceStable(vars, func(i, j int) bool { return vars[i].Quality > vars[j].Quality })

	return model.LiveManifest{
		Site:     model.SiteBiliLive,
		RoomID:   strconv.FormatInt(canonicalRid, 10),
		RawInput: rawInput,
		Info: model.LiveInfo{
			Title:      title,
			AnchorName: name,
			Avatar:     avatar,
			Cover:      cover,
			IsLiving:   liveStatus == 1,
		},
		Playback: model.Playback{Referer: strings.TrimRight(m.Ep.LiveBase, "/") + "/"},
		Variants: vars,
	}, nil
}

func (m *Manifest) ResolveVariant(ctx context.Context, roomID, variantID string) (model.StreamVariant, error) {
	rid, err := strconv.ParseInt(strings.TrimSpace(roomID), 10, 64)
	if err != nil {
		return model.StreamVariant{}, model.New(model.KindInvalidInput, "invalid room_id")
	}
	qn, _, err := variant.ParseID(variantID)
	if err != nil {
		return model.StreamVariant{}, model.New(model.KindInvalidInput, "invalid variant_id")
	}
	vars, err := fetchPlayinfo(ctx, m.HTTP, m.Ep, rid, qn)
	if err != nil {
		return model.StreamVariant{}, err
	}
	for _, v := range vars {
		if v.Quality == qn {
			v.ID = makeVariantID(qn, v.Label)
			return v, nil
		}
	}
	return model.StreamVariant{}, model.New(model.KindParse, "variant not found")
}

// sortMBGA copies urls and orders them by internal/variant's MBGA
// host-class policy.
func sortMBGA(urls []string) []string {
	out := append([]string(nil), urls...)
	variant.SortMBGA(out, mbgaHost)
	return out
}

// mbgaHost extracts the bare host from a playback URL for
// variant.SortMBGA's hostOf callback.
func mbgaHost(u string) string {
	host := u
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
