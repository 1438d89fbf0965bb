// Package douyu implements the Douyu manifest resolver: brace-balanced
// HTML scraping for the room id, a betard metadata fetch, and the
// getEncryption + H5 playurl dance that yields playable stream variants.
package douyu

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/signcodec"
)

type Endpoints struct {
	Base     string
	P2PScheme string
	CDNScheme string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{Base: "https://www.douyu.com", P2PScheme: "https", CDNScheme: "https"}
}

type ResolveOptions struct{}

func makeVariantID(rate int, label string) string {
	return fmt.Sprintf("douyu:%d:%s", rate, label)
}

func getJSON(ctx context.Context, h *httpx.Client, u string) (map[string]any, error) {
	var v map[string]any
	if err := h.GetJSON(ctx, u, nil, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func ptr(v map[string]any, path ...string) any {
	var cur any = v
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func ptrStr(v map[string]any, path ...string) (string, bool) {
	s, ok := ptr(v, path...).(string)
	return s, ok
}

func ptrInt64(v map[string]any, path ...string) (int64, bool) {
	switch n := ptr(v, path...).(type) {
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func ptrArray(v map[string]any, path ...string) ([]any, bool) {
	a, ok := ptr(v, path...).([]any)
	return a, ok
}

// unescapeBackslashQuotes mirrors the original's double backslash-unescape
// pass over the embedded roomInfo blob.
func unescapeBackslashQuotes(s string) string {
	return signcodec.UnescapeTwice(s)
}

func parseRoomIDFromHTML(html string) (rid int64, isLiving bool, err error) {
	markers := []string{`\"roomInfo\"`, `"roomInfo"`, `roomInfo`}
	for _, marker := range markers {
		obj, extractErr := signcodec.ExtractBraceJSON(html, marker)
		if extractErr != nil {
			continue
		}
		obj = unescapeBackslashQuotes(obj)
		var parsed map[string]any
		if jsonErr := json.Unmarshal([]byte(obj), &parsed); jsonErr != nil {
			continue
		}
		rid, ok := ptrInt64(parsed, "room", "room_id")
		if !ok {
			continue
		}
		status, _ := ptrInt64(parsed, "room", "show_status")
		return rid, status == 1, nil
	}

	ridStr, ok := signcodec.FastRoomIDFallback(html)
	if !ok {
		return 0, false, model.New(model.KindParse, "douyu: missing room_id")
	}
	rid, convErr := strconv.ParseInt(ridStr, 10, 64)
	if convErr != nil {
		return 0, false, model.Wrap(model.KindParse, "douyu: invalid room_id", convErr)
	}
	return rid, false, nil
}

func parseBetardInfo(betard map[string]any) model.LiveInfo {
	title, _ := ptrStr(betard, "room", "room_name")
	name, _ := ptrStr(betard, "room", "nickname")
	avatar, _ := ptrStr(betard, "room", "avatar", "big")
	cover, _ := ptrStr(betard, "room", "room_pic")

	isLiving := false
	switch v := ptr(betard, "room", "show_status").(type) {
	case float64:
		isLiving = v == 1
	case string:
		isLiving = v == "1"
	}

	return model.LiveInfo{
		Title:      strings.TrimSpace(title),
		AnchorName: strings.TrimSpace(name),
		Avatar:     strings.TrimSpace(avatar),
		Cover:      strings.TrimSpace(cover),
		IsLiving:   isLiving,
	}
}

// randomDeviceID produces a 32-hex-char stand-in for Douyu's "did" cookie.
func randomDeviceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// stableUUIDLike fills the P2P "uuid" query param with a random 16-hex token.
func stableUUIDLike() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%016x", binary.BigEndian.Uint64(b[:]))
}

func fetchEncryption(ctx context.Context, h *httpx.Client, ep Endpoints, did string) (signcodec.DouyuEncryption, error) {
	base := strings.TrimRight(ep.Base, "/")
	u := fmt.Sprintf("%s/wgapi/livenc/liveweb/websec/getEncryption?did=%s", base, did)
	resp, err := getJSON(ctx, h, u)
	if err != nil {
		return signcodec.DouyuEncryption{}, err
	}
	if errCode, _ := ptrInt64(resp, "error"); errCode != 0 {
		return signcodec.DouyuEncryption{}, model.New(model.KindParse, "douyu: encryption error")
	}
	data, _ := resp["data"].(map[string]any)
	if data == nil {
		return signcodec.DouyuEncryption{}, model.New(model.KindParse, "douyu: missing data")
	}
	encTime, _ := ptrInt64(data, "enc_time")
	isSpecial, _ := ptrInt64(data, "is_special")
	key, _ := ptrStr(data, "key")
	randStr, _ := ptrStr(data, "rand_str")
	encData, _ := ptrStr(data, "enc_data")
	return signcodec.DouyuEncryption{
		Key:       key,
		RandStr:   randStr,
		EncTime:   strconv.FormatInt(encTime, 10),
		EncData:   encData,
		IsSpecial: int(isSpecial),
	}, nil
}

func buildPlayURLs(ep Endpoints, rtmpURL, rtmpLive string, p2pMeta map[string]any, cdnHosts []string) (string, []string) {
	flvURL := strings.TrimRight(rtmpURL, "/") + "/" + rtmpLive
	var p2pURLs []string
	if p2pMeta == nil {
		return flvURL, p2pURLs
	}

	domainRaw, _ := p2pMeta["xp2p_domain"].(string)
	domain := strings.TrimSpace(domainRaw)
	if domain == "" {
		return flvURL, p2pURLs
	}

	delay, _ := ptrInt64(p2pMeta, "xp2p_txDelay")
	secret, _ := p2pMeta["xp2p_txSecret"].(string)
	txTime, _ := p2pMeta["xp2p_txTime"].(string)

	replaced := strings.ReplaceAll(rtmpLive, "flv", "xs")
	parts := strings.Split(replaced, "&")
	parts = append(parts,
		fmt.Sprintf("delay=%d", delay),
		"txSecret="+secret,
		"txTime="+txTime,
		"uuid="+stableUUIDLike(),
	)
	xsString := fmt.Sprintf("%s/live/%s", domain, strings.Join(parts, "&"))

	for _, host := range cdnHosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		p2pURLs = append(p2pURLs, fmt.Sprintf("%s://%s/%s", ep.P2PScheme, host, xsString))
	}
	return flvURL, p2pURLs
}

func buildCDNURL(ep Endpoints, xp2pDomain, rtmpLive string) (string, bool) {
	prefix := strings.TrimSpace(strings.SplitN(rtmpLive, ".", 2)[0])
	xp2pDomain = strings.TrimSpace(xp2pDomain)
	if prefix == "" || xp2pDomain == "" {
		return "", false
	}
	return fmt.Sprintf("%s://%s/%s.xs", ep.CDNScheme, xp2pDomain, prefix), true
}

func fetchH5Play(ctx context.Context, h *httpx.Client, ep Endpoints, rid int64, rate int) ([]model.StreamVariant, int, error) {
	did := randomDeviceID()
	enc, err := fetchEncryption(ctx, h, ep, did)
	if err != nil {
		return nil, 0, err
	}
	ts := time.Now().Unix()
	auth := signcodec.DouyuAuth(strconv.FormatInt(rid, 10), ts, enc)

	form := map[string]string{
		"enc_data": enc.EncData,
		"tt":       strconv.FormatInt(ts, 10),
		"did":      did,
		"auth":     auth,
		"cdn":      "",
		"rate":     strconv.Itoa(rate),
		"hevc":     "0",
		"fa":       "0",
		"ive":      "0",
	}

	base := strings.TrimRight(ep.Base, "/")
	u := fmt.Sprintf("%s/lapi/live/getH5PlayV1/%d", base, rid)
	body, status, err := h.PostForm(ctx, u, form, nil)
	if err != nil {
		return nil, 0, err
	}
	if status < 200 || status >= 300 {
		return nil, 0, model.New(model.KindHTTP, "douyu: getH5PlayV1 http status "+strconv.Itoa(status))
	}
	var resp map[string]any
	if err := httpx.JSONUnmarshal([]byte(body), &resp); err != nil {
		return nil, 0, err
	}
	data, _ := resp["data"].(map[string]any)
	if data == nil {
		return nil, 0, model.New(model.KindParse, "douyu: missing data")
	}

	currentRate, _ := ptrInt64(data, "rate")
	rtmpURL, _ := ptrStr(data, "rtmp_url")
	rtmpLive, _ := ptrStr(data, "rtmp_live")
	multirates, ok := ptrArray(data, "multirates")
	if !ok {
		return nil, 0, model.New(model.KindParse, "douyu: missing multirates")
	}

	var cdnHosts []string
	p2pMeta, _ := data["p2pMeta"].(map[string]any)
	if p2pMeta != nil {
		if domain, ok := p2pMeta["xp2p_domain"].(string); ok {
			if cdnURL, ok := buildCDNURL(ep, domain, rtmpLive); ok {
				if cdnJSON, err := getJSON(ctx, h, cdnURL); err == nil {
					for _, key := range []string{"sug", "bak"} {
						if arr, ok := cdnJSON[key].([]any); ok {
							for _, it := range arr {
								if s, ok := it.(string); ok {
									cdnHosts = append(cdnHosts, s)
								}
							}
						}
					}
				}
			}
		}
	}

	flvURL, p2pURLs := buildPlayURLs(ep, rtmpURL, rtmpLive, p2pMeta, cdnHosts)
	urls := append([]string{flvURL}, p2pURLs...)

	var variants []model.StreamVariant
	for _, raw := range multirates {
		mr, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label, _ := mr["name"].(string)
		mrRate, _ := toInt64(mr["rate"])
		bit, _ := toInt64(mr["bit"])
		if label == "" || mrRate < 0 || bit < 0 {
			continue
		}
		rateCopy := int(mrRate)
		v := model.StreamVariant{
			ID:      makeVariantID(int(mrRate), label),
			Label:   label,
			Quality: int(bit),
			Rate:    &rateCopy,
		}
		if mrRate == currentRate && len(urls) > 0 {
			v.URL = urls[0]
			v.BackupURLs = append([]string(nil), urls[1:]...)
		}
		variants = append(variants, v)
	}

	sort.SliceStable(variants, func(i, j int) bool { return variants[i].Quality > variants[j].Quality })
	return variants, int(currentRate), nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	default:
		return -1, false
	}
}

type Manifest struct {
	HTTP *httpx.Client
	Ep   Endpoints
}

func NewManifest(h *httpx.Client, ep Endpoints) *Manifest { return &Manifest{HTTP: h, Ep: ep} }

func (m *Manifest) DecodeManifest(ctx context.Context, roomID, rawInput string, _ ResolveOptions) (model.LiveManifest, error) {
	roomID = strings.Trim(strings.TrimSpace(roomID), "/")
	if roomID == "" {
		return model.LiveManifest{}, model.New(model.KindInvalidInput, "empty room id")
	}

	base := strings.TrimRight(m.Ep.Base, "/")
	html, err := m.HTTP.GetText(ctx, base+"/"+url.PathEscape(roomID), nil)
	if err != nil {
		return model.LiveManifest{}, err
	}
	rid, isLiving, err := parseRoomIDFromHTML(html)
	if err != nil {
		return model.LiveManifest{}, err
	}

	betardURL := fmt.Sprintf("%s/betard/%d", base, rid)
	betard, err := getJSON(ctx, m.HTTP, betardURL)
	if err != nil {
		return model.LiveManifest{}, err
	}
	info := parseBetardInfo(betard)
	info.IsLiving = isLiving

	vars, _, err := fetchH5Play(ctx, m.HTTP, m.Ep, rid, 0)
	if err != nil {
		return model.LiveManifest{}, err
	}

	return model.LiveManifest{
		Site:     model.SiteDouyu,
		RoomID:   strconv.FormatInt(rid, 10),
		RawInput: rawInput,
		Info:     info,
		Playback: model.Playback{Referer: "https://www.douyu.com/"},
		Variants: vars,
	}, nil
}

func (m *Manifest) ResolveVariant(ctx context.Context, roomID, variantID string) (model.StreamVariant, error) {
	rid, err := strconv.ParseInt(strings.TrimSpace(roomID), 10, 64)
	if err != nil {
		return model.StreamVariant{}, model.New(model.KindInvalidInput, "invalid room_id")
	}

	parts := strings.SplitN(strings.TrimSpace(variantID), ":", 3)
	if len(parts) != 3 {
		return model.StreamVariant{}, model.New(model.KindInvalidInput, "invalid variant_id")
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return model.StreamVariant{}, model.New(model.KindInvalidInput, "invalid rate")
	}

	vars, _, err := fetchH5Play(ctx, m.HTTP, m.Ep, rid, rate)
	if err != nil {
		return model.StreamVariant{}, err
	}
	for _, v := range vars {
		if v.Rate != nil && *v.Rate == rate {
			v.ID = makeVariantID(rate, v.Label)
			return v, nil
		}
	}
	return model.StreamVariant{}, model.New(model.KindParse, "variant not found")
}
