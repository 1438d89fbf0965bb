package bililive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/signcodec"
	"github.com/MatchaCake/livecore/internal/sites/connrunner"
)

const danmakuServerURL = "wss://broadcastlv.chat.bilibili.com/sub"

// DanmakuEndpoints groups the API hosts the resolve step calls.
type DanmakuEndpoints struct {
	APIBase string
}

func DefaultDanmakuEndpoints() DanmakuEndpoints {
	return DanmakuEndpoints{APIBase: "https://api.live.bilibili.com"}
}

// httpGetter is the narrow interface danmaku.go needs from httpx.Client,
// kept small so tests can fake it without pulling in the real transport.
type httpGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// HTTPGetter adapts *httpx.Client to httpGetter.
type HTTPGetter struct {
	Client *httpx.Client
}

func (g HTTPGetter) GetJSON(ctx context.Context, url string, v any) error {
	return g.Client.GetJSON(ctx, url, nil, v)
}

func fetchRoomRID(ctx context.Context, g httpGetter, apiBase string, shortID int64) (int64, error) {
	url := fmt.Sprintf("%s/room/v1/Room/get_info?room_id=%d", strings.TrimRight(apiBase, "/"), shortID)
	var v map[string]any
	if err := g.GetJSON(ctx, url, &v); err != nil {
		return 0, err
	}
	rid, ok := ptrInt64(v, "data", "room_id")
	if !ok {
		return 0, model.New(model.KindParse, "missing data.room_id")
	}
	return rid, nil
}

func fetchNavWBI(ctx context.Context, g httpGetter, apiBase string) (uid int64, imgKey, subKey string, err error) {
	var v map[string]any
	if gerr := g.GetJSON(ctx, "https://api.bilibili.com/x/web-interface/nav", &v); gerr != nil {
		return 0, "", "", gerr
	}
	uid, _ = ptrInt64(v, "data", "mid")
	imgURL, ok := ptrStr(v, "data", "wbi_img", "img_url")
	if !ok {
		return 0, "", "", model.New(model.KindParse, "missing data.wbi_img.img_url")
	}
	subURL, ok := ptrStr(v, "data", "wbi_img", "sub_url")
	if !ok {
		return 0, "", "", model.New(model.KindParse, "missing data.wbi_img.sub_url")
	}
	return uid, extractWBIKey(imgURL), extractWBIKey(subURL), nil
}

func extractWBIKey(u string) string {
	parts := strings.Split(u, "/")
	last := parts[len(parts)-1]
	if idx := strings.IndexByte(last, '.'); idx >= 0 {
		return last[:idx]
	}
	return last
}

func fetchDanmuToken(ctx context.Context, g httpGetter, apiBase string, rid int64, imgKey, subKey string) (string, error) {
	signed := signWBIParam(rid, imgKey, subKey)
	url := fmt.Sprintf("%s/xlive/web-room/v1/index/getDanmuInfo?%s", strings.TrimRight(apiBase, "/"), signed)
	var v map[string]any
	if err := g.GetJSON(ctx, url, &v); err != nil {
		return "", err
	}
	token, ok := ptrStr(v, "data", "token")
	if !ok {
		return "", model.New(model.KindParse, "missing data.token")
	}
	return token, nil
}

func fetchEmoticons(ctx context.Context, g httpGetter, rid int64) (map[string]model.EmoticonMeta, error) {
	url := fmt.Sprintf("https://api.live.bilibili.com/xlive/web-ucenter/v2/emoticon/GetEmoticons?platform=pc&room_id=%d", rid)
	var v map[string]any
	out := map[string]model.EmoticonMeta{}
	if err := g.GetJSON(ctx, url, &v); err != nil {
		return out, err
	}
	pkgs, ok := ptrArray(v, "data", "data")
	if !ok {
		return out, nil
	}
	for _, p := range pkgs {
		pm, ok := asMap(p)
		if !ok {
			continue
		}
		pkgName, _ := pm["pkg_name"].(string)
		emots, ok := pm["emoticons"].([]any)
		if !ok {
			continue
		}
		for _, e := range emots {
			em, ok := asMap(e)
			if !ok {
				continue
			}
			unique, _ := em["emoticon_unique"].(string)
			if unique == "" {
				continue
			}
			rawURL, _ := em["url"].(string)
			if rawURL == "" {
				continue
			}
			width, _ := asInt(em["width"])
			height, _ := asInt(em["height"])
			if pkgName == "emoji" {
				width, height = 75, 75
			}
			out[unique] = model.EmoticonMeta{
				UniqueKey: unique,
				HTTPSURL:  ensureHTTPS(rawURL),
				Width:     width,
				Height:    height,
			}
		}
	}
	return out, nil
}

func ensureHTTPS(u string) string {
	s := strings.TrimSpace(u)
	switch {
	case strings.HasPrefix(s, "https://"):
		return s
	case strings.HasPrefix(s, "http://"):
		return "https://" + s[len("http://"):]
	case strings.HasPrefix(s, "//"):
		return "https:" + s
	default:
		return s
	}
}

// scaledWidth mirrors scaled_width(): clamp to [0,200] then halve; zero
// or negative means "no width known".
func scaledWidth(width int64) (int, bool) {
	if width <= 0 {
		return 0, false
	}
	w := width
	if w > 200 {
		w = 200
	}
	return int(w / 2), true
}

func mkBuvid() string {
	id := uuid.New()
	hex32 := strings.ReplaceAll(id.String(), "-", "")
	hex16 := fmt.Sprintf("%016x", rand.Uint64())
	digits := 10000 + rand.IntN(80000)
	return fmt.Sprintf("%s%s%dinfoc", hex32, hex16, digits)
}

// Resolve implements §4.4.1's resolve step: short-id -> canonical rid,
// WBI keys, danmaku token, and a best-effort emoticon map.
func Resolve(ctx context.Context, g httpGetter, ep DanmakuEndpoints, roomID string) (model.ResolvedTarget, error) {
	shortID, err := strconv.ParseInt(strings.TrimSpace(roomID), 10, 64)
	if err != nil {
		return model.ResolvedTarget{}, model.New(model.KindInvalidInput, "invalid bilibili room id: "+roomID)
	}

	rid, err := fetchRoomRID(ctx, g, ep.APIBase, shortID)
	if err != nil {
		return model.ResolvedTarget{}, err
	}
	uid, imgKey, subKey, err := fetchNavWBI(ctx, g, ep.APIBase)
	if err != nil {
		return model.ResolvedTarget{}, err
	}
	token, err := fetchDanmuToken(ctx, g, ep.APIBase, rid, imgKey, subKey)
	if err != nil {
		return model.ResolvedTarget{}, err
	}
	emoticons, _ := fetchEmoticons(ctx, g, rid)

	return model.ResolvedTarget{
		Site:            model.SiteBiliLive,
		CanonicalRoomID: strconv.FormatInt(rid, 10),
		ConnectInfo: model.BiliLiveConnect{
			RID:            strconv.FormatInt(rid, 10),
			Token:          token,
			UID:            uid,
			EmoticonsByKey: emoticons,
		},
	}, nil
}

// Run dials the danmaku websocket, authenticates, and emits events onto
// sink until ctx is cancelled or a fatal error occurs.
func Run(ctx context.Context, target model.ResolvedTarget, sink *model.EventChannel, logger *slog.Logger) error {
	connect, ok := target.ConnectInfo.(model.BiliLiveConnect)
	if !ok {
		return model.New(model.KindInvalidInput, "bililive connector expects BiliLiveConnect")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, danmakuServerURL, nil)
	if err != nil {
		return model.Wrap(model.KindDanmaku, "dial bilibili danmaku", err)
	}
	defer conn.Close()
	logger.Debug("bililive danmaku connected", "room_id", target.CanonicalRoomID)

	rid, _ := strconv.ParseInt(connect.RID, 10, 64)
	authJSON, _ := json.Marshal(map[string]any{
		"uid":      connect.UID,
		"roomid":   rid,
		"protover": 2,
		"buvid":    mkBuvid(),
		"platform": "web",
		"type":     2,
		"key":      connect.Token,
	})
	if err := conn.WriteMessage(websocket.BinaryMessage, encodePacket(authJSON, opAuth, 1)); err != nil {
		return model.Wrap(model.KindDanmaku, "send bilibili auth packet", err)
	}

	liveOKSent := atomic.Bool{}

	return connrunner.RunWithHeartbeat(ctx, 30*time.Second,
		func() error {
			return conn.WriteMessage(websocket.BinaryMessage, encodePacket(nil, opHeartbeat, 1))
		},
		func() error {
			_, data, err := conn.ReadMessage()
			if err != nil {
				_ = sink.Send(ctx, model.DanmakuEvent{
					Site: model.SiteBiliLive, RoomID: target.CanonicalRoomID,
					Method: model.MethodLiveDMServer, Text: "error",
				})
				return model.Wrap(model.KindDanmaku, "bilibili read loop", err)
			}
			if err := handleFrame(ctx, target.CanonicalRoomID, sink, data, 0, connect.EmoticonsByKey, &liveOKSent); err != nil {
				_ = sink.Send(ctx, model.DanmakuEvent{
					Site: model.SiteBiliLive, RoomID: target.CanonicalRoomID,
					Method: model.MethodLiveDMServer, Text: "error",
				})
				return err
			}
			return nil
		}, logger, "room_id", target.CanonicalRoomID)
}

func handleFrame(ctx context.Context, roomID string, sink *model.EventChannel, data []byte, depth int, emoticons map[string]model.EmoticonMeta, liveOKSent *atomic.Bool) error {
	if depth > protoverMaxDepth {
		return model.New(model.KindParse, "bilibili packet nesting too deep")
	}
	packets, err := parsePackets(data)
	if err != nil {
		return err
	}
	for _, p := range packets {
		switch p.operation {
		case opAuthReply:
			if !liveOKSent.Swap(true) {
				_ = sink.Send(ctx, model.DanmakuEvent{Site: model.SiteBiliLive, RoomID: roomID, Method: model.MethodLiveDMServer})
			}
		case opCommand:
			switch p.protover {
			case 0:
				for _, part := range strings.Split(string(p.body), "\x00") {
					if !strings.HasPrefix(strings.TrimSpace(part), "{") {
						continue
					}
					var v map[string]any
					if json.Unmarshal([]byte(part), &v) != nil {
						continue
					}
					handleJSON(ctx, roomID, sink, v, emoticons)
				}
			case 2:
				inflated, err := inflateAny(p.body)
				if err != nil {
					return err
				}
				if err := handleFrame(ctx, roomID, sink, inflated, depth+1, emoticons, liveOKSent); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func handleJSON(ctx context.Context, roomID string, sink *model.EventChannel, v map[string]any, emoticons map[string]model.EmoticonMeta) {
	cmd, _ := v["cmd"].(string)
	if strings.HasPrefix(cmd, "DANMU_MSG") {
		handleDanmuMsg(ctx, roomID, sink, v, emoticons)
		return
	}
	handleDmV2Fallback(ctx, roomID, sink, v)
}

func handleDanmuMsg(ctx context.Context, roomID string, sink *model.EventChannel, v map[string]any, emoticons map[string]model.EmoticonMeta) {
	user, _ := ptrStr(v, "info", "2", "1")

	info0, ok := ptrArray(v, "info", "0")
	if !ok {
		return
	}

	// info[0][13]: {"emoticon_unique":..., "url":..., "width":..., "height":...}
	if len(info0) > 13 {
		if obj, ok := asMap(info0[13]); ok {
			unique, hasUnique := obj["emoticon_unique"].(string)
			url, hasURL := obj["url"].(string)
			if hasUnique && hasURL && unique != "" && url != "" {
				width, _ := asInt(obj["width"])
				if width == 0 {
					width = 180
				}
				w, hasW := scaledWidth(int64(width))
				emitEvent(ctx, sink, roomID, user, "", ensureHTTPS(url), w, hasW)
				return
			}
		}
	}

	// info[0][15].extra: JSON string.
	if len(info0) > 15 {
		if obj, ok := asMap(info0[15]); ok {
			if extraStr, ok := obj["extra"].(string); ok {
				var extra map[string]any
				if json.Unmarshal([]byte(extraStr), &extra) == nil {
					content, _ := extra["content"].(string)

					if emots, ok := extra["emots"].(map[string]any); ok && len(emots) > 0 {
						for _, raw := range emots {
							em, ok := asMap(raw)
							if !ok {
								continue
							}
							url, _ := em["url"].(string)
							if url == "" {
								continue
							}
							width, _ := asInt(em["width"])
							if width == 0 {
								width = 180
							}
							w, hasW := scaledWidth(int64(width))
							emitEvent(ctx, sink, roomID, user, "", ensureHTTPS(url), w, hasW)
							return
						}
					}

					if unique, ok := extra["emoticon_unique"].(string); ok && unique != "" {
						if meta, found := emoticons[unique]; found {
							w, hasW := scaledWidth(int64(meta.Width))
							emitEvent(ctx, sink, roomID, user, "", meta.HTTPSURL, w, hasW)
							return
						}
					}

					if content != "" {
						emitEvent(ctx, sink, roomID, user, content, "", 0, false)
						return
					}
				}
			}
		}
	}

	if msg, ok := ptrStr(v, "info", "1"); ok && msg != "" {
		emitEvent(ctx, sink, roomID, user, msg, "", 0, false)
	}
}

func handleDmV2Fallback(ctx context.Context, roomID string, sink *model.EventChannel, v map[string]any) {
	raw, ok := v["dm_v2"].(string)
	if !ok || raw == "" {
		return
	}
	bs, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return
	}
	dm, err := decodeDmV2(bs)
	if err != nil {
		return
	}
	if dm.BizScene == bizSceneSurvive {
		return
	}
	if dm.DmType == dmTypeEmoticon && len(dm.Emoticons) > 0 {
		e := dm.Emoticons[0]
		w, hasW := scaledWidth(e.Width)
		emitEvent(ctx, sink, roomID, "", "", ensureHTTPS(e.URL), w, hasW)
		return
	}
	if dm.Text != "" {
		emitEvent(ctx, sink, roomID, "", dm.Text, "", 0, false)
	}
}

func emitEvent(ctx context.Context, sink *model.EventChannel, roomID, user, text, imageURL string, width int, hasWidth bool) {
	comment := model.DanmakuComment{Text: text, ImageURL: imageURL}
	if hasWidth {
		comment.ImageWidth = width
		comment.HasWidth = true
	}
	_ = sink.Send(ctx, model.DanmakuEvent{
		Site:        model.SiteBiliLive,
		RoomID:      roomID,
		Method:      model.MethodSendDM,
		User:        user,
		TimestampMs: time.Now().UnixMilli(),
		Comments:    []model.DanmakuComment{comment},
	})
}

// signWBIParam signs the fixed getDanmuInfo query, reusing
// internal/signcodec's shared WBI implementation.
func signWBIParam(rid int64, imgKey, subKey string) string {
	return signcodec.SignWBI(map[string]string{
		"id":           strconv.FormatInt(rid, 10),
		"type":         "0",
		"web_location": "444.8",
	}, signcodec.WBIKeys{ImgKey: imgKey, SubKey: subKey}, time.Now().Unix())
}
