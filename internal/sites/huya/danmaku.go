// Package huya implements the Huya danmaku connector: mobile-page room
// resolution via HNF_GLOBAL_INIT extraction, and a JCE/TARS-framed
// WebSocket join/heartbeat/push loop.
package huya

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/signcodec/jce"
	"github.com/MatchaCake/livecore/internal/sites/connrunner"
)

const serverURL = "wss://cdnws.api.huya.com"

var heartbeatBytes = []byte{0x00, 0x14, 0x1d, 0x00, 0x0c, 0x2c, 0x36, 0x00, 0x4c}

const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 13_2_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.0.3 Mobile/15E148 Safari/604.1"

// ConnectOptions carries per-run filtering knobs.
type ConnectOptions struct {
	Blocklist []string
}

func Resolve(ctx context.Context, h *httpx.Client, roomID string) (model.ResolvedTarget, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return model.ResolvedTarget{}, model.New(model.KindInvalidInput, "empty room id")
	}

	headers := h.HeaderMapWithCookie("", "")
	headers.Set("User-Agent", mobileUserAgent)
	html, err := h.GetText(ctx, "https://m.huya.com/"+roomID, headers)
	if err != nil {
		return model.ResolvedTarget{}, err
	}

	jsonStr, ok := extractGlobalInitJSON(html)
	if !ok {
		return model.ResolvedTarget{}, model.New(model.KindParse, "failed to extract Huya HNF_GLOBAL_INIT json")
	}
	var parsed map[string]any
	if err := httpx.JSONUnmarshal([]byte(jsonStr), &parsed); err != nil {
		return model.ResolvedTarget{}, err
	}
	yyuid, ok := pointerInt64(parsed, "roomInfo", "tLiveInfo", "lYyid")
	if !ok {
		return model.ResolvedTarget{}, model.New(model.KindParse, "missing roomInfo.tLiveInfo.lYyid")
	}
	uid, ok := pointerInt64(parsed, "roomInfo", "tLiveInfo", "lUid")
	if !ok {
		return model.ResolvedTarget{}, model.New(model.KindParse, "missing roomInfo.tLiveInfo.lUid")
	}

	return model.ResolvedTarget{
		Site:            model.SiteHuya,
		CanonicalRoomID: roomID,
		ConnectInfo:     model.HuyaConnect{RoomID: parseRoomIDOrZero(roomID), YYUID: yyuid, UID: uid},
	}, nil
}

func parseRoomIDOrZero(roomID string) int64 {
	n, _ := strconv.ParseInt(roomID, 10, 64)
	return n
}

func pointerInt64(v map[string]any, path ...string) (int64, bool) {
	var cur any = v
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return 0, false
		}
		cur, ok = m[p]
		if !ok {
			return 0, false
		}
	}
	switch n := cur.(type) {
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

var globalInitRe = regexp.MustCompile(`(?s)window\.HNF_GLOBAL_INIT\s*=\s*\{(.*)\}\s*;?\s*</script>`)

// extractGlobalInitJSON tries a regex anchored to </script> first, then
// falls back to string-aware brace matching for pages where the regex
// doesn't cleanly match.
func extractGlobalInitJSON(html string) (string, bool) {
	if m := globalInitRe.FindStringSubmatch(html); m != nil {
		return "{" + m[1] + "}", true
	}

	const needle = "window.HNF_GLOBAL_INIT"
	start := strings.Index(html, needle)
	if start < 0 {
		return "", false
	}
	after := html[start:]
	bracePos := strings.IndexByte(after, '{')
	if bracePos < 0 {
		return "", false
	}
	absBrace := start + bracePos

	depth := 0
	inStr := false
	esc := false
	for i := absBrace; i < len(html); i++ {
		b := html[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case b == '\\':
				esc = true
			case b == '"':
				inStr = false
			}
			continue
		}
		switch b {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return html[absBrace : i+1], true
			}
		}
	}
	return "", false
}

func encodeWSCmd(cmdType int32, data []byte) []byte {
	e := jce.NewEncoder()
	e.WriteI32(0, cmdType)
	e.WriteBytes(1, data)
	return e.Bytes()
}

func encodeJoinCmd(yyuid, uid int64) []byte {
	inner := jce.NewEncoder()
	inner.WriteI64(0, yyuid)
	inner.WriteBool(1, true)
	inner.WriteString(2, "")
	inner.WriteString(3, "")
	inner.WriteI64(4, uid)
	inner.WriteI64(5, uid)
	inner.WriteI32(6, 0)
	inner.WriteI32(7, 0)
	return encodeWSCmd(1, inner.Bytes())
}

// Run dials the danmaku websocket, joins the room, and emits events onto
// sink until ctx is cancelled or a fatal error occurs.
func Run(ctx context.Context, target model.ResolvedTarget, opt ConnectOptions, sink *model.EventChannel, logger *slog.Logger) error {
	connect, ok := target.ConnectInfo.(model.HuyaConnect)
	if !ok {
		return model.New(model.KindInvalidInput, "huya connector expects HuyaConnect")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return model.Wrap(model.KindDanmaku, "dial huya danmaku", err)
	}
	defer conn.Close()
	logger.Debug("huya danmaku connected", "room_id", target.CanonicalRoomID)

	joinCmd := encodeJoinCmd(connect.YYUID, connect.UID)
	if err := conn.WriteMessage(websocket.BinaryMessage, joinCmd); err != nil {
		return model.Wrap(model.KindDanmaku, "send huya join command", err)
	}
	_ = sink.Send(ctx, model.DanmakuEvent{
		Site: model.SiteHuya, RoomID: target.CanonicalRoomID,
		Method: model.MethodLiveDMServer,
	})

	anyMsgSeen := false
	return connrunner.RunWithHeartbeat(ctx, 30*time.Second,
		func() error {
			return conn.WriteMessage(websocket.BinaryMessage, heartbeatBytes)
		},
		func() error {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				_ = sink.Send(ctx, model.DanmakuEvent{
					Site: model.SiteHuya, RoomID: target.CanonicalRoomID,
					Method: model.MethodLiveDMServer, Text: "error",
				})
				return model.Wrap(model.KindDanmaku, "huya read loop", err)
			}
			if msgType != websocket.BinaryMessage {
				return nil
			}

			if !anyMsgSeen {
				anyMsgSeen = true
				// Some environments drop the initial handshake marker, so
				// resend it once real traffic is observed.
				_ = sink.Send(ctx, model.DanmakuEvent{
					Site: model.SiteHuya, RoomID: target.CanonicalRoomID,
					Method: model.MethodLiveDMServer,
				})
			}

			if err := handleBinary(ctx, target.CanonicalRoomID, opt, sink, data); err != nil {
				_ = sink.Send(ctx, model.DanmakuEvent{
					Site: model.SiteHuya, RoomID: target.CanonicalRoomID,
					Method: model.MethodLiveDMServer, Text: "error",
				})
				return err
			}
			return nil
		}, logger, "room_id", target.CanonicalRoomID)
}

func handleBinary(ctx context.Context, roomID string, opt ConnectOptions, sink *model.EventChannel, bin []byte) error {
	msgType, _, err := jce.GetI32(bin, 0)
	if err != nil {
		return model.Wrap(model.KindCodec, "huya: decode msg_type", err)
	}
	data, _, err := jce.GetBytes(bin, 1)
	if err != nil {
		return model.Wrap(model.KindCodec, "huya: decode push data", err)
	}

	if msgType == 7 {
		return handlePush(ctx, roomID, opt, sink, data)
	}
	return nil
}

func handlePush(ctx context.Context, roomID string, opt ConnectOptions, sink *model.EventChannel, data []byte) error {
	uri, _, err := jce.GetI64(data, 1)
	if err != nil {
		return model.Wrap(model.KindCodec, "huya: decode push uri", err)
	}
	msg, _, err := jce.GetBytes(data, 2)
	if err != nil {
		return model.Wrap(model.KindCodec, "huya: decode push msg", err)
	}

	if uri != 1400 {
		return nil
	}

	content, ok, err := jce.GetString(msg, 3)
	if err != nil {
		return model.Wrap(model.KindCodec, "huya: decode MessageNotice content", err)
	}
	if !ok || content == "" {
		return nil
	}
	for _, b := range opt.Blocklist {
		if b != "" && strings.Contains(content, b) {
			return nil
		}
	}

	var nick string
	if userInfo, ok, _ := jce.GetStructBytes(msg, 0); ok {
		nick, _, _ = jce.GetString(userInfo, 2)
	}

	_ = sink.Send(ctx, model.DanmakuEvent{
		Site:        model.SiteHuya,
		RoomID:      roomID,
		Method:      model.MethodSendDM,
		User:        nick,
		TimestampMs: time.Now().UnixMilli(),
		Comments:    []model.DanmakuComment{{Text: content}},
	})
	return nil
}
