package douyu

// danmaku.go implements the Douyu danmaku connector at contract level:
// Douyu's text framing is not officially documented, so this follows the
// same emit discipline as the other two connectors (one handshake
// marker, periodic heartbeats, SendDM events) over the commonly observed
// key@=value/ framed text protocol rather than a byte-exact reverse
// engineering of the official client.

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/sites/connrunner"
)

const danmakuServerURL = "wss://danmuproxy.douyu.com:8506/"

const (
	msgTypeClient = 689
	msgTypeServer = 690
)

// encodeFrame builds Douyu's length-prefixed text frame: two copies of a
// little-endian length (payload length + the 8 header bytes following the
// first length field, matching the official client's redundant length
// check), a little-endian msg type, an encrypt byte, a reserved byte, the
// body, and a trailing NUL.
func encodeFrame(body string, msgType uint16) []byte {
	payload := append([]byte(body), 0)
	length := uint32(len(payload) + 8)
	buf := make([]byte, 0, 8+len(payload))
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, length)
	buf = append(buf, lenBytes...)
	buf = append(buf, lenBytes...)
	buf = append(buf, byte(msgType), byte(msgType>>8), 0, 0)
	buf = append(buf, payload...)
	return buf
}

// decodeFrames splits a read buffer into zero or more complete frames,
// returning the parsed bodies and any leftover partial bytes.
func decodeFrames(buf []byte) (bodies []string, rest []byte) {
	for len(buf) >= 8 {
		length := binary.LittleEndian.Uint32(buf[0:4])
		total := int(length) + 4
		if total < 12 || total > len(buf) {
			break
		}
		body := buf[12:total]
		body = bytes.TrimRight(body, "\x00")
		bodies = append(bodies, string(body))
		buf = buf[total:]
	}
	return bodies, buf
}

// parseKV parses Douyu's "type@=chatmsg/txt@=hi/nn@=alice/" frame body
// into a key/value map, ignoring the empty trailing segment.
func parseKV(body string) map[string]string {
	out := map[string]string{}
	for _, seg := range strings.Split(body, "/") {
		if seg == "" {
			continue
		}
		kv := strings.SplitN(seg, "@=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func Resolve(roomID, deviceID string) model.ResolvedTarget {
	return model.ResolvedTarget{
		Site:            model.SiteDouyu,
		CanonicalRoomID: strings.TrimSpace(roomID),
		ConnectInfo: model.DouyuConnect{
			RoomID:   strings.TrimSpace(roomID),
			DeviceID: deviceID,
		},
	}
}

// Run dials the danmaku websocket, joins the room, and emits events onto
// sink until ctx is cancelled or a fatal error occurs.
func Run(ctx context.Context, target model.ResolvedTarget, sink *model.EventChannel, logger *slog.Logger) error {
	connect, ok := target.ConnectInfo.(model.DouyuConnect)
	if !ok {
		return model.New(model.KindInvalidInput, "douyu connector expects DouyuConnect")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, danmakuServerURL, nil)
	if err != nil {
		return model.Wrap(model.KindDanmaku, "dial douyu danmaku", err)
	}
	defer conn.Close()
	logger.Debug("douyu danmaku connected", "room_id", target.CanonicalRoomID)

	login := fmt.Sprintf("type@=loginreq/roomid@=%s/", connect.RoomID)
	if err := conn.WriteMessage(websocket.TextMessage, encodeFrame(login, msgTypeClient)); err != nil {
		return model.Wrap(model.KindDanmaku, "send douyu login", err)
	}
	joinGroup := fmt.Sprintf("type@=joingroup/rid@=%s/gid@=-9999/", connect.RoomID)
	if err := conn.WriteMessage(websocket.TextMessage, encodeFrame(joinGroup, msgTypeClient)); err != nil {
		return model.Wrap(model.KindDanmaku, "send douyu joingroup", err)
	}

	_ = sink.Send(ctx, model.DanmakuEvent{
		Site: model.SiteDouyu, RoomID: target.CanonicalRoomID,
		Method: model.MethodLiveDMServer,
	})

	var pending []byte
	return connrunner.RunWithHeartbeat(ctx, 45*time.Second,
		func() error {
			return conn.WriteMessage(websocket.TextMessage, encodeFrame("type@=mrkl/", msgTypeClient))
		},
		func() error {
			_, data, err := conn.ReadMessage()
			if err != nil {
				_ = sink.Send(ctx, model.DanmakuEvent{
					Site: model.SiteDouyu, RoomID: target.CanonicalRoomID,
					Method: model.MethodLiveDMServer, Text: "error",
				})
				return model.Wrap(model.KindDanmaku, "douyu read loop", err)
			}

			pending = append(pending, data...)
			var bodies []string
			bodies, pending = decodeFrames(pending)
			for _, body := range bodies {
				handleFrame(ctx, target.CanonicalRoomID, sink, body)
			}
			return nil
		}, logger, "room_id", target.CanonicalRoomID)
}

func handleFrame(ctx context.Context, roomID string, sink *model.EventChannel, body string) {
	kv := parseKV(body)
	if kv["type"] != "chatmsg" {
		return
	}
	text := kv["txt"]
	user := kv["nn"]
	if text == "" {
		return
	}
	_ = sink.Send(ctx, model.DanmakuEvent{
		Site:        model.SiteDouyu,
		RoomID:      roomID,
		Method:      model.MethodSendDM,
		User:        user,
		TimestampMs: time.Now().UnixMilli(),
		Comments:    []model.DanmakuComment{{Text: text}},
	})
}
