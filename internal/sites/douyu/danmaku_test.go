package douyu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/model"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	frame := encodeFrame("type@=chatmsg/txt@=hello/nn@=alice/", msgTypeServer)
	bodies, rest := decodeFrames(frame)
	require.Empty(t, rest)
	require.Len(t, bodies, 1)
	require.Equal(t, "type@=chatmsg/txt@=hello/nn@=alice/", bodies[0])
}

func TestDecodeFramesPartialLeavesRest(t *testing.T) {
	frame := encodeFrame("type@=mrkl/", msgTypeServer)
	bodies, rest := decodeFrames(frame[:len(frame)-3])
	require.Empty(t, bodies)
	require.NotEmpty(t, rest)
}

func TestParseKV(t *testing.T) {
	kv := parseKV("type@=chatmsg/txt@=hi there/nn@=bob/")
	require.Equal(t, "chatmsg", kv["type"])
	require.Equal(t, "hi there", kv["txt"])
	require.Equal(t, "bob", kv["nn"])
}

func TestHandleFrameEmitsOnChatmsg(t *testing.T) {
	sink := model.NewEventChannel(4)
	handleFrame(t.Context(), "54321", sink, "type@=chatmsg/txt@=hello/nn@=alice/")
	sink.Close()

	var got model.DanmakuEvent
	for ev := range sink.Receive() {
		got = ev
	}
	require.Equal(t, model.MethodSendDM, got.Method)
	require.Equal(t, "alice", got.User)
	require.Len(t, got.Comments, 1)
	require.Equal(t, "hello", got.Comments[0].Text)
}

func TestHandleFrameIgnoresNonChatmsg(t *testing.T) {
	sink := model.NewEventChannel(4)
	handleFrame(t.Context(), "54321", sink, "type@=mrkl/")
	sink.Close()

	count := 0
	for range sink.Receive() {
		count++
	}
	require.Zero(t, count)
}

func TestResolve(t *testing.T) {
	target := Resolve("54321", "dev123")
	require.Equal(t, model.SiteDouyu, target.Site)
	require.Equal(t, "54321", target.CanonicalRoomID)
	connect, ok := target.ConnectInfo.(model.DouyuConnect)
	require.True(t, ok)
	require.Equal(t, "dev123", connect.DeviceID)
}
